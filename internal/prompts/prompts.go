// Package prompts holds the fixed category list and per-category prompt
// pools. Pools are static content: rooms agree on a category set and rounds
// pull one prompt string from the chosen category's pool.
package prompts

import "math/rand"

// pools maps category id to its prompt pool. Order of the Categories slice
// below is the canonical display order for category intersections.
var pools = map[string][]string{
	"headline_hijack": {
		"Write tomorrow's most unbelievable news headline",
		"A headline that would make everyone delete their social media",
		"The headline your hometown paper runs when you become famous",
		"A headline that gets a weather reporter fired",
		"The first headline after the moon goes missing",
	},
	"bad_advice": {
		"The worst possible advice for a first date",
		"Terrible advice for your first day at a new job",
		"The worst thing to say during a job interview",
		"Awful advice for someone learning to drive",
		"The worst tip for surviving a zombie outbreak",
	},
	"secret_confessions": {
		"A confession you'd only make anonymously",
		"The weirdest thing you believed as a kid",
		"Something you pretend to understand but don't",
		"The pettiest grudge you are still holding",
		"A habit you'd never admit to in person",
	},
	"alternate_history": {
		"What really happened to the dinosaurs",
		"The real reason the pyramids were built",
		"What the first words on the moon should have been",
		"The actual contents of Area 51",
		"Why the Bermuda Triangle eats ships",
	},
	"product_pitch": {
		"Pitch a product nobody asked for",
		"The slogan for a restaurant that only serves cereal",
		"Name and pitch the worst theme park imaginable",
		"An infomercial line for a blanket with sleeves for your pets",
		"The tagline for bottled air from your hometown",
	},
}

// Categories is the fixed global category list, in canonical order
var Categories = func() []string {
	return []string{
		"headline_hijack",
		"bad_advice",
		"secret_confessions",
		"alternate_history",
		"product_pitch",
	}
}()

// Valid reports whether the given category exists in the global list
func Valid(category string) bool {
	_, ok := pools[category]
	return ok
}

// Pick returns a pseudo-random prompt from the category's pool.
// Returns false if the category is unknown or its pool is empty.
func Pick(category string) (string, bool) {
	pool, ok := pools[category]
	if !ok || len(pool) == 0 {
		return "", false
	}
	return pool[rand.Intn(len(pool))], true
}

// Pool returns the prompt pool for a category, nil if unknown
func Pool(category string) []string {
	return pools[category]
}
