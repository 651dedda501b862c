package services

import "time"

// Options holds the game policy knobs. Thresholds are policy, not protocol,
// so none of them are hard-coded at call sites.
type Options struct {
	SubmitWindow time.Duration // time players have to answer the prompt
	VoteWindow   time.Duration // time players have to guess and vote
	MaxPlayers   int           // connected-player capacity per room
	MinPlayers   int           // connected players required to start a round
	MaxVotes     int           // vote rows a player may hold per round
	CodeLength   int           // room code length
	CodeAttempts int           // bounded retries for code collisions
	RoomTTL      time.Duration // rooms not reaching ended are reclaimable after this
}

// DefaultOptions returns the standard game policy
func DefaultOptions() Options {
	return Options{
		SubmitWindow: 60 * time.Second,
		VoteWindow:   30 * time.Second,
		MaxPlayers:   8,
		MinPlayers:   3,
		MaxVotes:     2,
		CodeLength:   5,
		CodeAttempts: 10,
		RoomTTL:      30 * time.Minute,
	}
}
