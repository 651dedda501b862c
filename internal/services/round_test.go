package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mkendall/whosaidit/internal/errors"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/repository"
	"github.com/mkendall/whosaidit/internal/services"
	"github.com/mkendall/whosaidit/internal/testutil"
)

// recordingWaker captures wake pokes
type recordingWaker struct {
	mu    sync.Mutex
	rooms []string
}

func (w *recordingWaker) Wake(roomCode string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rooms = append(w.rooms, roomCode)
}

func (w *recordingWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rooms)
}

// gameFixture is a room with three joined players and the services around it
type gameFixture struct {
	repo    *repository.Repository
	players *services.PlayerService
	rounds  *services.RoundService
	code    string
	alice   int64
	bob     int64
	carol   int64
}

// setupGame creates a lobby with Alice, Bob and Carol joined
func setupGame(t *testing.T) *gameFixture {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	log := logger.New()
	opts := services.DefaultOptions()
	categorySvc := services.NewCategoryService(log, repo)
	boardSvc := services.NewBoardService(log, repo, opts)
	playerSvc := services.NewPlayerService(log, repo, categorySvc, boardSvc, opts)
	roundSvc := services.NewRoundService(log, repo, opts)

	ctx := context.Background()
	if err := repo.CreateRoom(ctx, "ABCDE", "host-1"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	f := &gameFixture{repo: repo, players: playerSvc, rounds: roundSvc, code: "ABCDE"}
	for _, p := range []struct {
		name  string
		color string
		id    *int64
	}{
		{"Alice", "red", &f.alice},
		{"Bob", "blue", &f.bob},
		{"Carol", "green", &f.carol},
	} {
		player, err := playerSvc.Join(ctx, f.code, p.name, p.color)
		if err != nil {
			t.Fatalf("Join %s failed: %v", p.name, err)
		}
		*p.id = player.ID
	}
	return f
}

// submitAll submits one answer per player and returns submission IDs by player
func submitAll(t *testing.T, f *gameFixture, roundID int64) map[int64]int64 {
	t.Helper()
	ctx := context.Background()
	subs := make(map[int64]int64)
	for _, playerID := range []int64{f.alice, f.bob, f.carol} {
		sub, err := f.rounds.Submit(ctx, roundID, playerID, "an answer")
		if err != nil {
			t.Fatalf("Submit for player %d failed: %v", playerID, err)
		}
		subs[playerID] = sub.ID
	}
	return subs
}

func TestStart_PicksOwnerByRotation(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Round counter 0, players sorted by name: Alice owns the first round.
	if round.OwnerPlayerID != f.alice {
		t.Errorf("expected Alice (%d) to own round one, got %d", f.alice, round.OwnerPlayerID)
	}
	if round.Phase != models.PhaseSubmitting {
		t.Errorf("expected submitting phase, got %s", round.Phase)
	}
	if round.Category != "bad_advice" {
		t.Errorf("expected bad_advice category, got %s", round.Category)
	}
	if round.Prompt == "" {
		t.Error("expected a prompt to be picked")
	}

	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.Status != models.RoomInRound {
		t.Errorf("expected in_round status, got %s", room.Status)
	}
}

func TestStart_RotationCyclesThroughPlayers(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	expected := []int64{f.alice, f.bob, f.carol, f.alice}
	for i, want := range expected {
		round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
		if err != nil {
			t.Fatalf("Start round %d failed: %v", i, err)
		}
		if round.OwnerPlayerID != want {
			t.Errorf("round %d: expected owner %d, got %d", i, want, round.OwnerPlayerID)
		}

		submitAll(t, f, round.ID)
		if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
			t.Fatalf("Reveal round %d failed: %v", i, err)
		}
		if _, err := f.rounds.Finalize(ctx, round.ID); err != nil {
			t.Fatalf("Finalize round %d failed: %v", i, err)
		}
	}
}

func TestStart_NotEnoughPlayers(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	log := logger.New()
	opts := services.DefaultOptions()
	categorySvc := services.NewCategoryService(log, repo)
	boardSvc := services.NewBoardService(log, repo, opts)
	playerSvc := services.NewPlayerService(log, repo, categorySvc, boardSvc, opts)
	roundSvc := services.NewRoundService(log, repo, opts)
	ctx := context.Background()

	if err := repo.CreateRoom(ctx, "ABCDE", "host-1"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := playerSvc.Join(ctx, "ABCDE", "Alice", "red"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := playerSvc.Join(ctx, "ABCDE", "Bob", "blue"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	_, err := roundSvc.Start(ctx, "ABCDE", "bad_advice", "")
	if err != services.ErrNotEnoughPlayers {
		t.Errorf("expected ErrNotEnoughPlayers, got %v", err)
	}
}

func TestStart_SecondStartConflicts(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	if _, err := f.rounds.Start(ctx, f.code, "bad_advice", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != services.ErrRoundInProgress {
		t.Errorf("expected ErrRoundInProgress, got %v", err)
	}
}

func TestStart_EmptyPoolWithoutOverride(t *testing.T) {
	f := setupGame(t)

	_, err := f.rounds.Start(context.Background(), f.code, "", "")
	if err != services.ErrEmptyPool {
		t.Errorf("expected ErrEmptyPool, got %v", err)
	}
}

func TestStart_UnknownCategoryOverride(t *testing.T) {
	f := setupGame(t)

	_, err := f.rounds.Start(context.Background(), f.code, "no_such_category", "")
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
	appErr, ok := err.(*errors.Error)
	if !ok || appErr.Kind != errors.ErrValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStart_CustomPrompt(t *testing.T) {
	f := setupGame(t)

	round, err := f.rounds.Start(context.Background(), f.code, "bad_advice", "Make up your own rule")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if round.Prompt != "Make up your own rule" {
		t.Errorf("expected custom prompt to stick, got %q", round.Prompt)
	}
}

func TestSubmit_EmptyAnswer(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = f.rounds.Submit(ctx, round.ID, f.bob, "   ")
	if err == nil {
		t.Fatal("expected error for whitespace-only answer")
	}
	appErr, ok := err.(*errors.Error)
	if !ok || appErr.Kind != errors.ErrValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSubmit_TooLong(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = f.rounds.Submit(ctx, round.ID, f.bob, strings.Repeat("a", 101))
	if err == nil {
		t.Fatal("expected error for over-length answer")
	}

	// Exactly at the limit is fine.
	if _, err := f.rounds.Submit(ctx, round.ID, f.bob, strings.Repeat("a", 100)); err != nil {
		t.Errorf("expected 100-character answer to pass, got %v", err)
	}
}

func TestSubmit_AfterReveal(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	_, err = f.rounds.Submit(ctx, round.ID, f.bob, "too late")
	if err != services.ErrSubmitClosed {
		t.Errorf("expected ErrSubmitClosed, got %v", err)
	}
}

func TestSubmit_RoundNotFound(t *testing.T) {
	f := setupGame(t)

	_, err := f.rounds.Submit(context.Background(), 999, f.bob, "answer")
	if err != services.ErrRoundNotFound {
		t.Errorf("expected ErrRoundNotFound, got %v", err)
	}
}

func TestReveal_StoresPermutationOnce(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)

	performed, err := f.rounds.Reveal(ctx, round.ID)
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if !performed {
		t.Error("expected first reveal to perform the transition")
	}

	performed, err = f.rounds.Reveal(ctx, round.ID)
	if err != nil {
		t.Fatalf("second Reveal failed: %v", err)
	}
	if performed {
		t.Error("expected second reveal to be a no-op")
	}

	stored, err := f.repo.GetRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if stored.Phase != models.PhaseVoting {
		t.Errorf("expected voting phase, got %s", stored.Phase)
	}
	if stored.VoteDeadline == nil {
		t.Error("expected vote deadline to be set")
	}
	// The order is a permutation of exactly the submitted answers.
	if len(stored.RevealOrder) != len(subs) {
		t.Fatalf("expected %d entries in reveal order, got %d", len(subs), len(stored.RevealOrder))
	}
	seen := make(map[int64]bool)
	for _, id := range stored.RevealOrder {
		seen[id] = true
	}
	for _, id := range subs {
		if !seen[id] {
			t.Errorf("submission %d missing from reveal order %v", id, stored.RevealOrder)
		}
	}
}

func TestReveal_ConcurrentCallsOneWinner(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	submitAll(t, f, round.ID)

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			performed, err := f.rounds.Reveal(ctx, round.ID)
			if err != nil {
				t.Errorf("Reveal failed: %v", err)
				return
			}
			wins <- performed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for performed := range wins {
		if performed {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 reveal winner, got %d", winners)
	}
}

func TestGuess_BeforeReveal(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err = f.rounds.Guess(ctx, round.ID, f.bob, 1)
	if err != services.ErrNotVoting {
		t.Errorf("expected ErrNotVoting, got %v", err)
	}
}

func TestGuess_LastWriteWins(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.carol]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.alice]); err != nil {
		t.Fatalf("second Guess failed: %v", err)
	}

	guesses, err := f.repo.ListGuesses(ctx, round.ID)
	if err != nil {
		t.Fatalf("ListGuesses failed: %v", err)
	}
	if len(guesses) != 1 {
		t.Fatalf("expected 1 guess, got %d", len(guesses))
	}
	if guesses[0].SubmissionID != subs[f.alice] {
		t.Errorf("expected replaced guess on %d, got %d", subs[f.alice], guesses[0].SubmissionID)
	}
}

func TestSetVotes_CappedAtMax(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	err = f.rounds.SetVotes(ctx, round.ID, f.bob,
		[]int64{subs[f.alice], subs[f.carol], subs[f.bob]})
	if err != nil {
		t.Fatalf("SetVotes failed: %v", err)
	}

	votes, err := f.repo.ListVotes(ctx, round.ID)
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(votes) != 2 {
		t.Errorf("expected votes capped at 2, got %d", len(votes))
	}
}

func TestSetVotes_AfterFinalize(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if _, err := f.rounds.Finalize(ctx, round.ID); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	err = f.rounds.SetVotes(ctx, round.ID, f.bob, []int64{subs[f.alice]})
	if err != services.ErrRoundFinalized {
		t.Errorf("expected ErrRoundFinalized, got %v", err)
	}
}

func TestFinalize_ComputesResultsAndScores(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	// Alice owns the round. Bob guesses her answer correctly, Carol misses.
	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.alice]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.carol, subs[f.bob]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	// Bob doubles down on Carol's answer; Carol gives Bob one vote.
	if err := f.rounds.SetVotes(ctx, round.ID, f.bob, []int64{subs[f.carol], subs[f.carol]}); err != nil {
		t.Fatalf("SetVotes failed: %v", err)
	}
	if err := f.rounds.SetVotes(ctx, round.ID, f.carol, []int64{subs[f.bob]}); err != nil {
		t.Fatalf("SetVotes failed: %v", err)
	}

	results, err := f.rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if results.OwnerAnswerID == nil || *results.OwnerAnswerID != subs[f.alice] {
		t.Errorf("expected owner answer %d, got %v", subs[f.alice], results.OwnerAnswerID)
	}
	if len(results.CorrectGuessers) != 1 || results.CorrectGuessers[0] != f.bob {
		t.Errorf("expected Bob as the only correct guesser, got %v", results.CorrectGuessers)
	}
	if results.VoteCounts[subs[f.carol]] != 2 || results.VoteCounts[subs[f.bob]] != 1 {
		t.Errorf("unexpected vote counts: %v", results.VoteCounts)
	}

	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.Status != models.RoomResults {
		t.Errorf("expected results status, got %s", room.Status)
	}
	if room.RoundCounter != 1 {
		t.Errorf("expected round counter 1, got %d", room.RoundCounter)
	}
	if room.ChameleonScores[f.bob] != 1 {
		t.Errorf("expected Bob to hold 1 chameleon point, got %v", room.ChameleonScores)
	}
	if room.CrowdScores[f.carol] != 2 || room.CrowdScores[f.bob] != 1 {
		t.Errorf("unexpected crowd scores: %v", room.CrowdScores)
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.alice]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}

	first, err := f.rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	second, err := f.rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}

	if second == nil {
		t.Fatal("expected stored results from second finalize")
	}
	if len(first.CorrectGuessers) != len(second.CorrectGuessers) {
		t.Errorf("expected identical results, got %v and %v", first, second)
	}

	// Scores and rotation advanced exactly once.
	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.RoundCounter != 1 {
		t.Errorf("expected round counter 1 after double finalize, got %d", room.RoundCounter)
	}
	if room.ChameleonScores[f.bob] != 1 {
		t.Errorf("expected single chameleon point after double finalize, got %v", room.ChameleonScores)
	}
}

func TestFinalize_BeforeReveal(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = f.rounds.Finalize(ctx, round.ID)
	if err != services.ErrNotVoting {
		t.Errorf("expected ErrNotVoting, got %v", err)
	}
}

func TestFinalize_OwnerNeverSubmitted(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Alice owns the round but never answers.
	bobSub, err := f.rounds.Submit(ctx, round.ID, f.bob, "bob answer")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.rounds.Submit(ctx, round.ID, f.carol, "carol answer"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.carol, bobSub.ID); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	if err := f.rounds.SetVotes(ctx, round.ID, f.carol, []int64{bobSub.ID}); err != nil {
		t.Fatalf("SetVotes failed: %v", err)
	}

	results, err := f.rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if results.OwnerAnswerID != nil {
		t.Errorf("expected no owner answer, got %v", *results.OwnerAnswerID)
	}
	if len(results.CorrectGuessers) != 0 {
		t.Errorf("expected no correct guessers, got %v", results.CorrectGuessers)
	}

	// Crowd points still land.
	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.CrowdScores[f.bob] != 1 {
		t.Errorf("expected Bob to hold 1 crowd point, got %v", room.CrowdScores)
	}
}

func TestRound_BroadcastSequence(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	broadcaster := &recordingBroadcaster{}
	f.rounds.SetBroadcaster(broadcaster)

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if _, err := f.rounds.Finalize(ctx, round.ID); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	names := broadcaster.eventNames()
	expected := []string{
		models.EventRoundStart,
		models.EventRoundSubmit,
		models.EventRoundSubmit,
		models.EventRoundSubmit,
		models.EventRoundReveal,
		models.EventRoundVoteStart,
		models.EventRoundResults,
	}
	if len(names) != len(expected) {
		t.Fatalf("expected %d broadcasts, got %d: %v", len(expected), len(names), names)
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("broadcast %d: expected %s, got %s", i, want, names[i])
		}
	}
}

func TestFullGame_EndToEnd(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	// Everyone opts into the same category, so the pool agrees on it and
	// the round can start without a host override.
	for _, id := range []int64{f.alice, f.bob, f.carol} {
		if err := f.players.SelectCategories(ctx, id, []string{"headline_hijack"}); err != nil {
			t.Fatalf("SelectCategories failed: %v", err)
		}
	}

	round, err := f.rounds.Start(ctx, f.code, "", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if round.Category != "headline_hijack" {
		t.Errorf("expected headline_hijack from the pool, got %s", round.Category)
	}
	if round.OwnerPlayerID != f.alice {
		t.Errorf("expected Alice to own the first round, got %d", round.OwnerPlayerID)
	}

	subs := make(map[int64]int64)
	for i, id := range []int64{f.alice, f.bob, f.carol} {
		sub, err := f.rounds.Submit(ctx, round.ID, id, fmt.Sprintf("answer %d", i))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		subs[id] = sub.ID
	}

	performed, err := f.rounds.Reveal(ctx, round.ID)
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if !performed {
		t.Fatal("expected reveal to perform the transition")
	}

	// Everyone guesses Alice; everyone spends both votes.
	for _, id := range []int64{f.bob, f.carol} {
		if err := f.rounds.Guess(ctx, round.ID, id, subs[f.alice]); err != nil {
			t.Fatalf("Guess failed: %v", err)
		}
	}
	if err := f.rounds.Guess(ctx, round.ID, f.alice, subs[f.bob]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	for _, id := range []int64{f.alice, f.bob, f.carol} {
		if err := f.rounds.SetVotes(ctx, round.ID, id, []int64{subs[f.bob], subs[f.carol]}); err != nil {
			t.Fatalf("SetVotes failed: %v", err)
		}
	}

	results, err := f.rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if results.OwnerAnswerID == nil || *results.OwnerAnswerID != subs[f.alice] {
		t.Errorf("expected owner answer %d, got %v", subs[f.alice], results.OwnerAnswerID)
	}
	if len(results.CorrectGuessers) != 2 {
		t.Errorf("expected Bob and Carol as correct guessers, got %v", results.CorrectGuessers)
	}
	total := 0
	for _, n := range results.VoteCounts {
		total += n
	}
	if total > 6 {
		t.Errorf("expected at most 6 votes total, got %d", total)
	}

	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.Status != models.RoomResults {
		t.Errorf("expected results status, got %s", room.Status)
	}
	if room.ChameleonScores[f.bob] != 1 || room.ChameleonScores[f.carol] != 1 {
		t.Errorf("unexpected chameleon scores: %v", room.ChameleonScores)
	}
	if room.CrowdScores[f.bob] != 3 || room.CrowdScores[f.carol] != 3 {
		t.Errorf("unexpected crowd scores: %v", room.CrowdScores)
	}
}

func TestRound_WakesAfterEligibleWrites(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	waker := &recordingWaker{}
	f.rounds.SetWaker(waker)

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := waker.count()
	if before == 0 {
		t.Error("expected a wake after round start")
	}

	subs := submitAll(t, f, round.ID)
	if waker.count() <= before {
		t.Error("expected wakes after submissions")
	}
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.alice]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	if err := f.rounds.SetVotes(ctx, round.ID, f.bob, []int64{subs[f.carol]}); err != nil {
		t.Fatalf("SetVotes failed: %v", err)
	}
	if waker.count() < 6 {
		t.Errorf("expected wakes from start, submits, guess and votes, got %d", waker.count())
	}
}

// faultyRepo wraps the real repository and fails selected writes on demand
type faultyRepo struct {
	repository.FullRepository
	failCreateRound  bool
	failLeaderboards bool
}

func (r *faultyRepo) CreateRound(ctx context.Context, round *models.Round) (int64, error) {
	if r.failCreateRound {
		return 0, fmt.Errorf("disk full")
	}
	return r.FullRepository.CreateRound(ctx, round)
}

func (r *faultyRepo) SetLeaderboards(ctx context.Context, code string, chameleon, crowd map[int64]int) error {
	if r.failLeaderboards {
		return fmt.Errorf("disk full")
	}
	return r.FullRepository.SetLeaderboards(ctx, code, chameleon, crowd)
}

func TestStart_FailedRoundCreateReleasesRoom(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	faulty := &faultyRepo{FullRepository: f.repo, failCreateRound: true}
	rounds := services.NewRoundService(logger.New(), faulty, services.DefaultOptions())

	if _, err := rounds.Start(ctx, f.code, "bad_advice", ""); err == nil {
		t.Fatal("expected Start to fail")
	}

	// The room must not be stuck in_round with no round.
	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.Status != models.RoomLobby {
		t.Errorf("expected lobby status after failed start, got %s", room.Status)
	}

	faulty.failCreateRound = false
	if _, err := rounds.Start(ctx, f.code, "bad_advice", ""); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestFinalize_FailedScoringReleasesClaim(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	faulty := &faultyRepo{FullRepository: f.repo, failLeaderboards: true}
	rounds := services.NewRoundService(logger.New(), faulty, services.DefaultOptions())

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subs := submitAll(t, f, round.ID)
	if _, err := f.rounds.Reveal(ctx, round.ID); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if err := f.rounds.Guess(ctx, round.ID, f.bob, subs[f.alice]); err != nil {
		t.Fatalf("Guess failed: %v", err)
	}

	if _, err := rounds.Finalize(ctx, round.ID); err == nil {
		t.Fatal("expected Finalize to fail")
	}

	// The claim is released: the round is back in voting with no results.
	stored, err := f.repo.GetRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if stored.Phase != models.PhaseVoting {
		t.Errorf("expected voting phase after failed finalize, got %s", stored.Phase)
	}
	if stored.Results != nil {
		t.Error("expected no stored results after failed finalize")
	}

	faulty.failLeaderboards = false
	results, err := rounds.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(results.CorrectGuessers) != 1 || results.CorrectGuessers[0] != f.bob {
		t.Errorf("unexpected correct guessers after retry: %v", results.CorrectGuessers)
	}

	room, err := f.repo.GetRoom(ctx, f.code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if room.ChameleonScores[f.bob] != 1 {
		t.Errorf("expected a single chameleon point for Bob, got %v", room.ChameleonScores)
	}
}
