package services

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mkendall/whosaidit/internal/errors"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/prompts"
	"github.com/mkendall/whosaidit/internal/repository"
)

// maxAnswerLength caps submission text, in runes
const maxAnswerLength = 100

// RoundService owns the round state machine: starting rounds, collecting
// submissions, revealing anonymized answers, recording guesses and votes,
// and finalizing scores. Every transition is guarded by a conditional write
// in the store so concurrent invocations collapse to a single winner.
type RoundService struct {
	log         logger.Logger
	repo        repository.FullRepository
	opts        Options
	broadcaster Broadcaster
	waker       Waker
}

// NewRoundService creates a new RoundService
func NewRoundService(log logger.Logger, repo repository.FullRepository, opts Options) *RoundService {
	return &RoundService{log: log, repo: repo, opts: opts}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (s *RoundService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetWaker sets the orchestration waker poked after eligible writes
func (s *RoundService) SetWaker(w Waker) {
	s.waker = w
}

// Start begins a new round: picks the owner by rotation, picks a prompt,
// sets the submission deadline and flips the room into its round.
// The room status flip is the claim; a concurrent Start loses it and fails
// with a conflict instead of creating a second current round.
func (s *RoundService) Start(ctx context.Context, roomCode, categoryOverride, promptOverride string) (*models.Round, error) {
	room, err := s.repo.GetRoom(ctx, roomCode)
	if err == repository.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomLobby && room.Status != models.RoomResults {
		return nil, ErrRoundInProgress
	}

	players, err := s.repo.ListPlayers(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	connected := connectedByName(players)
	if len(connected) < s.opts.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	category := categoryOverride
	if category == "" {
		if len(room.CategoryPool) == 0 {
			return nil, ErrEmptyPool
		}
		category = room.CategoryPool[rand.Intn(len(room.CategoryPool))]
	} else if !prompts.Valid(category) {
		return nil, errors.Validationf("unknown category: %s", category)
	}

	prompt := promptOverride
	if prompt == "" {
		picked, ok := prompts.Pick(category)
		if !ok {
			return nil, errors.Validationf("category has no prompts: %s", category)
		}
		prompt = picked
	}

	// Deterministic ownership rotation: connected players sorted by name,
	// indexed by the monotonic round counter.
	owner := connected[room.RoundCounter%len(connected)]

	claimed, err := s.repo.UpdateRoomStatus(ctx, roomCode, room.Status, models.RoomInRound)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrRoundInProgress
	}

	round := &models.Round{
		RoomCode:       roomCode,
		Category:       category,
		Prompt:         prompt,
		OwnerPlayerID:  owner.ID,
		Phase:          models.PhaseSubmitting,
		SubmitDeadline: time.Now().Add(s.opts.SubmitWindow),
	}
	id, err := s.repo.CreateRound(ctx, round)
	if err != nil {
		// Release the claim so the room is not stuck in_round with no
		// current round; a later Start can retry.
		if _, revertErr := s.repo.UpdateRoomStatus(ctx, roomCode, models.RoomInRound, room.Status); revertErr != nil {
			s.log.Error("Status revert after failed round create", "room", roomCode, "error", revertErr)
		}
		return nil, err
	}
	round.ID = id

	s.log.Info("Round started", "room", roomCode, "round_id", id,
		"category", category, "owner", owner.ID)

	s.publish(roomCode, models.EventRoundStart, map[string]interface{}{
		"roundId":  id,
		"category": category,
		"deadline": round.SubmitDeadline,
		"prompt":   prompt,
	})
	s.wake(roomCode)

	return round, nil
}

// Submit records a player's answer. Each call inserts unconditionally; the
// client is expected to submit once.
func (s *RoundService) Submit(ctx context.Context, roundID, playerID int64, text string) (*models.Submission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Validation("answer cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxAnswerLength {
		return nil, errors.Validationf("answer cannot exceed %d characters", maxAnswerLength)
	}

	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Phase != models.PhaseSubmitting {
		return nil, ErrSubmitClosed
	}

	id, err := s.repo.CreateSubmission(ctx, roundID, playerID, text)
	if err != nil {
		return nil, err
	}

	// Only the submitter's id goes out; text stays hidden until reveal.
	s.publish(round.RoomCode, models.EventRoundSubmit, map[string]interface{}{
		"playerId": playerID,
	})
	s.wake(round.RoomCode)

	return &models.Submission{ID: id, RoundID: roundID, PlayerID: playerID, Text: text}, nil
}

// Reveal fixes the randomized reveal order and opens the vote window.
// Idempotent: the permutation is written with a conditional update keyed on
// its own absence, so whichever caller fires first wins and every other
// caller observes the same stored permutation. Returns whether this caller
// performed the reveal.
func (s *RoundService) Reveal(ctx context.Context, roundID int64) (bool, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return false, err
	}
	if round.Revealed() {
		return false, nil
	}

	submissions, err := s.repo.ListSubmissions(ctx, roundID)
	if err != nil {
		return false, err
	}

	order := make([]int64, len(submissions))
	for i, idx := range rand.Perm(len(submissions)) {
		order[i] = submissions[idx].ID
	}

	voteDeadline := time.Now().Add(s.opts.VoteWindow)
	won, err := s.repo.SetRevealOrder(ctx, roundID, order, voteDeadline)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	textByID := make(map[int64]string, len(submissions))
	for _, sub := range submissions {
		textByID[sub.ID] = sub.Text
	}
	items := make([]map[string]interface{}, 0, len(order))
	for _, id := range order {
		items = append(items, map[string]interface{}{"id": id, "text": textByID[id]})
	}

	s.log.Info("Round revealed", "round_id", roundID, "submissions", len(order))

	s.publish(round.RoomCode, models.EventRoundReveal, map[string]interface{}{
		"roundId": roundID,
		"items":   items,
	})
	s.publish(round.RoomCode, models.EventRoundVoteStart, map[string]interface{}{
		"voteDeadline": voteDeadline,
	})

	return true, nil
}

// Guess records which submission a player believes is the owner's. The
// storage-level upsert keeps at most one guess per (round, player); the last
// write wins, which is acceptable since results are only read after the
// deadline.
func (s *RoundService) Guess(ctx context.Context, roundID, playerID, submissionID int64) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}
	if err := requireVoting(round); err != nil {
		return err
	}

	if err := s.repo.UpsertGuess(ctx, roundID, playerID, submissionID); err != nil {
		return err
	}
	s.wake(round.RoomCode)
	return nil
}

// SetVotes replaces the player's entire vote set, capped server-side.
// Duplicates toward the same submission are allowed and intensify its tally.
// An empty list clears the player's votes.
func (s *RoundService) SetVotes(ctx context.Context, roundID, playerID int64, submissionIDs []int64) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}
	if err := requireVoting(round); err != nil {
		return err
	}

	if len(submissionIDs) > s.opts.MaxVotes {
		submissionIDs = submissionIDs[:s.opts.MaxVotes]
	}

	if err := s.repo.ReplaceVotes(ctx, roundID, playerID, submissionIDs); err != nil {
		return err
	}
	s.wake(round.RoomCode)
	return nil
}

// Finalize computes and persists the round outcome, updates both
// leaderboards and rotates ownership. The phase claim makes it safe to
// invoke any number of times: exactly one caller computes and awards, every
// other caller gets the stored results back.
func (s *RoundService) Finalize(ctx context.Context, roundID int64) (*models.RoundResults, error) {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Phase == models.PhaseFinalized {
		return round.Results, nil
	}
	if round.Phase != models.PhaseVoting {
		return nil, ErrNotVoting
	}

	won, err := s.repo.ClaimFinalize(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent finalize claimed the round; its results are
		// authoritative.
		finalized, err := s.getRound(ctx, roundID)
		if err != nil {
			return nil, err
		}
		return finalized.Results, nil
	}

	// Any failure before the scores land releases the claim, so a later
	// finalize recomputes instead of the round wedging with nil results.
	results, err := s.computeResults(ctx, round)
	if err != nil {
		s.reopenVoting(ctx, roundID)
		return nil, err
	}
	if err := s.repo.SetRoundResults(ctx, roundID, results); err != nil {
		s.reopenVoting(ctx, roundID)
		return nil, err
	}

	if err := s.awardScores(ctx, round, results); err != nil {
		s.reopenVoting(ctx, roundID)
		return nil, err
	}
	if err := s.repo.IncrementRoundCounter(ctx, round.RoomCode); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateRoomStatus(ctx, round.RoomCode, models.RoomInRound, models.RoomResults); err != nil {
		return nil, err
	}

	s.log.Info("Round finalized", "round_id", roundID,
		"correct_guessers", len(results.CorrectGuessers))

	s.publish(round.RoomCode, models.EventRoundResults, map[string]interface{}{
		"ownerAnswerId":   results.OwnerAnswerID,
		"correctGuessers": results.CorrectGuessers,
		"voteCounts":      results.VoteCounts,
	})

	return results, nil
}

// computeResults derives the round outcome from the store
func (s *RoundService) computeResults(ctx context.Context, round *models.Round) (*models.RoundResults, error) {
	submissions, err := s.repo.ListSubmissions(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	// The owner's answer is their first submission. If the owner never
	// submitted the round still scores: nobody guesses correctly but crowd
	// points are awarded as usual.
	var ownerAnswerID *int64
	for _, sub := range submissions {
		if sub.PlayerID == round.OwnerPlayerID {
			id := sub.ID
			ownerAnswerID = &id
			break
		}
	}

	guesses, err := s.repo.ListGuesses(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	correct := []int64{}
	if ownerAnswerID != nil {
		for _, g := range guesses {
			if g.SubmissionID == *ownerAnswerID {
				correct = append(correct, g.PlayerID)
			}
		}
	}
	sort.Slice(correct, func(i, j int) bool { return correct[i] < correct[j] })

	votes, err := s.repo.ListVotes(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int)
	for _, v := range votes {
		counts[v.SubmissionID]++
	}

	return &models.RoundResults{
		OwnerAnswerID:   ownerAnswerID,
		CorrectGuessers: correct,
		VoteCounts:      counts,
	}, nil
}

// awardScores applies leaderboard deltas: +1 chameleon per correct guesser,
// +N crowd to a submission's author for N votes received
func (s *RoundService) awardScores(ctx context.Context, round *models.Round, results *models.RoundResults) error {
	room, err := s.repo.GetRoom(ctx, round.RoomCode)
	if err != nil {
		return err
	}

	chameleon := room.ChameleonScores
	if chameleon == nil {
		chameleon = make(map[int64]int)
	}
	crowd := room.CrowdScores
	if crowd == nil {
		crowd = make(map[int64]int)
	}

	for _, playerID := range results.CorrectGuessers {
		chameleon[playerID]++
	}

	submissions, err := s.repo.ListSubmissions(ctx, round.ID)
	if err != nil {
		return err
	}
	authorOf := make(map[int64]int64, len(submissions))
	for _, sub := range submissions {
		authorOf[sub.ID] = sub.PlayerID
	}
	for submissionID, count := range results.VoteCounts {
		if author, ok := authorOf[submissionID]; ok {
			crowd[author] += count
		}
	}

	return s.repo.SetLeaderboards(ctx, round.RoomCode, chameleon, crowd)
}

// reopenVoting releases a finalize claim whose follow-up writes failed.
// Once scores have been awarded the claim must stand, so this is only safe
// before SetLeaderboards succeeds.
func (s *RoundService) reopenVoting(ctx context.Context, roundID int64) {
	if err := s.repo.ReopenVoting(ctx, roundID); err != nil {
		s.log.Error("Finalize claim release failed", "round_id", roundID, "error", err)
	}
}

// getRound loads a round, mapping the repository sentinel
func (s *RoundService) getRound(ctx context.Context, roundID int64) (*models.Round, error) {
	round, err := s.repo.GetRound(ctx, roundID)
	if err == repository.ErrNotFound {
		return nil, ErrRoundNotFound
	}
	return round, err
}

// requireVoting gates guess/vote writes on the round's phase
func requireVoting(round *models.Round) error {
	switch round.Phase {
	case models.PhaseVoting:
		return nil
	case models.PhaseFinalized:
		return ErrRoundFinalized
	default:
		return ErrNotVoting
	}
}

// connectedByName filters for connected players. ListPlayers already sorts
// case-insensitively by name, which the ownership rotation depends on.
func connectedByName(players []models.Player) []models.Player {
	var connected []models.Player
	for _, p := range players {
		if p.Connected {
			connected = append(connected, p)
		}
	}
	return connected
}

// publish sends a best-effort broadcast
func (s *RoundService) publish(roomCode, event string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(roomCode, event, payload)
	}
}

// wake pokes the room's orchestration task
func (s *RoundService) wake(roomCode string) {
	if s.waker != nil {
		s.waker.Wake(roomCode)
	}
}
