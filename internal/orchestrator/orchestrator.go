// Package orchestrator runs one referee task per active room. All autonomous
// phase transitions (auto-reveal, auto-finalize) fire from here, so they are
// serialized per room by construction instead of racing across clients.
// Every decision re-derives board state from the store; broadcasts are never
// trusted as the source of truth.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/repository"
	"github.com/mkendall/whosaidit/internal/services"
)

// ProgressRepository provides the per-round ballots the referee needs for
// short-circuit finalization
type ProgressRepository interface {
	ListGuesses(ctx context.Context, roundID int64) ([]models.Guess, error)
	ListVotes(ctx context.Context, roundID int64) ([]models.Vote, error)
}

// Manager owns the per-room referee tasks. It implements services.Waker:
// services poke it after any write that may make a transition eligible, and
// it lazily spins up an actor for rooms that need one. No global state; the
// registry lives on the manager and actors retire with their rooms.
type Manager struct {
	log    logger.Logger
	board  services.BoardServicer
	rounds services.RoundServicer
	rooms  services.RoomServicer
	repo   ProgressRepository
	tick   time.Duration

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
}

// NewManager creates a new Manager. tick bounds how stale a deadline check
// can be when no wakes arrive.
func NewManager(log logger.Logger, board services.BoardServicer, rounds services.RoundServicer, rooms services.RoomServicer, repo ProgressRepository, tick time.Duration) *Manager {
	if tick <= 0 {
		tick = time.Second
	}
	return &Manager{
		log:    log,
		board:  board,
		rounds: rounds,
		rooms:  rooms,
		repo:   repo,
		tick:   tick,
		actors: make(map[string]*actor),
	}
}

// Wake implements services.Waker. Never blocks: a pending poke already
// covers the caller's write.
func (m *Manager) Wake(roomCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	a, ok := m.actors[roomCode]
	if !ok {
		a = &actor{
			code: roomCode,
			poke: make(chan struct{}, 1),
			stop: make(chan struct{}),
		}
		m.actors[roomCode] = a
		go m.run(a)
	}
	select {
	case a.poke <- struct{}{}:
	default:
	}
}

// Active reports whether a referee task currently exists for the room
func (m *Manager) Active(roomCode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.actors[roomCode]
	return ok
}

// Shutdown stops all referee tasks
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	actors := make([]*actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.actors = make(map[string]*actor)
	m.mu.Unlock()

	for _, a := range actors {
		close(a.stop)
	}
}

// actor is the per-room referee task
type actor struct {
	code string
	poke chan struct{}
	stop chan struct{}
}

// run is the actor loop: ticks and pokes both funnel into the same
// store-derived check, so a dropped broadcast only costs latency
func (m *Manager) run(a *actor) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.log.Debug("Referee started", "room", a.code)
	for {
		select {
		case <-a.stop:
			return
		case <-a.poke:
		case <-ticker.C:
		}
		if retire := m.check(context.Background(), a.code); retire {
			m.retire(a)
			return
		}
	}
}

// retire removes an actor from the registry
func (m *Manager) retire(a *actor) {
	m.mu.Lock()
	if current, ok := m.actors[a.code]; ok && current == a {
		delete(m.actors, a.code)
	}
	m.mu.Unlock()
	m.log.Debug("Referee retired", "room", a.code)
}

// check re-derives board state and fires any eligible transition.
// Reports whether the room no longer needs a referee.
func (m *Manager) check(ctx context.Context, roomCode string) bool {
	board, err := m.board.Snapshot(ctx, roomCode)
	if err != nil {
		if err == services.ErrRoomNotFound || err == repository.ErrNotFound {
			return true
		}
		m.log.Warn("Board derivation failed", "room", roomCode, "error", err)
		return false
	}

	now := time.Now()
	if board.Room.Status == models.RoomEnded || m.rooms.Expired(board.Room, now) {
		return true
	}

	round := board.CurrentRound
	if round == nil {
		return false
	}

	switch round.Phase {
	case models.PhaseSubmitting:
		// Reveal when everyone connected has answered, or the deadline
		// passed with stragglers. Both paths hit the same idempotent
		// reveal; the stored-permutation guard picks one winner.
		if board.SubmissionCount >= board.ConnectedCount || now.After(round.SubmitDeadline) {
			if _, err := m.rounds.Reveal(ctx, round.ID); err != nil {
				m.log.Error("Auto-reveal failed", "room", roomCode, "round_id", round.ID, "error", err)
			}
		}

	case models.PhaseVoting:
		deadlinePassed := round.VoteDeadline != nil && now.After(*round.VoteDeadline)
		if deadlinePassed || m.everyoneDone(ctx, board) {
			if _, err := m.rounds.Finalize(ctx, round.ID); err != nil {
				m.log.Error("Auto-finalize failed", "room", roomCode, "round_id", round.ID, "error", err)
			}
		}
	}

	return false
}

// everyoneDone reports whether every currently-connected player has both
// guessed and voted, which lets the referee finalize ahead of the deadline.
// Ballots from players who have since disconnected never stand in for a
// connected player's missing ones.
func (m *Manager) everyoneDone(ctx context.Context, board *services.BoardState) bool {
	if board.ConnectedCount == 0 || board.CurrentRound == nil {
		return false
	}
	connected := make(map[int64]bool, board.ConnectedCount)
	for _, p := range board.ConnectedPlayers {
		connected[p.ID] = true
	}

	guesses, err := m.repo.ListGuesses(ctx, board.CurrentRound.ID)
	if err != nil {
		return false
	}
	guessed := make(map[int64]bool, len(guesses))
	for _, g := range guesses {
		if connected[g.PlayerID] {
			guessed[g.PlayerID] = true
		}
	}
	if len(guessed) < board.ConnectedCount {
		return false
	}

	votes, err := m.repo.ListVotes(ctx, board.CurrentRound.ID)
	if err != nil {
		return false
	}
	voted := make(map[int64]bool, board.ConnectedCount)
	for _, v := range votes {
		if connected[v.PlayerID] {
			voted[v.PlayerID] = true
		}
	}
	return len(voted) >= board.ConnectedCount
}
