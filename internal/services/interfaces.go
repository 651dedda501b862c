package services

import (
	"context"
	"time"

	"github.com/mkendall/whosaidit/internal/models"
)

// Broadcaster defines the interface for pushing events to room subscribers.
// Delivery is best-effort: a failed or missed publish must never be the only
// carrier of a state transition.
type Broadcaster interface {
	Publish(roomCode, event string, payload interface{})
}

// Waker nudges the per-room orchestration task after a write that may make a
// phase transition eligible. Wakes must never block the caller.
type Waker interface {
	Wake(roomCode string)
}

// RoomServicer defines the interface for room lifecycle operations
type RoomServicer interface {
	CreateRoom(ctx context.Context, hostDevice string) (*models.Room, error)
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	ExpiresAt(room *models.Room) time.Time
	Expired(room *models.Room, now time.Time) bool
	EndRoom(ctx context.Context, code string) error
}

// PlayerServicer defines the interface for player registry operations
type PlayerServicer interface {
	Join(ctx context.Context, roomCode, name, color string) (*models.Player, error)
	Leave(ctx context.Context, playerID int64) error
	SelectCategories(ctx context.Context, playerID int64, categories []string) error
}

// CategoryServicer defines the interface for category pool resolution
type CategoryServicer interface {
	Intersection(players []models.Player) []string
	UpdatePool(ctx context.Context, roomCode string) ([]string, error)
}

// BoardServicer derives the read-only room snapshot that both clients and the
// orchestrator consume
type BoardServicer interface {
	Snapshot(ctx context.Context, roomCode string) (*BoardState, error)
}

// RoundServicer defines the round orchestration operations
type RoundServicer interface {
	Start(ctx context.Context, roomCode, categoryOverride, promptOverride string) (*models.Round, error)
	Submit(ctx context.Context, roundID, playerID int64, text string) (*models.Submission, error)
	Reveal(ctx context.Context, roundID int64) (bool, error)
	Guess(ctx context.Context, roundID, playerID, submissionID int64) error
	SetVotes(ctx context.Context, roundID, playerID int64, submissionIDs []int64) error
	Finalize(ctx context.Context, roundID int64) (*models.RoundResults, error)
}

// Ensure concrete types implement interfaces
var (
	_ RoomServicer     = (*RoomService)(nil)
	_ PlayerServicer   = (*PlayerService)(nil)
	_ CategoryServicer = (*CategoryService)(nil)
	_ BoardServicer    = (*BoardService)(nil)
	_ RoundServicer    = (*RoundService)(nil)
)
