package repository

import (
	"context"
	"time"

	"github.com/mkendall/whosaidit/internal/models"
)

// RoomRepository defines room data operations
type RoomRepository interface {
	CreateRoom(ctx context.Context, code, hostDevice string) error
	RoomExists(ctx context.Context, code string) (bool, error)
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	UpdateRoomStatus(ctx context.Context, code string, from, to models.RoomStatus) (bool, error)
	SetRoomStatus(ctx context.Context, code string, status models.RoomStatus) error
	SetCategoryPool(ctx context.Context, code string, pool []string) error
	SetLeaderboards(ctx context.Context, code string, chameleon, crowd map[int64]int) error
	IncrementRoundCounter(ctx context.Context, code string) error
}

// PlayerRepository defines player data operations
type PlayerRepository interface {
	CreatePlayer(ctx context.Context, roomCode, name, color string) (int64, error)
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	ListPlayers(ctx context.Context, roomCode string) ([]models.Player, error)
	CountConnectedPlayers(ctx context.Context, roomCode string) (int, error)
	ColorTaken(ctx context.Context, roomCode, color string) (bool, error)
	SetPlayerConnected(ctx context.Context, id int64, connected bool) error
	SetPlayerCategories(ctx context.Context, id int64, categories []string) error
}

// RoundRepository defines round data operations
type RoundRepository interface {
	CreateRound(ctx context.Context, round *models.Round) (int64, error)
	GetRound(ctx context.Context, id int64) (*models.Round, error)
	CurrentRound(ctx context.Context, roomCode string) (*models.Round, error)
	SetRevealOrder(ctx context.Context, roundID int64, order []int64, voteDeadline time.Time) (bool, error)
	ClaimFinalize(ctx context.Context, roundID int64) (bool, error)
	ReopenVoting(ctx context.Context, roundID int64) error
	SetRoundResults(ctx context.Context, roundID int64, results *models.RoundResults) error
}

// SubmissionRepository defines submission data operations
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, roundID, playerID int64, text string) (int64, error)
	ListSubmissions(ctx context.Context, roundID int64) ([]models.Submission, error)
	CountSubmissions(ctx context.Context, roundID int64) (int, error)
}

// GuessRepository defines guess data operations
type GuessRepository interface {
	UpsertGuess(ctx context.Context, roundID, playerID, submissionID int64) error
	ListGuesses(ctx context.Context, roundID int64) ([]models.Guess, error)
}

// VoteRepository defines vote data operations
type VoteRepository interface {
	ReplaceVotes(ctx context.Context, roundID, playerID int64, submissionIDs []int64) error
	ListVotes(ctx context.Context, roundID int64) ([]models.Vote, error)
}

// FullRepository combines all repository interfaces.
// Use this when a service needs access to multiple domains.
type FullRepository interface {
	RoomRepository
	PlayerRepository
	RoundRepository
	SubmissionRepository
	GuessRepository
	VoteRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
