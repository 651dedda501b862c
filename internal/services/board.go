package services

import (
	"context"
	"time"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/repository"
)

// BoardState is the derived read model for a room: the single structure all
// UI rendering and all autonomous transition logic consumes. It is a
// snapshot, stale the instant it is read; decisions with real consequences
// must re-derive it first.
type BoardState struct {
	Room             *models.Room        `json:"room"`
	Players          []models.Player     `json:"players"`
	ConnectedPlayers []models.Player     `json:"connected_players"`
	PlayerCount      int                 `json:"player_count"`
	ConnectedCount   int                 `json:"connected_count"`
	CurrentRound     *models.Round       `json:"current_round,omitempty"`
	Submissions      []models.Submission `json:"submissions,omitempty"`
	SubmitterIDs     []int64             `json:"submitter_ids,omitempty"`
	SubmissionCount  int                 `json:"submission_count"`
	CategoryPool     []string            `json:"category_pool"`
	ExpiresAt        time.Time           `json:"expires_at"`
}

// Redacted returns a client-safe view of the board. While the current round
// is still collecting answers the submission texts are blanked, so no player
// reads another's answer before reveal. Outside that window the receiver is
// returned unchanged.
func (b *BoardState) Redacted() *BoardState {
	if b.CurrentRound == nil || b.CurrentRound.Phase != models.PhaseSubmitting || len(b.Submissions) == 0 {
		return b
	}
	out := *b
	out.Submissions = make([]models.Submission, len(b.Submissions))
	copy(out.Submissions, b.Submissions)
	for i := range out.Submissions {
		out.Submissions[i].Text = ""
	}
	return &out
}

// BoardServiceRepository defines the repository methods needed by BoardService
type BoardServiceRepository interface {
	repository.RoomRepository
	repository.PlayerRepository
	repository.RoundRepository
	repository.SubmissionRepository
}

// BoardService projects a consistent room snapshot from the store on demand
type BoardService struct {
	log  logger.Logger
	repo BoardServiceRepository
	opts Options
}

// NewBoardService creates a new BoardService
func NewBoardService(log logger.Logger, repo BoardServiceRepository, opts Options) *BoardService {
	return &BoardService{log: log, repo: repo, opts: opts}
}

// Snapshot derives the board state for a room. Pure read, no side effects.
func (s *BoardService) Snapshot(ctx context.Context, roomCode string) (*BoardState, error) {
	room, err := s.repo.GetRoom(ctx, roomCode)
	if err == repository.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	players, err := s.repo.ListPlayers(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	var connected []models.Player
	for _, p := range players {
		if p.Connected {
			connected = append(connected, p)
		}
	}

	board := &BoardState{
		Room:             room,
		Players:          players,
		ConnectedPlayers: connected,
		PlayerCount:      len(players),
		ConnectedCount:   len(connected),
		CategoryPool:     room.CategoryPool,
		ExpiresAt:        room.CreatedAt.Add(s.opts.RoomTTL),
	}

	round, err := s.repo.CurrentRound(ctx, roomCode)
	if err == repository.ErrNotFound {
		return board, nil
	}
	if err != nil {
		return nil, err
	}
	board.CurrentRound = round

	submissions, err := s.repo.ListSubmissions(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	board.Submissions = submissions
	board.SubmissionCount = len(submissions)
	for _, sub := range submissions {
		board.SubmitterIDs = append(board.SubmitterIDs, sub.PlayerID)
	}

	return board, nil
}
