package services

import (
	"context"
	"strings"

	"github.com/mkendall/whosaidit/internal/errors"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/prompts"
	"github.com/mkendall/whosaidit/internal/repository"
)

// PlayerServiceRepository defines the repository methods needed by PlayerService
type PlayerServiceRepository interface {
	repository.RoomRepository
	repository.PlayerRepository
}

// PlayerService admits and removes players and tracks their category opt-ins
type PlayerService struct {
	log         logger.Logger
	repo        PlayerServiceRepository
	category    CategoryServicer
	board       BoardServicer
	opts        Options
	broadcaster Broadcaster
}

// NewPlayerService creates a new PlayerService
func NewPlayerService(log logger.Logger, repo PlayerServiceRepository, category CategoryServicer, board BoardServicer, opts Options) *PlayerService {
	return &PlayerService{log: log, repo: repo, category: category, board: board, opts: opts}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (s *PlayerService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Join admits a player into a lobby room. Capacity and color uniqueness are
// checked against currently-connected players only.
func (s *PlayerService) Join(ctx context.Context, roomCode, name, color string) (*models.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation("name cannot be empty")
	}

	room, err := s.repo.GetRoom(ctx, roomCode)
	if err == repository.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomLobby {
		return nil, ErrRoomNotJoinable
	}

	connected, err := s.repo.CountConnectedPlayers(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if connected >= s.opts.MaxPlayers {
		return nil, ErrRoomFull
	}

	taken, err := s.repo.ColorTaken(ctx, roomCode, color)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrColorTaken
	}

	id, err := s.repo.CreatePlayer(ctx, roomCode, name, color)
	if err != nil {
		return nil, err
	}

	if _, err := s.category.UpdatePool(ctx, roomCode); err != nil {
		return nil, err
	}

	s.log.Info("Player joined", "room", roomCode, "player_id", id, "name", name)
	s.broadcastBoard(ctx, roomCode)

	return s.repo.GetPlayer(ctx, id)
}

// Leave marks a player disconnected. History is never deleted: submissions,
// guesses and votes must survive for scoring.
func (s *PlayerService) Leave(ctx context.Context, playerID int64) error {
	player, err := s.repo.GetPlayer(ctx, playerID)
	if err == repository.ErrNotFound {
		return ErrPlayerNotFound
	}
	if err != nil {
		return err
	}

	if err := s.repo.SetPlayerConnected(ctx, playerID, false); err != nil {
		return err
	}

	if _, err := s.category.UpdatePool(ctx, player.RoomCode); err != nil {
		return err
	}

	s.log.Info("Player left", "room", player.RoomCode, "player_id", playerID)
	s.broadcastBoard(ctx, player.RoomCode)
	return nil
}

// SelectCategories replaces the player's category opt-in set and recomputes
// the room's pool
func (s *PlayerService) SelectCategories(ctx context.Context, playerID int64, categories []string) error {
	for _, category := range categories {
		if !prompts.Valid(category) {
			return errors.Validationf("unknown category: %s", category)
		}
	}

	player, err := s.repo.GetPlayer(ctx, playerID)
	if err == repository.ErrNotFound {
		return ErrPlayerNotFound
	}
	if err != nil {
		return err
	}

	if err := s.repo.SetPlayerCategories(ctx, playerID, categories); err != nil {
		return err
	}

	if _, err := s.category.UpdatePool(ctx, player.RoomCode); err != nil {
		return err
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(player.RoomCode, models.EventCategoriesUpdate, map[string]interface{}{
			"playerId":           playerID,
			"selectedCategories": categories,
		})
	}
	return nil
}

// broadcastBoard publishes a fresh room snapshot. Subscribers without
// reliable change notification refresh from this; failures only get logged
// because broadcasts are never state-defining.
func (s *PlayerService) broadcastBoard(ctx context.Context, roomCode string) {
	if s.broadcaster == nil {
		return
	}
	board, err := s.board.Snapshot(ctx, roomCode)
	if err != nil {
		s.log.Warn("Board snapshot for broadcast failed", "room", roomCode, "error", err)
		return
	}
	s.broadcaster.Publish(roomCode, models.EventRoomUpdate, board.Redacted())
}
