package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/repository"
)

// roomCodeChars uses only clear characters (no O/0/I/1/L)
const roomCodeChars = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// RoomService handles room lifecycle: creation, lookup, expiry
type RoomService struct {
	log  logger.Logger
	repo repository.RoomRepository
	opts Options
}

// NewRoomService creates a new RoomService
func NewRoomService(log logger.Logger, repo repository.RoomRepository, opts Options) *RoomService {
	return &RoomService{log: log, repo: repo, opts: opts}
}

// CreateRoom generates a unique short code and persists a new lobby room.
// Code generation retries a bounded number of times on collision.
func (s *RoomService) CreateRoom(ctx context.Context, hostDevice string) (*models.Room, error) {
	for attempt := 0; attempt < s.opts.CodeAttempts; attempt++ {
		code, err := generateRoomCode(s.opts.CodeLength)
		if err != nil {
			return nil, err
		}

		exists, err := s.repo.RoomExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		if err := s.repo.CreateRoom(ctx, code, hostDevice); err != nil {
			// Lost a race on the code; try another one
			s.log.Debug("Room code collision on insert", "code", code, "error", err)
			continue
		}

		s.log.Info("Room created", "code", code)
		return s.repo.GetRoom(ctx, code)
	}

	return nil, ErrCodeExhaustion
}

// GetRoom retrieves a room by code
func (s *RoomService) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.repo.GetRoom(ctx, code)
	if err == repository.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// ExpiresAt returns when a room becomes reclaimable. The countdown is shown
// to the host; sweeping expired rooms is an external concern.
func (s *RoomService) ExpiresAt(room *models.Room) time.Time {
	return room.CreatedAt.Add(s.opts.RoomTTL)
}

// Expired reports whether a room has passed its expiry without ending
func (s *RoomService) Expired(room *models.Room, now time.Time) bool {
	return room.Status != models.RoomEnded && now.After(s.ExpiresAt(room))
}

// EndRoom marks a room ended
func (s *RoomService) EndRoom(ctx context.Context, code string) error {
	if _, err := s.GetRoom(ctx, code); err != nil {
		return err
	}
	return s.repo.SetRoomStatus(ctx, code, models.RoomEnded)
}

// generateRoomCode returns a random short alphanumeric code
func generateRoomCode(length int) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(roomCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = roomCodeChars[n.Int64()]
	}
	return string(code), nil
}
