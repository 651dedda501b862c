package services

import (
	"context"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/prompts"
	"github.com/mkendall/whosaidit/internal/repository"
)

// CategoryServiceRepository defines the repository methods needed by CategoryService
type CategoryServiceRepository interface {
	repository.PlayerRepository
	repository.RoomRepository
}

// CategoryService resolves the category pool a room plays with: the
// intersection of every connected, opted-in player's selection
type CategoryService struct {
	log  logger.Logger
	repo CategoryServiceRepository
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(log logger.Logger, repo CategoryServiceRepository) *CategoryService {
	return &CategoryService{log: log, repo: repo}
}

// Intersection computes the categories present in every connected player's
// selection. Players with an empty selection have not opted in and are
// excluded entirely; if nobody has opted in, the intersection is empty.
// The result preserves the global category list order and is independent of
// player order.
func (s *CategoryService) Intersection(players []models.Player) []string {
	var optedIn []map[string]bool
	for _, p := range players {
		if !p.Connected || len(p.Categories) == 0 {
			continue
		}
		set := make(map[string]bool, len(p.Categories))
		for _, c := range p.Categories {
			set[c] = true
		}
		optedIn = append(optedIn, set)
	}

	if len(optedIn) == 0 {
		return []string{}
	}

	var pool []string
	for _, category := range prompts.Categories {
		inAll := true
		for _, set := range optedIn {
			if !set[category] {
				inAll = false
				break
			}
		}
		if inAll {
			pool = append(pool, category)
		}
	}
	if pool == nil {
		pool = []string{}
	}
	return pool
}

// UpdatePool recomputes the intersection from current player state and
// persists it on the room. The pool is always replaced, never merged.
func (s *CategoryService) UpdatePool(ctx context.Context, roomCode string) ([]string, error) {
	players, err := s.repo.ListPlayers(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	pool := s.Intersection(players)
	if err := s.repo.SetCategoryPool(ctx, roomCode, pool); err != nil {
		return nil, err
	}

	s.log.Debug("Category pool updated", "room", roomCode, "pool", pool)
	return pool, nil
}
