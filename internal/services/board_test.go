package services_test

import (
	"context"
	"testing"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/services"
	"github.com/mkendall/whosaidit/internal/testutil"
)

func TestSnapshot_LobbyWithoutRound(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	boardSvc := services.NewBoardService(logger.New(), f.repo, services.DefaultOptions())
	board, err := boardSvc.Snapshot(ctx, f.code)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if board.PlayerCount != 3 || board.ConnectedCount != 3 {
		t.Errorf("expected 3 players connected, got %d/%d", board.ConnectedCount, board.PlayerCount)
	}
	if board.CurrentRound != nil {
		t.Error("expected no current round in lobby")
	}
	if board.ExpiresAt.IsZero() {
		t.Error("expected expiry to be derived")
	}
}

func TestSnapshot_TracksSubmitters(t *testing.T) {
	f := setupGame(t)
	ctx := context.Background()

	boardSvc := services.NewBoardService(logger.New(), f.repo, services.DefaultOptions())

	round, err := f.rounds.Start(ctx, f.code, "bad_advice", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := f.rounds.Submit(ctx, round.ID, f.bob, "bob answer"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	board, err := boardSvc.Snapshot(ctx, f.code)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if board.CurrentRound == nil || board.CurrentRound.ID != round.ID {
		t.Fatal("expected current round on board")
	}
	if board.SubmissionCount != 1 {
		t.Errorf("expected 1 submission, got %d", board.SubmissionCount)
	}
	if len(board.SubmitterIDs) != 1 || board.SubmitterIDs[0] != f.bob {
		t.Errorf("expected Bob as the only submitter, got %v", board.SubmitterIDs)
	}
}

func TestSnapshot_RoomNotFound(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	boardSvc := services.NewBoardService(logger.New(), repo, services.DefaultOptions())

	_, err := boardSvc.Snapshot(context.Background(), "ZZZZZ")
	if err != services.ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}
