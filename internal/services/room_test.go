package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/services"
	"github.com/mkendall/whosaidit/internal/testutil"
)

// setupRoomService creates a RoomService with an in-memory store
func setupRoomService(t *testing.T) *services.RoomService {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	return services.NewRoomService(logger.New(), repo, services.DefaultOptions())
}

func TestCreateRoom_GeneratesCode(t *testing.T) {
	roomSvc := setupRoomService(t)
	ctx := context.Background()

	room, err := roomSvc.CreateRoom(ctx, "host-1")
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if len(room.Code) != 5 {
		t.Errorf("expected 5-character code, got %q", room.Code)
	}
	for _, c := range room.Code {
		if strings.ContainsRune("O0I1L", c) {
			t.Errorf("code %q contains an ambiguous character", room.Code)
		}
	}
	if room.Status != models.RoomLobby {
		t.Errorf("expected lobby status, got %s", room.Status)
	}
	if room.HostDevice != "host-1" {
		t.Errorf("expected host device host-1, got %s", room.HostDevice)
	}
}

func TestCreateRoom_UniqueCodes(t *testing.T) {
	roomSvc := setupRoomService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		room, err := roomSvc.CreateRoom(ctx, "host-1")
		if err != nil {
			t.Fatalf("CreateRoom failed: %v", err)
		}
		if seen[room.Code] {
			t.Fatalf("duplicate room code %q", room.Code)
		}
		seen[room.Code] = true
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	roomSvc := setupRoomService(t)

	_, err := roomSvc.GetRoom(context.Background(), "ZZZZZ")
	if err != services.ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestEndRoom(t *testing.T) {
	roomSvc := setupRoomService(t)
	ctx := context.Background()

	room, err := roomSvc.CreateRoom(ctx, "host-1")
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if err := roomSvc.EndRoom(ctx, room.Code); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}

	ended, err := roomSvc.GetRoom(ctx, room.Code)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if ended.Status != models.RoomEnded {
		t.Errorf("expected ended status, got %s", ended.Status)
	}
}

func TestEndRoom_NotFound(t *testing.T) {
	roomSvc := setupRoomService(t)

	err := roomSvc.EndRoom(context.Background(), "ZZZZZ")
	if err != services.ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestExpired(t *testing.T) {
	roomSvc := setupRoomService(t)

	created := time.Now()
	room := &models.Room{Status: models.RoomLobby, CreatedAt: created}

	if roomSvc.Expired(room, created.Add(time.Minute)) {
		t.Error("expected fresh room to not be expired")
	}
	if !roomSvc.Expired(room, created.Add(31*time.Minute)) {
		t.Error("expected room past its TTL to be expired")
	}

	// Ended rooms never report expired; they are already terminal.
	room.Status = models.RoomEnded
	if roomSvc.Expired(room, created.Add(31*time.Minute)) {
		t.Error("expected ended room to not report expired")
	}
}

func TestExpiresAt(t *testing.T) {
	roomSvc := setupRoomService(t)

	created := time.Now()
	room := &models.Room{CreatedAt: created}
	if got := roomSvc.ExpiresAt(room); !got.Equal(created.Add(30 * time.Minute)) {
		t.Errorf("expected expiry 30m after creation, got %v", got)
	}
}
