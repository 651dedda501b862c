package handlers

import (
	"github.com/mkendall/whosaidit/internal/services"
	"github.com/mkendall/whosaidit/internal/websocket"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Rooms   services.RoomServicer
	Players services.PlayerServicer
	Rounds  services.RoundServicer
	Board   services.BoardServicer
	Hub     *websocket.Hub
	Log     HTTPLogger
}

// HTTPLogger is an interface for loggers that support HTTP logging control
type HTTPLogger interface {
	IsHTTPLoggingEnabled() bool
}

// New creates a new Handlers instance with all dependencies
func New(
	rooms services.RoomServicer,
	players services.PlayerServicer,
	rounds services.RoundServicer,
	board services.BoardServicer,
	hub *websocket.Hub,
	log HTTPLogger,
) *Handlers {
	return &Handlers{
		Rooms:   rooms,
		Players: players,
		Rounds:  rounds,
		Board:   board,
		Hub:     hub,
		Log:     log,
	}
}
