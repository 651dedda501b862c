package handlers

import (
	"time"

	"github.com/mkendall/whosaidit/internal/models"
)

// RoomResponse is the JSON response for room creation
type RoomResponse struct {
	Code      string            `json:"code"`
	Status    models.RoomStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PlayerResponse is the JSON response for join operations
type PlayerResponse struct {
	ID       int64  `json:"id"`
	RoomCode string `json:"room_code"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

// RoundResponse is the JSON response for starting a round
type RoundResponse struct {
	ID             int64     `json:"id"`
	Category       string    `json:"category"`
	Prompt         string    `json:"prompt"`
	SubmitDeadline time.Time `json:"submit_deadline"`
}

// SubmissionResponse is the JSON response after submitting an answer
type SubmissionResponse struct {
	ID int64 `json:"id"`
}
