package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/skip2/go-qrcode"
)

// handleCreateRoom creates a room and returns its short code
func (h *Handlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.HostDevice == "" {
		respondError(w, BadRequest("Missing host_device"))
		return
	}

	room, err := h.Rooms.CreateRoom(r.Context(), req.HostDevice)
	if err != nil {
		respondError(w, err)
		return
	}

	respondCreated(w, RoomResponse{
		Code:      room.Code,
		Status:    room.Status,
		ExpiresAt: h.Rooms.ExpiresAt(room),
	})
}

// handleGetBoard returns the derived board state for a room. Submission
// texts are redacted while the round is still collecting answers so no
// client sees another player's text before reveal.
func (h *Handlers) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	board, err := h.Board.Snapshot(r.Context(), code)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, board.Redacted())
}

// handleJoinQR renders the room's join URL as a QR code PNG
func (h *Handlers) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := h.Rooms.GetRoom(r.Context(), code); err != nil {
		respondError(w, err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	joinURL := fmt.Sprintf("%s://%s/join/%s", scheme, r.Host, code)

	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// handleJoin admits a player into a room
func (h *Handlers) handleJoin(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	player, err := h.Players.Join(r.Context(), code, req.Name, req.Color)
	if err != nil {
		respondError(w, err)
		return
	}

	respondCreated(w, PlayerResponse{
		ID:       player.ID,
		RoomCode: player.RoomCode,
		Name:     player.Name,
		Color:    player.Color,
	})
}

// handleEndRoom marks a room ended
func (h *Handlers) handleEndRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.Rooms.EndRoom(r.Context(), code); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": string(models.RoomEnded)})
}

// handleLeave marks a player disconnected
func (h *Handlers) handleLeave(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Players.Leave(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"message": "left"})
}

// handleSelectCategories replaces a player's category opt-ins
func (h *Handlers) handleSelectCategories(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var req SelectCategoriesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Players.SelectCategories(r.Context(), id, req.Categories); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"message": "categories updated"})
}

// handleStartRound starts the next round for a room
func (h *Handlers) handleStartRound(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req StartRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	round, err := h.Rounds.Start(r.Context(), code, req.Category, req.Prompt)
	if err != nil {
		respondError(w, err)
		return
	}

	respondCreated(w, RoundResponse{
		ID:             round.ID,
		Category:       round.Category,
		Prompt:         round.Prompt,
		SubmitDeadline: round.SubmitDeadline,
	})
}

// handleSubmit records a player's answer to the round prompt
func (h *Handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	roundID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	submission, err := h.Rounds.Submit(r.Context(), roundID, req.PlayerID, req.Text)
	if err != nil {
		respondError(w, err)
		return
	}

	respondCreated(w, SubmissionResponse{ID: submission.ID})
}

// handleGuess records the player's guess at the owner's answer
func (h *Handlers) handleGuess(w http.ResponseWriter, r *http.Request) {
	roundID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var req GuessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Rounds.Guess(r.Context(), roundID, req.PlayerID, req.SubmissionID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"message": "guess recorded"})
}

// handleSetVotes replaces the player's favorite-answer votes
func (h *Handlers) handleSetVotes(w http.ResponseWriter, r *http.Request) {
	roundID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var req SetVotesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.Rounds.SetVotes(r.Context(), roundID, req.PlayerID, req.SubmissionIDs); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, map[string]string{"message": "votes recorded"})
}
