package models

import "time"

// RoomStatus is the lifecycle state of a room
type RoomStatus string

const (
	RoomLobby   RoomStatus = "lobby"
	RoomInRound RoomStatus = "in_round"
	RoomResults RoomStatus = "results"
	RoomEnded   RoomStatus = "ended"
)

// RoundPhase is the lifecycle state of a round. Unlike the room status it is
// fully reconstructable from the store: no phase is derived from broadcast
// payloads alone.
type RoundPhase string

const (
	PhaseSubmitting RoundPhase = "submitting"
	PhaseVoting     RoundPhase = "voting"
	PhaseFinalized  RoundPhase = "finalized"
)

// Room represents one game session shared by a host and up to eight players
type Room struct {
	Code            string          `json:"code"`
	HostDevice      string          `json:"host_device"`
	Status          RoomStatus      `json:"status"`
	CategoryPool    []string        `json:"category_pool"`
	RoundCounter    int             `json:"round_counter"`
	ChameleonScores map[int64]int   `json:"chameleon_scores"`
	CrowdScores     map[int64]int   `json:"crowd_scores"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Player represents a participant in a room. Players are never hard-deleted;
// leaving only clears the connected flag so their history survives scoring.
type Player struct {
	ID         int64    `json:"id"`
	RoomCode   string   `json:"room_code"`
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	Connected  bool     `json:"connected"`
	Categories []string `json:"categories"`
}

// Round is one prompt/answer/guess/vote cycle within a room
type Round struct {
	ID             int64         `json:"id"`
	RoomCode       string        `json:"room_code"`
	Category       string        `json:"category"`
	Prompt         string        `json:"prompt"`
	OwnerPlayerID  int64         `json:"owner_player_id"`
	Phase          RoundPhase    `json:"phase"`
	SubmitDeadline time.Time     `json:"submit_deadline"`
	VoteDeadline   *time.Time    `json:"vote_deadline,omitempty"`
	RevealOrder    []int64       `json:"reveal_order,omitempty"`
	Results        *RoundResults `json:"results,omitempty"`
}

// Revealed reports whether the reveal permutation has been written.
// Its presence is the idempotency guard for the reveal transition.
func (r *Round) Revealed() bool {
	return r.RevealOrder != nil
}

// RoundResults holds the derived outcome of a finalized round
type RoundResults struct {
	OwnerAnswerID   *int64        `json:"owner_answer_id"`
	CorrectGuessers []int64       `json:"correct_guessers"`
	VoteCounts      map[int64]int `json:"vote_counts"`
}

// Submission is a player's answer to the round prompt
type Submission struct {
	ID       int64  `json:"id"`
	RoundID  int64  `json:"round_id"`
	PlayerID int64  `json:"player_id"`
	Text     string `json:"text"`
}

// Guess records which submission a player believes belongs to the round owner.
// At most one guess exists per (round, player); a new guess replaces the old.
type Guess struct {
	RoundID      int64 `json:"round_id"`
	PlayerID     int64 `json:"player_id"`
	SubmissionID int64 `json:"submission_id"`
}

// Vote is a favorite-answer vote. A player holds at most two vote rows per
// round; both may target the same submission.
type Vote struct {
	ID           int64 `json:"id"`
	RoundID      int64 `json:"round_id"`
	PlayerID     int64 `json:"player_id"`
	SubmissionID int64 `json:"submission_id"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcast event names. Delivery is best-effort; every autonomous transition
// must remain derivable from the store without them.
const (
	EventRoomUpdate       = "room:update"
	EventRoundStart       = "round:start"
	EventRoundSubmit      = "round:submit"
	EventRoundReveal      = "round:reveal"
	EventRoundVoteStart   = "round:vote_start"
	EventRoundResults     = "round:results"
	EventCategoriesUpdate = "categories:update"
)
