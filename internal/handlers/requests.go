package handlers

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	HostDevice string `json:"host_device"`
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// SelectCategoriesRequest replaces a player's category opt-ins
type SelectCategoriesRequest struct {
	Categories []string `json:"categories"`
}

// StartRoundRequest is the request body for starting a round. Category and
// prompt are optional host overrides.
type StartRoundRequest struct {
	Category string `json:"category,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// SubmitRequest is the request body for submitting an answer
type SubmitRequest struct {
	PlayerID int64  `json:"player_id"`
	Text     string `json:"text"`
}

// GuessRequest is the request body for guessing the owner's answer
type GuessRequest struct {
	PlayerID     int64 `json:"player_id"`
	SubmissionID int64 `json:"submission_id"`
}

// SetVotesRequest replaces a player's vote set for the round
type SetVotesRequest struct {
	PlayerID      int64   `json:"player_id"`
	SubmissionIDs []int64 `json:"submission_ids"`
}
