package services

import "github.com/mkendall/whosaidit/internal/errors"

// Shared service errors
var (
	ErrRoomNotFound     = errors.NotFound("room not found")
	ErrRoundNotFound    = errors.NotFound("round not found")
	ErrPlayerNotFound   = errors.NotFound("player not found")
	ErrRoomNotJoinable  = errors.Conflict("room is no longer accepting players")
	ErrRoomFull         = errors.Conflict("room is full")
	ErrColorTaken       = errors.Conflict("that color is already taken")
	ErrCodeExhaustion   = errors.Exhausted("could not generate a unique room code")
	ErrEmptyPool        = errors.Conflict("players have not agreed on any categories")
	ErrNotEnoughPlayers = errors.Conflict("not enough connected players to start a round")
	ErrRoundInProgress  = errors.Conflict("a round is already in progress")
	ErrSubmitClosed     = errors.Conflict("submissions are closed for this round")
	ErrNotVoting        = errors.Conflict("round is not in its guess and vote phase")
	ErrRoundFinalized   = errors.Conflict("round has already been finalized")
)
