package apperror

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomFull      = errors.New("room is full")
	ErrMalformedRoom = errors.New("malformed room row")

	// ErrConflict is returned when an optimistic update lost the race
	// after its bounded retry. The caller re-fetches and surfaces
	// "try again" instead of retrying blindly.
	ErrConflict = errors.New("concurrent update conflict")

	ErrNotInRoom = errors.New("session does not own a slot in this room")

	ErrGameNotStarted = errors.New("game is not started")
	ErrGameFinished   = errors.New("game is already finished")
	ErrGameNotOver    = errors.New("game is not over yet")
	ErrNotYourTurn    = errors.New("it's not your turn")

	ErrRoundComplete     = errors.New("round is complete, start the next one")
	ErrRoundNotComplete  = errors.New("round is not complete")
	ErrChoiceAlreadyMade = errors.New("choice already made this round")
	ErrInvalidChoice     = errors.New("unknown choice")
	ErrInvalidCell       = errors.New("invalid cell index")
	ErrCellOccupied      = errors.New("cell is already occupied")
)
