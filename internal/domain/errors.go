package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a connection acts before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrRoomFull rejects new names once the roster hits maxPlayers.
	ErrRoomFull = errors.New("room is full")
	// ErrMatchStarted rejects new names once the room left WAITING.
	ErrMatchStarted = errors.New("match already started")
	// ErrNameTaken rejects a rejoin whose session token does not match.
	ErrNameTaken = errors.New("name already in use")
	// ErrNotHost rejects close attempts from anyone but the first-joined player.
	ErrNotHost = errors.New("only the host can close the room")
	// ErrNotFinalist rejects final-phase signals from non-finalists.
	ErrNotFinalist = errors.New("player did not qualify for the final")
	// ErrMatchNotInProgress rejects answers outside an active round.
	ErrMatchNotInProgress = errors.New("no round in progress")
	// ErrQuestionSupply indicates the bank could not satisfy a draw spec.
	ErrQuestionSupply = errors.New("question bank cannot satisfy requested draw")
)
