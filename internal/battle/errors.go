package battle

import "errors"

var (
	// ErrNotFound is returned for a session id or join code that is not active.
	ErrNotFound = errors.New("battle not found")
	// ErrStateConflict is returned when joining a battle that already started.
	ErrStateConflict = errors.New("battle already started")
	// ErrCodeInUse is returned when a join code is held by another active battle.
	ErrCodeInUse = errors.New("battle code already in use")
	// ErrNotParticipant is returned when a user addresses a battle they are not in.
	ErrNotParticipant = errors.New("not a participant in this battle")
)
