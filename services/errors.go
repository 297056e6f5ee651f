package services

import "errors"

// Shared sentinel errors, also used by the HTTP layer for status mapping.
var (
	// Not found
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrGameNotFound       = errors.New("game not found")

	// Invalid state / business rules
	ErrNoParticipants     = errors.New("tournament has no registered participants")
	ErrInvalidMatchState  = errors.New("match is not in a startable state")
	ErrMatchMissingPlayer = errors.New("match is missing its second player")
	ErrFinalMatchMissing  = errors.New("final round match missing or unresolved")

	// Concurrency
	ErrConcurrencyConflict = errors.New("another actor claimed this transition first")
)
