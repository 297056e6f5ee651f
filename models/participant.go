package models

import "time"

// Participant links a user to a tournament. The set is immutable once the
// bracket has been generated; registration itself is owned by an external
// collaborator.
type Participant struct {
	ID           int       `json:"id"`
	TournamentID int       `json:"tournament_id"`
	UserID       int       `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`

	User *User `json:"user,omitempty"`
}
