package models

import "time"

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchBye        MatchStatus = "bye"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
)

// Match is one bracket node. A bye match has exactly one player and is
// created already completed-equivalent: terminal, with that player as winner
// and no game ever linked to it.
type Match struct {
	ID           int         `json:"id"`
	TournamentID int         `json:"tournament_id"`
	Round        int         `json:"round"`
	MatchNumber  int         `json:"match_number"`
	Player1ID    int         `json:"player1_id"`
	Player2ID    *int        `json:"player2_id,omitempty"`
	Status       MatchStatus `json:"status"`
	WinnerID     *int        `json:"winner_id,omitempty"`
	GameID       *string     `json:"game_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Terminal reports whether the match can no longer produce state changes.
// Byes count: they are born with their winner decided.
func (m *Match) Terminal() bool {
	return m.Status == MatchCompleted || m.Status == MatchBye
}
