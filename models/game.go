package models

import "time"

type GameStatus string

const (
	GameActive   GameStatus = "active"
	GameFinished GameStatus = "finished"
)

// Game is the record of one chess game. The rules engine that plays it is an
// external collaborator; this service only creates the record when a match
// starts and reads the terminal outcome. IDs are deterministic, derived from
// (tournament, round, match number), so a retried start never forks a second
// game for the same slot.
type Game struct {
	ID           string     `json:"id"`
	TournamentID *int       `json:"tournament_id,omitempty"`
	WhiteID      int        `json:"white_id"`
	BlackID      int        `json:"black_id"`
	Status       GameStatus `json:"status"`
	WinnerID     *int       `json:"winner_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
