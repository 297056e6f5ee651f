package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	TournamentWaiting    TournamentStatus = "waiting"
	TournamentInProgress TournamentStatus = "in_progress"
	TournamentFinished   TournamentStatus = "finished"
)

// Tournament is one single-elimination event. CurrentRound and TotalRounds
// are zero until the bracket is generated; WinnerID is set on finalization.
type Tournament struct {
	ID                int              `json:"id"`
	Name              string           `json:"name"`
	CreatorID         int              `json:"creator_id"`
	Status            TournamentStatus `json:"status"`
	PlayerCount       int              `json:"player_count"`
	CurrentRound      int              `json:"current_round"`
	TotalRounds       int              `json:"total_rounds"`
	StartTime         time.Time        `json:"start_time"`
	EntryFee          int              `json:"entry_fee"`
	PrizeDistribution *string          `json:"prize_distribution,omitempty"`
	WinnerID          *int             `json:"winner_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`

	// Optional related entities, loaded on demand.
	Participants []Participant `json:"participants,omitempty"`
	Matches      []Match       `json:"matches,omitempty"`
}
