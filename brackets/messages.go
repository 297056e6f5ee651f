package brackets

import (
	"strconv"
	"strings"
)

// Room identifiers. Tournament rooms and game rooms are independent
// namespaces inside the hub.
func TournamentRoom(tournamentID int) string {
	return "tournament:" + strconv.Itoa(tournamentID)
}

func GameRoom(gameID string) string {
	return "game:" + gameID
}

// ParseGameRoom extracts the game id from a game room identifier.
func ParseGameRoom(roomID string) (string, bool) {
	gameID, ok := strings.CutPrefix(roomID, "game:")
	if !ok || gameID == "" {
		return "", false
	}
	return gameID, true
}

const (
	TypeTournamentStarted  = "TOURNAMENT_STARTED"
	TypeTournamentFinished = "TOURNAMENT_FINISHED"
	TypeRoundAdvanced      = "ROUND_ADVANCED"
	TypeMatchStarted       = "MATCH_STARTED"
	TypeMatchCompleted     = "MATCH_COMPLETED"
)

type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

type MatchPlayer struct {
	UserID   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

type MatchStartedPayload struct {
	MatchID int           `json:"match_id"`
	Round   int           `json:"round"`
	GameID  string        `json:"game_id"`
	Players []MatchPlayer `json:"players"`
}

type MatchCompletedPayload struct {
	MatchID    int    `json:"match_id"`
	Round      int    `json:"round"`
	WinnerID   int    `json:"winner_id"`
	WinnerName string `json:"winner_name"`
}

type RoundAdvancedPayload struct {
	CompletedRound int `json:"completed_round"`
	NextRound      int `json:"next_round"`
	WinnersCount   int `json:"winners_count"`
}

type TournamentStartedPayload struct {
	TournamentID int    `json:"tournament_id"`
	Status       string `json:"status"`
}

type TournamentFinishedPayload struct {
	ChampionID   int    `json:"champion_id"`
	ChampionName string `json:"champion_name"`
	TotalPoints  int    `json:"total_points"`
}
