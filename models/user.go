package models

import "time"

// User is owned by the external account system; this service reads nicknames
// for broadcast payloads and credits bonus points.
type User struct {
	ID        int       `json:"id"`
	Nickname  string    `json:"nickname"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}
