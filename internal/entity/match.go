package entity

import "time"

// Match is one archived, finished game. Rows are written once on
// completion and only ever read back for the recent-history listing.
type Match struct {
	RoomID     string    `json:"room_id"`
	Game       string    `json:"game"`
	Winner     string    `json:"winner"` // slot label or "tie"
	Rounds     int       `json:"rounds"`
	FinishedAt time.Time `json:"finished_at"`
}
