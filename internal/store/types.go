package store

import (
	"time"
)

type Mode string

const (
	ModeTwoPlayer Mode = "pvp"
	ModeComputer  Mode = "computer"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// GameRecord is the persisted state of a live game. Moves holds raw moves
// ("e2e4", "e7e8q"); replaying them rebuilds the position.
type GameRecord struct {
	ID      string   `json:"id"`
	Mode    Mode     `json:"mode"`
	Version int64    `json:"version"`
	Moves   []string `json:"moves"`
	SAN     []string `json:"san"`
	FEN     string   `json:"fen"`
	Status  Status   `json:"status"`
	Winner  string   `json:"winner,omitempty"`
	Cause   string   `json:"cause,omitempty"`

	AllowUndo bool `json:"allow_undo"`

	// Computer games only.
	HumanColor string `json:"human_color,omitempty"`
	Elo        int    `json:"elo,omitempty"`

	// Timed games only; remaining time is captured at save.
	WhiteClockMS int64 `json:"white_clock_ms,omitempty"`
	BlackClockMS int64 `json:"black_clock_ms,omitempty"`
	IncrementMS  int64 `json:"increment_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *GameRecord) Timed() bool {
	return r.WhiteClockMS > 0 || r.BlackClockMS > 0
}
