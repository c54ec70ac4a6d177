package chessdto

import "time"

type ClockState struct {
	White   string `json:"white"`
	Black   string `json:"black"`
	WhiteMS int64  `json:"white_ms"`
	BlackMS int64  `json:"black_ms"`
}

type GameState struct {
	ID         string      `json:"id"`
	Mode       string      `json:"mode"`
	FEN        string      `json:"fen"`
	Turn       string      `json:"turn"`
	Check      bool        `json:"check"`
	Over       bool        `json:"over"`
	Result     string      `json:"result"`
	Winner     string      `json:"winner,omitempty"`
	Cause      string      `json:"cause,omitempty"`
	// Message is the end-of-game text once Over, else whose move it is.
	Message    string      `json:"message,omitempty"`
	HalfMoves  int         `json:"half_moves"`
	Moves      []string    `json:"moves"`
	SAN        []string    `json:"san"`
	UnicodeSAN []string    `json:"unicode_san"`
	MoveText   string      `json:"move_text"`
	ECO        string      `json:"eco,omitempty"`
	Opening    string      `json:"opening,omitempty"`
	LegalMoves []string    `json:"legal_moves,omitempty"`
	HumanColor string      `json:"human_color,omitempty"`
	Elo        int         `json:"elo,omitempty"`
	AllowUndo  bool        `json:"allow_undo"`
	Clock      *ClockState `json:"clock,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Event types pushed on the event stream.
const (
	// EventState is sent once when a stream opens.
	EventState = "state"
	EventMove  = "move"
	EventUndo  = "undo"
	EventEnd   = "end"
)

type Event struct {
	Type  string     `json:"type"`
	Move  string     `json:"move,omitempty"`
	State *GameState `json:"state"`
}

type ArchivedGame struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	HumanColor string    `json:"human_color,omitempty"`
	Elo        int       `json:"elo,omitempty"`
	Result     string    `json:"result"`
	Winner     string    `json:"winner"`
	Cause      string    `json:"cause"`
	SAN        []string  `json:"san"`
	PGN        string    `json:"pgn"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}
