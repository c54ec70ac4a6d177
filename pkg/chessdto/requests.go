package chessdto

type CreateGameRequest struct {
	// Mode is "pvp" or "computer".
	Mode string `json:"mode"`
	// HumanColor is white, black or random; computer games only.
	HumanColor string `json:"human_color,omitempty"`
	// Level is easy, medium, hard, grandmaster or super grandmaster.
	// Elo, when set, takes precedence.
	Level string `json:"level,omitempty"`
	Elo   int    `json:"elo,omitempty"`

	TimeMinutes      float64 `json:"time_minutes,omitempty"`
	IncrementSeconds int     `json:"increment_seconds,omitempty"`
	AllowUndo        *bool   `json:"allow_undo,omitempty"`
}

type MoveRequest struct {
	Move string `json:"move"`
	// Wait blocks until the engine has replied in computer games.
	Wait bool `json:"wait,omitempty"`
}

type ResignRequest struct {
	// Color resigns in two-player games; computer games resign the human.
	Color string `json:"color,omitempty"`
}
