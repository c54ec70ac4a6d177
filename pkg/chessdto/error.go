package chessdto

// Error codes carried by DomainError.
const (
	CodeNotFound          = "not_found"
	CodeIllegalMove       = "illegal_move"
	CodeNotYourTurn       = "not_your_turn"
	CodeGameOver          = "game_over"
	CodeUndoNotAllowed    = "undo_not_allowed"
	CodeEngineUnavailable = "engine_unavailable"
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}
