package tools

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error types the model is expected to react to. An invalid_argument result
// tells the model to correct its call; unavailable tells it the lookup cannot
// succeed right now.
const (
	ErrTypeNotFound        = "not_found"
	ErrTypeInvalidArgument = "invalid_argument"
	ErrTypeUnavailable     = "unavailable"
)

// Result is the uniform envelope every tool returns. Failures are values, not
// Go errors: they are serialized and fed back to the model so it can adjust.
type Result struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  *Error         `json:"error,omitempty"`

	// Cards are product cards extracted from this result for the response's
	// artifact list. Not serialized into the model conversation.
	Cards []Card `json:"-"`
}

// Error is a structured tool failure for model consumption.
type Error struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil tool error>"
	}
	if e.ErrorType == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.ErrorType
	}
	return e.ErrorType + ": " + e.Message
}

// IsUnavailable reports whether the result is an availability failure.
func (r Result) IsUnavailable() bool {
	return r.Status == StatusError && r.Error != nil && r.Error.ErrorType == ErrTypeUnavailable
}

// Card is a product card surfaced alongside the assistant's reply.
type Card struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	ImageURL    string  `json:"imageUrl"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	StockStatus string  `json:"stockStatus"`
	URL         string  `json:"url"`
	Category    string  `json:"category"`
}

// success builds a success result.
func success(data map[string]any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// failure builds an error result.
func failure(errType, message string) Result {
	return Result{Status: StatusError, Error: &Error{ErrorType: errType, Message: message}}
}
