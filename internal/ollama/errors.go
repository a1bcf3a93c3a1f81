package ollama

import (
	"errors"
	"fmt"
)

// ErrIncompleteStream is returned when a generation stream ends without a
// final done chunk, for example when the connection drops mid-response.
var ErrIncompleteStream = errors.New("stream ended before the final chunk")

// RequestError is returned when the server responds with a non-2xx status.
// Body holds the raw response body, which for this API is usually a small
// JSON object with an error message.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// UpstreamError is an error the server reported inside an otherwise
// successful streaming body, as a chunk carrying an error field. It takes
// precedence over any other content in the chunk.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}
