package history

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Transcript is one completed `octl run` exchange.
type Transcript struct {
	ID            string
	CreatedAt     time.Time
	Model         string
	Prompt        string
	Response      string
	EvalCount     int
	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration
}
