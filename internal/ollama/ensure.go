package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureModels checks that the server is running and that every named model
// is available locally, pulling missing ones with progress written to w.
// Returns a non-nil error if the server is unreachable or a pull fails.
func EnsureModels(ctx context.Context, c *Client, models []string, w io.Writer) error {
	if err := c.Heartbeat(ctx); err != nil {
		return fmt.Errorf("server is not running at %s: %w", c.BaseURL(), err)
	}

	for _, model := range models {
		if c.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		s, err := c.PullStream(ctx, PullRequest{Name: model})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		for s.Next() {
			u := s.Update()
			if u.Total > 0 {
				pct := float64(u.Completed) / float64(u.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", u.Status, pct)
			} else if u.Status != "" {
				fmt.Fprintf(w, "  %s\n", u.Status)
			}
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	return nil
}
