package ollama

import (
	"context"
	"net/http"
)

// CreateStream builds a model from a Modelfile at req.Path and returns the
// progress sequence lazily.
func (c *Client) CreateStream(ctx context.Context, req CreateRequest) (*ProgressStream, error) {
	return c.progressStream(ctx, "/api/create", req)
}

// Create builds a model from a Modelfile and drains the progress stream into
// a ProgressSummary, the same shape Pull and Push fold to.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*ProgressSummary, error) {
	s, err := c.CreateStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return foldProgress(s)
}

// PullStream fetches a model from the registry and returns the progress
// sequence lazily. Interrupted pulls resume server-side from where they
// left off.
func (c *Client) PullStream(ctx context.Context, req PullRequest) (*ProgressStream, error) {
	return c.progressStream(ctx, "/api/pull", req)
}

// Pull fetches a model from the registry and drains the progress stream into
// a ProgressSummary.
func (c *Client) Pull(ctx context.Context, req PullRequest) (*ProgressSummary, error) {
	s, err := c.PullStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return foldProgress(s)
}

// PushStream publishes a model to the registry and returns the progress
// sequence lazily.
func (c *Client) PushStream(ctx context.Context, req PushRequest) (*ProgressStream, error) {
	return c.progressStream(ctx, "/api/push", req)
}

// Push publishes a model to the registry and drains the progress stream into
// a ProgressSummary.
func (c *Client) Push(ctx context.Context, req PushRequest) (*ProgressSummary, error) {
	s, err := c.PushStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return foldProgress(s)
}

func (c *Client) progressStream(ctx context.Context, path string, req any) (*ProgressStream, error) {
	s, err := c.stream(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}
	return &ProgressStream{raw: s}, nil
}

// foldProgress drains a progress stream into a summary: last update wins per
// digest, with the digest moved out of the stored value and into the map
// key. Status-only updates carry no digest and are not retained.
func foldProgress(s *ProgressStream) (*ProgressSummary, error) {
	defer s.Close()

	sum := &ProgressSummary{Layers: make(map[string]ProgressUpdate)}
	for s.Next() {
		u := s.Update()
		if u.Digest == "" {
			continue
		}
		digest := u.Digest
		u.Digest = ""
		sum.Layers[digest] = u
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	sum.Status = "success"
	return sum, nil
}
