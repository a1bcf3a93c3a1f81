package ollama

import (
	"context"
	"net/http"
	"strings"
)

// GenerateStream requests a completion for req and returns the chunk
// sequence lazily. The caller owns the stream and must drain or close it.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (*GenerateStream, error) {
	s, err := c.stream(ctx, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return &GenerateStream{raw: s}, nil
}

// Generate requests a completion for req and folds the streamed chunks into
// one response: the chunk that carried done true, with Response replaced by
// the concatenation of every fragment in arrival order and Status set to
// "success". A stream that ends without a done chunk is an error
// (ErrIncompleteStream) rather than a silent partial result.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	s, err := c.GenerateStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var text strings.Builder
	for s.Next() {
		chunk := s.Chunk()
		text.WriteString(chunk.Response)
		if chunk.Done {
			chunk.Response = text.String()
			chunk.Status = "success"
			return &chunk, nil
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nil, ErrIncompleteStream
}
