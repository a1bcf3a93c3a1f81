// Package ollama is a client for the Ollama HTTP API: text generation,
// model management (create, pull, push, copy, delete, show, list) and
// health checks. Streaming endpoints deliver newline-delimited JSON; each
// operation either exposes that stream lazily or folds it into a single
// aggregated result.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// DefaultHost is used when OLLAMA_HOST is not set. The explicit IPv4
// loopback avoids IPv6 resolution surprises with "localhost".
const DefaultHost = "http://127.0.0.1:11434"

// Client communicates with an Ollama server over HTTP. Each call is
// independent; the only state shared across calls is the base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-level timeout: streaming responses stay open for as
		// long as generation runs. Callers bound requests via context.
		httpClient: &http.Client{Timeout: 0},
	}
}

// NewFromEnv creates a Client targeting OLLAMA_HOST, or DefaultHost when the
// variable is unset or empty.
func NewFromEnv() *Client {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = DefaultHost
	}
	return New(host)
}

// BaseURL returns the base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// send issues a request and verifies the status code before any of the body
// is consumed. The path is concatenated onto the base URL rather than
// resolved against it; URL-join semantics would silently drop a sub-path on
// the base.
func (c *Client) send(ctx context.Context, method, path string, reqBody any) (*http.Response, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

// do performs a single-shot request and decodes the complete response body
// into respBody. Pass nil to discard the body.
func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	resp, err := c.send(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if respBody == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// stream performs a request whose response body is newline-delimited JSON
// and hands ownership of the unconsumed body to the returned Stream. The
// caller must drain or close it.
func (c *Client) stream(ctx context.Context, method, path string, reqBody any) (*Stream, error) {
	resp, err := c.send(ctx, method, path, reqBody)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

// List returns the models available locally. A response without a models key
// yields an empty slice, not an error.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		return []Model{}, nil
	}
	return resp.Models, nil
}

// Show returns metadata for a model: its Modelfile, parameters, template
// and license.
func (c *Client) Show(ctx context.Context, name string) (*ShowResponse, error) {
	var resp ShowResponse
	if err := c.do(ctx, http.MethodPost, "/api/show", showRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Copy duplicates a model under a new name.
func (c *Client) Copy(ctx context.Context, source, destination string) error {
	return c.do(ctx, http.MethodPost, "/api/copy", copyRequest{
		Source:      source,
		Destination: destination,
	}, nil)
}

// Delete removes a model and its data.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/delete", deleteRequest{Name: name}, nil)
}

// Heartbeat reports whether the server is up. It returns nil on success and
// an error (connection failure or RequestError) otherwise.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// HasModel reports whether the given model is present locally. Names match
// exactly or as a tag prefix, so "phi3.5" matches "phi3.5:latest".
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.List(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m.Name == name || strings.HasPrefix(m.Name, name+":") {
			return true
		}
	}
	return false
}
