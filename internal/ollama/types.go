package ollama

import "time"

// GenerateRequest is the JSON body for POST /api/generate. Optional fields
// all carry omitempty: a zero value stays off the wire entirely, matching
// how the server distinguishes "set" from "unset".
type GenerateRequest struct {
	Model    string         `json:"model"`
	Prompt   string         `json:"prompt,omitempty"`
	System   string         `json:"system,omitempty"`
	Template string         `json:"template,omitempty"`
	Context  []int          `json:"context,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
	Format   string         `json:"format,omitempty"`
	Raw      bool           `json:"raw,omitempty"`
}

// GenerateResponse is one chunk of a streamed generation, or the folded
// aggregate returned by Generate. In the aggregate, Response holds the full
// concatenated text and Status is "success".
type GenerateResponse struct {
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
	Status    string    `json:"status,omitempty"`

	// Set on the final chunk.
	Context            []int `json:"context,omitempty"`
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// CreateRequest is the JSON body for POST /api/create.
type CreateRequest struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// PullRequest is the JSON body for POST /api/pull.
type PullRequest struct {
	Name     string `json:"name"`
	Insecure bool   `json:"insecure,omitempty"`
}

// PushRequest is the JSON body for POST /api/push.
type PushRequest struct {
	Name     string `json:"name"`
	Insecure bool   `json:"insecure,omitempty"`
}

// ProgressUpdate is one line of a streamed create/pull/push response. Digest
// identifies the content-addressed layer the update applies to; status-only
// lines ("verifying sha256 digest", "success") carry no digest.
type ProgressUpdate struct {
	Status    string `json:"status,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// ProgressSummary is the folded result of a drained create/pull/push stream:
// for each layer, the last update seen keyed by digest (with Digest cleared
// from the stored value, later updates overwriting earlier ones), plus a
// terminal status of "success".
type ProgressSummary struct {
	Layers map[string]ProgressUpdate `json:"layers"`
	Status string                    `json:"status"`
}

// Model is one entry of GET /api/tags.
type Model struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size,omitempty"`
}

type listResponse struct {
	Models []Model `json:"models"`
}

// ShowResponse is the model metadata returned by POST /api/show.
type ShowResponse struct {
	License    string `json:"license,omitempty"`
	Modelfile  string `json:"modelfile,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Template   string `json:"template,omitempty"`
	System     string `json:"system,omitempty"`
}

type showRequest struct {
	Name string `json:"name"`
}

type copyRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type deleteRequest struct {
	Name string `json:"name"`
}
