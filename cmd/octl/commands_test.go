package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/octl/internal/history"
	"github.com/kalambet/octl/internal/ollama"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

// newTestServer returns an httptest.Server that mimics a subset of the Ollama
// API. Responses are keyed by "METHOD /path"; NDJSON payloads go out verbatim.
func newTestServer(t *testing.T, responses map[string]string) (*testServer, *ollama.Client) {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body.String(),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts, ollama.New(ts.server.URL)
}

func (ts *testServer) recorded() []recordedRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]recordedRequest(nil), ts.requests...)
}

var ctx = context.Background()

func TestPullAll(t *testing.T) {
	pullNDJSON := `{"status":"pulling manifest"}
{"status":"downloading","digest":"sha256:aaa","total":100,"completed":100}
{"status":"success"}
`
	ts, client := newTestServer(t, map[string]string{
		"POST /api/pull": pullNDJSON,
	})

	var out bytes.Buffer
	if err := pullAll(ctx, client, []string{"llama2", "phi3.5"}, false, 2, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := ts.recorded()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 pull requests, got %d", len(reqs))
	}

	var pulled []string
	for _, r := range reqs {
		var body map[string]any
		if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
			t.Fatalf("body parse error: %v", err)
		}
		pulled = append(pulled, body["name"].(string))
		if _, ok := body["insecure"]; ok {
			t.Error("insecure should not be serialized when false")
		}
	}

	for _, want := range []string{"llama2", "phi3.5"} {
		found := false
		for _, got := range pulled {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("model %s was not pulled (got %v)", want, pulled)
		}
	}

	if !strings.Contains(out.String(), "downloading 100%") {
		t.Errorf("output = %q, want a progress percentage", out.String())
	}
}

func TestPullAll_UpstreamError(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"POST /api/pull": `{"error":"pull model manifest: file does not exist"}` + "\n",
	})

	var out bytes.Buffer
	err := pullAll(ctx, client, []string{"nope"}, false, 1, &out)
	if err == nil {
		t.Fatal("expected error for upstream failure")
	}

	var upstreamErr *ollama.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Errorf("error = %v, want an UpstreamError in the chain", err)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error = %q, want it to name the model", err.Error())
	}
}

func generateNDJSON() string {
	return `{"model":"llama2","created_at":"2026-08-01T00:00:00Z","response":"Hel","done":false}
{"model":"llama2","created_at":"2026-08-01T00:00:01Z","response":"lo","done":false}
{"model":"llama2","created_at":"2026-08-01T00:00:02Z","response":"","done":true,"eval_count":42,"total_duration":1500000000}
`
}

func openTestHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunPrompt_StreamsAndSaves(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"POST /api/generate": generateNDJSON(),
	})
	store := openTestHistory(t)

	var out bytes.Buffer
	req := ollama.GenerateRequest{Model: "llama2", Prompt: "say hello"}
	final, err := runPrompt(ctx, client, store, req, true, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := out.String(); got != "Hello\n" {
		t.Errorf("streamed output = %q, want %q", got, "Hello\n")
	}
	if final.Response != "Hello" {
		t.Errorf("final.Response = %q, want %q", final.Response, "Hello")
	}
	if final.Status != "success" {
		t.Errorf("final.Status = %q, want %q", final.Status, "success")
	}

	saved, err := store.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("got %d transcripts, want 1", len(saved))
	}
	tr := saved[0]
	if tr.Model != "llama2" || tr.Prompt != "say hello" || tr.Response != "Hello" {
		t.Errorf("transcript = %+v, want llama2/say hello/Hello", tr)
	}
	if tr.EvalCount != 42 {
		t.Errorf("EvalCount = %d, want 42", tr.EvalCount)
	}
}

func TestRunPrompt_NoStream(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"POST /api/generate": generateNDJSON(),
	})
	store := openTestHistory(t)

	var out bytes.Buffer
	req := ollama.GenerateRequest{Model: "llama2", Prompt: "say hello"}
	final, err := runPrompt(ctx, client, store, req, false, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Len() != 0 {
		t.Errorf("no-stream mode wrote to the stream writer: %q", out.String())
	}
	if final.Response != "Hello" {
		t.Errorf("final.Response = %q, want %q", final.Response, "Hello")
	}
}

func TestRunPrompt_IncompleteStream(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"POST /api/generate": `{"response":"Hel","done":false}` + "\n",
	})
	store := openTestHistory(t)

	var out bytes.Buffer
	req := ollama.GenerateRequest{Model: "llama2", Prompt: "say hello"}
	_, err := runPrompt(ctx, client, store, req, true, &out)
	if !errors.Is(err, ollama.ErrIncompleteStream) {
		t.Fatalf("error = %v, want ErrIncompleteStream", err)
	}

	if n, _ := store.Count(); n != 0 {
		t.Errorf("incomplete run saved %d transcripts, want 0", n)
	}
}

func TestRunCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"run"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestDrainProgress(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"POST /api/create": `{"status":"parsing modelfile"}
{"status":"creating layer","digest":"sha256:bbb","total":200,"completed":50}
{"status":"success"}
`,
	})

	s, err := client.CreateStream(ctx, ollama.CreateRequest{Name: "custom", Path: "/tmp/Modelfile"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	var out bytes.Buffer
	if err := drainProgress(s, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "parsing modelfile") {
		t.Errorf("output = %q, want the first status line", got)
	}
	if !strings.Contains(got, "creating layer 25%") {
		t.Errorf("output = %q, want a percentage line", got)
	}
}

func TestPrintShow(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var out bytes.Buffer
	printShow(&out, &ollama.ShowResponse{
		Modelfile:  "FROM llama2",
		Parameters: "stop <|end|>",
	})

	got := out.String()
	if !strings.Contains(got, "Modelfile\nFROM llama2") {
		t.Errorf("output = %q, want the modelfile section", got)
	}
	if strings.Contains(got, "License") {
		t.Errorf("output = %q, empty sections should be skipped", got)
	}
	if idx := strings.Index(got, "Modelfile"); idx > strings.Index(got, "Parameters") {
		t.Error("sections out of order")
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1500, "1.5 kB"},
		{3825819519, "3.8 GB"},
		{7000000000000, "7.0 TB"},
	}
	for _, tt := range tests {
		got := humanSize(tt.n)
		if got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPidFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}

	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want a positive process id", pid)
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error reading removed PID file")
	}
}

func TestListOutputFormatting(t *testing.T) {
	_, client := newTestServer(t, map[string]string{
		"GET /api/tags": `{"models":[{"name":"llama2:latest","modified_at":"2026-08-01T00:00:00Z","size":3825819519}]}`,
	})

	models, err := client.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("got %d models, want 1", len(models))
	}

	line := fmt.Sprintf("%-40s %-10s %s", models[0].Name, humanSize(models[0].Size), models[0].ModifiedAt.Format("2006-01-02 15:04"))
	if !strings.Contains(line, "llama2:latest") || !strings.Contains(line, "3.8 GB") {
		t.Errorf("line = %q, want name and size", line)
	}
}
