// Package relay serves a local pass-through proxy in front of an Ollama
// server. It forwards /api/* requests unchanged and streams newline-delimited
// JSON responses back chunk by chunk, which makes it handy for watching raw
// API traffic during development.
package relay

import (
	"bufio"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxRequestBodySize = 1 << 20 // 1MB

// NewHandler returns an http.Handler that relays /api/* to the upstream
// Ollama base URL.
func NewHandler(upstream string) http.Handler {
	rel := &relay{
		upstream: strings.TrimRight(upstream, "/"),
		// No client timeout: pull and generate responses stream for as long
		// as the model needs.
		httpClient: &http.Client{Timeout: 0},
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Head("/", rel.forward)
	r.Handle("/api/*", http.HandlerFunc(rel.forward))
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type relay struct {
	upstream   string
	httpClient *http.Client
}

func (rel *relay) forward(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	target := rel.upstream + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		slog.Error("building upstream request", "id", reqID, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		upReq.Header.Set("Content-Type", ct)
	}

	resp, err := rel.httpClient.Do(upReq)
	if err != nil {
		slog.Error("upstream unreachable", "id", reqID, "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("X-Request-ID", reqID)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	streamBody(w, resp.Body)

	slog.Info("relayed",
		"id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// streamBody copies the upstream body line by line, flushing after each line
// so NDJSON progress chunks reach the client as they arrive.
func streamBody(w http.ResponseWriter, rc io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		io.Copy(w, rc)
		return
	}

	reader := bufio.NewReader(rc)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			w.Write(line)
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				slog.Error("upstream stream read error", "error", err)
			}
			break
		}
	}
}
