package ollama

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStream_SkipsBlankLines(t *testing.T) {
	body := "{\"status\":\"a\"}\n\n   \n{\"status\":\"b\"}\n"
	s := newStream(io.NopCloser(strings.NewReader(body)))

	var got []string
	for s.Next() {
		var u ProgressUpdate
		if err := s.Decode(&u); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, u.Status)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("chunks = %v, want [a b]", got)
	}
}

func TestStream_ErrorChunkStopsIteration(t *testing.T) {
	body := "{\"response\":\"partial\"}\n{\"error\":\"out of memory\"}\n{\"response\":\"never seen\"}\n"
	s := newStream(io.NopCloser(strings.NewReader(body)))

	var seen int
	for s.Next() {
		seen++
	}

	var upstream *UpstreamError
	if !errors.As(s.Err(), &upstream) {
		t.Fatalf("Err() = %v, want *UpstreamError", s.Err())
	}
	if upstream.Message != "out of memory" {
		t.Errorf("Message = %q", upstream.Message)
	}
	if seen != 1 {
		t.Errorf("observed %d chunks before the error, want 1", seen)
	}
	// The failed stream must not yield anything further.
	if s.Next() {
		t.Error("Next() = true after stream failure")
	}
}

func TestStream_MalformedLine(t *testing.T) {
	s := newStream(io.NopCloser(strings.NewReader("{not json}\n")))
	if s.Next() {
		t.Fatal("Next() = true for malformed line")
	}
	if s.Err() == nil {
		t.Fatal("Err() = nil, want parse error")
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestStream_CloseReleasesBody(t *testing.T) {
	rec := &closeRecorder{Reader: strings.NewReader("{\"status\":\"a\"}\n{\"status\":\"b\"}\n")}
	s := newStream(rec)

	// Abandon after the first chunk.
	if !s.Next() {
		t.Fatalf("Next() = false: %v", s.Err())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !rec.closed {
		t.Error("underlying body not closed")
	}

	// Closed streams yield nothing and Close stays idempotent.
	if s.Next() {
		t.Error("Next() = true after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStream_DrainingClosesBody(t *testing.T) {
	rec := &closeRecorder{Reader: strings.NewReader("{\"status\":\"a\"}\n")}
	s := newStream(rec)
	for s.Next() {
	}
	if !rec.closed {
		t.Error("body not closed after natural end of stream")
	}
}

// Chunks are delivered line by line even when the server flushes a line in
// several writes, and only materialize as the consumer pulls them.
func TestStream_PartialLineBuffering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		io.WriteString(w, `{"response":"Hel`)
		f.Flush()
		io.WriteString(w, "lo\"}\n")
		f.Flush()
		io.WriteString(w, "{\"response\":\"!\",\"done\":true}\n")
	}))
	defer srv.Close()

	s, err := New(srv.URL).GenerateStream(ctx, GenerateRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	defer s.Close()

	var got []string
	for s.Next() {
		got = append(got, s.Chunk().Response)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 2 || got[0] != "Hello" || got[1] != "!" {
		t.Errorf("chunks = %q, want [Hello !]", got)
	}
}
