package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Stream is a lazy, single-pass sequence of newline-delimited JSON chunks
// read from a streaming response body. It is not restartable and not safe
// for concurrent use. Each chunk is only read from the network when Next is
// called; abandoning iteration early requires Close so the underlying
// connection is released.
//
// A chunk whose JSON carries a non-empty error field terminates the stream
// with an *UpstreamError regardless of the chunk's other content; the rest
// of the body is abandoned.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cur     json.RawMessage
	err     error
	closed  bool
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &Stream{body: body, scanner: sc}
}

// Next advances to the next chunk, blocking until a complete line arrives or
// the body is exhausted. It returns false at end of stream or on error;
// check Err afterwards. Blank lines are skipped, never emitted as chunks.
func (s *Stream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			s.fail(fmt.Errorf("parsing chunk: %w", err))
			return false
		}
		if probe.Error != "" {
			s.fail(&UpstreamError{Message: probe.Error})
			return false
		}

		s.cur = append(s.cur[:0], line...)
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.fail(fmt.Errorf("reading stream: %w", err))
		return false
	}
	s.Close()
	return false
}

// Bytes returns the current chunk's raw JSON. The returned slice is only
// valid until the next call to Next.
func (s *Stream) Bytes() json.RawMessage {
	return s.cur
}

// Decode unmarshals the current chunk into v.
func (s *Stream) Decode(v any) error {
	return json.Unmarshal(s.cur, v)
}

// Err returns the error that terminated the stream, if any. A stream that
// was drained to its natural end reports nil.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection. It is safe to call more than
// once and after the stream is exhausted.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *Stream) fail(err error) {
	s.err = err
	s.Close()
}

// GenerateStream is a lazy sequence of typed generation chunks.
type GenerateStream struct {
	raw *Stream
	cur GenerateResponse
}

// Next advances to the next generation chunk.
func (s *GenerateStream) Next() bool {
	if !s.raw.Next() {
		return false
	}
	s.cur = GenerateResponse{}
	if err := s.raw.Decode(&s.cur); err != nil {
		s.raw.fail(fmt.Errorf("decoding generate chunk: %w", err))
		return false
	}
	return true
}

// Chunk returns the current generation chunk.
func (s *GenerateStream) Chunk() GenerateResponse {
	return s.cur
}

// Err returns the error that terminated the stream, if any.
func (s *GenerateStream) Err() error {
	return s.raw.Err()
}

// Close releases the underlying connection.
func (s *GenerateStream) Close() error {
	return s.raw.Close()
}

// ProgressStream is a lazy sequence of typed progress chunks from a create,
// pull or push response.
type ProgressStream struct {
	raw *Stream
	cur ProgressUpdate
}

// Next advances to the next progress chunk.
func (s *ProgressStream) Next() bool {
	if !s.raw.Next() {
		return false
	}
	s.cur = ProgressUpdate{}
	if err := s.raw.Decode(&s.cur); err != nil {
		s.raw.fail(fmt.Errorf("decoding progress chunk: %w", err))
		return false
	}
	return true
}

// Update returns the current progress chunk.
func (s *ProgressStream) Update() ProgressUpdate {
	return s.cur
}

// Err returns the error that terminated the stream, if any.
func (s *ProgressStream) Err() error {
	return s.raw.Err()
}

// Close releases the underlying connection.
func (s *ProgressStream) Close() error {
	return s.raw.Close()
}
