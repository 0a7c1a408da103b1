package llm

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// Stream yields generated text in order. It accumulates the full text and
// token usage so callers can persist the result after the last chunk.
//
// Next must be called from one goroutine at a time.
type Stream struct {
	next   func() (string, error)
	closer io.Closer

	mu    sync.Mutex
	text  strings.Builder
	usage Usage
	err   error
	done  bool
}

func newStream(closer io.Closer) *Stream {
	return &Stream{closer: closer}
}

// Next returns the next text chunk, or io.EOF when generation finished.
// A mid-stream upstream failure is returned as *ProviderError and is sticky.
func (s *Stream) Next() (string, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return "", err
	}
	s.mu.Unlock()

	chunk, err := s.next()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return "", err
	}
	s.text.WriteString(chunk)
	return chunk, nil
}

// Drain consumes the remaining chunks and returns the terminal error, if any.
func (s *Stream) Drain() error {
	for {
		if _, err := s.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Text returns everything generated so far.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Usage returns the token usage reported so far. Providers report it at the
// end of the stream, so it is only complete after Next returned io.EOF.
func (s *Stream) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Err returns the terminal upstream error, if the stream failed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Stream) setInputTokens(n int64) {
	s.mu.Lock()
	s.usage.InputTokens = n
	s.mu.Unlock()
}

func (s *Stream) setOutputTokens(n int64) {
	s.mu.Lock()
	s.usage.OutputTokens = n
	s.mu.Unlock()
}

// staticStream wraps an already complete reply.
func staticStream(text string, usage Usage) *Stream {
	s := newStream(nil)
	s.usage = usage
	sent := false
	s.next = func() (string, error) {
		if sent || text == "" {
			return "", io.EOF
		}
		sent = true
		return text, nil
	}
	return s
}
