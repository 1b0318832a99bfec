package kernel

import (
	"bufio"
	"io"
)

// InputSource is the keyboard the capability table exposes. Getc blocks
// until a key arrives; on the real machine that is a busy-poll loop with
// no timeout.
type InputSource interface {
	HasKey() bool
	Getc() byte
	Read(max int, hide bool) string
}

// NullInput is an input source with no keys. It is the default when the
// kernel is constructed without one.
type NullInput struct{}

func (NullInput) HasKey() bool { return false }

func (NullInput) Getc() byte { return 0 }

func (NullInput) Read(max int, _ bool) string { return "" }

// StreamInput adapts a byte stream (stdin, a pty, a test buffer) to the
// InputSource contract.
type StreamInput struct {
	r *bufio.Reader
}

func NewStreamInput(r io.Reader) *StreamInput {
	return &StreamInput{r: bufio.NewReader(r)}
}

func (s *StreamInput) HasKey() bool {
	return s.r.Buffered() > 0
}

func (s *StreamInput) Getc() byte {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0
	}

	return b
}

func (s *StreamInput) Read(max int, _ bool) string {
	out := make([]byte, 0, max)

	for len(out) < max {
		b, err := s.r.ReadByte()
		if err != nil || b == '\n' {
			break
		}

		if b == '\r' {
			continue
		}

		out = append(out, b)
	}

	return string(out)
}
