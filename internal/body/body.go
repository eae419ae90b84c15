package body

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var (
	ErrTransport       = errors.New("request body stream broken")
	ErrPayloadTooLarge = errors.New("request body too large")
	ErrClosed          = errors.New("accumulator already finalized")
)

// Sentinel replaces bodies that are not valid UTF-8.
const Sentinel = "body not displayed — invalid text encoding"

const chunkSize = 32 * 1024

// Accumulator collects the chunks of one request body. It is owned by a
// single request and is not safe for concurrent use.
type Accumulator struct {
	buf    []byte
	limit  int64
	closed bool
}

// New returns an Accumulator that rejects bodies larger than limit bytes.
// A limit <= 0 disables the check.
func New(limit int64) *Accumulator {
	return &Accumulator{limit: limit}
}

// Feed appends chunk to the buffer. Going over the limit discards
// everything received so far.
func (a *Accumulator) Feed(chunk []byte) error {
	if a.closed {
		return ErrClosed
	}
	if a.limit > 0 && int64(len(a.buf))+int64(len(chunk)) > a.limit {
		a.discard()
		return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, a.limit)
	}
	a.buf = append(a.buf, chunk...)
	return nil
}

// Finish hands off the complete buffer. The Accumulator cannot be fed
// afterwards.
func (a *Accumulator) Finish() ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	b := a.buf
	if b == nil {
		b = []byte{}
	}
	a.buf = nil
	a.closed = true
	return b, nil
}

// Abort drops the partial buffer and reports cause as a transport error.
func (a *Accumulator) Abort(cause error) error {
	a.discard()
	return fmt.Errorf("%w: %w", ErrTransport, cause)
}

// Len reports the number of bytes buffered so far.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

func (a *Accumulator) discard() {
	a.buf = nil
	a.closed = true
}

// ReadAll drains r through an Accumulator. size is the length the sender
// declared, or -1 if unknown; a stream ending short of it is a transport
// error. On error no bytes are returned.
func ReadAll(r io.Reader, size, limit int64) ([]byte, error) {
	a := New(limit)
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if ferr := a.Feed(chunk[:n]); ferr != nil {
				return nil, ferr
			}
		}
		if err == io.EOF {
			if size >= 0 && int64(a.Len()) < size {
				return nil, a.Abort(io.ErrUnexpectedEOF)
			}
			return a.Finish()
		}
		if err != nil {
			return nil, a.Abort(err)
		}
	}
}

type State int

const (
	StateEmpty State = iota
	StateText
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateText:
		return "text"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Text is a body decoded for display.
type Text struct {
	Value string
	State State
}

// Decode interprets b as UTF-8, falling back to Sentinel.
func Decode(b []byte) Text {
	switch {
	case len(b) == 0:
		return Text{Value: "", State: StateEmpty}
	case utf8.Valid(b):
		return Text{Value: string(b), State: StateText}
	default:
		return Text{Value: Sentinel, State: StateInvalid}
	}
}
