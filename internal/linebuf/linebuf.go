// Package linebuf reassembles newline-delimited lines from a chunked byte
// stream. A line is only reported once the segment after it has arrived, so
// consumers observe completed lines with at most one line of latency; stream
// protocols built on it must end with a terminator line that the callback
// recognizes.
package linebuf

import "io"

// LineFunc is invoked once per completed line, in arrival order. Returning
// true signals that delivery should stop; the buffer detaches itself and no
// further lines are reported.
type LineFunc func(line string) bool

// Buffer accumulates chunks and drives a LineFunc. Not safe for concurrent
// use; feed it from a single reader goroutine.
type Buffer struct {
	fn      LineFunc
	pending []byte
	stopped bool
}

func New(fn LineFunc) *Buffer {
	return &Buffer{fn: fn}
}

// Stopped reports whether the callback has signaled stop.
func (b *Buffer) Stopped() bool { return b.stopped }

// Feed delivers one chunk. The chunk's leading segment completes the pending
// line; every embedded newline flushes the line buffered before it. The
// trailing fragment is retained until the next chunk completes it. Feed does
// not return until the callback has returned for every flushed line, so a
// blocking callback serializes line processing.
func (b *Buffer) Feed(chunk []byte) {
	if b.stopped {
		return
	}
	start := 0
	for i := 0; i < len(chunk); i++ {
		if chunk[i] != '\n' {
			continue
		}
		b.pending = append(b.pending, chunk[start:i]...)
		if b.fn(string(b.pending)) {
			b.stopped = true
			return
		}
		b.pending = b.pending[:0]
		start = i + 1
	}
	b.pending = append(b.pending, chunk[start:]...)
}

// Run pumps reads from r through a Buffer until the callback signals stop or
// the reader fails. A clean io.EOF before the stop signal is surfaced as
// io.ErrUnexpectedEOF since line-oriented sessions are expected to end on a
// terminator line, not on stream close.
func Run(r io.Reader, fn LineFunc) error {
	b := New(fn)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Feed(buf[:n])
			if b.Stopped() {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}
