package linebuf

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(stopAt string) (*[]string, LineFunc) {
	lines := &[]string{}
	return lines, func(line string) bool {
		*lines = append(*lines, line)
		return line == stopAt
	}
}

func TestFeedSplitsLines(t *testing.T) {
	lines, fn := collect("")
	b := New(fn)

	b.Feed([]byte("alpha\nbeta\ngam"))
	b.Feed([]byte("ma\n"))
	b.Feed([]byte("delta\n"))

	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, *lines)
}

func TestChunkBoundariesDoNotChangeLines(t *testing.T) {
	input := []byte("one\ntwo two\n\nthree%*&\nfour\n")
	want := []string{"one", "two two", "", "three%*&", "four"}

	// Every possible single split point must reconstruct identical lines.
	for cut := 0; cut <= len(input); cut++ {
		lines, fn := collect("~never~")
		b := New(fn)
		b.Feed(input[:cut])
		b.Feed(input[cut:])
		require.Equalf(t, want, *lines, "split at byte %d", cut)
	}

	// Byte-at-a-time delivery as the degenerate case.
	lines, fn := collect("~never~")
	b := New(fn)
	for _, c := range input {
		b.Feed([]byte{c})
	}
	assert.Equal(t, want, *lines)
}

func TestTrailingFragmentHeldUntilCompleted(t *testing.T) {
	lines, fn := collect("~never~")
	b := New(fn)

	b.Feed([]byte("partial"))
	assert.Empty(t, *lines, "incomplete line must not be delivered")

	b.Feed([]byte(" line\nnext\n"))
	assert.Equal(t, []string{"partial line", "next"}, *lines)
}

func TestStopSignalDetaches(t *testing.T) {
	lines, fn := collect("stop")
	b := New(fn)

	b.Feed([]byte("a\nstop\nb\nc\n"))
	assert.Equal(t, []string{"a", "stop"}, *lines)
	assert.True(t, b.Stopped())

	// Further chunks are ignored once detached.
	b.Feed([]byte("d\n"))
	assert.Equal(t, []string{"a", "stop"}, *lines)
}

func TestRunStopsOnSignal(t *testing.T) {
	r := bytes.NewReader([]byte("x\ny\n%*&done\nignored\n"))

	var lines []string
	err := Run(r, func(line string) bool {
		lines = append(lines, line)
		return line == "%*&done"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "%*&done"}, lines)
}

func TestRunReportsEarlyEOF(t *testing.T) {
	r := bytes.NewReader([]byte("x\ny\n"))

	err := Run(r, func(string) bool { return false })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
