package executor

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytemomo/moray/internal/testutil"
)

func init() {
	logrus.SetOutput(io.Discard)
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls []string
	delay time.Duration
}

func (r *recordingSubmitter) TrySubmit(_ context.Context, flag, team string) string {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, flag+"/"+team)
	return "submitted " + flag
}

// executorHandler scripts one attack-executor session: consume the auth
// preamble, ack, consume the params, then stream the given chunks.
func executorHandler(t *testing.T, wantPreamble, wantParams string, chunks []string) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 1024)

		n, err := conn.Read(buf)
		if err != nil {
			t.Errorf("read preamble: %v", err)
			return
		}
		if got := string(buf[:n]); got != wantPreamble {
			t.Errorf("preamble = %q, want %q", got, wantPreamble)
		}

		if _, err := conn.Write([]byte("ok")); err != nil {
			return
		}

		n, err = conn.Read(buf)
		if err != nil {
			t.Errorf("read params: %v", err)
			return
		}
		if got := string(buf[:n]); got != wantParams {
			t.Errorf("params = %q, want %q", got, wantParams)
		}

		for _, chunk := range chunks {
			if _, err := conn.Write([]byte(chunk)); err != nil {
				return
			}
			// Separate writes so the client sees distinct chunks.
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestRunTargetEndToEnd(t *testing.T) {
	sub := &recordingSubmitter{}
	srv := testutil.NewMockTCPServer(executorHandler(t,
		"s3cret|attack-target", "ectf",
		[]string{"line1\n", "ectf{nosub_abc}\n", "%*&done\n"},
	))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := &Client{Addr: srv.Addr(), Secret: "s3cret", Flags: sub}
	res, err := c.RunTarget(context.Background(), "ectf")
	require.NoError(t, err)

	assert.Equal(t, "line1\nectf{nosub_abc}\n%*&done\n", res.Transcript)
	require.Len(t, res.Alerts, 1)
	assert.Contains(t, res.Alerts[0], "abc")
	assert.Equal(t, []string{"ectf{nosub_abc}/ectf"}, sub.calls)
}

func TestRunTargetVulnerabilityAlert(t *testing.T) {
	srv := testutil.NewMockTCPServer(executorHandler(t,
		"s|attack-target", "team",
		[]string{"POTENTIAL VULNERABILITY: stack smash in boot\n", "%*&\n"},
	))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := &Client{Addr: srv.Addr(), Secret: "s", Flags: &recordingSubmitter{}}
	res, err := c.RunTarget(context.Background(), "team")
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "Potential vulnerability: stack smash in boot", res.Alerts[0])
	assert.True(t, strings.HasSuffix(res.Transcript, "%*&\n"))
}

func TestRunTargetSplitAcrossChunks(t *testing.T) {
	// Flag line arrives split mid-flag across chunk boundaries.
	srv := testutil.NewMockTCPServer(executorHandler(t,
		"s|attack-target", "team",
		[]string{"ectf{no", "sub_xyz}\npadding\n", "%*&fin\n"},
	))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	sub := &recordingSubmitter{}
	c := &Client{Addr: srv.Addr(), Secret: "s", Flags: sub}
	res, err := c.RunTarget(context.Background(), "team")
	require.NoError(t, err)

	assert.Equal(t, "ectf{nosub_xyz}\npadding\n%*&fin\n", res.Transcript)
	assert.Equal(t, []string{"ectf{nosub_xyz}/team"}, sub.calls)
}

func TestRunScriptJoinsInflightSubmissions(t *testing.T) {
	// Slow submissions must all land in alerts before the session resolves,
	// even though the sentinel arrives while they are in flight.
	sub := &recordingSubmitter{delay: 50 * time.Millisecond}
	srv := testutil.NewMockTCPServer(executorHandler(t,
		"s|attack-script", "team|https://example.test/x.py",
		[]string{"ectf{nosub_one}\n", "ectf{pirate_two}\n", "%*&done\n"},
	))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := &Client{Addr: srv.Addr(), Secret: "s", Flags: sub}
	res, err := c.RunScript(context.Background(), "team", "https://example.test/x.py")
	require.NoError(t, err)

	assert.Len(t, res.Alerts, 2)
	assert.ElementsMatch(t,
		[]string{"submitted ectf{nosub_one}", "submitted ectf{pirate_two}"},
		res.Alerts)
	assert.Equal(t, "ectf{nosub_one}\nectf{pirate_two}\n%*&done\n", res.Transcript)
}

func TestRunTargetConnectFailure(t *testing.T) {
	c := &Client{Addr: "127.0.0.1:1", Secret: "s", Flags: &recordingSubmitter{}}
	_, err := c.RunTarget(context.Background(), "team")
	assert.Error(t, err)
}

func TestRunTargetContextCancel(t *testing.T) {
	// Server that never sends the sentinel.
	srv := testutil.NewMockTCPServer(func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write([]byte("ok"))
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write([]byte("stalling\n"))
		io.Copy(io.Discard, conn)
	})
	require.NoError(t, srv.Start())
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := &Client{Addr: srv.Addr(), Secret: "s", Flags: &recordingSubmitter{}}
	_, err := c.RunTarget(ctx, "team")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
