// Package executor drives one session of the remote attack executor over its
// line-oriented TCP protocol.
//
// Handshake: connect, send "secret|method", wait for a single ack read
// (content ignored), send pipe-joined parameters. The server then streams
// newline-delimited text until a line starting with the %*& sentinel.
package executor

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/domain"
	"bytemomo/moray/internal/linebuf"
)

// Sentinel marks the final line of a session. Every line, the sentinel
// included, is preserved verbatim in the transcript.
const Sentinel = "%*&"

var (
	flagPattern = regexp.MustCompile(`ectf\{.+?\}`)
	vulnPattern = regexp.MustCompile(`POTENTIAL VULNERABILITY: (.+)`)
)

// FlagSubmitter submits one extracted flag for a team and returns a
// human-readable outcome string. Implementations never fail; every branch
// renders as a message.
type FlagSubmitter interface {
	TrySubmit(ctx context.Context, flag, team string) string
}

// Result is one completed session: the full transcript (every received line
// with trailing newlines) and the ordered human-readable findings.
type Result struct {
	Transcript string
	Alerts     []string
}

// Client opens attack-executor sessions. The zero value is unusable; Addr
// and Secret must match the executor deployment.
type Client struct {
	Addr   string
	Secret string
	Flags  FlagSubmitter
}

// RunTarget executes the stock attack suite against one team's design.
// Flag submissions are awaited inline so submission outcomes appear in
// alerts in strict line order.
func (c *Client) RunTarget(ctx context.Context, team string) (Result, error) {
	return c.run(ctx, domain.MethodAttackTarget, team, []string{team}, false)
}

// RunScript executes a custom attack script against one team's design.
// Flag submissions run concurrently with line processing and are joined
// before the session resolves, trading alert ordering for throughput.
func (c *Client) RunScript(ctx context.Context, team, scriptURL string) (Result, error) {
	return c.run(ctx, domain.MethodAttackScript, team, []string{team, scriptURL}, true)
}

func (c *Client) run(ctx context.Context, method domain.AttackMethod, team string, params []string, async bool) (Result, error) {
	l := log.WithFields(log.Fields{
		"executor": c.Addr,
		"method":   method,
		"team":     team,
	})

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Result{}, fmt.Errorf("dial attack executor: %w", err)
	}
	defer conn.Close()

	// Caller cancellation unblocks the read loop by poisoning the socket.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.handshake(conn, method, params); err != nil {
		return Result{}, err
	}
	l.Debug("Attack session handshake complete")

	var (
		transcript strings.Builder
		mu         sync.Mutex
		alerts     []string
		inflight   sync.WaitGroup
	)
	pushAlert := func(msg string) {
		mu.Lock()
		alerts = append(alerts, msg)
		mu.Unlock()
	}

	err = linebuf.Run(conn, func(line string) bool {
		transcript.WriteString(line)
		transcript.WriteByte('\n')

		if strings.HasPrefix(line, Sentinel) {
			return true
		}

		if flag := flagPattern.FindString(line); flag != "" {
			if async {
				inflight.Add(1)
				go func() {
					defer inflight.Done()
					pushAlert(c.Flags.TrySubmit(ctx, flag, team))
				}()
			} else {
				pushAlert(c.Flags.TrySubmit(ctx, flag, team))
			}
			return false
		}

		if m := vulnPattern.FindStringSubmatch(line); m != nil {
			pushAlert("Potential vulnerability: " + m[1])
		}
		return false
	})

	// No submission is dropped at session end.
	inflight.Wait()

	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("attack session read: %w", err)
	}

	l.WithField("alerts", len(alerts)).Info("Attack session terminated")
	return Result{Transcript: transcript.String(), Alerts: alerts}, nil
}

func (c *Client) handshake(conn net.Conn, method domain.AttackMethod, params []string) error {
	if _, err := fmt.Fprintf(conn, "%s|%s", c.Secret, method); err != nil {
		return fmt.Errorf("send auth preamble: %w", err)
	}

	// One inbound data event acks the preamble; its content is ignored.
	ack := make([]byte, 256)
	if _, err := conn.Read(ack); err != nil {
		return fmt.Errorf("await executor ack: %w", err)
	}

	if _, err := conn.Write([]byte(strings.Join(params, "|"))); err != nil {
		return fmt.Errorf("send parameters: %w", err)
	}
	return nil
}
