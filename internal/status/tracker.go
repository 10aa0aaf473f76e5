// Package status tracks the build/test pipeline state reported by the CI
// webhook and turns it into notifications: a debounced rolling summary plus
// immediate failure reports.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/domain"
	"bytemomo/moray/internal/notify"
)

// Tracker consumes BuildStatusUpdate events. Rapid update bursts are
// coalesced: the summary notification fires only after Window of quiet, and
// only the most recent state is sent, since only the last state matters for
// display. Failure notifications are never debounced.
type Tracker struct {
	Notifier   notify.Notifier
	RunURLBase string
	Window     time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	last    *domain.BuildStatusUpdate
}

func NewTracker(n notify.Notifier, runURLBase string, window time.Duration) *Tracker {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &Tracker{Notifier: n, RunURLBase: runURLBase, Window: window}
}

// Apply ingests one update: failure classification first, then the debounced
// summary refresh.
func (t *Tracker) Apply(ctx context.Context, u domain.BuildStatusUpdate) error {
	if err := validate(u); err != nil {
		return err
	}

	// Only terminal BUILD/TEST failures get their own notification; every
	// other update just refreshes the summary.
	if isFailure(u) {
		commit := u.Update.State.Commit
		runURL := t.RunURLBase + commit.RunID
		if err := t.Notifier.SendBuildFailure(ctx, commit, runURL); err != nil {
			log.WithError(err).Error("Could not deliver build failure notification")
		}
	}

	t.mu.Lock()
	t.last = &u
	t.pending = Render(u)
	if t.timer == nil {
		t.timer = time.AfterFunc(t.Window, t.flush)
	} else {
		t.timer.Reset(t.Window)
	}
	t.mu.Unlock()

	return nil
}

func (t *Tracker) flush() {
	t.mu.Lock()
	rendered := t.pending
	t.timer = nil
	t.mu.Unlock()

	if rendered == "" {
		return
	}
	if err := t.Notifier.SendStatusSummary(context.Background(), rendered); err != nil {
		log.WithError(err).Error("Could not deliver status summary")
	}
}

// Flush sends any pending summary immediately, for shutdown.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	t.flush()
}

func validate(u domain.BuildStatusUpdate) error {
	switch u.Update.Kind {
	case domain.UpdateBuild, domain.UpdateTest:
		if u.Update.State == nil {
			return fmt.Errorf("%s update carries no action state", u.Update.Kind)
		}
	case domain.UpdateQueue, "":
	default:
		return fmt.Errorf("unknown update kind %q", u.Update.Kind)
	}
	return nil
}

func isFailure(u domain.BuildStatusUpdate) bool {
	if u.Update.Kind != domain.UpdateBuild && u.Update.Kind != domain.UpdateTest {
		return false
	}
	return u.Update.State != nil && u.Update.State.Result == domain.ResultFailed
}

// Render produces the plain-text pipeline summary: active build line, queue
// lines, per-node lines.
func Render(u domain.BuildStatusUpdate) string {
	var b strings.Builder

	b.WriteString("Secure design build status\n")
	if u.Build.Active != nil {
		fmt.Fprintf(&b, "Status: %s\n", u.Build.Active.Result)
		fmt.Fprintf(&b, "Building: %s\n", formatAction(*u.Build.Active))
	} else {
		b.WriteString("Status: N/A\n")
		b.WriteString("Building: no commits loaded\n")
	}

	b.WriteString("Queued:\n")
	if len(u.Build.Queue) == 0 {
		b.WriteString("  (no commits queued)\n")
	}
	for i, a := range u.Build.Queue {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, formatAction(a))
	}

	b.WriteString("Nodes:\n")
	for _, pi := range u.Test.ActiveTests {
		fmt.Fprintf(&b, "  %s\n", formatNode(pi))
	}

	return b.String()
}

func formatAction(a domain.ActionResult) string {
	return fmt.Sprintf("[%s] %s: %s (@%s, run %s, since %s)",
		a.Result,
		a.Commit.ShortHash(),
		a.Commit.Name,
		a.Commit.Author,
		a.Commit.RunID,
		time.Unix(a.ActionStart, 0).UTC().Format(time.RFC3339),
	)
}

func formatNode(pi domain.PiStatus) string {
	switch {
	case pi.Locked:
		return fmt.Sprintf("%s: locked by user", pi.IP)
	case pi.Active == nil:
		return fmt.Sprintf("%s: no images loaded", pi.IP)
	default:
		return fmt.Sprintf("%s: %s", pi.IP, formatAction(*pi.Active))
	}
}
