// Package notify is the narrow interface to the external notification
// layer. The core reports events through it; all chat-platform rendering
// lives on the other side.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/domain"
)

// Handle identifies a target announcement so follow-up attack results land
// with it.
type Handle string

// Notifier is the outbound notification sink.
type Notifier interface {
	// NotifyTarget announces a new or updated target and returns a handle
	// for follow-ups. updated distinguishes re-ingestion from first sight.
	NotifyTarget(ctx context.Context, t domain.Target, updated bool) (Handle, error)
	// SendAttackResult delivers a finished attack session: the transcript as
	// an attachment plus the inline alert summary.
	SendAttackResult(ctx context.Context, h Handle, transcript string, alerts []string) error
	// SendBuildFailure reports one failed build/test action.
	SendBuildFailure(ctx context.Context, commit domain.Commit, runURL string) error
	// SendStatusSummary refreshes the rendered pipeline summary.
	SendStatusSummary(ctx context.Context, rendered string) error
	// SendReport delivers a titled list report (scoreboard diffs).
	SendReport(ctx context.Context, title string, lines []string) error
}

// Webhook posts notification events as JSON to a single endpoint.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}
}

type event struct {
	// ID uniquely identifies one delivery so the sink can dedupe retries.
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Handle    string         `json:"handle,omitempty"`
	Target    *domain.Target `json:"target,omitempty"`
	Updated   bool           `json:"updated,omitempty"`
	Text      string         `json:"text,omitempty"`
	Lines     []string       `json:"lines,omitempty"`
	Commit    *domain.Commit `json:"commit,omitempty"`
	RunURL    string         `json:"run_url,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (w *Webhook) post(ctx context.Context, ev event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Timestamp = time.Now().UTC()
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", ev.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify %s: unexpected status %d", ev.Kind, resp.StatusCode)
	}
	return nil
}

// NotifyTarget announces the target. The event ID doubles as the handle so
// the attack-result follow-up can reference the announcement.
func (w *Webhook) NotifyTarget(ctx context.Context, t domain.Target, updated bool) (Handle, error) {
	id := uuid.NewString()
	if err := w.post(ctx, event{ID: id, Kind: "target", Target: &t, Updated: updated}); err != nil {
		return Handle(t.Name), err
	}
	return Handle(id), nil
}

func (w *Webhook) SendAttackResult(ctx context.Context, h Handle, transcript string, alerts []string) error {
	return w.post(ctx, event{Kind: "attack_result", Handle: string(h), Text: transcript, Lines: alerts})
}

func (w *Webhook) SendBuildFailure(ctx context.Context, commit domain.Commit, runURL string) error {
	return w.post(ctx, event{Kind: "build_failure", Commit: &commit, RunURL: runURL})
}

func (w *Webhook) SendStatusSummary(ctx context.Context, rendered string) error {
	return w.post(ctx, event{Kind: "status_summary", Text: rendered})
}

func (w *Webhook) SendReport(ctx context.Context, title string, lines []string) error {
	return w.post(ctx, event{Kind: "report", Text: title, Lines: lines})
}

// Logger is a sink that only logs, for running without a configured
// notification endpoint.
type Logger struct{}

func (Logger) NotifyTarget(_ context.Context, t domain.Target, updated bool) (Handle, error) {
	log.WithFields(log.Fields{"target": t.String(), "updated": updated}).Info("Target notification")
	return Handle(t.Name), nil
}

func (Logger) SendAttackResult(_ context.Context, h Handle, transcript string, alerts []string) error {
	log.WithFields(log.Fields{
		"handle":     string(h),
		"alerts":     len(alerts),
		"transcript": len(transcript),
	}).Info("Attack result")
	return nil
}

func (Logger) SendBuildFailure(_ context.Context, commit domain.Commit, runURL string) error {
	log.WithFields(log.Fields{"commit": commit.ShortHash(), "run": runURL}).Warn("Build failure")
	return nil
}

func (Logger) SendStatusSummary(context.Context, string) error { return nil }

func (Logger) SendReport(_ context.Context, title string, lines []string) error {
	log.WithFields(log.Fields{"title": title, "lines": len(lines)}).Info("Report")
	return nil
}
