// Package ingest turns inbound package events into synchronized, attacked
// and notified targets.
package ingest

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bytemomo/moray/internal/domain"
	"bytemomo/moray/internal/executor"
	"bytemomo/moray/internal/gitsync"
	"bytemomo/moray/internal/notify"
	"bytemomo/moray/internal/recon"
)

// Extractor is the external file-extraction service: it materializes the
// event's package into destDir. Archive handling lives entirely behind it.
type Extractor interface {
	Extract(ctx context.Context, ev domain.PackageEvent, destDir string) error
}

// AttackRunner starts attack-executor sessions.
type AttackRunner interface {
	RunTarget(ctx context.Context, team string) (executor.Result, error)
}

// TargetStore persists target records across ingestions.
type TargetStore interface {
	UpsertTarget(ctx context.Context, t domain.Target) (existed bool, err error)
	GetTarget(ctx context.Context, name string) (domain.Target, bool, error)
}

// Prober verifies a target endpoint after ingestion.
type Prober interface {
	Probe(ctx context.Context, t domain.Target) (recon.Report, error)
}

// RepoStore is the git-backed target store surface the pipeline mutates.
// Implemented by gitsync.Repo.
type RepoStore interface {
	TargetDir(name string) string
	SyncTarget(ctx context.Context, name, message string) error
	WritePortsFile(name, ip string, portLow, portHigh int) error
	ReadPortsFile(name string) (ip string, portLow, portHigh int, ok bool)
}

// Pipeline orchestrates one ingestion: unpack, metadata, git sync under the
// shared lock, attack dispatch, notifications. Side effects for one target
// name are fully serialized; different targets run concurrently.
type Pipeline struct {
	Repo     RepoStore
	Git      *gitsync.Lock
	Targets  TargetStore
	Extract  Extractor
	Attacks  AttackRunner
	Notifier notify.Notifier
	Hook     notify.IntegrationHook
	// Prober is optional; nil disables endpoint verification.
	Prober Prober

	DefaultIP     string
	AttackTimeout time.Duration

	// Serializes all side effects per target name, not just the git branch,
	// so overlapping events for the same target cannot interleave.
	targetLocks gitsync.Lock
}

var (
	namePattern  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]+`)
	ipPattern    = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)
	portsPattern = regexp.MustCompile(`\b(\d{2,5})\s*(?:-|to|through)\s*(\d{2,5})\b`)
)

// Ingest processes one inbound package event end to end.
func (p *Pipeline) Ingest(ctx context.Context, ev domain.PackageEvent) (domain.Target, error) {
	name := resolveName(ev)
	if name == "" {
		return domain.Target{}, fmt.Errorf("event names no target (file %q, text %q)", ev.FileName, ev.Text)
	}

	var target domain.Target
	err := p.targetLocks.With(ctx, "target/"+name, func() error {
		var err error
		target, err = p.ingestLocked(ctx, name, ev)
		return err
	})
	return target, err
}

func (p *Pipeline) ingestLocked(ctx context.Context, name string, ev domain.PackageEvent) (domain.Target, error) {
	l := log.WithField("target", name)
	l.Info("Ingesting package event")

	target := domain.Target{
		Name:        name,
		StoragePath: p.Repo.TargetDir(name),
	}
	target.IP, target.PortLow, target.PortHigh = parseEndpoint(ev.Text, p.DefaultIP)

	// An unrelated edit must not erase previously known endpoint info.
	endpointFresh := target.PortLow > 0
	if !endpointFresh {
		if ip, lo, hi, ok := p.Repo.ReadPortsFile(name); ok {
			target.IP, target.PortLow, target.PortHigh = ip, lo, hi
			l.WithField("ports", fmt.Sprintf("%d-%d", lo, hi)).Info("Recovered endpoint from prior metadata")
		}
	}

	if ev.HasPackage() {
		if err := os.RemoveAll(target.StoragePath); err != nil {
			return target, fmt.Errorf("remove stale target dir: %w", err)
		}
		if err := p.Extract.Extract(ctx, ev, target.StoragePath); err != nil {
			return target, fmt.Errorf("extract package: %w", err)
		}
		l.Info("Extracted package")
	}

	if target.HasEndpoint() {
		if err := p.Repo.WritePortsFile(name, target.IP, target.PortLow, target.PortHigh); err != nil {
			return target, fmt.Errorf("write ports file: %w", err)
		}
	}

	// The remaining branches are independent: a dead attack executor or
	// integration endpoint never blocks git sync, and vice versa.
	handleCh := make(chan notify.Handle, 1)
	var g errgroup.Group

	g.Go(func() error { return p.syncAndNotify(ctx, target, handleCh) })

	if ev.HasPackage() && target.HasEndpoint() {
		g.Go(func() error {
			p.runAttack(ctx, target, handleCh)
			return nil
		})
	}

	if endpointFresh && target.HasEndpoint() {
		g.Go(func() error {
			p.secondaryIntegrations(ctx, target)
			return nil
		})
	}

	return target, g.Wait()
}

// syncAndNotify is the git branch: commit and push the target's directory
// under the shared critical section, then announce it.
func (p *Pipeline) syncAndNotify(ctx context.Context, target domain.Target, handleCh chan<- notify.Handle) error {
	err := p.Git.With(ctx, gitsync.LockGit, func() error {
		return p.Repo.SyncTarget(ctx, target.Name, "Update target "+target.Name)
	})
	if err != nil {
		return fmt.Errorf("sync target %s: %w", target.Name, err)
	}

	existed, err := p.Targets.UpsertTarget(ctx, target)
	if err != nil {
		return fmt.Errorf("record target %s: %w", target.Name, err)
	}

	handle, err := p.Notifier.NotifyTarget(ctx, target, existed)
	if err != nil {
		log.WithError(err).WithField("target", target.Name).Error("Could not announce target")
		return nil
	}
	handleCh <- handle
	return nil
}

// runAttack is the attack branch. Failures are swallowed: a dead attack
// executor produces no attack-result notification and nothing else.
func (p *Pipeline) runAttack(ctx context.Context, target domain.Target, handleCh <-chan notify.Handle) {
	l := log.WithField("target", target.Name)

	if p.AttackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.AttackTimeout)
		defer cancel()
	}

	res, err := p.Attacks.RunTarget(ctx, target.Name)
	if err != nil {
		l.WithError(err).Warn("Attack session failed")
		return
	}

	handle := notify.Handle(target.Name)
	select {
	case h := <-handleCh:
		handle = h
	default:
	}

	if err := p.Notifier.SendAttackResult(ctx, handle, res.Transcript, res.Alerts); err != nil {
		l.WithError(err).Error("Could not deliver attack result")
	}
}

func (p *Pipeline) secondaryIntegrations(ctx context.Context, target domain.Target) {
	l := log.WithField("target", target.Name)

	if err := p.Hook.Trigger(ctx, target.Name); err != nil {
		l.WithError(err).Warn("Integration hook failed")
	}

	if p.Prober != nil {
		report, err := p.Prober.Probe(ctx, target)
		if err != nil {
			l.WithError(err).Warn("Endpoint probe failed")
		} else if !report.Reachable {
			l.Warn("Declared endpoint appears unreachable")
		}
	}
}

// resolveName derives the target key from the package filename (fixed .zip
// suffix stripped) or, without a package, from the first name-shaped token
// of the free text.
func resolveName(ev domain.PackageEvent) string {
	if ev.FileName != "" {
		return domain.NormalizeName(strings.TrimSuffix(ev.FileName, ".zip"))
	}
	if m := namePattern.FindString(ev.Text); m != "" {
		return domain.NormalizeName(m)
	}
	return ""
}

// parseEndpoint best-effort extracts "ip" and "low-high" port shapes from
// free text. The default IP stands in when the text names none; absent ports
// stay zero.
func parseEndpoint(text, defaultIP string) (ip string, portLow, portHigh int) {
	ip = defaultIP
	if m := ipPattern.FindStringSubmatch(text); m != nil {
		ip = m[1]
	}
	if m := portsPattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if lo > 0 && hi >= lo {
			portLow, portHigh = lo, hi
		}
	}
	return ip, portLow, portHigh
}
