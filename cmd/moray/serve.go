package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bytemomo/moray/internal/gitsync"
	"bytemomo/moray/internal/server"
	"bytemomo/moray/internal/status"
	"bytemomo/moray/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and background refresh loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		ctx := cmd.Context()

		targets, err := store.New(cfg.DBPath())
		if err != nil {
			return err
		}
		defer targets.Close()

		p := newPlatform()
		repo := newRepo()
		pipeline := newPipeline(p, targets, repo)
		notifier := newNotifier()
		tracker := status.NewTracker(notifier, cfg.RunURLBase, cfg.DebounceWindow.Std())
		defer tracker.Flush()

		if cfg.RepoURL != "" {
			if err := pipeline.Git.With(ctx, gitsync.LockGit, func() error {
				return repo.Init(ctx)
			}); err != nil {
				return err
			}
		}

		// Prime caches; a cold platform is not fatal at startup.
		if err := p.challenges.Refresh(ctx); err != nil {
			log.WithError(err).Warn("Could not prime challenge cache")
		}
		if err := p.scores.Refresh(ctx, true); err != nil {
			log.WithError(err).Warn("Could not prime scoreboard cache")
		}

		go refreshLoop(ctx, p, notifier)

		return server.New(pipeline, tracker).ListenAndServe(cfg.ListenAddr)
	},
}

// refreshLoop keeps the challenge and scoreboard caches warm and emits a
// daily scoreboard diff report.
func refreshLoop(ctx context.Context, p *platform, notifier interface {
	SendReport(ctx context.Context, title string, lines []string) error
}) {
	refresh := time.NewTicker(cfg.RefreshInterval.Std())
	daily := time.NewTicker(24 * time.Hour)
	defer refresh.Stop()
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := p.challenges.Refresh(ctx); err != nil {
				log.WithError(err).Warn("Challenge refresh failed")
			}
			if err := p.scores.Refresh(ctx, false); err != nil {
				log.WithError(err).Warn("Scoreboard refresh failed")
			}
		case <-daily.C:
			diffs := p.scores.Diffs()
			if len(diffs) == 0 {
				diffs = []string{"No scoreboard changes detected."}
			}
			title := "Scoreboard report for " + time.Now().Format("2006-01-02")
			if err := notifier.SendReport(ctx, title, diffs); err != nil {
				log.WithError(err).Warn("Could not deliver scoreboard report")
			}
			// Start the next day's diffs from the current state.
			if err := p.scores.Refresh(ctx, true); err != nil {
				log.WithError(err).Warn("Scoreboard refresh failed")
			}
		}
	}
}
