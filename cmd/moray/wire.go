package main

import (
	"bytemomo/moray/internal/ctfd"
	"bytemomo/moray/internal/executor"
	"bytemomo/moray/internal/flags"
	"bytemomo/moray/internal/gitsync"
	"bytemomo/moray/internal/ingest"
	"bytemomo/moray/internal/notify"
	"bytemomo/moray/internal/recon"
	"bytemomo/moray/internal/store"
)

// platform bundles the challenge-platform client and its owned caches.
type platform struct {
	client     *ctfd.Client
	challenges *ctfd.ChallengeStore
	scores     *ctfd.ScoreStore
	submitter  *flags.Submitter
}

func newPlatform() *platform {
	client := ctfd.NewClient(cfg.CTFdURL, cfg.CTFdEmail, cfg.CTFdPassword, cfg.CTFdAPIKey)
	challenges := ctfd.NewChallengeStore(client)
	return &platform{
		client:     client,
		challenges: challenges,
		scores:     ctfd.NewScoreStore(client),
		submitter:  &flags.Submitter{Challenges: challenges, Platform: client},
	}
}

func newAttackClient(p *platform) *executor.Client {
	return &executor.Client{
		Addr:   cfg.ExecutorAddr,
		Secret: cfg.ExecutorSecret,
		Flags:  p.submitter,
	}
}

func newNotifier() notify.Notifier {
	if cfg.NotifyURL == "" {
		return notify.Logger{}
	}
	return notify.NewWebhook(cfg.NotifyURL)
}

func newHook() notify.IntegrationHook {
	if cfg.HookURL == "" {
		return notify.NopHook{}
	}
	return notify.NewWebhookHook(cfg.HookURL)
}

func newRepo() *gitsync.Repo {
	return &gitsync.Repo{
		Dir:         cfg.RepoDir,
		URL:         cfg.RepoURL,
		AuthorName:  cfg.GitAuthor,
		AuthorEmail: cfg.GitEmail,
	}
}

func newPipeline(p *platform, targets *store.Store, repo *gitsync.Repo) *ingest.Pipeline {
	pipeline := &ingest.Pipeline{
		Repo:          repo,
		Git:           &gitsync.Lock{},
		Targets:       targets,
		Extract:       ingest.CommandExtractor{Command: "moray-extract"},
		Attacks:       newAttackClient(p),
		Notifier:      newNotifier(),
		Hook:          newHook(),
		DefaultIP:     cfg.DefaultIP,
		AttackTimeout: cfg.AttackTimeout.Std(),
	}
	if cfg.ReconProbes {
		pipeline.Prober = recon.Prober{}
	}
	return pipeline
}
