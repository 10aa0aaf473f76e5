package gitsync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// PortsFileName is the per-target metadata file consumed by the downstream
// build system.
const PortsFileName = "ports.txt"

// Repo is the shared git-backed target store. All mutating sequences must
// run inside the LockGit critical section; Repo itself does not lock.
type Repo struct {
	Dir         string
	URL         string
	AuthorName  string
	AuthorEmail string
}

// Init clones the repository, or hard-resets an existing checkout to the
// remote state.
func (r *Repo) Init(ctx context.Context) error {
	log.WithField("dir", r.Dir).Info("Initializing targets repository")

	if _, err := os.Stat(filepath.Join(r.Dir, ".git")); err == nil {
		if _, err := r.git(ctx, "fetch", "origin"); err != nil {
			return err
		}
		_, err := r.git(ctx, "reset", "--hard", "origin")
		return err
	}

	cmd := exec.CommandContext(ctx, "git", "clone", r.URL, r.Dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// TargetDir returns the storage directory for a target name.
func (r *Repo) TargetDir(name string) string {
	return filepath.Join(r.Dir, name)
}

// SyncTarget stages the target's directory and commits and pushes it. When
// staging produces no change the commit and push are skipped; a no-change
// re-ingestion is a successful no-op.
func (r *Repo) SyncTarget(ctx context.Context, name, message string) error {
	if _, err := r.git(ctx, "pull", "--ff-only"); err != nil {
		return err
	}
	if _, err := r.git(ctx, "add", name+"/"); err != nil {
		return err
	}

	status, err := r.git(ctx, "status", "--porcelain", "--", name+"/")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		log.WithField("target", name).Info("No repository changes to commit")
		return nil
	}

	if _, err := r.git(ctx,
		"-c", "user.name="+r.AuthorName,
		"-c", "user.email="+r.AuthorEmail,
		"commit", "-m", message,
	); err != nil {
		return err
	}
	if _, err := r.git(ctx, "push"); err != nil {
		return err
	}

	log.WithFields(log.Fields{"target": name, "message": message}).Info("Pushed target to repository")
	return nil
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// WritePortsFile writes the target's endpoint metadata: the IP followed by
// every port in the inclusive range, space-separated, one line.
func (r *Repo) WritePortsFile(name, ip string, portLow, portHigh int) error {
	parts := make([]string, 0, portHigh-portLow+2)
	parts = append(parts, ip)
	for p := portLow; p <= portHigh; p++ {
		parts = append(parts, strconv.Itoa(p))
	}

	dir := r.TargetDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, PortsFileName), []byte(strings.Join(parts, " ")), 0644)
}

// ReadPortsFile recovers previously written endpoint metadata. A missing or
// unparsable file reads as "no prior endpoint"; the two cases are not
// distinguished.
func (r *Repo) ReadPortsFile(name string) (ip string, portLow, portHigh int, ok bool) {
	data, err := os.ReadFile(filepath.Join(r.TargetDir(name), PortsFileName))
	if err != nil {
		return "", 0, 0, false
	}

	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return "", 0, 0, false
	}

	lo, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, 0, false
	}
	hi, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return "", 0, 0, false
	}
	return fields[0], lo, hi, true
}
