package gitsync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

// newOriginRepo builds a bare origin seeded with one commit so that pull and
// push have a branch to work against.
func newOriginRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	seed := filepath.Join(root, "seed")

	runGit(t, root, "init", "--bare", "-b", "main", origin)
	runGit(t, root, "clone", origin, seed)
	require.NoError(t, os.WriteFile(filepath.Join(seed, "README.md"), []byte("targets\n"), 0644))
	runGit(t, seed, "add", "README.md")
	runGit(t, seed,
		"-c", "user.name=seed",
		"-c", "user.email=seed@test.invalid",
		"commit", "-m", "initial")
	runGit(t, seed, "push", "origin", "main")
	return origin
}

func TestInitClonesAndResets(t *testing.T) {
	gitOrSkip(t)
	ctx := context.Background()

	r := &Repo{
		Dir:         filepath.Join(t.TempDir(), "work"),
		URL:         newOriginRepo(t),
		AuthorName:  "moray bot",
		AuthorEmail: "moray@test.invalid",
	}
	require.NoError(t, r.Init(ctx))
	assert.FileExists(t, filepath.Join(r.Dir, "README.md"))

	// A dirty checkout is discarded on re-init.
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "README.md"), []byte("local edit\n"), 0644))
	require.NoError(t, r.Init(ctx))
	data, err := os.ReadFile(filepath.Join(r.Dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "targets\n", string(data))
}

func TestSyncTargetCommitsAndSkipsWhenClean(t *testing.T) {
	gitOrSkip(t)
	ctx := context.Background()

	origin := newOriginRepo(t)
	r := &Repo{
		Dir:         filepath.Join(t.TempDir(), "work"),
		URL:         origin,
		AuthorName:  "moray bot",
		AuthorEmail: "moray@test.invalid",
	}
	require.NoError(t, r.Init(ctx))

	require.NoError(t, r.WritePortsFile("b01lers", "1.2.3.4", 100, 104))
	require.NoError(t, r.SyncTarget(ctx, "b01lers", "Update target b01lers"))

	countAfterFirst := runGit(t, r.Dir, "rev-list", "--count", "HEAD")
	assert.Equal(t, "2", countAfterFirst)
	assert.Equal(t, countAfterFirst, runGit(t, origin, "rev-list", "--count", "HEAD"))

	// Identical content: the re-sync succeeds without creating a commit.
	require.NoError(t, r.WritePortsFile("b01lers", "1.2.3.4", 100, 104))
	require.NoError(t, r.SyncTarget(ctx, "b01lers", "Update target b01lers"))
	assert.Equal(t, countAfterFirst, runGit(t, r.Dir, "rev-list", "--count", "HEAD"))

	// Changed content commits again.
	require.NoError(t, r.WritePortsFile("b01lers", "1.2.3.4", 100, 105))
	require.NoError(t, r.SyncTarget(ctx, "b01lers", "Update target b01lers"))
	assert.Equal(t, "3", runGit(t, r.Dir, "rev-list", "--count", "HEAD"))
	assert.Equal(t, "3", runGit(t, origin, "rev-list", "--count", "HEAD"))
}

func TestSyncTargetLeavesOtherTargetsUnstaged(t *testing.T) {
	gitOrSkip(t)
	ctx := context.Background()

	r := &Repo{
		Dir:         filepath.Join(t.TempDir(), "work"),
		URL:         newOriginRepo(t),
		AuthorName:  "moray bot",
		AuthorEmail: "moray@test.invalid",
	}
	require.NoError(t, r.Init(ctx))

	require.NoError(t, r.WritePortsFile("alpha", "10.0.0.1", 80, 81))
	require.NoError(t, r.WritePortsFile("beta", "10.0.0.2", 90, 91))
	require.NoError(t, r.SyncTarget(ctx, "alpha", "Update target alpha"))

	shown := runGit(t, r.Dir, "show", "--stat", "--name-only", "HEAD")
	assert.Contains(t, shown, "alpha/"+PortsFileName)
	assert.NotContains(t, shown, "beta/"+PortsFileName)
}
