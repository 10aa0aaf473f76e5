package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"bytemomo/moray/internal/domain"
)

// CommandExtractor delegates package extraction to an external tool invoked
// as `<command> <package-url> <dest-dir>`. Archive formats are entirely the
// tool's concern.
type CommandExtractor struct {
	Command string
}

func (e CommandExtractor) Extract(ctx context.Context, ev domain.PackageEvent, destDir string) error {
	if ev.PackageURL == "" {
		return fmt.Errorf("event %q carries no package URL", ev.FileName)
	}

	cmd := exec.CommandContext(ctx, e.Command, ev.PackageURL, destDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", e.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
