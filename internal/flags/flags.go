// Package flags maps raw flag strings to challenge submissions. Flags carry
// a scenario prefix inside the ectf{...} wrapper that identifies which
// challenge category they score against.
package flags

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/ctfd"
)

// Delimiter is the canonical flag wrapper prefix.
const Delimiter = "ectf{"

// Scenario is one named challenge category and its distinguishing flag
// prefix.
type Scenario struct {
	Name   string
	Prefix string
}

// Scenarios is the static scenario table, checked in order.
var Scenarios = []Scenario{
	{Name: "Expired Subscription", Prefix: "expired_"},
	{Name: "Pirated Subscription", Prefix: "pirate_"},
	{Name: "No Subscription", Prefix: "nosub_"},
	{Name: "Recording Playback", Prefix: "recording_"},
	{Name: "Pesky Neighbor", Prefix: "neighbor_"},
}

var prefixPattern = regexp.MustCompile(`^ectf\{([a-z]+_)`)

// WrapFlagForChallenge wraps a bare flag in the canonical form for the given
// challenge. Already-wrapped flags and challenges matching no scenario pass
// through unchanged; ambiguity is the caller's to tolerate, never an error.
func WrapFlagForChallenge(challengeName, flag string) string {
	if strings.Contains(flag, Delimiter) {
		return flag
	}
	for _, sc := range Scenarios {
		if strings.Contains(challengeName, sc.Name) {
			return fmt.Sprintf("ectf{%s%s}", sc.Prefix, flag)
		}
	}
	return flag
}

// scenarioForPrefix resolves a flag prefix back to its scenario name.
func scenarioForPrefix(prefix string) (string, bool) {
	for _, sc := range Scenarios {
		if sc.Prefix == prefix {
			return sc.Name, true
		}
	}
	return "", false
}

// ChallengeIndex locates challenges by display name.
type ChallengeIndex interface {
	FindByName(name string) (ctfd.Challenge, bool)
}

// Platform accepts flag submissions.
type Platform interface {
	SubmitFlag(ctx context.Context, challengeID int, flag string) (ctfd.SubmissionResult, error)
}

// Submitter routes extracted flags to the scoring platform. Duplicate
// submissions are not deduplicated here; the platform is the source of truth
// for "already solved".
type Submitter struct {
	Challenges ChallengeIndex
	Platform   Platform
}

// TrySubmit submits one flag for one team and renders the outcome as a
// human-readable string. It never fails: every branch, including pattern and
// lookup misses, yields a message an operator can read.
func (s *Submitter) TrySubmit(ctx context.Context, flag, team string) string {
	m := prefixPattern.FindStringSubmatch(flag)
	if m == nil {
		return fmt.Sprintf("Could not extract scenario prefix from `%s`.", flag)
	}

	scenario, ok := scenarioForPrefix(m[1])
	if !ok {
		return fmt.Sprintf("No scenario known for prefix `%s` (flag `%s`).", m[1], flag)
	}

	challName := fmt.Sprintf("%s - %s", scenario, team)
	chall, ok := s.Challenges.FindByName(challName)
	if !ok {
		return fmt.Sprintf("Found flag `%s`, but no challenge named `%s` exists.", flag, challName)
	}

	res, err := s.Platform.SubmitFlag(ctx, chall.ID, flag)
	if err != nil {
		log.WithFields(log.Fields{
			"challenge": challName,
			"error":     err,
		}).Warn("Flag submission failed")
		return fmt.Sprintf("Submission of `%s` to `%s` failed: %v", flag, challName, err)
	}

	return fmt.Sprintf("Submitted `%s` to `%s`: %s (%s)", flag, challName, res.Status, res.Message)
}
