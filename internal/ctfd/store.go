package ctfd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ChallengeSource abstracts the platform reads the stores depend on.
type ChallengeSource interface {
	GetChallenges(ctx context.Context) ([]Challenge, error)
	GetScoreboard(ctx context.Context) ([]ScoreboardEntry, error)
}

// ChallengeStore is an owned, refreshable cache of the platform's challenge
// list. Inject it wherever challenge lookups are needed instead of fetching
// ad hoc.
type ChallengeStore struct {
	src ChallengeSource

	mu         sync.RWMutex
	challenges []Challenge
	fetchedAt  time.Time
}

func NewChallengeStore(src ChallengeSource) *ChallengeStore {
	return &ChallengeStore{src: src}
}

// Refresh replaces the cached list with the platform's current state.
func (s *ChallengeStore) Refresh(ctx context.Context) error {
	challenges, err := s.src.GetChallenges(ctx)
	if err != nil {
		return fmt.Errorf("refresh challenges: %w", err)
	}

	s.mu.Lock()
	s.challenges = challenges
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	log.WithField("count", len(challenges)).Debug("Refreshed challenge cache")
	return nil
}

// Snapshot returns a copy of the cached challenge list.
func (s *ChallengeStore) Snapshot() []Challenge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Challenge, len(s.challenges))
	copy(out, s.challenges)
	return out
}

// FindByName locates a challenge by display name, case-insensitively.
func (s *ChallengeStore) FindByName(name string) (Challenge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.challenges {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Challenge{}, false
}

// FindByID locates a challenge by platform ID.
func (s *ChallengeStore) FindByID(id int) (Challenge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.challenges {
		if c.ID == id {
			return c, true
		}
	}
	return Challenge{}, false
}

// Unsolved returns the unsolved challenges sorted by solves descending, then
// value descending.
func (s *ChallengeStore) Unsolved() []Challenge {
	var out []Challenge
	for _, c := range s.Snapshot() {
		if !c.SolvedByMe {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Solves != out[j].Solves {
			return out[i].Solves > out[j].Solves
		}
		return out[i].Value > out[j].Value
	})
	return out
}

// TeamScore is one scoreboard row with its previous observation retained for
// diff reporting.
type TeamScore struct {
	Name   string
	Rank   int
	Points int
	Href   string

	PrevRank   int
	PrevPoints int
}

// ScoreStore caches the scoreboard and tracks changes between refreshes.
type ScoreStore struct {
	src ChallengeSource

	mu          sync.RWMutex
	teams       map[string]TeamScore
	top         []string
	lastUpdated time.Time
}

func NewScoreStore(src ChallengeSource) *ScoreStore {
	return &ScoreStore{src: src, teams: map[string]TeamScore{}}
}

// Refresh fetches the scoreboard. With resetDiffs, the previous observation
// is overwritten so the next Diffs call starts from the current state.
func (s *ScoreStore) Refresh(ctx context.Context, resetDiffs bool) error {
	entries, err := s.src.GetScoreboard(ctx)
	if err != nil {
		return fmt.Errorf("refresh scoreboard: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.top = s.top[:0]
	for _, e := range entries {
		prev, seen := s.teams[e.Name]
		ts := TeamScore{
			Name:       e.Name,
			Rank:       e.Pos,
			Points:     e.Score,
			Href:       e.AccountURL,
			PrevRank:   prev.PrevRank,
			PrevPoints: prev.PrevPoints,
		}
		if resetDiffs || !seen {
			ts.PrevRank = e.Pos
			ts.PrevPoints = e.Score
		}
		s.teams[e.Name] = ts
		s.top = append(s.top, e.Name)
	}
	s.lastUpdated = time.Now()
	return nil
}

// Top returns the top n team scores in rank order.
func (s *ScoreStore) Top(n int) []TeamScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.top) {
		n = len(s.top)
	}
	out := make([]TeamScore, 0, n)
	for _, name := range s.top[:n] {
		out = append(out, s.teams[name])
	}
	return out
}

// LastUpdated reports when the scoreboard was last refreshed.
func (s *ScoreStore) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Diffs renders one line per team whose points changed since the previous
// reset, with the rank delta included only when another field changed so a
// single team's jump does not fan out into a page of rank-only lines.
func (s *ScoreStore) Diffs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, name := range s.top {
		team := s.teams[name]
		var parts []string
		if team.PrevPoints != team.Points {
			parts = append(parts, fmt.Sprintf("[points: %d -> %d]", team.PrevPoints, team.Points))
		}
		if len(parts) > 0 && team.PrevRank != team.Rank {
			parts = append(parts, fmt.Sprintf("[rank: %d -> %d]", team.PrevRank, team.Rank))
		}
		if len(parts) > 0 {
			out = append(out, fmt.Sprintf("%s: %s", team.Name, strings.Join(parts, " ")))
		}
	}
	return out
}
