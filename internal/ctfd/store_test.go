package ctfd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	challenges []Challenge
	scoreboard []ScoreboardEntry
}

func (s *staticSource) GetChallenges(context.Context) ([]Challenge, error) {
	return s.challenges, nil
}

func (s *staticSource) GetScoreboard(context.Context) ([]ScoreboardEntry, error) {
	return s.scoreboard, nil
}

func TestChallengeStoreLookups(t *testing.T) {
	src := &staticSource{challenges: []Challenge{
		{ID: 1, Name: "Expired Subscription - B01lers", Solves: 2, Value: 100},
		{ID: 2, Name: "Recording Playback - CMU", Solves: 5, Value: 150},
	}}
	store := NewChallengeStore(src)
	require.NoError(t, store.Refresh(context.Background()))

	c, ok := store.FindByName("expired subscription - b01lers")
	require.True(t, ok)
	assert.Equal(t, 1, c.ID)

	_, ok = store.FindByName("No Subscription - B01lers")
	assert.False(t, ok)

	c, ok = store.FindByID(2)
	require.True(t, ok)
	assert.Equal(t, "Recording Playback - CMU", c.Name)

	_, ok = store.FindByID(99)
	assert.False(t, ok)
}

func TestChallengeStoreUnsolvedOrdering(t *testing.T) {
	src := &staticSource{challenges: []Challenge{
		{ID: 1, Name: "solved", Solves: 10, Value: 500, SolvedByMe: true},
		{ID: 2, Name: "few-solves", Solves: 1, Value: 400},
		{ID: 3, Name: "many-solves", Solves: 8, Value: 100},
		{ID: 4, Name: "many-solves-high-value", Solves: 8, Value: 300},
	}}
	store := NewChallengeStore(src)
	require.NoError(t, store.Refresh(context.Background()))

	got := store.Unsolved()
	require.Len(t, got, 3)
	// Most solved first; ties break on value.
	assert.Equal(t, "many-solves-high-value", got[0].Name)
	assert.Equal(t, "many-solves", got[1].Name)
	assert.Equal(t, "few-solves", got[2].Name)
}

func TestScoreStoreTop(t *testing.T) {
	src := &staticSource{scoreboard: []ScoreboardEntry{
		{Pos: 1, Name: "alpha", Score: 500},
		{Pos: 2, Name: "beta", Score: 400},
		{Pos: 3, Name: "gamma", Score: 300},
	}}
	store := NewScoreStore(src)
	require.NoError(t, store.Refresh(context.Background(), true))

	top := store.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "alpha", top[0].Name)
	assert.Equal(t, "beta", top[1].Name)

	// Asking beyond the board clamps.
	assert.Len(t, store.Top(10), 3)
	assert.False(t, store.LastUpdated().IsZero())
}

func TestScoreStoreDiffs(t *testing.T) {
	src := &staticSource{scoreboard: []ScoreboardEntry{
		{Pos: 1, Name: "alpha", Score: 500},
		{Pos: 2, Name: "beta", Score: 400},
		{Pos: 3, Name: "gamma", Score: 300},
	}}
	store := NewScoreStore(src)
	require.NoError(t, store.Refresh(context.Background(), true))

	// No change since the reset.
	assert.Empty(t, store.Diffs())

	// beta overtakes alpha; gamma swaps rank without scoring.
	src.scoreboard = []ScoreboardEntry{
		{Pos: 1, Name: "beta", Score: 600},
		{Pos: 2, Name: "alpha", Score: 500},
		{Pos: 3, Name: "gamma", Score: 300},
	}
	require.NoError(t, store.Refresh(context.Background(), false))

	diffs := store.Diffs()
	require.Len(t, diffs, 1)
	assert.Contains(t, diffs[0], "beta")
	assert.Contains(t, diffs[0], "[points: 400 -> 600]")
	assert.Contains(t, diffs[0], "[rank: 2 -> 1]")
}

func TestScoreStoreResetClearsDiffs(t *testing.T) {
	src := &staticSource{scoreboard: []ScoreboardEntry{
		{Pos: 1, Name: "alpha", Score: 100},
	}}
	store := NewScoreStore(src)
	require.NoError(t, store.Refresh(context.Background(), true))

	src.scoreboard = []ScoreboardEntry{{Pos: 1, Name: "alpha", Score: 200}}
	require.NoError(t, store.Refresh(context.Background(), false))
	require.NotEmpty(t, store.Diffs())

	// A reset refresh swallows the accumulated delta.
	require.NoError(t, store.Refresh(context.Background(), true))
	assert.Empty(t, store.Diffs())
}
