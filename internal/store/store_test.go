package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytemomo/moray/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "moray.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertTargetReportsExistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	existed, err := s.UpsertTarget(ctx, domain.Target{Name: "b01lers", IP: "10.0.0.2", PortLow: 8000, PortHigh: 8005})
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = s.UpsertTarget(ctx, domain.Target{Name: "b01lers", IP: "10.0.0.3", PortLow: 9000, PortHigh: 9004})
	require.NoError(t, err)
	assert.True(t, existed)

	got, found, err := s.GetTarget(ctx, "b01lers")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "10.0.0.3", got.IP)
	assert.Equal(t, 9000, got.PortLow)
}

func TestUpsertTargetPreservesPriorEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTarget(ctx, domain.Target{Name: "cmu", IP: "10.0.0.9", PortLow: 7000, PortHigh: 7004})
	require.NoError(t, err)

	// A re-ingestion with no endpoint must not wipe the recorded one.
	existed, err := s.UpsertTarget(ctx, domain.Target{Name: "cmu", StoragePath: "/data/cmu"})
	require.NoError(t, err)
	assert.True(t, existed)

	got, found, err := s.GetTarget(ctx, "cmu")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "10.0.0.9", got.IP)
	assert.Equal(t, 7000, got.PortLow)
	assert.Equal(t, 7004, got.PortHigh)
	assert.Equal(t, "/data/cmu", got.StoragePath)
}

func TestGetTargetMissing(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.GetTarget(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListTargetsOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.UpsertTarget(ctx, domain.Target{Name: name})
		require.NoError(t, err)
	}

	got, err := s.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, "mid", got[1].Name)
	assert.Equal(t, "zeta", got[2].Name)
}
