package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/raspterm/internal/models"
)

func openTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "stats.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func at(ts time.Time) *models.StatsRecord {
	return &models.StatsRecord{Timestamp: ts.UnixMilli(), CPUUsage: 12.5}
}

func TestPruneRetentionWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, now)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, at(now.Add(-31*24*time.Hour))))
	require.NoError(t, s.Append(ctx, at(now.Add(-24*time.Hour))))

	n, err := s.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := s.Query(ctx, MaxHistoryHours)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), recs[0].Timestamp)
}

func TestQueryRejectsOutOfRangeHours(t *testing.T) {
	s := openTestStore(t, time.Now())
	ctx := context.Background()

	for _, h := range []int{0, -1, MaxHistoryHours + 1} {
		_, err := s.Query(ctx, h)
		assert.ErrorIs(t, err, ErrInvalidRange, "hours=%d", h)
	}
	_, err := s.Query(ctx, 1)
	assert.NoError(t, err)
	_, err = s.Query(ctx, MaxHistoryHours)
	assert.NoError(t, err)
}

func TestQueryWindowAscending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, now)
	ctx := context.Background()

	// Inserted out of order on purpose.
	for _, off := range []time.Duration{
		-2 * time.Hour, -30 * time.Hour, -10 * time.Minute, -23 * time.Hour, -24 * time.Hour,
	} {
		require.NoError(t, s.Append(ctx, at(now.Add(off))))
	}

	recs, err := s.Query(ctx, 24)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	cutoff := now.Add(-24 * time.Hour).UnixMilli()
	for i, r := range recs {
		assert.Greater(t, r.Timestamp, cutoff)
		if i > 0 {
			assert.Greater(t, r.Timestamp, recs[i-1].Timestamp)
		}
	}
}

func TestAppendStampsZeroTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, now)

	rec := &models.StatsRecord{CPUUsage: 1}
	require.NoError(t, s.Append(context.Background(), rec))
	assert.Equal(t, now.UnixMilli(), rec.Timestamp)
	assert.NotZero(t, rec.ID)
}

func TestScriptsCRUD(t *testing.T) {
	s := openTestStore(t, time.Now())
	ctx := context.Background()

	b := &models.Script{Name: "backup", Command: "tar czf /tmp/b.tgz /etc"}
	a := &models.Script{Name: "apt", Command: "apt list --upgradable", Icon: "package"}
	require.NoError(t, s.CreateScript(ctx, b))
	require.NoError(t, s.CreateScript(ctx, a))
	assert.Equal(t, "terminal", b.Icon)

	list, err := s.ListScripts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "apt", list[0].Name)

	require.NoError(t, s.UpdateScript(ctx, b.ID, &models.Script{Name: "backup", Command: "echo ok"}))
	got, err := s.GetScript(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "echo ok", got.Command)

	assert.ErrorIs(t, s.UpdateScript(ctx, 9999, &models.Script{Name: "x", Command: "y"}), ErrNotFound)

	require.NoError(t, s.DeleteScript(ctx, b.ID))
	_, err = s.GetScript(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
