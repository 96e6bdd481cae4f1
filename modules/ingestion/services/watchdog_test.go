package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/memstore"
)

func TestWatchdog_ReapOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := memstore.New()

	stale := seedPlan(t, s, personOnly)
	fresh := seedPlan(t, s, personOnly)
	_, ok, err := s.TryStart(ctx, stale.ID(), now.Add(-4*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = s.TryStart(ctx, fresh.ID(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	w, err := NewWatchdog(s, WatchdogOptions{StaleAfter: 3 * time.Hour, Now: func() time.Time { return now }})
	require.NoError(t, err)

	n, err := w.ReapOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetByID(ctx, stale.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Equal(t, staleMessage, got.Message())

	got, err = s.GetByID(ctx, fresh.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusOngoing, got.Status())

	n, err = w.ReapOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWatchdog_RunStopsOnCancel(t *testing.T) {
	w, err := NewWatchdog(memstore.New(), WatchdogOptions{Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}

func TestNewWatchdog_Validates(t *testing.T) {
	_, err := NewWatchdog(nil, WatchdogOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewWatchdog(memstore.New(), WatchdogOptions{Interval: -time.Second})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWarnings_KeepsFirstAndCountsRest(t *testing.T) {
	w := NewWarnings(2)
	for i := range 5 {
		w.Add("warning %d", i)
	}
	require.Equal(t, 5, w.Len())
	require.Equal(t, []string{"warning 0", "warning 1", "... and 3 more"}, w.List())

	var none *Warnings
	none.Add("ignored")
	require.Zero(t, none.Len())
	require.Nil(t, none.List())
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "abc", truncateString("abc", 10))
	require.Equal(t, "ab", truncateString("abcdef", 2))
	require.Equal(t, "é", truncateString("éé", 3))
}
