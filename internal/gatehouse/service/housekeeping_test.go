package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store/drivers/memory"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

func TestHousekeepingCleansExpiredEntries(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, st.Blacklist().Add(ctx, jwtx.BlacklistEntry{
		TokenID:   "expired",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, st.Blacklist().Add(ctx, jwtx.BlacklistEntry{
		TokenID:   "live",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	svc := NewHousekeepingService(st, slog.Default(), 50*time.Millisecond)
	svc.Start()
	svc.Stop()

	// Start runs one cleanup before the first tick, so stopping
	// immediately still leaves the expired entry gone.
	entries, err := st.Blacklist().ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "live", entries[0].TokenID)
}

func TestHousekeepingDefaultInterval(t *testing.T) {
	svc := NewHousekeepingService(memory.NewStore(), slog.Default(), 0)
	require.Equal(t, time.Hour, svc.Interval)
}
