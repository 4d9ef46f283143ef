package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/kvstore/memory"
	"github.com/stretchr/testify/require"
)

func TestClaimNonce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("first claim succeeds, replay fails", func(t *testing.T) {
		s := memory.New()

		ok, err := s.ClaimNonce(ctx, "XR:bob", "nonce-1", now, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.ClaimNonce(ctx, "XR:bob", "nonce-1", now.Add(time.Second), time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("same nonce for different users is independent", func(t *testing.T) {
		s := memory.New()

		ok, _ := s.ClaimNonce(ctx, "XR:bob", "nonce-1", now, time.Minute)
		require.True(t, ok)
		ok, _ = s.ClaimNonce(ctx, "XR:alice", "nonce-1", now, time.Minute)
		require.True(t, ok)
	})

	t.Run("nonce usable again after lifetime", func(t *testing.T) {
		s := memory.New()

		ok, _ := s.ClaimNonce(ctx, "XR:bob", "nonce-1", now, time.Minute)
		require.True(t, ok)

		// Outside the lifetime window the old entry is pruned.
		ok, err := s.ClaimNonce(ctx, "XR:bob", "nonce-1", now.Add(2*time.Minute), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("no double success under concurrency", func(t *testing.T) {
		s := memory.New()

		const workers = 32
		var wg sync.WaitGroup
		successes := make(chan struct{}, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ClaimNonce(ctx, "XR:bob", "shared-nonce", time.Now(), time.Minute)
				require.NoError(t, err)
				if ok {
					successes <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(successes)

		require.Len(t, successes, 1)
	})
}

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for want := int64(1); want <= 5; want++ {
		got, err := s.IncrWindow(ctx, "rate_limit:default:bob", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSlidingClaim(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	t.Run("admits up to capacity", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, allowed, err := s.SlidingClaim(ctx, "k", fmt.Sprintf("m%d", i), now, time.Minute, 3)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		count, allowed, err := s.SlidingClaim(ctx, "k", "m3", now, time.Minute, 3)
		require.NoError(t, err)
		require.False(t, allowed)
		require.Equal(t, int64(3), count)
	})

	t.Run("entries slide out of the window", func(t *testing.T) {
		later := now.Add(61 * time.Second)
		_, allowed, err := s.SlidingClaim(ctx, "k", "m4", later, time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
	})

	t.Run("capacity one admits exactly one under concurrency", func(t *testing.T) {
		s := memory.New()

		const workers = 32
		var wg sync.WaitGroup
		admitted := make(chan struct{}, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, allowed, err := s.SlidingClaim(ctx, "k", fmt.Sprintf("w%d", i), time.Now(), time.Minute, 1)
				require.NoError(t, err)
				if allowed {
					admitted <- struct{}{}
				}
			}(i)
		}
		wg.Wait()
		close(admitted)

		require.Len(t, admitted, 1)
	})
}

func TestBucketTake(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("consumes until empty", func(t *testing.T) {
		s := memory.New()

		for i := 0; i < 2; i++ {
			_, allowed, err := s.BucketTake(ctx, "b", 2, 60, now, time.Minute)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		remaining, allowed, err := s.BucketTake(ctx, "b", 2, 60, now, time.Minute)
		require.NoError(t, err)
		require.False(t, allowed)
		require.Zero(t, remaining)
	})

	t.Run("lazy refill over elapsed time", func(t *testing.T) {
		s := memory.New()

		// Drain the bucket.
		_, _, err := s.BucketTake(ctx, "b", 1, 30, now, time.Minute)
		require.NoError(t, err)
		_, allowed, _ := s.BucketTake(ctx, "b", 1, 30, now, time.Minute)
		require.False(t, allowed)

		// 30 tokens/60s => one token every 2 seconds.
		_, allowed, err = s.BucketTake(ctx, "b", 1, 30, now.Add(2*time.Second), time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		s := memory.New()

		_, _, err := s.BucketTake(ctx, "b", 3, 60, now, time.Minute)
		require.NoError(t, err)

		remaining, allowed, err := s.BucketTake(ctx, "b", 3, 60, now.Add(time.Hour), time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, int64(2), remaining)
	})
}

func TestBlockMarkers(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_, blocked, err := s.BlockedUntil(ctx, "block:k")
	require.NoError(t, err)
	require.False(t, blocked)

	until := time.Now().Add(time.Minute)
	require.NoError(t, s.SetBlock(ctx, "block:k", until))

	got, blocked, err := s.BlockedUntil(ctx, "block:k")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, until, got)

	// Expired markers are dropped on read.
	require.NoError(t, s.SetBlock(ctx, "block:gone", time.Now().Add(-time.Second)))
	_, blocked, err = s.BlockedUntil(ctx, "block:gone")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestContextCancellation(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IncrWindow(ctx, "k", time.Minute)
	require.Error(t, err)
}
