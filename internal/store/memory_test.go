package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowCheck_CountsDown(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "twitter", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	// Limit of 3 per 60s window: three admissions succeed with decreasing remaining
	for i, wantRemaining := range []int{2, 1, 0} {
		res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
			Key:           key,
			NowMs:         now + int64(i),
			WindowSeconds: 60,
			Limit:         3,
			Cost:          1,
			AdmissionID:   fmt.Sprintf("adm-%d", i),
		})
		require.NoError(t, err)
		assert.True(t, res.Allowed, "admission %d should be allowed", i+1)
		assert.Equal(t, wantRemaining, res.Remaining)
	}

	// Fourth check is rejected with a retry hint within the window
	res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
		Key:           key,
		NowMs:         now + 3,
		WindowSeconds: 60,
		Limit:         3,
		Cost:          1,
		AdmissionID:   "adm-3",
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.GreaterOrEqual(t, res.RetryAfterSeconds, 1)
	assert.LessOrEqual(t, res.RetryAfterSeconds, 60)
}

func TestSlidingWindowCheck_WindowSlides(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "twitter", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	for i := 0; i < 2; i++ {
		res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
			Key: key, NowMs: now, WindowSeconds: 10, Limit: 2, Cost: 1,
			AdmissionID: fmt.Sprintf("adm-%d", i),
		})
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	// Still inside the window: rejected
	res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
		Key: key, NowMs: now + 5000, WindowSeconds: 10, Limit: 2, Cost: 1,
		AdmissionID: "adm-mid",
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// After the old admissions fall out of the window: allowed again
	res, err = s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
		Key: key, NowMs: now + 11000, WindowSeconds: 10, Limit: 2, Cost: 1,
		AdmissionID: "adm-late",
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSlidingWindowCheck_CostBoundary(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "twitter", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	// Cost exactly equal to the remaining quota must be admitted
	res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
		Key: key, NowMs: now, WindowSeconds: 60, Limit: 5, Cost: 5,
		AdmissionID: "adm-0",
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// Anything more is rejected
	res, err = s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
		Key: key, NowMs: now + 1, WindowSeconds: 60, Limit: 5, Cost: 1,
		AdmissionID: "adm-1",
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestSlidingWindowCheck_IndependentKeys(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UnixMilli()

	args := func(id string) *SlidingWindowArgs {
		return &SlidingWindowArgs{
			Key:           Key{Service: "twitter", Identifier: id},
			NowMs:         now,
			WindowSeconds: 60,
			Limit:         1,
			Cost:          1,
			AdmissionID:   "adm-" + id,
		}
	}

	res, err := s.SlidingWindowCheck(context.Background(), args("user-1"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// Exhausting user-1 does not affect user-2
	res, err = s.SlidingWindowCheck(context.Background(), args("user-2"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.SlidingWindowCheck(context.Background(), args("user-1"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestSlidingWindowCheck_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "twitter", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	const (
		goroutines = 50
		limit      = 10
	)

	var wg sync.WaitGroup
	var admitted int64

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			res, err := s.SlidingWindowCheck(context.Background(), &SlidingWindowArgs{
				Key:           key,
				NowMs:         now,
				WindowSeconds: 60,
				Limit:         limit,
				Cost:          1,
				AdmissionID:   fmt.Sprintf("adm-%d", id),
			})
			if err == nil && res.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}(i)
	}
	wg.Wait()

	// Check-then-admit is atomic: exactly the limit is admitted, never more
	assert.Equal(t, int64(limit), admitted)
}

func TestTokenBucketCheck_DrainAndRefill(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "openai", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	// Capacity 10, refill 1/s: cost 10 drains the bucket entirely
	res, err := s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 10, RefillRate: 1, Cost: 10, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 0.0, res.Tokens, 1e-9)

	// Immediately after, cost 1 is rejected with retry of about a second
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 10, RefillRate: 1, Cost: 1, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfterSeconds)

	// Five seconds later, five tokens have refilled and a cost of 5 succeeds
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now + 5000, Capacity: 10, RefillRate: 1, Cost: 5, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 0.0, res.Tokens, 1e-9)
}

func TestTokenBucketCheck_RefillPersistsOnReject(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "openai", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	res, err := s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 10, RefillRate: 1, Cost: 10, TTLSeconds: 11,
	})
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// A rejected check 3s later still writes back the refilled 3 tokens
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now + 3000, Capacity: 10, RefillRate: 1, Cost: 5, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 3.0, res.Tokens, 1e-9)

	// The persisted progress means cost 3 succeeds at the same timestamp
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now + 3000, Capacity: 10, RefillRate: 1, Cost: 3, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketCheck_CapsAtCapacity(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "openai", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	res, err := s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 5, RefillRate: 1, Cost: 1, TTLSeconds: 6,
	})
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// A long idle period never refills past capacity
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now + 3600_000, Capacity: 5, RefillRate: 1, Cost: 1, TTLSeconds: 6,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 4.0, res.Tokens, 1e-9)
}

func TestTokenBucketCheck_FractionalCost(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "anthropic", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	res, err := s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 2, RefillRate: 0.5, Cost: 1.5, TTLSeconds: 5,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 0.5, res.Tokens, 1e-9)
}

func TestIncrAttempts(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "twitter", Identifier: "user-1"}

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrAttempts(context.Background(), key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Attempts are tracked per key
	got, err := s.IncrAttempts(context.Background(), Key{Service: "twitter", Identifier: "user-2"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	require.NoError(t, s.ClearAttempts(context.Background(), key))
	got, err = s.IncrAttempts(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestReset_RestoresFullQuota(t *testing.T) {
	s := NewMemoryStore()
	key := Key{Service: "openai", Identifier: "user-1"}
	now := time.Now().UnixMilli()

	res, err := s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 10, RefillRate: 1, Cost: 10, TTLSeconds: 11,
	})
	require.NoError(t, err)
	require.True(t, res.Allowed)

	require.NoError(t, s.Reset(context.Background(), key))

	// After reset the very next check has the full capacity available
	res, err = s.TokenBucketCheck(context.Background(), &TokenBucketArgs{
		Key: key, NowMs: now, Capacity: 10, RefillRate: 1, Cost: 10, TTLSeconds: 11,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SlidingWindowCheck(ctx, &SlidingWindowArgs{
		Key: Key{Service: "twitter", Identifier: "u"}, NowMs: 0, WindowSeconds: 1, Limit: 1, Cost: 1,
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.TokenBucketCheck(ctx, &TokenBucketArgs{
		Key: Key{Service: "openai", Identifier: "u"}, NowMs: 0, Capacity: 1, RefillRate: 1,
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
