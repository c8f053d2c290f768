package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmark/ratekeeper-go/internal/config"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
	"github.com/clipmark/ratekeeper-go/internal/store"
)

// flakyStore is a controllable fake backend
type flakyStore struct {
	inner store.Store
	fail  atomic.Bool
	delay time.Duration
	calls atomic.Int64
}

func newFlakyStore() *flakyStore {
	return &flakyStore{inner: store.NewMemoryStore()}
}

func (f *flakyStore) guard(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyStore) SlidingWindowCheck(ctx context.Context, args *store.SlidingWindowArgs) (*store.SlidingWindowResult, error) {
	if err := f.guard(ctx); err != nil {
		return nil, err
	}
	return f.inner.SlidingWindowCheck(ctx, args)
}

func (f *flakyStore) TokenBucketCheck(ctx context.Context, args *store.TokenBucketArgs) (*store.TokenBucketResult, error) {
	if err := f.guard(ctx); err != nil {
		return nil, err
	}
	return f.inner.TokenBucketCheck(ctx, args)
}

func (f *flakyStore) IncrAttempts(ctx context.Context, key store.Key, ttl time.Duration) (int64, error) {
	if err := f.guard(ctx); err != nil {
		return 0, err
	}
	return f.inner.IncrAttempts(ctx, key, ttl)
}

func (f *flakyStore) ClearAttempts(ctx context.Context, key store.Key) error {
	if err := f.guard(ctx); err != nil {
		return err
	}
	return f.inner.ClearAttempts(ctx, key)
}

func (f *flakyStore) Reset(ctx context.Context, key store.Key) error {
	if err := f.guard(ctx); err != nil {
		return err
	}
	return f.inner.Reset(ctx, key)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if err := f.guard(ctx); err != nil {
		return err
	}
	return f.inner.Ping(ctx)
}

func (f *flakyStore) Close() error { return f.inner.Close() }

// fastTripSettings trips after two consecutive failures with no cooldown surprises
func fastTripSettings(cooldown time.Duration) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "test-guard",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}
}

func TestGuardedStore_PassThrough(t *testing.T) {
	inner := newFlakyStore()
	g := NewGuardedStore(inner, fastTripSettings(time.Minute), time.Second, nil)

	res, err := g.SlidingWindowCheck(context.Background(), &store.SlidingWindowArgs{
		Key:           store.Key{Service: "twitter", Identifier: "u"},
		NowMs:         time.Now().UnixMilli(),
		WindowSeconds: 60,
		Limit:         3,
		Cost:          1,
		AdmissionID:   "adm",
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardedStore_WrapsFailures(t *testing.T) {
	inner := newFlakyStore()
	inner.fail.Store(true)
	g := NewGuardedStore(inner, fastTripSettings(time.Minute), time.Second, nil)

	_, err := g.TokenBucketCheck(context.Background(), &store.TokenBucketArgs{
		Key:        store.Key{Service: "openai", Identifier: "u"},
		NowMs:      time.Now().UnixMilli(),
		Capacity:   10,
		RefillRate: 1,
		Cost:       1,
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGuardedStore_OpensAndShortCircuits(t *testing.T) {
	inner := newFlakyStore()
	inner.fail.Store(true)
	g := NewGuardedStore(inner, fastTripSettings(time.Minute), time.Second, nil)

	// Two failures trip the breaker
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, g.Ping(context.Background()), ErrStoreUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	// While open, calls fail fast without reaching the backend
	callsBefore := inner.calls.Load()
	assert.ErrorIs(t, g.Ping(context.Background()), ErrStoreUnavailable)
	assert.Equal(t, callsBefore, inner.calls.Load())
}

func TestGuardedStore_RecoversAfterCooldown(t *testing.T) {
	inner := newFlakyStore()
	inner.fail.Store(true)
	g := NewGuardedStore(inner, fastTripSettings(50*time.Millisecond), time.Second, nil)

	for i := 0; i < 2; i++ {
		_ = g.Ping(context.Background())
	}
	require.Equal(t, gobreaker.StateOpen, g.State())

	// Backend comes back; after the cooldown a probe succeeds and closes the breaker
	inner.fail.Store(false)
	time.Sleep(80 * time.Millisecond)

	assert.NoError(t, g.Ping(context.Background()))
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardedStore_TimesOutSlowBackend(t *testing.T) {
	inner := newFlakyStore()
	inner.delay = 200 * time.Millisecond
	g := NewGuardedStore(inner, fastTripSettings(time.Minute), 20*time.Millisecond, nil)

	start := time.Now()
	err := g.Ping(context.Background())
	elapsed := time.Since(start)

	// The operation timeout bounds the call, and the timeout counts as a failure
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestGuardedStore_IncrAttemptsAndReset(t *testing.T) {
	inner := newFlakyStore()
	g := NewGuardedStore(inner, fastTripSettings(time.Minute), time.Second, nil)
	key := store.Key{Service: "twitter", Identifier: "u"}

	count, err := g.IncrAttempts(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, g.ClearAttempts(context.Background(), key))
	require.NoError(t, g.Reset(context.Background(), key))

	count, err = g.IncrAttempts(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.BreakerConfig{
		Threshold:   0.6,
		Cooldown:    5000,
		Interval:    2000,
		MaxRequests: 7,
		MinRequests: 4,
	}

	settings := SettingsFromConfig("store-guard", cfg, metrics.NewNoopCollector(), nil)
	assert.Equal(t, "store-guard", settings.Name)
	assert.Equal(t, uint32(7), settings.MaxRequests)
	assert.Equal(t, 5*time.Second, settings.Timeout)
	assert.Equal(t, 2*time.Second, settings.Interval)

	// Below the sample floor the breaker must not trip even at 100% failures
	assert.False(t, settings.ReadyToTrip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	// At the floor, the failure ratio decides
	assert.True(t, settings.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 6}))
	assert.False(t, settings.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 5}))
}

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()
	assert.NotEmpty(t, settings.Name)
	assert.NotNil(t, settings.ReadyToTrip)
	assert.False(t, settings.ReadyToTrip(gobreaker.Counts{Requests: 5, TotalFailures: 5}))
	assert.True(t, settings.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 5}))
}
