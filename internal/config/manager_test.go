package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// writeConfigFile writes content to a temp config file and returns its path
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 300
    windowSeconds: 900
  - service: openai
    algorithm: token_bucket
    capacity: 60
    refillRatePerSecond: 1
    costMapping:
      summarize: 1
      transcribe: 5
`

func TestManager_LoadFromFile(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	path := writeConfigFile(t, validConfig)
	require.NoError(t, manager.LoadFromFile(path))

	cfg := manager.GetConfig()
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Policies, 2)
	assert.Equal(t, "twitter", cfg.Policies[0].Service)
	assert.Equal(t, 5.0, cfg.Policies[1].CostMapping["transcribe"])

	absPath, _ := filepath.Abs(path)
	assert.Equal(t, absPath, manager.GetConfigPath())
}

func TestManager_LoadFromFile_NotFound(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	err = manager.LoadFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestManager_LoadFromFile_InvalidYAML(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	path := writeConfigFile(t, "redis: [unclosed")
	err = manager.LoadFromFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestManager_SetDefaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	path := writeConfigFile(t, validConfig)
	require.NoError(t, manager.LoadFromFile(path))
	cfg := manager.GetConfig()

	assert.Equal(t, constants.DefaultAdminPort, cfg.Admin.Port)
	assert.Equal(t, constants.DefaultAddress, cfg.Admin.Address)
	assert.Equal(t, constants.DefaultAdminPerSecond, cfg.Admin.RateLimit.PerSecond)
	assert.Equal(t, constants.DefaultStoreOpTimeout, cfg.Redis.OpTimeout)
	assert.Equal(t, constants.DefaultRedisPoolSize, cfg.Redis.PoolSize)

	require.NotNil(t, cfg.Breaker)
	assert.Equal(t, constants.DefaultBreakerThreshold, cfg.Breaker.Threshold)
	assert.Equal(t, uint32(constants.DefaultBreakerMinRequests), cfg.Breaker.MinRequests)

	require.NotNil(t, cfg.Watch)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, constants.DefaultWatchDebounce, cfg.Watch.Debounce)
}

func TestManager_SetPolicyDefaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	path := writeConfigFile(t, validConfig)
	require.NoError(t, manager.LoadFromFile(path))
	cfg := manager.GetConfig()

	// Sliding window: idle TTL follows the window
	window := cfg.Policies[0]
	assert.Equal(t, 901, window.TTLSeconds)
	require.NotNil(t, window.Backoff)
	assert.Equal(t, "exponential", window.Backoff.Type)
	assert.Equal(t, constants.DefaultBackoffInitialDelay, window.Backoff.InitialDelay)
	assert.Equal(t, constants.DefaultBackoffMaxDelay, window.Backoff.MaxDelay)
	assert.Equal(t, constants.DefaultBackoffMultiplier, window.Backoff.Multiplier)
	require.NotNil(t, window.Backoff.Jitter)
	assert.True(t, *window.Backoff.Jitter)

	// Token bucket: idle TTL follows the time to refill a full bucket
	bucket := cfg.Policies[1]
	assert.Equal(t, 61, bucket.TTLSeconds)
}

func TestManager_TokenBucketLegacyConversion(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	// Token bucket expressed in requestsPerWindow/windowSeconds form
	path := writeConfigFile(t, `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:
  - service: anthropic
    algorithm: token_bucket
    requestsPerWindow: 120
    windowSeconds: 60
`)
	require.NoError(t, manager.LoadFromFile(path))

	pol := manager.GetConfig().Policies[0]
	assert.Equal(t, 120.0, pol.Capacity)
	assert.Equal(t, 2.0, pol.RefillRate)
}

func TestManager_PolicyValidation(t *testing.T) {
	tests := []struct {
		name     string
		policies string
		errMsg   string
	}{
		{
			name: "duplicate service",
			policies: `
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 10
    windowSeconds: 60
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 20
    windowSeconds: 60
`,
			errMsg: "duplicate policy for service 'twitter'",
		},
		{
			name: "sliding window missing window",
			policies: `
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 10
`,
			errMsg: "sliding_window requires",
		},
		{
			name: "token bucket missing refill rate",
			policies: `
  - service: openai
    algorithm: token_bucket
    capacity: 10
`,
			errMsg: "token_bucket requires",
		},
		{
			name: "negative cost mapping",
			policies: `
  - service: openai
    algorithm: token_bucket
    capacity: 10
    refillRatePerSecond: 1
    costMapping:
      embed: -1
`,
			errMsg: "costMapping['embed'] must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManager()
			require.NoError(t, err)

			path := writeConfigFile(t, `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:`+tt.policies)

			err = manager.LoadFromFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestManager_StructValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown algorithm",
			content: `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:
  - service: twitter
    algorithm: leaky_bucket
    requestsPerWindow: 10
    windowSeconds: 60
`,
		},
		{
			name: "invalid redis address",
			content: `
redis:
  addrs:
    - "not a host port"
policies:
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 10
    windowSeconds: 60
`,
		},
		{
			name: "exponential multiplier not above one",
			content: `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 10
    windowSeconds: 60
    backoff:
      type: exponential
      multiplier: 0.5
`,
		},
		{
			name: "no policies",
			content: `
redis:
  addrs:
    - "127.0.0.1:6379"
policies: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManager()
			require.NoError(t, err)

			path := writeConfigFile(t, tt.content)
			assert.Error(t, manager.LoadFromFile(path))
		})
	}
}

func TestManager_LinearBackoffIgnoresMultiplier(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	// Linear backoff does not use the multiplier, so any value passes
	path := writeConfigFile(t, `
redis:
  addrs:
    - "127.0.0.1:6379"
policies:
  - service: twitter
    algorithm: sliding_window
    requestsPerWindow: 10
    windowSeconds: 60
    backoff:
      type: linear
      initialDelayMs: 500
`)
	require.NoError(t, manager.LoadFromFile(path))
	assert.Equal(t, "linear", manager.GetConfig().Policies[0].Backoff.Type)
}
