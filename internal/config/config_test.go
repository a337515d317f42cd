package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Disabled)
	assert.Equal(t, "simulate", cfg.Upstream.Mode)
	assert.Equal(t, "memory", cfg.Analytics.Driver)
	assert.Equal(t, DefaultAggregationInterval, cfg.Metrics.AggregationInterval)
	assert.Equal(t, DefaultSnapshotRingCapacity, cfg.Metrics.RingCapacity)
}

func TestLoadFromBytes_PartialYAMLKeepsDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
server:
  port: 9999
cache:
  ttl: 5m
upstream:
  mode: forward
  endpoint: http://localhost:8080/v1/messages
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "forward", cfg.Upstream.Mode)
	// Unset sections still get defaults.
	assert.Equal(t, DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultUpstreamMaxAttempts, cfg.Upstream.MaxAttempts)
}

func TestLoadFromBytes_PricingRules(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
pricing:
  rules:
    - pattern: my-model
      input_per_mtok: 1.5
      output_per_mtok: 6.0
    - pattern: my-model-*
      input_per_mtok: 1.0
      output_per_mtok: 4.0
`))
	require.NoError(t, err)
	require.Len(t, cfg.Pricing.Rules, 2)
	assert.Equal(t, "my-model", cfg.Pricing.Rules[0].Pattern)
	assert.Equal(t, 1.5, cfg.Pricing.Rules[0].InputPerMTok)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad upstream mode", "upstream:\n  mode: teleport\n"},
		{"forward without endpoint", "upstream:\n  mode: forward\n"},
		{"bad analytics driver", "analytics:\n  driver: postgres\n"},
		{"sqlite without path", "analytics:\n  driver: sqlite\n"},
		{"negative price", "pricing:\n  rules:\n    - pattern: m\n      input_per_mtok: -1\n"},
		{"empty pattern", "pricing:\n  rules:\n    - input_per_mtok: 1\n"},
		{"bad port", "server:\n  port: 70000\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromBytes_InvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("server: ["))
	assert.Error(t, err)
}
