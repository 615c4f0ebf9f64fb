package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/config"
	"github.com/vnmchuo/space-explorer/internal/governor"
)

func testConfig() *config.Config {
	return &config.Config{
		N2YOAPIKey:   "n2yo-secret",
		GoogleAPIKey: "google-secret",
		RatePolicy: governor.Policy{
			governor.GroupChat: {{Capacity: 10, Period: time.Minute}, {Capacity: 60, Period: time.Hour}},
		},
	}
}

func TestRenderStatus(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderStatus(&out, testConfig(), map[string]string{"gemini": "exhausted"}))

	rendered := out.String()
	assert.Contains(t, rendered, "gemini")
	assert.Contains(t, rendered, "exhausted")
	assert.Contains(t, rendered, "10/1m0s, 60/1h0m0s")
	assert.Contains(t, rendered, "memory")
	assert.NotContains(t, rendered, "n2yo-secret")
	assert.NotContains(t, rendered, "google-secret")
}

func TestQuotaState(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.ProviderQuotaPerMinute = 5

	state := quotaState(t.Context(), cfg)

	assert.Len(t, state, 2)
	assert.NotEqual(t, "unreachable", state["gemini"])
}

func TestQuotaState_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.ProviderQuotaPerMinute = 5
	mr.Close()

	state := quotaState(t.Context(), cfg)

	assert.Equal(t, "unreachable", state["gemini"])
	assert.Equal(t, "unreachable", state["tts"])
}

func TestConnectStores_Memory(t *testing.T) {
	ledger, quota, err := connectStores(t.Context(), &config.Config{ProviderQuotaPerMinute: 5}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &governor.MemoryLedger{}, ledger)
	assert.Nil(t, quota)
}

func TestConnectStores_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisURL: "redis://" + mr.Addr(), ProviderQuotaPerMinute: 5}

	ledger, quota, err := connectStores(t.Context(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer ledger.Close()

	assert.IsType(t, &governor.RedisLedger{}, ledger)
	assert.NotNil(t, quota)
}

func TestConnectStores_BadURL(t *testing.T) {
	_, _, err := connectStores(t.Context(), &config.Config{RedisURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewClients_ConfiguredFromClients(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, map[string]bool{"n2yo": true, "gemini": true, "tts": false},
		newClients(cfg, zap.NewNop(), nil).configured())

	cfg.MockMode = true
	assert.Equal(t, map[string]bool{"n2yo": false, "gemini": false, "tts": false},
		newClients(cfg, zap.NewNop(), nil).configured())
}
