package main

import (
	"testing"
	"time"

	"github.com/mcdev12/roast-arena/go/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestOrchestratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Game.TreasuryAddress = "0xtreasury"
	cfg.Game.ResultsLock = 15 * time.Second
	cfg.Game.RoundDebounce = 3 * time.Second
	cfg.API.Timeout = 7 * time.Second

	got := orchestratorConfig(&cfg)

	assert.Equal(t, "0xtreasury", got.TreasuryAddress)
	assert.Equal(t, 15*time.Second, got.ResultsLock)
	assert.Equal(t, 3*time.Second, got.Poll.RoundWindow)
	assert.Equal(t, 7*time.Second, got.RequestTimeout)
}

func TestChannelConfigKeepsDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.URL = "ws://arena.test/ws"
	cfg.Channel.ReconnectBase = 0
	cfg.Channel.MaxAttempts = 0

	got := channelConfig(&cfg)

	assert.Equal(t, "ws://arena.test/ws", got.URL)
	assert.Positive(t, got.ReconnectBase)
	assert.Equal(t, 5, got.MaxAttempts)
}

func TestRelayConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NATS.URL = "nats://localhost:4222"

	got := relayConfig(&cfg, "client-1")

	assert.Equal(t, "nats://localhost:4222", got.URL)
	assert.Equal(t, "arena.lifecycle", got.SubjectPrefix)
	assert.Equal(t, "ARENA_LIFECYCLE", got.StreamName)
	assert.Equal(t, "client-1", got.ClientID)
}
