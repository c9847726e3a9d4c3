package main

import (
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/mcdev12/roast-arena/go/internal/arena/poller"
	"github.com/mcdev12/roast-arena/go/internal/config"
	"github.com/mcdev12/roast-arena/go/internal/relay"
)

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	g := cfg.Game
	return orchestrator.Config{
		TreasuryAddress:      g.TreasuryAddress,
		EntryFee:             g.EntryFee,
		DriftTolerance:       g.DriftTolerance,
		ResultsLock:          g.ResultsLock,
		NextRoundCountdown:   g.NextRoundCountdown,
		VotingLockThreshold:  g.VotingLockThreshold,
		SpamWindow:           g.SpamWindow,
		RequestTimeout:       cfg.API.Timeout,
		LegacyResultFallback: g.LegacyResultFallback,
		Poll: poller.Config{
			RoundWindow:  g.RoundDebounce,
			StatsWindow:  g.StatsDebounce,
			VotingWindow: g.VotingDebounce,
			Interval:     g.PollInterval,
		},
	}
}

func channelConfig(cfg *config.Config) channel.Config {
	c := channel.DefaultConfig(cfg.Channel.URL)
	if cfg.Channel.ReconnectBase > 0 {
		c.ReconnectBase = cfg.Channel.ReconnectBase
	}
	if cfg.Channel.ReconnectMax > 0 {
		c.ReconnectMax = cfg.Channel.ReconnectMax
	}
	if cfg.Channel.MaxAttempts > 0 {
		c.MaxAttempts = cfg.Channel.MaxAttempts
	}
	c.PingInterval = cfg.Channel.PingInterval
	return c
}

func relayConfig(cfg *config.Config, clientID string) relay.Config {
	c := relay.DefaultConfig()
	c.URL = cfg.NATS.URL
	if cfg.NATS.Subject != "" {
		c.SubjectPrefix = cfg.NATS.Subject
	}
	if cfg.NATS.Stream != "" {
		c.StreamName = cfg.NATS.Stream
	}
	c.ClientID = clientID
	return c
}
