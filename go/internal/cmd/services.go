package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roast-arena/go/clients/arena_api_client"
	"github.com/mcdev12/roast-arena/go/internal/archive"
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/mcdev12/roast-arena/go/internal/arena/payment"
	"github.com/mcdev12/roast-arena/go/internal/arena/wallet"
	"github.com/mcdev12/roast-arena/go/internal/config"
	"github.com/mcdev12/roast-arena/go/internal/relay"
	"github.com/rs/zerolog/log"
)

type Services struct {
	API          *arena_api_client.ArenaApiClient
	Channel      *channel.Client
	Orchestrator *orchestrator.Orchestrator
	Relay        *relay.Publisher
	Archive      *archive.Repository
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Transport layer → Orchestrator → Sinks → Surfaces
	clock := clockwork.NewRealClock()
	clientID := cfg.API.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	api := arena_api_client.NewArenaApiClient(cfg.API.URL, clientID, cfg.API.Timeout)
	ch := channel.NewClient(channelConfig(cfg), clock)
	ch.SetHeader(arena_api_client.ClientIDHeader, clientID)

	services := &Services{API: api, Channel: ch}

	var sinks []orchestrator.LifecycleSink
	if cfg.NATS.URL != "" {
		pub, err := relay.Connect(ctx, relayConfig(cfg, clientID))
		if err != nil {
			return nil, fmt.Errorf("failed to set up lifecycle relay: %w", err)
		}
		services.Relay = pub
		sinks = append(sinks, pub)
	}

	repo, err := setupArchive(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}
	if repo != nil {
		services.Archive = repo
		sinks = append(sinks, repo)
	}

	if cfg.Wallet.Address == "" {
		log.Warn().Msg("WALLET_ADDRESS not set, playing as a spectator")
	}

	services.Orchestrator = orchestrator.New(orchestratorConfig(cfg), orchestrator.Deps{
		Clock:    clock,
		API:      api,
		Channel:  ch,
		Identity: wallet.NewStatic(cfg.Wallet.Address),
		Payer:    payment.DevPayer{},
		Sinks:    sinks,
	})

	log.Info().
		Str("api_url", cfg.API.URL).
		Str("ws_url", cfg.Channel.URL).
		Str("client_id", clientID).
		Bool("relay", services.Relay != nil).
		Bool("archive", services.Archive != nil).
		Msg("services ready")
	return services, nil
}

// Close releases external connections. The orchestrator closes itself when Run returns.
func (s *Services) Close() {
	if s.Relay != nil {
		if err := s.Relay.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.Archive != nil {
		s.Archive.Close()
	}
}
