package poller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds the debounce windows and the periodic reconciliation interval
type Config struct {
	RoundWindow  time.Duration
	StatsWindow  time.Duration
	VotingWindow time.Duration
	Interval     time.Duration
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() Config {
	return Config{
		RoundWindow:  2 * time.Second,
		StatsWindow:  5 * time.Second,
		VotingWindow: 5 * time.Second,
		Interval:     10 * time.Second,
	}
}

// Targets are the fetches the poller drives. Any of them may be nil.
type Targets struct {
	Round  func(ctx context.Context)
	Stats  func(ctx context.Context)
	Voting func(ctx context.Context)
}

// Poller bounds REST polling of the round, game stats and voting stats, and reconciles all
// three periodically while the event channel is silent or down.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration

	round  *Debouncer
	stats  *Debouncer
	voting *Debouncer
}

// New creates a poller. base is the context handed to deferred and periodic fetches.
func New(base context.Context, clock clockwork.Clock, cfg Config, targets Targets) *Poller {
	def := DefaultConfig()
	if cfg.RoundWindow <= 0 {
		cfg.RoundWindow = def.RoundWindow
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}
	if cfg.VotingWindow <= 0 {
		cfg.VotingWindow = def.VotingWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Poller{
		clock:    clock,
		interval: cfg.Interval,
		round:    NewDebouncer(base, clock, cfg.RoundWindow, orNoop(targets.Round)),
		stats:    NewDebouncer(base, clock, cfg.StatsWindow, orNoop(targets.Stats)),
		voting:   NewDebouncer(base, clock, cfg.VotingWindow, orNoop(targets.Voting)),
	}
}

// LoadRound requests a round snapshot fetch.
func (p *Poller) LoadRound(ctx context.Context, force bool) bool {
	return p.round.Trigger(ctx, force)
}

// LoadStats requests a game stats fetch.
func (p *Poller) LoadStats(ctx context.Context, force bool) bool {
	return p.stats.Trigger(ctx, force)
}

// LoadVoting requests a voting stats fetch.
func (p *Poller) LoadVoting(ctx context.Context, force bool) bool {
	return p.voting.Trigger(ctx, force)
}

// Run triggers all three fetches once, then every interval, until ctx is done. An interval
// of zero only performs the initial fetch.
func (p *Poller) Run(ctx context.Context) {
	p.LoadRound(ctx, true)
	p.LoadStats(ctx, true)
	p.LoadVoting(ctx, true)

	if p.interval <= 0 {
		<-ctx.Done()
		p.Stop()
		return
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	log.Debug().Dur("interval", p.interval).Msg("poller started")

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			log.Debug().Msg("poller stopped")
			return
		case <-ticker.Chan():
			p.LoadRound(ctx, false)
			p.LoadStats(ctx, false)
			p.LoadVoting(ctx, false)
		}
	}
}

// Stop cancels every pending deferred fetch.
func (p *Poller) Stop() {
	p.round.Stop()
	p.stats.Stop()
	p.voting.Stop()
}

func orNoop(fn func(ctx context.Context)) func(ctx context.Context) {
	if fn == nil {
		return func(context.Context) {}
	}
	return fn
}
