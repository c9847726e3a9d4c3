package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roast-arena/go/clients/arena_api_client"
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/judges"
	"github.com/mcdev12/roast-arena/go/internal/arena/payment"
	"github.com/mcdev12/roast-arena/go/internal/arena/poller"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/mcdev12/roast-arena/go/internal/arena/timer"
	"github.com/mcdev12/roast-arena/go/internal/arena/voting"
	"github.com/mcdev12/roast-arena/go/internal/arena/wallet"
	"github.com/rs/zerolog/log"
)

// Config holds the lifecycle tuning constants
type Config struct {
	TreasuryAddress      string
	EntryFee             float64
	DriftTolerance       int
	ResultsLock          time.Duration
	NextRoundCountdown   time.Duration
	VotingLockThreshold  int
	SpamWindow           time.Duration
	RequestTimeout       time.Duration
	LegacyResultFallback bool
	Poll                 poller.Config
}

// DefaultConfig returns the default lifecycle configuration
func DefaultConfig() Config {
	return Config{
		EntryFee:            payment.DefaultEntryFee,
		DriftTolerance:      timer.DefaultDriftTolerance,
		ResultsLock:         20 * time.Second,
		NextRoundCountdown:  30 * time.Second,
		VotingLockThreshold: 10,
		SpamWindow:          voting.DefaultSpamWindow,
		RequestTimeout:      arena_api_client.DefaultTimeout,
		Poll:                poller.DefaultConfig(),
	}
}

// API defines what the orchestrator needs from the REST API
type API interface {
	voting.Backend
	CurrentRound(ctx context.Context) (*events.RoundSnapshot, error)
	GameStats(ctx context.Context) (*events.GameStats, error)
	SubmitVoteResult(ctx context.Context, characterID string, totalVotes int) error
}

// Channel defines what the orchestrator needs from the event channel
type Channel interface {
	voting.Sender
	Subscribe(t events.Type, h channel.Handler) *channel.Subscription
	OnStateChange(fn func(channel.ConnectionState))
	SetIdentity(address string)
	JoinRound(ctx context.Context, roundID int64) error
	LeaveRound(ctx context.Context, roundID int64) error
	SubmitRoast(ctx context.Context, roundID int64, text string, proof events.PaymentProof) error
}

// Orchestrator is the client-side round state machine. It is the only writer of the round
// store and the only caller of the local timer.
type Orchestrator struct {
	cfg      Config
	clock    clockwork.Clock
	api      API
	channel  Channel
	identity wallet.Provider
	payer    payment.Payer
	judges   *judges.Registry

	voting    *voting.Manager
	timer     *timer.Engine
	countdown *timer.Engine
	poller    *poller.Poller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	store            *round.Store
	highestRoundID   int64
	completedRoundID int64
	resultsLockRound int64
	resultsLockUntil time.Time
	resultSeen       bool
	userSubmitted    bool
	submitting       bool
	submitEpoch      uint64
	submitTimer      clockwork.Timer
	submissionLocked bool
	draft            string
	proof            *events.PaymentProof
	proofRound       int64
	errMsg           string
	totalPlayers     int
	conn             channel.ConnectionState
	subs             channel.Subscriptions
	listeners        map[uint64]func(View)
	nextListener     uint64

	sinks  []LifecycleSink
	sinkCh chan LifecycleEvent
}

// Deps are the collaborators the orchestrator composes
type Deps struct {
	Clock    clockwork.Clock
	API      API
	Channel  Channel
	Identity wallet.Provider
	Payer    payment.Payer
	Judges   *judges.Registry
	Sinks    []LifecycleSink
}

// New wires the orchestrator and subscribes it to every inbound event type.
func New(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.EntryFee <= 0 {
		cfg.EntryFee = def.EntryFee
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = def.DriftTolerance
	}
	if cfg.ResultsLock <= 0 {
		cfg.ResultsLock = def.ResultsLock
	}
	if cfg.NextRoundCountdown <= 0 {
		cfg.NextRoundCountdown = def.NextRoundCountdown
	}
	if cfg.VotingLockThreshold < 0 {
		cfg.VotingLockThreshold = def.VotingLockThreshold
	}
	if cfg.SpamWindow <= 0 {
		cfg.SpamWindow = def.SpamWindow
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	identity := deps.Identity
	if identity == nil {
		identity = wallet.NewStatic("")
	}
	registry := deps.Judges
	if registry == nil {
		registry = judges.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		clock:     clock,
		api:       deps.API,
		channel:   deps.Channel,
		identity:  identity,
		payer:     deps.Payer,
		judges:    registry,
		ctx:       ctx,
		cancel:    cancel,
		store:     round.NewStore(),
		listeners: make(map[uint64]func(View)),
		sinks:     deps.Sinks,
		sinkCh:    make(chan LifecycleEvent, 100),
	}

	o.voting = voting.NewManager(clock, deps.API, deps.Channel, identity, cfg.SpamWindow)
	o.timer = timer.New(clock, cfg.DriftTolerance, o.onTimerTick)
	o.countdown = timer.New(clock, 0, o.onCountdownTick)
	o.poller = poller.New(ctx, clock, cfg.Poll, poller.Targets{
		Round:  o.fetchRound,
		Stats:  o.fetchStats,
		Voting: o.fetchVoting,
	})

	if o.channel != nil {
		o.mu.Lock()
		o.subscribeLocked()
		o.mu.Unlock()
		o.channel.SetIdentity(identity.Identity().Address)
		o.channel.OnStateChange(o.onConnectionState)
	}
	return o
}

// Run drives periodic reconciliation and lifecycle sinks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Dur("results_lock", o.cfg.ResultsLock).
		Dur("next_round_countdown", o.cfg.NextRoundCountdown).
		Msg("round orchestrator started")

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.dispatchSinks(ctx)
	}()
	go func() {
		defer o.wg.Done()
		o.poller.Run(ctx)
	}()

	<-ctx.Done()
	o.Close()
	log.Info().Msg("round orchestrator stopped")
	return nil
}

// Close stops timers, pending fetches and subscriptions and waits for background work.
func (o *Orchestrator) Close() {
	o.cancel()
	o.poller.Stop()
	o.timer.Stop()
	o.countdown.Stop()

	o.mu.Lock()
	o.subs.Unsubscribe()
	o.subs = nil
	o.cancelSubmitTimerLocked()
	o.mu.Unlock()

	o.wg.Wait()
}

// Subscribe registers fn to receive a fresh View after every state change. The returned
// func removes it.
func (o *Orchestrator) Subscribe(fn func(View)) func() {
	o.mu.Lock()
	o.nextListener++
	id := o.nextListener
	o.listeners[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// View returns an immutable copy of the client state.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// ClearError dismisses the error banner, including the voting error.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	o.errMsg = ""
	o.mu.Unlock()
	o.voting.ClearError()
	o.notify()
}

// Rebind re-reads the wallet identity, drops every event subscription and subscribes again,
// then re-handshakes the channel under the new identity.
func (o *Orchestrator) Rebind(ctx context.Context) {
	id := o.identity.Identity()

	o.mu.Lock()
	if o.channel != nil {
		o.subscribeLocked()
	}
	roundID := o.store.ID()
	o.userSubmitted = id.Address != "" && o.store.HasSubmitted(id.Address)
	if o.proof != nil && o.proof.From != id.Address {
		o.proof = nil
		o.proofRound = 0
	}
	o.submitting = false
	o.cancelSubmitTimerLocked()
	o.voting.Reset(roundID)
	o.mu.Unlock()

	log.Info().Str("address", id.Address).Int64("round_id", roundID).Msg("rebinding identity")

	if o.channel != nil {
		o.channel.SetIdentity(id.Address)
	}
	o.notify()
	o.LoadVoting(ctx, true)
}

// LoadRound requests a round snapshot. A forced load bypasses the debounce window and
// clears the results lock.
func (o *Orchestrator) LoadRound(ctx context.Context, force bool) {
	if force {
		o.mu.Lock()
		o.clearResultsLockLocked()
		o.mu.Unlock()
	}
	o.poller.LoadRound(ctx, force)
}

// LoadVoting requests a voting stats fetch.
func (o *Orchestrator) LoadVoting(ctx context.Context, force bool) {
	o.poller.LoadVoting(ctx, force)
}

// LoadStats requests a game stats fetch.
func (o *Orchestrator) LoadStats(ctx context.Context, force bool) {
	o.poller.LoadStats(ctx, force)
}

// subscribeLocked disposes the current subscriptions and registers a fresh set.
func (o *Orchestrator) subscribeLocked() {
	o.subs.Unsubscribe()
	subs := make(channel.Subscriptions, 0, len(events.InboundTypes))
	for _, t := range events.InboundTypes {
		subs = append(subs, o.channel.Subscribe(t, o.handleChannelEvent))
	}
	o.subs = subs
}

func (o *Orchestrator) handleChannelEvent(ev *events.Event) {
	if err := o.HandleEvent(o.ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to handle event")
	}
}

func (o *Orchestrator) onConnectionState(state channel.ConnectionState) {
	o.mu.Lock()
	o.conn = state
	roundID := o.store.ID()
	o.mu.Unlock()

	if state.Connected {
		// events emitted during the gap are lost; reconcile from REST
		if roundID != 0 {
			o.joinRoom(o.ctx, 0, roundID)
		}
		o.async(func(ctx context.Context) {
			o.LoadRound(ctx, true)
			o.LoadVoting(ctx, true)
		})
	}
	o.notify()
}

func (o *Orchestrator) fetchRound(ctx context.Context) {
	if o.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	snap, err := o.api.CurrentRound(ctx)
	switch {
	case errors.Is(err, arena_api_client.ErrNoActiveRound):
		o.mu.Lock()
		fx := o.applyNoRoundLocked()
		o.mu.Unlock()
		o.runEffects(fx)
		return
	case errors.Is(err, arena_api_client.ErrRateLimited):
		log.Debug().Msg("round fetch rate limited, retrying next cycle")
		return
	case err != nil:
		if ctx.Err() != nil && o.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("failed to load current round")
		o.mu.Lock()
		o.errMsg = fmt.Sprintf("Failed to load round: %v", err)
		o.mu.Unlock()
		o.notify()
		return
	}

	o.mu.Lock()
	fx := o.applySnapshotLocked(snap)
	o.mu.Unlock()
	o.runEffects(fx)
}

func (o *Orchestrator) fetchStats(ctx context.Context) {
	if o.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	stats, err := o.api.GameStats(ctx)
	if err != nil {
		if !errors.Is(err, arena_api_client.ErrRateLimited) {
			log.Warn().Err(err).Msg("failed to load game stats")
		}
		return
	}
	o.mu.Lock()
	o.totalPlayers = stats.TotalPlayers
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) fetchVoting(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	if err := o.voting.LoadStats(ctx); err != nil {
		log.Warn().Err(err).Int64("round_id", o.voting.RoundID()).Msg("failed to load voting stats")
		return
	}
	o.notify()
}

// async runs fn in the background with a request-scoped context.
func (o *Orchestrator) async(fn func(ctx context.Context)) {
	if o.ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.cfg.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	view := o.viewLocked()
	listeners := make([]func(View), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}
