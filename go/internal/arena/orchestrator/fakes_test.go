package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roast-arena/go/clients/arena_api_client"
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/payment"
	"github.com/mcdev12/roast-arena/go/internal/arena/wallet"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	player   = "0xplayer"
	treasury = "0xtreasury"
	waitFor  = time.Second
	tick     = 5 * time.Millisecond
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// fakeChannel delivers events through a real registry and records outbound commands.
type fakeChannel struct {
	*channel.Registry

	mu        sync.Mutex
	identity  string
	joined    []int64
	left      []int64
	roasts    []events.SubmitRoastPayload
	votes     []events.CastVotePayload
	submitErr error
	voteErr   error
	stateFns  []func(channel.ConnectionState)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{Registry: channel.NewRegistry()}
}

func (f *fakeChannel) OnStateChange(fn func(channel.ConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateFns = append(f.stateFns, fn)
}

func (f *fakeChannel) SetIdentity(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = address
}

func (f *fakeChannel) JoinRound(ctx context.Context, roundID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roundID)
	return nil
}

func (f *fakeChannel) LeaveRound(ctx context.Context, roundID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, roundID)
	return nil
}

func (f *fakeChannel) SubmitRoast(ctx context.Context, roundID int64, text string, proof events.PaymentProof) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roasts = append(f.roasts, events.SubmitRoastPayload{RoundID: roundID, RoastText: text, PaymentProof: proof})
	return f.submitErr
}

func (f *fakeChannel) CastVote(ctx context.Context, roundID int64, characterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, events.CastVotePayload{RoundID: roundID, CharacterID: characterID})
	return f.voteErr
}

func (f *fakeChannel) setState(state channel.ConnectionState) {
	f.mu.Lock()
	fns := append(([]func(channel.ConnectionState))(nil), f.stateFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (f *fakeChannel) roastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.roasts)
}

func (f *fakeChannel) voteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes)
}

// fakeAPI serves a configurable round. With nothing configured every read is rate limited,
// which the orchestrator treats as a silent no-op.
type fakeAPI struct {
	mu         sync.Mutex
	snapshot   *events.RoundSnapshot
	roundErr   error
	roundCalls int
	userVote   *events.UserVote
	castVotes  int
	legacy     []legacyResult
}

func (f *fakeAPI) setSnapshot(s *events.RoundSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
	f.roundErr = nil
}

func (f *fakeAPI) setRoundErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = nil
	f.roundErr = err
}

func (f *fakeAPI) rounds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roundCalls
}

func (f *fakeAPI) legacyCalls() []legacyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]legacyResult(nil), f.legacy...)
}

func (f *fakeAPI) CurrentRound(ctx context.Context) (*events.RoundSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roundCalls++
	if f.roundErr != nil {
		return nil, f.roundErr
	}
	if f.snapshot == nil {
		return nil, arena_api_client.ErrRateLimited
	}
	s := *f.snapshot
	return &s, nil
}

func (f *fakeAPI) GameStats(ctx context.Context) (*events.GameStats, error) {
	return &events.GameStats{TotalPlayers: 3}, nil
}

func (f *fakeAPI) SubmitVoteResult(ctx context.Context, characterID string, totalVotes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.legacy = append(f.legacy, legacyResult{characterID: characterID, votes: totalVotes})
	return nil
}

func (f *fakeAPI) VotingStats(ctx context.Context, roundID int64) (*events.VotingStats, error) {
	return nil, arena_api_client.ErrRateLimited
}

func (f *fakeAPI) UserVote(ctx context.Context, roundID int64, address string) (*events.UserVote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userVote == nil {
		return &events.UserVote{}, nil
	}
	v := *f.userVote
	return &v, nil
}

func (f *fakeAPI) CastVote(ctx context.Context, roundID int64, address, characterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.castVotes++
	return nil
}

type mockPayer struct {
	mock.Mock
}

func (m *mockPayer) PayEntryFee(ctx context.Context, req payment.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordingSink) Publish(ctx context.Context, ev LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) kinds() []LifecycleKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	clock fakeClock
	api   *fakeAPI
	ch    *fakeChannel
	payer *mockPayer
	id    *wallet.Static
	sink  *recordingSink
}

func newHarness(t *testing.T, mutate ...func(cfg *Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TreasuryAddress = treasury
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClock(),
		api:   &fakeAPI{},
		ch:    newFakeChannel(),
		payer: &mockPayer{},
		id:    wallet.NewStatic(player),
		sink:  &recordingSink{},
	}
	h.o = New(cfg, Deps{
		Clock:    h.clock,
		API:      h.api,
		Channel:  h.ch,
		Identity: h.id,
		Payer:    h.payer,
		Sinks:    []LifecycleSink{h.sink},
	})
	t.Cleanup(h.o.Close)
	return h
}

func (h *harness) emit(t events.Type, payload interface{}) {
	h.t.Helper()
	ev, err := events.New(t, payload)
	require.NoError(h.t, err)
	h.ch.Dispatch(ev)
}

// startWriting puts round id in Writing with timeLeft seconds on the clock.
func (h *harness) startWriting(id int64, timeLeft int) {
	h.t.Helper()
	h.emit(events.TypeRoundUpdated, events.RoundSnapshot{
		ID:             id,
		Status:         "active",
		JudgeCharacter: "chef-inferno",
		PrizePool:      0.05,
		TimeLeft:       timeLeft,
	})
	v := h.o.View()
	require.Equal(h.t, id, v.RoundID)
	require.Equal(h.t, "writing", v.Phase.String())
}

func (h *harness) complete(id int64, winner string) {
	h.t.Helper()
	h.emit(events.TypeRoundCompleted, events.RoundCompletedPayload{
		RoundID:       id,
		Character:     "chef-inferno",
		WinnerAddress: winner,
		WinningRoast:  "roast by " + winner,
		AIReasoning:   "it burned",
	})
}
