package voting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roast-arena/go/clients/arena_api_client"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/wallet"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultSpamWindow is the minimum spacing between two vote requests
const DefaultSpamWindow = 3 * time.Second

// ErrVoteFailed is surfaced when neither the channel nor the REST backup accepted the vote
var ErrVoteFailed = errors.New("failed to cast vote")

// Backend defines what the voting manager needs from the REST API
type Backend interface {
	VotingStats(ctx context.Context, roundID int64) (*events.VotingStats, error)
	UserVote(ctx context.Context, roundID int64, address string) (*events.UserVote, error)
	CastVote(ctx context.Context, roundID int64, address, characterID string) error
}

// Sender defines what the voting manager needs from the event channel
type Sender interface {
	CastVote(ctx context.Context, roundID int64, characterID string) error
}

// State is an immutable copy of the voting state for one round
type State struct {
	RoundID    int64            `json:"round_id"`
	Votes      map[string]int   `json:"votes"`
	TotalVotes int              `json:"total_votes"`
	Locked     bool             `json:"locked"`
	UserVote   string           `json:"user_vote,omitempty"`
	Voting     bool             `json:"voting"`
	Error      string           `json:"error,omitempty"`
	LastVote   *events.LastVote `json:"last_vote,omitempty"`
	Result     *Result          `json:"result,omitempty"`
}

// HasVoted reports whether a confirmed vote exists for the wallet.
func (s State) HasVoted() bool {
	return s.UserVote != ""
}

// Manager owns the tally, the wallet's single vote and the lock for the current round.
//
// The wallet's vote is only recorded from a server confirmation (vote-cast-success or the
// recorded vote fetched back from the API), never optimistically.
type Manager struct {
	clock      clockwork.Clock
	backend    Backend
	sender     Sender
	identity   wallet.Provider
	spamWindow time.Duration

	mu         sync.Mutex
	roundID    int64
	votes      map[string]int
	totalVotes int
	locked     bool
	userVote   string
	voting     bool
	errMsg     string
	lastVote   *events.LastVote
	result     *Result
	guard      *rate.Limiter
}

// NewManager creates a voting manager with no round.
func NewManager(clock clockwork.Clock, backend Backend, sender Sender, identity wallet.Provider, spamWindow time.Duration) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if spamWindow <= 0 {
		spamWindow = DefaultSpamWindow
	}
	m := &Manager{
		clock:      clock,
		backend:    backend,
		sender:     sender,
		identity:   identity,
		spamWindow: spamWindow,
	}
	m.resetLocked(0)
	return m
}

// Reset clears every piece of voting state and binds the manager to roundID.
func (m *Manager) Reset(roundID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked(roundID)
}

func (m *Manager) resetLocked(roundID int64) {
	m.roundID = roundID
	m.votes = map[string]int{}
	m.totalVotes = 0
	m.locked = false
	m.userVote = ""
	m.voting = false
	m.errMsg = ""
	m.lastVote = nil
	m.result = nil
	m.guard = rate.NewLimiter(rate.Every(m.spamWindow), 1)
}

// Bind adopts roundID without clearing state when it is already the current round.
func (m *Manager) Bind(roundID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roundID != roundID {
		m.resetLocked(roundID)
	}
}

// RoundID returns the round the manager is bound to.
func (m *Manager) RoundID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundID
}

// LoadStats fetches the tally and lock status and, for an authenticated wallet, adopts the
// vote the server already recorded.
func (m *Manager) LoadStats(ctx context.Context) error {
	roundID := m.RoundID()
	if roundID == 0 || m.backend == nil {
		return nil
	}

	stats, err := m.backend.VotingStats(ctx, roundID)
	if err != nil {
		if errors.Is(err, arena_api_client.ErrRateLimited) {
			log.Debug().Int64("round_id", roundID).Msg("voting stats rate limited")
			return nil
		}
		return err
	}

	m.mu.Lock()
	if m.roundID == roundID {
		m.applyStatsLocked(*stats)
	}
	m.mu.Unlock()

	return m.reconcile(ctx, roundID, false)
}

// CastVote votes for characterID. It returns false without contacting anything when a guard
// rejects the call: no identity, no round, a vote in flight, a vote already confirmed,
// voting locked, or a previous request inside the spam window.
func (m *Manager) CastVote(ctx context.Context, characterID string) bool {
	id := m.currentIdentity()

	m.mu.Lock()
	switch {
	case !id.Authenticated || id.Address == "":
		m.mu.Unlock()
		return false
	case m.roundID == 0 || characterID == "":
		m.mu.Unlock()
		return false
	case m.voting || m.userVote != "" || m.locked:
		m.mu.Unlock()
		return false
	}
	if !m.guard.AllowN(m.clock.Now(), 1) {
		m.mu.Unlock()
		log.Debug().Str("character_id", characterID).Msg("vote ignored by spam guard")
		return false
	}
	roundID := m.roundID
	m.voting = true
	m.errMsg = ""
	m.mu.Unlock()

	var primaryErr, backupErr error
	if m.sender != nil {
		primaryErr = m.sender.CastVote(ctx, roundID, characterID)
	} else {
		primaryErr = errors.New("no event channel")
	}
	if primaryErr != nil {
		log.Warn().Err(primaryErr).Int64("round_id", roundID).Msg("vote over event channel failed")
	}

	if m.backend != nil {
		backupErr = m.backend.CastVote(ctx, roundID, id.Address, characterID)
	} else {
		backupErr = errors.New("no api backend")
	}

	switch {
	case arena_api_client.IsAlreadyVoted(backupErr):
		// the server holds a vote for this wallet; adopt whatever it recorded
		if err := m.reconcile(ctx, roundID, true); err != nil {
			log.Warn().Err(err).Int64("round_id", roundID).Msg("failed to fetch recorded vote")
		}
	case backupErr != nil && primaryErr != nil:
		log.Error().Err(backupErr).Int64("round_id", roundID).Msg("vote failed on both paths")
		m.mu.Lock()
		if m.roundID == roundID {
			m.voting = false
			m.errMsg = ErrVoteFailed.Error()
		}
		m.mu.Unlock()
	case backupErr != nil:
		log.Warn().Err(backupErr).Int64("round_id", roundID).Msg("backup vote call failed")
	case primaryErr != nil:
		// no confirmation event will come over a dead channel
		if err := m.reconcile(ctx, roundID, true); err != nil {
			log.Warn().Err(err).Int64("round_id", roundID).Msg("failed to fetch recorded vote")
		}
	}
	return true
}

// Confirm records the server-confirmed vote. The server value wins over what was requested.
func (m *Manager) Confirm(characterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if characterID != "" {
		m.userVote = characterID
	}
	m.voting = false
	m.errMsg = ""
}

// Reject handles a server error event. ALREADY_VOTED is reconciled against the recorded vote;
// any other error only counts as a rejection while a vote is in flight. Returns whether the
// error was consumed.
func (m *Manager) Reject(ctx context.Context, code, message string) bool {
	if code == events.CodeAlreadyVoted {
		roundID := m.RoundID()
		if err := m.reconcile(ctx, roundID, true); err != nil {
			log.Warn().Err(err).Int64("round_id", roundID).Msg("failed to fetch recorded vote")
		}
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.voting {
		return false
	}
	m.voting = false
	m.errMsg = message
	if m.errMsg == "" {
		m.errMsg = ErrVoteFailed.Error()
	}
	return true
}

// Lock closes the voting window. Nothing reopens it except Reset.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = true
}

// Locked reports whether the voting window is closed.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// ApplyUpdate replaces the tally from a voting-update event. Ignored once locked.
func (m *Manager) ApplyUpdate(p events.VotingUpdatePayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.applyStatsLocked(p.VotingStats)
	if p.LastVote != nil {
		lv := *p.LastVote
		m.lastVote = &lv
	}
	return true
}

// ApplyResult records the accepted outcome for the next judge.
func (m *Manager) ApplyResult(p events.VotingResultPayload) Result {
	res := ResultFromPayload(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = &res
	return res
}

// ClearError dismisses the voting error banner.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
}

// Leader returns the plurality leader of the current tally. ok is false on a tie or no votes.
func (m *Manager) Leader() (characterID string, votes int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tied := false
	for id, n := range m.votes {
		switch {
		case n > votes:
			characterID, votes, tied = id, n, false
		case n == votes && n > 0:
			tied = true
		}
	}
	return characterID, votes, votes > 0 && !tied
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		RoundID:    m.roundID,
		Votes:      make(map[string]int, len(m.votes)),
		TotalVotes: m.totalVotes,
		Locked:     m.locked,
		UserVote:   m.userVote,
		Voting:     m.voting,
		Error:      m.errMsg,
	}
	for k, v := range m.votes {
		s.Votes[k] = v
	}
	if m.lastVote != nil {
		lv := *m.lastVote
		s.LastVote = &lv
	}
	if m.result != nil {
		r := m.result.clone()
		s.Result = &r
	}
	return s
}

// applyStatsLocked replaces counts unless already locked, then adopts the server lock flag.
func (m *Manager) applyStatsLocked(stats events.VotingStats) {
	if m.locked {
		return
	}
	m.votes = make(map[string]int, len(stats.Votes))
	total := 0
	for k, v := range stats.Votes {
		if v < 0 {
			v = 0
		}
		m.votes[k] = v
		total += v
	}
	m.totalVotes = stats.TotalVotes
	if m.totalVotes < total {
		m.totalVotes = total
	}
	if stats.IsLocked {
		m.locked = true
	}
}

// reconcile fetches the wallet's recorded vote and adopts it. With settle set the in-flight
// flag is cleared even when the server has no vote on record.
func (m *Manager) reconcile(ctx context.Context, roundID int64, settle bool) error {
	id := m.currentIdentity()
	if roundID == 0 || !id.Authenticated || id.Address == "" || m.backend == nil {
		return nil
	}

	vote, err := m.backend.UserVote(ctx, roundID, id.Address)
	if err != nil {
		if settle {
			m.mu.Lock()
			if m.roundID == roundID {
				m.voting = false
			}
			m.mu.Unlock()
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roundID != roundID {
		return nil
	}
	if vote.HasVoted && vote.CharacterID != "" {
		m.userVote = vote.CharacterID
		m.voting = false
		m.errMsg = ""
	} else if settle {
		m.voting = false
	}
	return nil
}

func (m *Manager) currentIdentity() wallet.Identity {
	if m.identity == nil {
		return wallet.Identity{}
	}
	return m.identity.Identity()
}
