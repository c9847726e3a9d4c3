package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/rs/zerolog/log"
)

// effects collects the work a state change needs once the lock is released
type effects struct {
	leaveRoom    int64
	joinRoom     int64
	reloadRound  bool
	reloadVoting bool
	legacy       *legacyResult
	notify       bool
}

type legacyResult struct {
	characterID string
	votes       int
}

func (o *Orchestrator) runEffects(fx effects) {
	if fx.notify {
		o.notify()
	}
	if fx.leaveRoom != 0 || fx.joinRoom != 0 {
		o.joinRoom(o.ctx, fx.leaveRoom, fx.joinRoom)
	}
	if !fx.reloadRound && !fx.reloadVoting && fx.legacy == nil {
		return
	}
	o.async(func(ctx context.Context) {
		if fx.reloadRound {
			o.LoadRound(ctx, true)
		}
		if fx.reloadVoting {
			o.LoadVoting(ctx, true)
		}
		if fx.legacy != nil {
			o.submitLegacyResult(ctx, *fx.legacy)
		}
	})
}

func (o *Orchestrator) joinRoom(ctx context.Context, leave, join int64) {
	if o.channel == nil {
		return
	}
	if leave != 0 && leave != join {
		if err := o.channel.LeaveRound(ctx, leave); err != nil && !errors.Is(err, channel.ErrNotConnected) {
			log.Warn().Err(err).Int64("round_id", leave).Msg("failed to leave round room")
		}
	}
	if join != 0 {
		if err := o.channel.JoinRound(ctx, join); err != nil && !errors.Is(err, channel.ErrNotConnected) {
			log.Warn().Err(err).Int64("round_id", join).Msg("failed to join round room")
		}
	}
}

func (o *Orchestrator) submitLegacyResult(ctx context.Context, res legacyResult) {
	if o.api == nil {
		return
	}
	if err := o.api.SubmitVoteResult(ctx, res.characterID, res.votes); err != nil {
		log.Warn().Err(err).Str("character_id", res.characterID).Msg("legacy vote result submission failed")
		return
	}
	log.Info().Str("character_id", res.characterID).Int("votes", res.votes).Msg("legacy vote result submitted")
}

// checkRoundLocked reports whether an event for roundID applies to the current round.
// Zero means the current round. Older rounds are dropped; a newer round schedules a reload.
func (o *Orchestrator) checkRoundLocked(roundID int64, fx *effects) bool {
	cur := o.store.ID()
	switch {
	case roundID == 0:
		return cur != 0
	case roundID == cur:
		return true
	case roundID <= o.highestRoundID:
		log.Debug().Int64("round_id", roundID).Int64("current_round_id", cur).Msg("dropping event for stale round")
		return false
	default:
		log.Info().Int64("round_id", roundID).Int64("current_round_id", cur).Msg("event for newer round, reloading")
		fx.reloadRound = true
		return false
	}
}

// beginRoundLocked installs a fresh round in Waiting and resets every per-round flag.
func (o *Orchestrator) beginRoundLocked(id int64, judge string, fx *effects) {
	prevID := o.store.ID()
	prevPhase := o.store.Phase()

	o.store.Begin(id, judge)
	o.voting.Bind(id)
	if id > o.highestRoundID {
		o.highestRoundID = id
	}
	o.resetRoundFlagsLocked()
	o.clearResultsLockLocked()
	o.countdown.Start(0)
	o.timer.Stop()

	if prevID != id {
		fx.leaveRoom = prevID
		fx.joinRoom = id
	}
	fx.notify = true

	o.emitLocked(LifecycleEvent{
		Kind:           KindPhaseChanged,
		RoundID:        id,
		Previous:       prevPhase,
		Phase:          round.PhaseWaiting,
		JudgeCharacter: judge,
	})
	log.Info().Int64("round_id", id).Str("judge", judge).Msg("new round")
}

func (o *Orchestrator) resetRoundFlagsLocked() {
	o.userSubmitted = false
	o.submitting = false
	o.cancelSubmitTimerLocked()
	o.draft = ""
	o.proof = nil
	o.proofRound = 0
	o.submissionLocked = false
	o.resultSeen = false
}

// clearRoundLocked drops the cached round entirely and shows Waiting.
func (o *Orchestrator) clearRoundLocked(fx *effects) {
	id := o.store.ID()
	prev := o.store.Phase()
	o.store.Clear()
	o.resetRoundFlagsLocked()
	o.clearResultsLockLocked()
	o.timer.Stop()
	fx.notify = true
	fx.leaveRoom = id

	if prev != round.PhaseWaiting {
		o.emitLocked(LifecycleEvent{Kind: KindPhaseChanged, RoundID: id, Previous: prev, Phase: round.PhaseWaiting})
	}
}

// transitionLocked validates and applies a phase change and runs the phase-entry side
// effects. Returns false when the round was already in that phase.
func (o *Orchestrator) transitionLocked(to round.Phase, timeLeft int, fx *effects) (bool, error) {
	from := o.store.Phase()
	if err := o.store.SetPhase(to); err != nil {
		return false, err
	}
	if from == to {
		return false, nil
	}
	o.enterPhaseLocked(from, to, timeLeft, fx)
	return true, nil
}

func (o *Orchestrator) enterPhaseLocked(from, to round.Phase, timeLeft int, fx *effects) {
	id := o.store.ID()
	fx.notify = true

	switch to {
	case round.PhaseWriting, round.PhaseJudging:
		o.store.SetTimeLeft(timeLeft)
		o.timer.Start(timeLeft)
		o.checkVotingLockLocked(timeLeft)
	case round.PhaseResults:
		o.timer.Stop()
		o.enterResultsLocked(fx)
	default:
		o.timer.Stop()
	}

	cur := o.store.Current()
	o.emitLocked(LifecycleEvent{
		Kind:           KindPhaseChanged,
		RoundID:        id,
		Previous:       from,
		Phase:          to,
		JudgeCharacter: cur.JudgeCharacter,
		TimeLeft:       cur.TimeLeft,
	})
	log.Info().
		Int64("round_id", id).
		Stringer("from", from).
		Stringer("to", to).
		Int("time_left", timeLeft).
		Msg("phase changed")
}

// enterResultsLocked arms the results lock and the next-round countdown.
func (o *Orchestrator) enterResultsLocked(fx *effects) {
	id := o.store.ID()
	o.completedRoundID = id
	o.resultsLockRound = id
	o.resultsLockUntil = o.clock.Now().Add(o.cfg.ResultsLock)
	o.countdown.Start(int(o.cfg.NextRoundCountdown / time.Second))
	o.submitting = false
	o.cancelSubmitTimerLocked()

	if o.cfg.LegacyResultFallback && !o.resultSeen {
		if leader, votes, ok := o.voting.Leader(); ok {
			fx.legacy = &legacyResult{characterID: leader, votes: votes}
		} else {
			log.Debug().Int64("round_id", id).Msg("no plurality leader, leaving next judge to the server")
		}
	}

	cur := o.store.Current()
	o.emitLocked(LifecycleEvent{
		Kind:           KindRoundCompleted,
		RoundID:        id,
		Phase:          round.PhaseResults,
		JudgeCharacter: cur.JudgeCharacter,
		PrizePool:      cur.PrizePool,
		Participants:   cur.ParticipantCount,
		Result:         cur.Result,
	})
}

func (o *Orchestrator) resultsLockedLocked() bool {
	return o.resultsLockRound != 0 && o.clock.Now().Before(o.resultsLockUntil)
}

func (o *Orchestrator) clearResultsLockLocked() {
	o.resultsLockRound = 0
	o.resultsLockUntil = time.Time{}
}

func (o *Orchestrator) checkVotingLockLocked(timeLeft int) {
	if o.cfg.VotingLockThreshold <= 0 || timeLeft > o.cfg.VotingLockThreshold {
		return
	}
	if !o.voting.Locked() {
		o.voting.Lock()
		log.Info().Int64("round_id", o.store.ID()).Int("time_left", timeLeft).Msg("voting window closed")
	}
}

func (o *Orchestrator) onTimerTick(value int) {
	o.mu.Lock()
	if o.store.Phase().Timed() {
		o.checkVotingLockLocked(value)
	}
	o.mu.Unlock()
	o.notify()
}

// onCountdownTick clears the finished round when the next-round countdown reaches zero and
// asks for a fresh round.
func (o *Orchestrator) onCountdownTick(value int) {
	if value > 0 {
		o.notify()
		return
	}

	o.mu.Lock()
	if o.store.Phase() != round.PhaseResults {
		o.mu.Unlock()
		o.notify()
		return
	}
	id := o.store.ID()
	fx := effects{reloadRound: true}
	o.clearRoundLocked(&fx)
	o.mu.Unlock()

	log.Info().Int64("round_id", id).Msg("next round countdown finished")
	o.runEffects(fx)
}

// applyNoRoundLocked handles the expected-empty response: the game is waiting.
func (o *Orchestrator) applyNoRoundLocked() effects {
	var fx effects
	if o.store.ID() == 0 {
		return fx
	}
	if o.resultsLockedLocked() || o.store.Phase() == round.PhaseResults {
		// results stay on screen until the countdown clears them
		return fx
	}
	log.Info().Int64("round_id", o.store.ID()).Msg("no active round")
	o.clearRoundLocked(&fx)
	return fx
}

// applySnapshotLocked reconciles a server snapshot from a poll or a round-updated event.
func (o *Orchestrator) applySnapshotLocked(snap *events.RoundSnapshot) effects {
	var fx effects
	if snap == nil || snap.ID == 0 {
		return fx
	}
	if o.resultsLockedLocked() {
		log.Debug().Int64("round_id", snap.ID).Msg("snapshot ignored during results lock")
		return fx
	}
	if snap.ID < o.highestRoundID {
		log.Debug().Int64("round_id", snap.ID).Int64("highest_round_id", o.highestRoundID).Msg("dropping stale snapshot")
		return fx
	}
	if snap.ID == o.completedRoundID && o.store.ID() != snap.ID {
		log.Debug().Int64("round_id", snap.ID).Msg("round already completed")
		return fx
	}

	next, err := round.FromSnapshot(snap)
	if err != nil {
		log.Warn().Err(err).Int64("round_id", snap.ID).Msg("dropping invalid snapshot")
		return fx
	}

	if next.ID != o.store.ID() {
		o.beginRoundLocked(next.ID, next.JudgeCharacter, &fx)
		fx.reloadVoting = true
	}

	cur := o.store.Current()
	if !round.CanTransition(cur.Phase, next.Phase) {
		log.Warn().
			Err(round.Transition(cur.Phase, next.Phase)).
			Int64("round_id", next.ID).
			Msg("dropping snapshot")
		return fx
	}

	merged := next.Clone()
	merged.Phase = cur.Phase
	merged.Submissions = cur.Submissions
	// the first result recorded for a round sticks
	if cur.Result != nil {
		res := *cur.Result
		if res.Payout == nil && merged.Result != nil && merged.Result.Payout != nil {
			res.Payout = merged.Result.Payout
		}
		merged.Result = &res
	}
	o.store.Load(merged)
	for _, s := range next.Submissions {
		o.store.AddSubmission(s)
	}
	fx.notify = true

	if next.Phase != cur.Phase {
		if _, err := o.transitionLocked(next.Phase, next.TimeLeft, &fx); err != nil {
			log.Warn().Err(err).Int64("round_id", next.ID).Msg("dropping snapshot phase")
		}
	} else if next.Phase.Timed() {
		o.timer.Reconcile(next.TimeLeft)
		o.checkVotingLockLocked(next.TimeLeft)
	}

	o.confirmSubmissionLocked()
	return fx
}

// confirmSubmissionLocked marks the wallet as submitted once the round lists its roast.
func (o *Orchestrator) confirmSubmissionLocked() {
	addr := o.identity.Identity().Address
	if addr == "" || o.userSubmitted || !o.store.HasSubmitted(addr) {
		return
	}
	o.userSubmitted = true
	o.submitting = false
	o.draft = ""
	o.cancelSubmitTimerLocked()
}
