package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/rs/zerolog/log"
)

// HandleEvent applies one inbound event and routes it to its handler.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *events.Event) error {
	payload, err := events.ParsePayload(ev)
	if err != nil {
		return err
	}

	log.Debug().Str("event_type", string(ev.Type)).Str("event_id", ev.ID).Msg("handling event")

	var fx effects
	switch p := payload.(type) {
	case *events.ConnectionStatusPayload:
		log.Info().Bool("connected", p.Connected).Str("client_id", p.ClientID).Msg("connection status")

	case *events.AuthenticatedPayload:
		fx = o.handleAuthenticated(p)

	case *events.RoundCreatedPayload:
		fx = o.handleRoundCreated(p)

	case *events.RoundSnapshot:
		o.mu.Lock()
		fx = o.applySnapshotLocked(p)
		o.mu.Unlock()

	case *events.TimerUpdatePayload:
		fx = o.handleTimerUpdate(p)

	case *events.PlayerJoinedPayload:
		fx = o.handlePlayerJoined(p)

	case *events.JudgingStartedPayload:
		fx = o.handleJudgingStarted(p)

	case *events.RoundCompletedPayload:
		fx = o.handleRoundCompleted(p)

	case *events.RoastSubmittedPayload:
		fx = o.handleRoastSubmitted(p)

	case *events.PrizeDistributedPayload:
		fx = o.handlePrizeDistributed(p)

	case *events.VotingUpdatePayload:
		fx.notify = o.voting.ApplyUpdate(*p)

	case *events.VoteCastSuccessPayload:
		o.voting.Confirm(p.CharacterID)
		fx.notify = true

	case *events.VotingLockedPayload:
		fx = o.handleVotingLocked(p)

	case *events.VotingResetPayload:
		fx = o.handleVotingReset(p)

	case *events.VotingResultPayload:
		o.mu.Lock()
		o.resultSeen = true
		o.mu.Unlock()
		res := o.voting.ApplyResult(*p)
		log.Info().
			Str("character_id", res.CharacterID).
			Str("kind", string(res.Kind)).
			Int("total_votes", res.TotalVotes).
			Msg("next judge accepted")
		fx.notify = true

	case *events.SubmissionLockedPayload:
		fx = o.handleSubmissionLocked(p)

	case *events.ErrorPayload:
		fx = o.handleError(ctx, p)

	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("unknown event type - ignoring")
		return nil
	}

	o.runEffects(fx)
	return nil
}

func (o *Orchestrator) handleAuthenticated(p *events.AuthenticatedPayload) effects {
	if p.Success {
		log.Info().Str("address", p.Address).Msg("event channel authenticated")
		return effects{reloadVoting: true}
	}
	o.mu.Lock()
	o.errMsg = "Wallet authentication failed"
	o.mu.Unlock()
	return effects{notify: true}
}

func (o *Orchestrator) handleRoundCreated(p *events.RoundCreatedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if p.RoundID == 0 {
		return fx
	}
	if p.RoundID < o.highestRoundID {
		log.Debug().Int64("round_id", p.RoundID).Msg("dropping stale round-created")
		return fx
	}
	// a poll may have installed this round before the push arrived
	if p.RoundID <= o.store.ID() {
		return fx
	}

	o.beginRoundLocked(p.RoundID, p.JudgeCharacter, &fx)
	o.voting.Reset(p.RoundID)
	// confirm the push against REST
	fx.reloadRound = true
	return fx
}

func (o *Orchestrator) handleTimerUpdate(p *events.TimerUpdatePayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	if !o.store.Phase().Timed() {
		return fx
	}
	o.store.SetTimeLeft(p.TimeLeft)
	if o.timer.Reconcile(p.TimeLeft) {
		log.Debug().Int64("round_id", o.store.ID()).Int("time_left", p.TimeLeft).Msg("timer drift corrected")
	}
	o.checkVotingLockLocked(p.TimeLeft)
	fx.notify = true
	return fx
}

func (o *Orchestrator) handlePlayerJoined(p *events.PlayerJoinedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	o.store.UpdateParticipants(p.ParticipantCount, p.PrizePool)
	fx.notify = true
	return fx
}

func (o *Orchestrator) handleJudgingStarted(p *events.JudgingStartedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	if _, err := o.transitionLocked(round.PhaseJudging, p.TimeLeft, &fx); err != nil {
		log.Warn().Err(err).Int64("round_id", o.store.ID()).Msg("dropping judging-started")
	}
	return fx
}

func (o *Orchestrator) handleRoundCompleted(p *events.RoundCompletedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	id := o.store.ID()
	if o.store.Phase() == round.PhaseResults || o.resultsLockedLocked() || o.completedRoundID == id {
		log.Debug().Int64("round_id", id).Msg("duplicate round-completed ignored")
		return fx
	}
	if !round.CanTransition(o.store.Phase(), round.PhaseResults) {
		return fx
	}

	judge := p.Character
	if judge == "" {
		judge = o.store.Current().JudgeCharacter
	}
	o.store.SetResult(round.Result{
		WinnerAddress:    p.WinnerAddress,
		WinningRoastText: p.WinningRoast,
		AIReasoningText:  p.AIReasoning,
		JudgeCharacter:   judge,
	})
	if _, err := o.transitionLocked(round.PhaseResults, 0, &fx); err != nil {
		log.Warn().Err(err).Int64("round_id", id).Msg("dropping round-completed")
		o.store.ClearResult()
		return fx
	}
	log.Info().Int64("round_id", id).Str("winner", p.WinnerAddress).Msg("round completed")
	return fx
}

func (o *Orchestrator) handleRoastSubmitted(p *events.RoastSubmittedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	o.store.AddSubmission(round.Submission{SubmitterAddress: p.PlayerAddress, RoastText: p.RoastText})
	o.confirmSubmissionLocked()
	fx.notify = true
	return fx
}

func (o *Orchestrator) handlePrizeDistributed(p *events.PrizeDistributedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	payout := round.Payout{Amount: p.Amount, TxHash: p.TxHash}
	if !o.store.RecordPayout(p.WinnerAddress, payout) {
		log.Debug().Int64("round_id", o.store.ID()).Msg("payout without matching result")
		return fx
	}
	cur := o.store.Current()
	o.emitLocked(LifecycleEvent{
		Kind:           KindPrizeDistributed,
		RoundID:        cur.ID,
		Phase:          cur.Phase,
		JudgeCharacter: cur.JudgeCharacter,
		Result:         cur.Result,
	})
	fx.notify = true
	return fx
}

func (o *Orchestrator) handleVotingLocked(p *events.VotingLockedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if p.RoundID != 0 && p.RoundID != o.voting.RoundID() {
		return fx
	}
	o.voting.Lock()
	fx.notify = true
	return fx
}

func (o *Orchestrator) handleVotingReset(p *events.VotingResetPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	roundID := p.RoundID
	if roundID == 0 {
		roundID = o.store.ID()
	}
	if roundID < o.voting.RoundID() {
		return fx
	}
	o.voting.Reset(roundID)
	if roundID > o.highestRoundID {
		fx.reloadRound = true
	}
	fx.notify = true
	return fx
}

func (o *Orchestrator) handleSubmissionLocked(p *events.SubmissionLockedPayload) effects {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fx effects
	if !o.checkRoundLocked(p.RoundID, &fx) {
		return fx
	}
	o.submissionLocked = true
	fx.notify = true
	return fx
}

// handleError routes a server error to whichever pending write it rejects.
func (o *Orchestrator) handleError(ctx context.Context, p *events.ErrorPayload) effects {
	fx := effects{notify: true}
	log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("server error event")

	if p.Code == events.CodeAlreadyVoted {
		o.async(func(ctx context.Context) {
			o.voting.Reject(ctx, p.Code, p.Message)
			o.notify()
		})
		return fx
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case p.Code == events.CodeAlreadySubmitted:
		o.userSubmitted = true
		o.submitting = false
		o.cancelSubmitTimerLocked()
	case o.voting.Reject(ctx, p.Code, p.Message):
	case o.submitting:
		o.submitting = false
		o.cancelSubmitTimerLocked()
		o.errMsg = fmt.Sprintf("Failed to submit roast: %s", strings.TrimSpace(p.Message))
	default:
		o.errMsg = p.Message
	}
	return fx
}
