package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/payment"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/rs/zerolog/log"
)

var errNoPayer = errors.New("no payment provider")

// JoinRound pays the entry fee and submits roastText for the current round.
//
// It returns false without side effects when the wallet is not authenticated, there is no
// round, the text is empty, a submission is in flight, the wallet already submitted, or
// submissions are closed. A payment made for this round is kept and re-sent on retry, so a
// wallet pays at most once per round; submission itself is at-least-once and confirmed by
// roast-submitted or a snapshot listing the wallet.
func (o *Orchestrator) JoinRound(ctx context.Context, roastText string) bool {
	text := strings.TrimSpace(roastText)
	id := o.identity.Identity()

	o.mu.Lock()
	roundID := o.store.ID()
	phase := o.store.Phase()
	switch {
	case !id.Authenticated || id.Address == "":
		o.mu.Unlock()
		return false
	case roundID == 0 || text == "":
		o.mu.Unlock()
		return false
	case o.submitting || o.userSubmitted || o.store.HasSubmitted(id.Address):
		o.mu.Unlock()
		return false
	case o.submissionLocked || phase == round.PhaseJudging || phase == round.PhaseResults:
		o.mu.Unlock()
		return false
	}
	o.submitting = true
	o.draft = text
	o.errMsg = ""
	var proof *events.PaymentProof
	if o.proof != nil && o.proofRound == roundID && o.proof.From == id.Address {
		p := *o.proof
		proof = &p
	}
	o.mu.Unlock()
	o.notify()

	if proof == nil {
		p, err := o.pay(ctx, id.Address, roundID)
		if err != nil {
			log.Error().Err(err).Int64("round_id", roundID).Msg("entry fee payment failed")
			o.failSubmission(roundID, fmt.Sprintf("Failed to join round: %v", err))
			return true
		}
		proof = &p

		o.mu.Lock()
		if o.store.ID() == roundID {
			o.proof = &p
			o.proofRound = roundID
		}
		o.mu.Unlock()
	} else {
		log.Info().Int64("round_id", roundID).Str("tx_hash", proof.TxHash).Msg("re-sending retained payment proof")
	}

	o.mu.Lock()
	if o.store.ID() != roundID || !o.submitting {
		o.mu.Unlock()
		log.Warn().Int64("round_id", roundID).Msg("round changed during payment, roast not submitted")
		return true
	}
	o.mu.Unlock()

	if o.channel == nil {
		o.failSubmission(roundID, "Failed to submit roast: event channel unavailable")
		return true
	}
	if err := o.channel.SubmitRoast(ctx, roundID, text, *proof); err != nil {
		log.Error().Err(err).Int64("round_id", roundID).Msg("roast submission failed")
		o.failSubmission(roundID, fmt.Sprintf("Failed to submit roast: %v", err))
		return true
	}

	o.mu.Lock()
	if o.store.ID() == roundID && o.submitting {
		o.armSubmitTimerLocked(roundID)
	}
	o.mu.Unlock()

	log.Info().Int64("round_id", roundID).Str("tx_hash", proof.TxHash).Msg("roast submitted, awaiting confirmation")
	return true
}

// CastVote votes for the next judge. See voting.Manager.CastVote for the guards.
func (o *Orchestrator) CastVote(ctx context.Context, characterID string) bool {
	sent := o.voting.CastVote(ctx, characterID)
	if sent {
		o.notify()
	}
	return sent
}

func (o *Orchestrator) pay(ctx context.Context, from string, roundID int64) (events.PaymentProof, error) {
	if o.payer == nil {
		return events.PaymentProof{}, errNoPayer
	}
	hash, err := o.payer.PayEntryFee(ctx, payment.Request{
		From:    from,
		To:      o.cfg.TreasuryAddress,
		Amount:  o.cfg.EntryFee,
		RoundID: roundID,
	})
	if err != nil {
		return events.PaymentProof{}, err
	}
	return events.PaymentProof{TxHash: hash, From: from, Amount: o.cfg.EntryFee}, nil
}

// failSubmission resets the submitting flag and surfaces msg. The draft is kept.
func (o *Orchestrator) failSubmission(roundID int64, msg string) {
	o.mu.Lock()
	if o.store.ID() == roundID {
		o.submitting = false
		o.errMsg = msg
		o.cancelSubmitTimerLocked()
	}
	o.mu.Unlock()
	o.notify()
}

// armSubmitTimerLocked gives up waiting for a confirmation after the request timeout.
func (o *Orchestrator) armSubmitTimerLocked(roundID int64) {
	o.cancelSubmitTimerLocked()
	epoch := o.submitEpoch
	o.submitTimer = o.clock.AfterFunc(o.cfg.RequestTimeout, func() {
		o.mu.Lock()
		if epoch != o.submitEpoch || !o.submitting || o.store.ID() != roundID {
			o.mu.Unlock()
			return
		}
		o.submitting = false
		o.submitTimer = nil
		o.errMsg = "Roast submission was not confirmed, try again"
		o.mu.Unlock()

		log.Warn().Int64("round_id", roundID).Msg("roast submission not confirmed")
		o.notify()
		o.LoadRound(o.ctx, false)
	})
}

func (o *Orchestrator) cancelSubmitTimerLocked() {
	o.submitEpoch++
	if o.submitTimer != nil {
		o.submitTimer.Stop()
		o.submitTimer = nil
	}
}
