package orchestrator

import (
	"context"
	"time"

	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/rs/zerolog/log"
)

// LifecycleKind names a lifecycle notification
type LifecycleKind string

const (
	KindPhaseChanged     LifecycleKind = "phase-changed"
	KindRoundCompleted   LifecycleKind = "round-completed"
	KindPrizeDistributed LifecycleKind = "prize-distributed"
)

// LifecycleEvent is published to sinks on phase changes, completions and payouts
type LifecycleEvent struct {
	Kind           LifecycleKind `json:"kind"`
	RoundID        int64         `json:"round_id"`
	Previous       round.Phase   `json:"previous"`
	Phase          round.Phase   `json:"phase"`
	JudgeCharacter string        `json:"judge_character,omitempty"`
	TimeLeft       int           `json:"time_left,omitempty"`
	PrizePool      float64       `json:"prize_pool,omitempty"`
	Participants   int           `json:"participants,omitempty"`
	Result         *round.Result `json:"result,omitempty"`
	At             time.Time     `json:"at"`
}

// LifecycleSink receives lifecycle events. Publish errors are logged and dropped.
type LifecycleSink interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// emitLocked queues ev for the sinks without blocking the state machine.
func (o *Orchestrator) emitLocked(ev LifecycleEvent) {
	if len(o.sinks) == 0 {
		return
	}
	ev.At = o.clock.Now().UTC()
	if ev.Result != nil {
		r := *ev.Result
		ev.Result = &r
	}
	select {
	case o.sinkCh <- ev:
	default:
		log.Warn().
			Str("kind", string(ev.Kind)).
			Int64("round_id", ev.RoundID).
			Msg("lifecycle channel full, dropping event")
	}
}

func (o *Orchestrator) dispatchSinks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.sinkCh:
			for _, sink := range o.sinks {
				pubCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
				if err := sink.Publish(pubCtx, ev); err != nil {
					log.Error().
						Err(err).
						Str("kind", string(ev.Kind)).
						Int64("round_id", ev.RoundID).
						Msg("failed to publish lifecycle event")
				}
				cancel()
			}
		}
	}
}
