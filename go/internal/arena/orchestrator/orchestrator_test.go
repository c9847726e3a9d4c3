package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/roast-arena/go/clients/arena_api_client"
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/mcdev12/roast-arena/go/internal/arena/payment"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTimerDriftReconciliation(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	assert.Equal(t, 45, h.o.View().Countdown)

	h.clock.Advance(3 * time.Second)
	h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 5, TimeLeft: 40})
	assert.Equal(t, 42, h.o.View().Countdown, "drift of 2s is within tolerance")

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 37, h.o.View().Countdown)
	h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 5, TimeLeft: 30})
	assert.Equal(t, 30, h.o.View().Countdown, "drift of 7s snaps to the server")
	assert.Equal(t, 30, h.o.View().TimeLeft)
}

func TestRoundCompletedIsAppliedOnce(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)

	h.complete(5, "0xalice")
	v := h.o.View()
	require.Equal(t, round.PhaseResults, v.Phase)
	assert.Equal(t, "0xalice", v.Winner())
	assert.True(t, v.ResultsLocked)
	assert.Equal(t, 30, v.NextRoundCountdown)

	h.clock.Advance(5 * time.Second)
	h.complete(5, "0xbob")
	assert.Equal(t, "0xalice", h.o.View().Winner())

	h.emit(events.TypeRoundUpdated, events.RoundSnapshot{
		ID:     5,
		Status: "completed",
		Winner: &events.WinnerPayload{WinnerAddress: "0xbob"},
	})
	assert.Equal(t, "0xalice", h.o.View().Winner(), "snapshots are ignored during the results lock")

	h.clock.Advance(16 * time.Second)
	assert.False(t, h.o.View().ResultsLocked)
	h.complete(5, "0xbob")
	h.emit(events.TypeRoundUpdated, events.RoundSnapshot{
		ID:     5,
		Status: "completed",
		Winner: &events.WinnerPayload{WinnerAddress: "0xbob"},
	})
	assert.Equal(t, "0xalice", h.o.View().Winner())
}

func TestRoundCreatedResetsEverything(t *testing.T) {
	h := newHarness(t)
	h.payer.On("PayEntryFee", mock.Anything, mock.Anything).Return("0xhash", nil)
	h.startWriting(5, 45)

	require.True(t, h.o.JoinRound(context.Background(), "your code has more bugs than a rainforest"))
	h.emit(events.TypeVotingUpdate, events.VotingUpdatePayload{
		VotingStats: events.VotingStats{Votes: map[string]int{"robo-roaster": 2}, TotalVotes: 2},
	})
	require.True(t, h.o.CastVote(context.Background(), "robo-roaster"))
	h.emit(events.TypeVoteCastSuccess, events.VoteCastSuccessPayload{CharacterID: "robo-roaster"})
	h.emit(events.TypeVotingLocked, events.VotingLockedPayload{RoundID: 5})
	h.emit(events.TypeSubmissionLocked, events.SubmissionLockedPayload{RoundID: 5})
	h.complete(5, "0xalice")

	before := h.o.View()
	require.True(t, before.Submitting || before.UserSubmitted || before.DraftRoast != "")
	require.Equal(t, "robo-roaster", before.Voting.UserVote)
	require.True(t, before.Voting.Locked)
	require.NotNil(t, before.Result)

	var mu sync.Mutex
	var seen []View
	unsubscribe := h.o.Subscribe(func(v View) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer unsubscribe()

	h.emit(events.TypeRoundCreated, events.RoundCreatedPayload{RoundID: 6, JudgeCharacter: "grandma-savage"})

	v := h.o.View()
	assert.Equal(t, int64(6), v.RoundID)
	assert.Equal(t, round.PhaseWaiting, v.Phase)
	assert.Equal(t, "Grandma Savage", v.Judge.Name)
	assert.Nil(t, v.Result)
	assert.False(t, v.UserSubmitted)
	assert.False(t, v.Submitting)
	assert.False(t, v.SubmissionLocked)
	assert.Empty(t, v.DraftRoast)
	assert.Empty(t, v.Voting.Votes)
	assert.Empty(t, v.Voting.UserVote)
	assert.False(t, v.Voting.Locked)
	assert.False(t, v.ResultsLocked)
	assert.Zero(t, v.NextRoundCountdown)

	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s.RoundID != 6 {
			continue
		}
		assert.Nil(t, s.Result)
		assert.Empty(t, s.DraftRoast)
		assert.Empty(t, s.Voting.UserVote)
		assert.False(t, s.Voting.Locked)
	}

	h.ch.mu.Lock()
	defer h.ch.mu.Unlock()
	assert.Contains(t, h.ch.left, int64(5))
	assert.Contains(t, h.ch.joined, int64(6))
}

func TestRoundCreatedClearsConfirmedSubmission(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.emit(events.TypeRoastSubmitted, events.RoastSubmittedPayload{RoundID: 5, PlayerAddress: player, RoastText: "burn"})
	require.True(t, h.o.View().UserSubmitted)

	h.emit(events.TypeRoundCreated, events.RoundCreatedPayload{RoundID: 6, JudgeCharacter: "the-critic"})
	assert.False(t, h.o.View().UserSubmitted)
}

func TestRoundCreatedForCurrentRoundIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.startWriting(6, 45)

	require.True(t, h.o.CastVote(context.Background(), "robo-roaster"))
	h.emit(events.TypeVoteCastSuccess, events.VoteCastSuccessPayload{CharacterID: "robo-roaster"})
	require.Equal(t, "robo-roaster", h.o.View().Voting.UserVote)

	h.emit(events.TypeRoundCreated, events.RoundCreatedPayload{RoundID: 6, JudgeCharacter: "chef-inferno"})

	v := h.o.View()
	assert.Equal(t, int64(6), v.RoundID)
	assert.Equal(t, round.PhaseWriting, v.Phase)
	assert.Equal(t, 45, v.Countdown)
	assert.Equal(t, "robo-roaster", v.Voting.UserVote)
	assert.False(t, h.o.CastVote(context.Background(), "chef-inferno"))
	assert.Equal(t, 1, h.ch.voteCount())
}

func TestCountdownHiddenOutsideTimedPhases(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	require.Equal(t, 45, h.o.View().Countdown)

	h.complete(5, "0xalice")

	v := h.o.View()
	require.Equal(t, round.PhaseResults, v.Phase)
	assert.Zero(t, v.Countdown)
}

func TestJoinRoundGuardsNeverPay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.False(t, h.o.JoinRound(ctx, "no round yet"))

	h.startWriting(5, 45)
	assert.False(t, h.o.JoinRound(ctx, ""))
	assert.False(t, h.o.JoinRound(ctx, "   "))

	h.emit(events.TypeRoastSubmitted, events.RoastSubmittedPayload{RoundID: 5, PlayerAddress: player})
	assert.False(t, h.o.JoinRound(ctx, "second roast"))

	h.payer.AssertNotCalled(t, "PayEntryFee", mock.Anything, mock.Anything)
	assert.Zero(t, h.ch.roastCount())
}

func TestJoinRoundClosedPhases(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{
			name: "submission locked",
			setup: func(h *harness) {
				h.emit(events.TypeSubmissionLocked, events.SubmissionLockedPayload{RoundID: 5})
			},
		},
		{
			name: "judging",
			setup: func(h *harness) {
				h.emit(events.TypeJudgingStarted, events.JudgingStartedPayload{RoundID: 5, TimeLeft: 20})
			},
		},
		{
			name: "results",
			setup: func(h *harness) {
				h.complete(5, "0xalice")
			},
		},
		{
			name: "unauthenticated",
			setup: func(h *harness) {
				h.id.Set("")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.startWriting(5, 45)
			tt.setup(h)

			assert.False(t, h.o.JoinRound(context.Background(), "too late"))
			h.payer.AssertNotCalled(t, "PayEntryFee", mock.Anything, mock.Anything)
		})
	}
}

func TestJoinRoundPaysAndSubmits(t *testing.T) {
	h := newHarness(t)
	h.payer.On("PayEntryFee", mock.Anything, payment.Request{
		From:    player,
		To:      treasury,
		Amount:  payment.DefaultEntryFee,
		RoundID: 5,
	}).Return("0xhash", nil).Once()
	h.startWriting(5, 45)

	require.True(t, h.o.JoinRound(context.Background(), "  roast  "))
	h.payer.AssertExpectations(t)

	v := h.o.View()
	assert.True(t, v.Submitting)
	assert.Equal(t, "roast", v.DraftRoast)

	h.ch.mu.Lock()
	require.Len(t, h.ch.roasts, 1)
	sent := h.ch.roasts[0]
	h.ch.mu.Unlock()
	assert.Equal(t, int64(5), sent.RoundID)
	assert.Equal(t, "roast", sent.RoastText)
	assert.Equal(t, events.PaymentProof{TxHash: "0xhash", From: player, Amount: payment.DefaultEntryFee}, sent.PaymentProof)

	assert.False(t, h.o.JoinRound(context.Background(), "again"), "a submission is already in flight")

	h.emit(events.TypeRoastSubmitted, events.RoastSubmittedPayload{RoundID: 5, PlayerAddress: player, RoastText: "roast"})
	v = h.o.View()
	assert.True(t, v.UserSubmitted)
	assert.False(t, v.Submitting)
	assert.Empty(t, v.DraftRoast)
}

func TestJoinRoundPaymentFailureKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.payer.On("PayEntryFee", mock.Anything, mock.Anything).Return("", errors.New("user rejected")).Once()
	h.startWriting(5, 45)

	require.True(t, h.o.JoinRound(context.Background(), "keep me"))

	v := h.o.View()
	assert.False(t, v.Submitting)
	assert.False(t, v.UserSubmitted)
	assert.Equal(t, "keep me", v.DraftRoast)
	assert.Equal(t, "Failed to join round: user rejected", v.Error)
	assert.Zero(t, h.ch.roastCount())

	h.o.ClearError()
	assert.Empty(t, h.o.View().Error)
}

func TestJoinRoundRetryReusesPayment(t *testing.T) {
	h := newHarness(t)
	h.payer.On("PayEntryFee", mock.Anything, mock.Anything).Return("0xhash", nil).Once()
	h.ch.submitErr = channel.ErrNotConnected
	h.startWriting(5, 45)

	require.True(t, h.o.JoinRound(context.Background(), "first try"))
	v := h.o.View()
	assert.False(t, v.Submitting)
	assert.Contains(t, v.Error, "Failed to submit roast")
	assert.Equal(t, "first try", v.DraftRoast)

	h.ch.mu.Lock()
	h.ch.submitErr = nil
	h.ch.mu.Unlock()
	require.True(t, h.o.JoinRound(context.Background(), "first try"))

	h.payer.AssertNumberOfCalls(t, "PayEntryFee", 1)
	h.ch.mu.Lock()
	defer h.ch.mu.Unlock()
	require.Len(t, h.ch.roasts, 2)
	assert.Equal(t, h.ch.roasts[0].PaymentProof, h.ch.roasts[1].PaymentProof)
}

func TestJoinRoundUnconfirmedTimesOut(t *testing.T) {
	h := newHarness(t)
	h.payer.On("PayEntryFee", mock.Anything, mock.Anything).Return("0xhash", nil).Once()
	h.startWriting(5, 45)

	require.True(t, h.o.JoinRound(context.Background(), "anyone there"))
	require.True(t, h.o.View().Submitting)

	h.clock.Advance(DefaultConfig().RequestTimeout)
	assert.Eventually(t, func() bool {
		v := h.o.View()
		return !v.Submitting && v.Error == "Roast submission was not confirmed, try again"
	}, waitFor, tick)
	assert.Equal(t, "anyone there", h.o.View().DraftRoast)
}

func TestErrorEventRouting(t *testing.T) {
	t.Run("already submitted", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.emit(events.TypeError, events.ErrorPayload{Code: events.CodeAlreadySubmitted, Message: "already in"})
		v := h.o.View()
		assert.True(t, v.UserSubmitted)
		assert.Empty(t, v.Error)
	})

	t.Run("rejects pending submission", func(t *testing.T) {
		h := newHarness(t)
		h.payer.On("PayEntryFee", mock.Anything, mock.Anything).Return("0xhash", nil).Once()
		h.startWriting(5, 45)
		require.True(t, h.o.JoinRound(context.Background(), "roast"))

		h.emit(events.TypeError, events.ErrorPayload{Message: "invalid payment"})
		v := h.o.View()
		assert.False(t, v.Submitting)
		assert.Equal(t, "Failed to submit roast: invalid payment", v.Error)
		assert.Equal(t, "roast", v.DraftRoast)
	})

	t.Run("already voted reconciles", func(t *testing.T) {
		h := newHarness(t)
		h.api.userVote = &events.UserVote{HasVoted: true, CharacterID: "the-critic"}
		h.startWriting(5, 45)

		h.emit(events.TypeError, events.ErrorPayload{Code: events.CodeAlreadyVoted, Message: "already voted"})
		assert.Eventually(t, func() bool {
			return h.o.View().Voting.UserVote == "the-critic"
		}, waitFor, tick)
	})

	t.Run("banner", func(t *testing.T) {
		h := newHarness(t)
		h.emit(events.TypeError, events.ErrorPayload{Message: "server on fire"})
		assert.Equal(t, "server on fire", h.o.View().Error)
	})
}

func TestCastVoteLifecycle(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)

	require.True(t, h.o.CastVote(context.Background(), "captain-cringe"))
	v := h.o.View()
	assert.True(t, v.Voting.Voting)
	assert.Empty(t, v.Voting.UserVote, "votes are shown only once confirmed")
	assert.Equal(t, 1, h.ch.voteCount())

	h.emit(events.TypeVoteCastSuccess, events.VoteCastSuccessPayload{CharacterID: "captain-cringe"})
	v = h.o.View()
	assert.False(t, v.Voting.Voting)
	assert.Equal(t, "captain-cringe", v.Voting.UserVote)
	assert.True(t, v.Voting.HasVoted())

	assert.False(t, h.o.CastVote(context.Background(), "robo-roaster"))
	assert.Equal(t, 1, h.ch.voteCount())
}

func TestCastVoteAfterLockIsNoop(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.emit(events.TypeVotingLocked, events.VotingLockedPayload{RoundID: 5})

	assert.False(t, h.o.CastVote(context.Background(), "robo-roaster"))
	assert.Zero(t, h.ch.voteCount())
	h.api.mu.Lock()
	assert.Zero(t, h.api.castVotes)
	h.api.mu.Unlock()

	h.emit(events.TypeVotingUpdate, events.VotingUpdatePayload{
		VotingStats: events.VotingStats{Votes: map[string]int{"robo-roaster": 9}, TotalVotes: 9},
	})
	assert.Empty(t, h.o.View().Voting.Votes, "locked tallies are frozen")
}

func TestVotingLockThreshold(t *testing.T) {
	t.Run("timer update", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 5, TimeLeft: 11})
		assert.False(t, h.o.View().Voting.Locked)
		h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 5, TimeLeft: 10})
		assert.True(t, h.o.View().Voting.Locked)
	})

	t.Run("local countdown", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 12)
		assert.False(t, h.o.View().Voting.Locked)
		h.clock.Advance(2 * time.Second)
		assert.Eventually(t, func() bool {
			return h.o.View().Voting.Locked
		}, waitFor, tick)
	})

	t.Run("phase entry", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.emit(events.TypeJudgingStarted, events.JudgingStartedPayload{RoundID: 5, TimeLeft: 8})
		v := h.o.View()
		assert.Equal(t, round.PhaseJudging, v.Phase)
		assert.True(t, v.Voting.Locked)
	})
}

func TestIllegalTransitionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.complete(5, "0xalice")

	h.emit(events.TypeJudgingStarted, events.JudgingStartedPayload{RoundID: 5, TimeLeft: 20})
	v := h.o.View()
	assert.Equal(t, round.PhaseResults, v.Phase)
	assert.Equal(t, "0xalice", v.Winner())
}

func TestStaleAndNewerRoundEvents(t *testing.T) {
	h := newHarness(t)
	h.startWriting(6, 45)

	h.emit(events.TypeRoundUpdated, events.RoundSnapshot{ID: 5, Status: "judging", TimeLeft: 10})
	h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 5, TimeLeft: 3})
	h.emit(events.TypeRoundCreated, events.RoundCreatedPayload{RoundID: 4})
	v := h.o.View()
	assert.Equal(t, int64(6), v.RoundID)
	assert.Equal(t, round.PhaseWriting, v.Phase)
	assert.Equal(t, 45, v.Countdown)

	h.api.setSnapshot(&events.RoundSnapshot{ID: 7, Status: "active", JudgeCharacter: "the-critic", TimeLeft: 50})
	h.emit(events.TypeTimerUpdate, events.TimerUpdatePayload{RoundID: 7, TimeLeft: 50})
	assert.Eventually(t, func() bool {
		return h.o.View().RoundID == 7
	}, waitFor, tick)
	assert.Equal(t, round.PhaseWriting, h.o.View().Phase)
}

func TestLoadRoundResponses(t *testing.T) {
	ctx := context.Background()

	t.Run("no active round clears to waiting", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.api.setRoundErr(arena_api_client.ErrNoActiveRound)

		h.o.LoadRound(ctx, true)
		v := h.o.View()
		assert.Zero(t, v.RoundID)
		assert.Equal(t, round.PhaseWaiting, v.Phase)
		assert.Empty(t, v.Error)
	})

	t.Run("no active round keeps results", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.complete(5, "0xalice")
		h.api.setRoundErr(arena_api_client.ErrNoActiveRound)

		h.o.poller.LoadRound(ctx, true)
		assert.Equal(t, "0xalice", h.o.View().Winner())
	})

	t.Run("rate limited is silent", func(t *testing.T) {
		h := newHarness(t)
		h.startWriting(5, 45)
		h.api.setRoundErr(arena_api_client.ErrRateLimited)

		h.o.LoadRound(ctx, true)
		v := h.o.View()
		assert.Equal(t, int64(5), v.RoundID)
		assert.Empty(t, v.Error)
	})

	t.Run("failure sets banner", func(t *testing.T) {
		h := newHarness(t)
		h.api.setRoundErr(&arena_api_client.APIError{Status: 500, Message: "boom"})

		h.o.LoadRound(ctx, true)
		assert.Contains(t, h.o.View().Error, "Failed to load round")
	})

	t.Run("snapshot installs round", func(t *testing.T) {
		h := newHarness(t)
		h.api.setSnapshot(&events.RoundSnapshot{
			ID:               9,
			Status:           "active",
			JudgeCharacter:   "robo-roaster",
			PrizePool:        0.2,
			TimeLeft:         33,
			ParticipantCount: 2,
			Submissions: []events.SubmissionPayload{
				{PlayerAddress: "0xalice", RoastText: "a"},
				{PlayerAddress: player, RoastText: "mine"},
			},
		})

		h.o.LoadRound(ctx, true)
		v := h.o.View()
		assert.Equal(t, int64(9), v.RoundID)
		assert.Equal(t, round.PhaseWriting, v.Phase)
		assert.Equal(t, 33, v.Countdown)
		assert.Equal(t, 2, v.ParticipantCount)
		assert.Len(t, v.Submissions, 2)
		assert.True(t, v.UserSubmitted)
	})
}

func TestNextRoundCountdownClearsRound(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.complete(5, "0xalice")
	calls := h.api.rounds()

	h.clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		v := h.o.View()
		return v.RoundID == 0 && v.Phase == round.PhaseWaiting && v.NextRoundCountdown == 0
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		return h.api.rounds() > calls
	}, waitFor, tick, "countdown end forces a round reload")
}

func TestPrizeDistributed(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.complete(5, "0xalice")

	h.emit(events.TypePrizeDistributed, events.PrizeDistributedPayload{RoundID: 5, WinnerAddress: "0xbob", Amount: 1, TxHash: "0xno"})
	assert.Nil(t, h.o.View().Result.Payout)

	h.emit(events.TypePrizeDistributed, events.PrizeDistributedPayload{RoundID: 5, WinnerAddress: "0xALICE", Amount: 0.09, TxHash: "0xtx"})
	require.NotNil(t, h.o.View().Result.Payout)
	assert.Equal(t, round.Payout{Amount: 0.09, TxHash: "0xtx"}, *h.o.View().Result.Payout)
}

func TestPlayerJoinedUpdatesPool(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.emit(events.TypePlayerJoined, events.PlayerJoinedPayload{RoundID: 5, PlayerAddress: "0xalice", ParticipantCount: 3, PrizePool: 0.075})

	v := h.o.View()
	assert.Equal(t, 3, v.ParticipantCount)
	assert.InDelta(t, 0.075, v.PrizePool, 1e-9)
}

func TestVotingResultOutcome(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	h.emit(events.TypeVotingResultAccepted, events.VotingResultPayload{
		WinningCharacter: "the-critic",
		TotalVotes:       0,
		Reason:           events.ReasonNoVotes,
	})
	assert.Equal(t, "No votes were cast. The Critic was picked at random to judge next.", h.o.View().VotingOutcome)
}

func TestLegacyResultFallback(t *testing.T) {
	t.Run("posts plurality leader", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config) { cfg.LegacyResultFallback = true })
		h.startWriting(5, 45)
		h.emit(events.TypeVotingUpdate, events.VotingUpdatePayload{
			VotingStats: events.VotingStats{Votes: map[string]int{"robo-roaster": 3, "chef-inferno": 1}, TotalVotes: 4},
		})
		h.complete(5, "0xalice")

		assert.Eventually(t, func() bool {
			return len(h.api.legacyCalls()) == 1
		}, waitFor, tick)
		assert.Equal(t, legacyResult{characterID: "robo-roaster", votes: 3}, h.api.legacyCalls()[0])
	})

	t.Run("skipped once the server accepted a result", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config) { cfg.LegacyResultFallback = true })
		h.startWriting(5, 45)
		h.emit(events.TypeVotingUpdate, events.VotingUpdatePayload{
			VotingStats: events.VotingStats{Votes: map[string]int{"robo-roaster": 3}, TotalVotes: 3},
		})
		h.emit(events.TypeVotingResultAccepted, events.VotingResultPayload{WinningCharacter: "robo-roaster", TotalVotes: 3, Reason: events.ReasonPlurality})
		h.complete(5, "0xalice")

		assert.Never(t, func() bool {
			return len(h.api.legacyCalls()) > 0
		}, 50*time.Millisecond, tick)
	})

	t.Run("ties are left to the server", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config) { cfg.LegacyResultFallback = true })
		h.startWriting(5, 45)
		h.emit(events.TypeVotingUpdate, events.VotingUpdatePayload{
			VotingStats: events.VotingStats{Votes: map[string]int{"robo-roaster": 2, "chef-inferno": 2}, TotalVotes: 4},
		})
		h.complete(5, "0xalice")

		assert.Never(t, func() bool {
			return len(h.api.legacyCalls()) > 0
		}, 50*time.Millisecond, tick)
	})
}

func TestRebindResubscribes(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	subscribed := h.ch.Len()
	require.Equal(t, len(events.InboundTypes), subscribed)

	require.True(t, h.o.CastVote(context.Background(), "robo-roaster"))
	h.emit(events.TypeVoteCastSuccess, events.VoteCastSuccessPayload{CharacterID: "robo-roaster"})
	require.Equal(t, "robo-roaster", h.o.View().Voting.UserVote)

	h.id.Set("0xother")
	h.o.Rebind(context.Background())

	assert.Equal(t, subscribed, h.ch.Len(), "old handlers are disposed")
	v := h.o.View()
	assert.Equal(t, "0xother", v.Identity.Address)
	assert.Empty(t, v.Voting.UserVote)
	assert.Equal(t, int64(5), v.Voting.RoundID)
	h.ch.mu.Lock()
	assert.Equal(t, "0xother", h.ch.identity)
	h.ch.mu.Unlock()

	ev, err := events.New(events.TypeSubmissionLocked, events.SubmissionLockedPayload{RoundID: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, h.ch.Dispatch(ev), "each event is handled once")
	assert.True(t, h.o.View().SubmissionLocked)
}

func TestReconnectRejoinsAndReloads(t *testing.T) {
	h := newHarness(t)
	h.startWriting(5, 45)
	calls := h.api.rounds()

	h.ch.setState(channel.ConnectionState{Connected: true})

	assert.True(t, h.o.View().Connection.Connected)
	h.ch.mu.Lock()
	assert.Contains(t, h.ch.joined, int64(5))
	h.ch.mu.Unlock()
	assert.Eventually(t, func() bool {
		return h.api.rounds() > calls
	}, waitFor, tick)
}

func TestLifecycleSinks(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	h.startWriting(5, 45)
	h.complete(5, "0xalice")
	h.emit(events.TypePrizeDistributed, events.PrizeDistributedPayload{RoundID: 5, WinnerAddress: "0xalice", Amount: 0.09, TxHash: "0xtx"})

	assert.Eventually(t, func() bool {
		kinds := h.sink.kinds()
		return len(kinds) >= 4 && kinds[len(kinds)-1] == KindPrizeDistributed
	}, waitFor, tick)
	assert.Equal(t, []LifecycleKind{KindPhaseChanged, KindPhaseChanged, KindRoundCompleted, KindPhaseChanged, KindPrizeDistributed}, h.sink.kinds())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("orchestrator did not stop")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var count int
	unsubscribe := h.o.Subscribe(func(View) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	h.startWriting(5, 45)
	unsubscribe()
	unsubscribe()

	mu.Lock()
	after := count
	mu.Unlock()
	assert.Positive(t, after)
	h.emit(events.TypeSubmissionLocked, events.SubmissionLockedPayload{RoundID: 5})
	mu.Lock()
	assert.Equal(t, after, count)
	mu.Unlock()
}
