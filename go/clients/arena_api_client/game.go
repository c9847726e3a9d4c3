package arena_api_client

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

type voteNextJudgeRequest struct {
	CharacterID string `json:"characterId"`
	TotalVotes  int    `json:"totalVotes"`
}

// CurrentRound fetches the active round. ErrNoActiveRound means the game is waiting.
func (c *ArenaApiClient) CurrentRound(ctx context.Context) (*events.RoundSnapshot, error) {
	var snap *events.RoundSnapshot
	if err := c.get(ctx, CurrentRoundEndpoint, &snap); err != nil {
		if errors.Is(err, ErrNoActiveRound) || errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	if snap == nil || snap.ID == 0 {
		return nil, ErrNoActiveRound
	}
	return snap, nil
}

func (c *ArenaApiClient) GameStats(ctx context.Context) (*events.GameStats, error) {
	var stats events.GameStats
	if err := c.get(ctx, GameStatsEndpoint, &stats); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get game stats: %w", err)
	}
	return &stats, nil
}

// SubmitVoteResult is the legacy fallback for reporting the next judge.
func (c *ArenaApiClient) SubmitVoteResult(ctx context.Context, characterID string, totalVotes int) error {
	req := voteNextJudgeRequest{CharacterID: characterID, TotalVotes: totalVotes}
	if err := c.post(ctx, VoteNextJudgeEndpoint, req, nil); err != nil {
		return fmt.Errorf("failed to submit vote result: %w", err)
	}
	return nil
}
