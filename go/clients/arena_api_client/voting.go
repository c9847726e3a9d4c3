package arena_api_client

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

type castVoteRequest struct {
	RoundID      int64  `json:"roundId"`
	VoterAddress string `json:"voterAddress"`
	CharacterID  string `json:"characterId"`
}

func (c *ArenaApiClient) VotingStats(ctx context.Context, roundID int64) (*events.VotingStats, error) {
	var stats events.VotingStats
	if err := c.get(ctx, fmt.Sprintf(VotingStatsEndpoint, roundID), &stats); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get voting stats: %w", err)
	}
	if stats.Votes == nil {
		stats.Votes = map[string]int{}
	}
	return &stats, nil
}

// UserVote returns the wallet's recorded vote for the round. A 404 means no vote.
func (c *ArenaApiClient) UserVote(ctx context.Context, roundID int64, address string) (*events.UserVote, error) {
	var vote events.UserVote
	err := c.get(ctx, fmt.Sprintf(UserVoteEndpoint, roundID, url.PathEscape(address)), &vote)
	switch {
	case errors.Is(err, ErrNoActiveRound):
		return &events.UserVote{}, nil
	case errors.Is(err, ErrRateLimited):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to get user vote: %w", err)
	}
	if vote.CharacterID != "" {
		vote.HasVoted = true
	}
	return &vote, nil
}

// CastVote records a vote directly. Rejections come back as *APIError; see IsAlreadyVoted.
func (c *ArenaApiClient) CastVote(ctx context.Context, roundID int64, address, characterID string) error {
	req := castVoteRequest{RoundID: roundID, VoterAddress: address, CharacterID: characterID}
	if err := c.post(ctx, CastVoteEndpoint, req, nil); err != nil {
		return fmt.Errorf("failed to cast vote: %w", err)
	}
	return nil
}
