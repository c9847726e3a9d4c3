package arena_api_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

// RecentWinners lists recent payouts, newest first.
func (c *ArenaApiClient) RecentWinners(ctx context.Context, limit int) ([]events.RecentWinner, error) {
	if limit <= 0 {
		limit = 10
	}
	var winners []events.RecentWinner
	if err := c.get(ctx, fmt.Sprintf(RecentWinnersEndpoint, limit), &winners); err != nil {
		return nil, fmt.Errorf("failed to get recent winners: %w", err)
	}
	return winners, nil
}
