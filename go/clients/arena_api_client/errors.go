package arena_api_client

import (
	"errors"
	"fmt"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

var (
	// ErrNoActiveRound is the expected-empty case of GET /game/current
	ErrNoActiveRound = errors.New("no active round")
	// ErrRateLimited is returned for HTTP 429; callers retry on their next cycle
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a failure envelope ({success:false, message}) or an unexpected status
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("arena API error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("arena API error %d: %s", e.Status, e.Message)
}

// IsAlreadyVoted reports whether err is the server's duplicate-vote rejection.
func IsAlreadyVoted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == events.CodeAlreadyVoted
}
