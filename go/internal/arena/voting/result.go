package voting

import (
	"fmt"
	"strings"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

// Kind distinguishes how the next judge was picked
type Kind string

const (
	KindPlurality Kind = events.ReasonPlurality
	KindTie       Kind = events.ReasonTie
	KindNoVotes   Kind = events.ReasonNoVotes
)

// Result is the accepted outcome of the next-judge vote
type Result struct {
	CharacterID string   `json:"character_id"`
	TotalVotes  int      `json:"total_votes"`
	Kind        Kind     `json:"kind"`
	Tied        []string `json:"tied,omitempty"`
}

// ResultFromPayload converts a voting-result-accepted payload. An unknown reason is inferred
// from the vote count and the tie list.
func ResultFromPayload(p events.VotingResultPayload) Result {
	res := Result{
		CharacterID: p.WinningCharacter,
		TotalVotes:  p.TotalVotes,
		Kind:        Kind(p.Reason),
		Tied:        append([]string(nil), p.TiedCandidates...),
	}
	switch res.Kind {
	case KindPlurality, KindTie, KindNoVotes:
	default:
		switch {
		case res.TotalVotes == 0:
			res.Kind = KindNoVotes
		case len(res.Tied) > 1:
			res.Kind = KindTie
		default:
			res.Kind = KindPlurality
		}
	}
	return res
}

// Message renders the outcome for display. name resolves a character id to a display name
// and may be nil.
func (r Result) Message(name func(id string) string) string {
	if name == nil {
		name = func(id string) string { return id }
	}
	winner := name(r.CharacterID)

	switch r.Kind {
	case KindNoVotes:
		return fmt.Sprintf("No votes were cast. %s was picked at random to judge next.", winner)
	case KindTie:
		names := make([]string, 0, len(r.Tied))
		for _, id := range r.Tied {
			names = append(names, name(id))
		}
		if len(names) == 0 {
			return fmt.Sprintf("The vote was tied. %s won the random tie-break.", winner)
		}
		return fmt.Sprintf("Tie between %s. %s won the random tie-break.", strings.Join(names, " and "), winner)
	default:
		return fmt.Sprintf("%s wins the vote (%d votes cast).", winner, r.TotalVotes)
	}
}

func (r Result) clone() Result {
	c := r
	c.Tied = append([]string(nil), r.Tied...)
	return c
}
