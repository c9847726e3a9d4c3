package round

import (
	"fmt"
	"strings"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

// Submission is one roast recorded in a round
type Submission struct {
	SubmitterAddress string `json:"submitter_address"`
	RoastText        string `json:"roast_text"`
}

// Payout is the prize transfer to the winner
type Payout struct {
	Amount float64 `json:"amount"`
	TxHash string  `json:"tx_hash"`
}

// Result is present once a round is judged
type Result struct {
	WinnerAddress    string  `json:"winner_address"`
	WinningRoastText string  `json:"winning_roast_text"`
	AIReasoningText  string  `json:"ai_reasoning_text"`
	JudgeCharacter   string  `json:"judge_character"`
	Payout           *Payout `json:"payout,omitempty"`
}

// Round is the client's cached replica of one game cycle
type Round struct {
	ID               int64        `json:"id"`
	Phase            Phase        `json:"phase"`
	JudgeCharacter   string       `json:"judge_character"`
	PrizePool        float64      `json:"prize_pool"`
	TimeLeft         int          `json:"time_left"`
	ParticipantCount int          `json:"participant_count"`
	Submissions      []Submission `json:"submissions"`
	Result           *Result      `json:"result,omitempty"`
}

// FromSnapshot converts a server snapshot into a Round.
func FromSnapshot(snap *events.RoundSnapshot) (*Round, error) {
	phase, err := ParseServerStatus(snap.Status)
	if err != nil {
		return nil, err
	}

	r := &Round{
		ID:               snap.ID,
		Phase:            phase,
		JudgeCharacter:   snap.JudgeCharacter,
		PrizePool:        snap.PrizePool,
		TimeLeft:         snap.TimeLeft,
		ParticipantCount: snap.ParticipantCount,
	}
	if r.PrizePool < 0 {
		r.PrizePool = 0
	}
	for _, s := range snap.Submissions {
		r.addSubmission(Submission{SubmitterAddress: s.PlayerAddress, RoastText: s.RoastText})
	}
	if r.ParticipantCount < len(r.Submissions) {
		r.ParticipantCount = len(r.Submissions)
	}
	if phase == PhaseResults && snap.Winner != nil {
		r.Result = &Result{
			WinnerAddress:    snap.Winner.WinnerAddress,
			WinningRoastText: snap.Winner.WinningRoast,
			AIReasoningText:  snap.Winner.AIReasoning,
			JudgeCharacter:   snap.JudgeCharacter,
		}
	}
	return r, nil
}

// Clone returns a deep copy.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.Submissions = append([]Submission(nil), r.Submissions...)
	if r.Result != nil {
		res := *r.Result
		if r.Result.Payout != nil {
			p := *r.Result.Payout
			res.Payout = &p
		}
		c.Result = &res
	}
	return &c
}

// HasSubmitted reports whether address already has a roast in this round.
func (r *Round) HasSubmitted(address string) bool {
	if address == "" {
		return false
	}
	for _, s := range r.Submissions {
		if sameAddress(s.SubmitterAddress, address) {
			return true
		}
	}
	return false
}

func (r *Round) addSubmission(s Submission) bool {
	if s.SubmitterAddress == "" || r.HasSubmitted(s.SubmitterAddress) {
		return false
	}
	r.Submissions = append(r.Submissions, s)
	return true
}

// Store holds the current round. It is not safe for concurrent use; the orchestrator is
// its only writer and serializes access.
type Store struct {
	current *Round
}

// NewStore creates an empty store (no active round)
func NewStore() *Store {
	return &Store{}
}

// Current returns a copy of the current round or nil.
func (s *Store) Current() *Round {
	return s.current.Clone()
}

// ID returns the current round id, 0 when there is none.
func (s *Store) ID() int64 {
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// Phase returns the current phase; no round means Waiting.
func (s *Store) Phase() Phase {
	if s.current == nil {
		return PhaseWaiting
	}
	return s.current.Phase
}

// Load replaces the snapshot wholesale.
func (s *Store) Load(r *Round) {
	s.current = r.Clone()
}

// Clear drops the current round.
func (s *Store) Clear() {
	s.current = nil
}

// Begin installs a fresh round in Waiting.
func (s *Store) Begin(id int64, judge string) {
	s.current = &Round{ID: id, Phase: PhaseWaiting, JudgeCharacter: judge}
}

// SetPhase moves the current round to phase, enforcing the transition table.
func (s *Store) SetPhase(to Phase) error {
	if s.current == nil {
		return fmt.Errorf("%w: no current round", ErrIllegalTransition)
	}
	if err := Transition(s.current.Phase, to); err != nil {
		return err
	}
	s.current.Phase = to
	return nil
}

// SetTimeLeft records the authoritative remaining seconds.
func (s *Store) SetTimeLeft(seconds int) {
	if s.current == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	s.current.TimeLeft = seconds
}

// AddSubmission appends a roast; a second roast from the same address is ignored.
func (s *Store) AddSubmission(sub Submission) bool {
	if s.current == nil {
		return false
	}
	return s.current.addSubmission(sub)
}

// HasSubmitted reports whether address has a roast in the current round.
func (s *Store) HasSubmitted(address string) bool {
	return s.current != nil && s.current.HasSubmitted(address)
}

// UpdateParticipants applies a player-joined event.
func (s *Store) UpdateParticipants(count int, prizePool float64) {
	if s.current == nil {
		return
	}
	if count > s.current.ParticipantCount {
		s.current.ParticipantCount = count
	}
	if prizePool >= 0 {
		s.current.PrizePool = prizePool
	}
}

// SetResult records the judged outcome.
func (s *Store) SetResult(res Result) {
	if s.current == nil {
		return
	}
	s.current.Result = &res
}

// ClearResult drops the judged outcome from the cached round.
func (s *Store) ClearResult() {
	if s.current == nil {
		return
	}
	s.current.Result = nil
}

// RecordPayout attaches the prize transfer to the result.
func (s *Store) RecordPayout(winner string, p Payout) bool {
	if s.current == nil || s.current.Result == nil {
		return false
	}
	if winner != "" && !sameAddress(winner, s.current.Result.WinnerAddress) {
		return false
	}
	s.current.Result.Payout = &p
	return true
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
