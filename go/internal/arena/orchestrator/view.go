package orchestrator

import (
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/arena/judges"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
	"github.com/mcdev12/roast-arena/go/internal/arena/voting"
	"github.com/mcdev12/roast-arena/go/internal/arena/wallet"
)

// View is an immutable copy of everything a UI renders
type View struct {
	RoundID            int64                   `json:"round_id"`
	Phase              round.Phase             `json:"phase"`
	Judge              judges.Profile          `json:"judge"`
	PrizePool          float64                 `json:"prize_pool"`
	ParticipantCount   int                     `json:"participant_count"`
	Submissions        []round.Submission      `json:"submissions"`
	Result             *round.Result           `json:"result,omitempty"`
	TimeLeft           int                     `json:"time_left"`
	Countdown          int                     `json:"countdown"`
	NextRoundCountdown int                     `json:"next_round_countdown"`
	ResultsLocked      bool                    `json:"results_locked"`
	UserSubmitted      bool                    `json:"user_submitted"`
	Submitting         bool                    `json:"submitting"`
	SubmissionLocked   bool                    `json:"submission_locked"`
	DraftRoast         string                  `json:"draft_roast"`
	Voting             voting.State            `json:"voting"`
	VotingOutcome      string                  `json:"voting_outcome,omitempty"`
	Candidates         []judges.Profile        `json:"candidates"`
	TotalPlayers       int                     `json:"total_players"`
	Connection         channel.ConnectionState `json:"connection"`
	Identity           wallet.Identity         `json:"identity"`
	Error              string                  `json:"error,omitempty"`
}

// Winner returns the winning address, empty before results.
func (v View) Winner() string {
	if v.Result == nil {
		return ""
	}
	return v.Result.WinnerAddress
}

func (o *Orchestrator) viewLocked() View {
	v := View{
		Phase:              o.store.Phase(),
		Countdown:          o.countdownLocked(),
		NextRoundCountdown: o.countdown.Value(),
		ResultsLocked:      o.resultsLockedLocked(),
		UserSubmitted:      o.userSubmitted,
		Submitting:         o.submitting,
		SubmissionLocked:   o.submissionLocked,
		DraftRoast:         o.draft,
		Voting:             o.voting.Snapshot(),
		TotalPlayers:       o.totalPlayers,
		Connection:         o.conn,
		Identity:           o.identity.Identity(),
		Error:              o.errMsg,
	}
	if v.Error == "" {
		v.Error = v.Voting.Error
	}

	if r := o.store.Current(); r != nil {
		v.RoundID = r.ID
		v.Judge = o.judges.Resolve(r.JudgeCharacter)
		v.PrizePool = r.PrizePool
		v.ParticipantCount = r.ParticipantCount
		v.Submissions = r.Submissions
		v.Result = r.Result
		v.TimeLeft = r.TimeLeft
	}
	if v.Voting.Result != nil {
		v.VotingOutcome = v.Voting.Result.Message(o.judges.Name)
	}
	for _, id := range o.judges.IDs() {
		v.Candidates = append(v.Candidates, o.judges.Resolve(id))
	}
	return v
}

// countdownLocked hides the stopped timer's last value outside Writing and Judging.
func (o *Orchestrator) countdownLocked() int {
	if !o.store.Phase().Timed() {
		return 0
	}
	return o.timer.Value()
}
