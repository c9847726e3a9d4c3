package events

import (
	"time"
)

// Event payload types shared by the channel adapter, the REST client and the orchestrator

// ConnectionStatusPayload is sent by the server right after the socket opens
type ConnectionStatusPayload struct {
	Connected bool   `json:"connected"`
	ClientID  string `json:"clientId,omitempty"`
}

// AuthenticatedPayload acknowledges the identity handshake
type AuthenticatedPayload struct {
	Address string `json:"address"`
	Success bool   `json:"success"`
}

// RoundCreatedPayload is the payload for a round-created event
type RoundCreatedPayload struct {
	RoundID        int64  `json:"roundId"`
	JudgeCharacter string `json:"judgeCharacter"`
}

// RoundSnapshot is the server's view of a round. It is the data of GET /game/current
// and the payload of round-updated.
type RoundSnapshot struct {
	ID               int64               `json:"id"`
	Status           string              `json:"status"`
	JudgeCharacter   string              `json:"judgeCharacter"`
	PrizePool        float64             `json:"prizePool"`
	TimeLeft         int                 `json:"timeLeft"`
	ParticipantCount int                 `json:"participantCount"`
	Submissions      []SubmissionPayload `json:"submissions,omitempty"`
	Winner           *WinnerPayload      `json:"winner,omitempty"`
}

// SubmissionPayload is one roast inside a snapshot
type SubmissionPayload struct {
	PlayerAddress string `json:"playerAddress"`
	RoastText     string `json:"roastText"`
}

// WinnerPayload is the judged result inside a completed snapshot
type WinnerPayload struct {
	WinnerAddress string `json:"winnerAddress"`
	WinningRoast  string `json:"winningRoast"`
	AIReasoning   string `json:"aiReasoning"`
}

// TimerUpdatePayload carries the authoritative remaining seconds
type TimerUpdatePayload struct {
	RoundID  int64 `json:"roundId"`
	TimeLeft int   `json:"timeLeft"`
}

// PlayerJoinedPayload is the payload for a player-joined event
type PlayerJoinedPayload struct {
	RoundID          int64   `json:"roundId"`
	PlayerAddress    string  `json:"playerAddress"`
	ParticipantCount int     `json:"participantCount"`
	PrizePool        float64 `json:"prizePool"`
}

// JudgingStartedPayload is the payload for a judging-started event
type JudgingStartedPayload struct {
	RoundID  int64 `json:"roundId"`
	TimeLeft int   `json:"timeLeft"`
}

// RoundCompletedPayload is the payload for a round-completed event
type RoundCompletedPayload struct {
	RoundID       int64  `json:"roundId"`
	Character     string `json:"character"`
	WinnerAddress string `json:"winnerAddress"`
	WinningRoast  string `json:"winningRoast"`
	AIReasoning   string `json:"aiReasoning"`
}

// RoastSubmittedPayload confirms a roast was recorded for a wallet
type RoastSubmittedPayload struct {
	RoundID       int64  `json:"roundId"`
	PlayerAddress string `json:"playerAddress"`
	RoastText     string `json:"roastText,omitempty"`
}

// PrizeDistributedPayload is the payload for a prize-distributed event
type PrizeDistributedPayload struct {
	RoundID       int64   `json:"roundId"`
	WinnerAddress string  `json:"winnerAddress"`
	Amount        float64 `json:"amount"`
	TxHash        string  `json:"txHash"`
}

// VotingStats is the tally for the next judge
type VotingStats struct {
	Votes      map[string]int `json:"votes"`
	TotalVotes int            `json:"totalVotes"`
	IsLocked   bool           `json:"isLocked"`
}

// LastVote describes the most recent vote cast by anyone
type LastVote struct {
	VoterAddress string `json:"voterAddress"`
	CharacterID  string `json:"characterId"`
}

// VotingUpdatePayload is the payload for a voting-update event
type VotingUpdatePayload struct {
	VotingStats VotingStats `json:"votingStats"`
	LastVote    *LastVote   `json:"lastVote,omitempty"`
}

// VoteCastSuccessPayload confirms the calling wallet's vote
type VoteCastSuccessPayload struct {
	CharacterID  string `json:"characterId"`
	AlreadyVoted bool   `json:"alreadyVoted,omitempty"`
}

// VotingLockedPayload is the payload for a voting-locked event
type VotingLockedPayload struct {
	RoundID int64 `json:"roundId,omitempty"`
}

// VotingResetPayload is the payload for a voting-reset event
type VotingResetPayload struct {
	RoundID int64 `json:"roundId,omitempty"`
}

// Voting outcome reasons reported by the server
const (
	ReasonPlurality = "plurality"
	ReasonTie       = "tie"
	ReasonNoVotes   = "no-votes"
)

// VotingResultPayload is the payload for a voting-result-accepted event
type VotingResultPayload struct {
	WinningCharacter string   `json:"winningCharacter"`
	TotalVotes       int      `json:"totalVotes"`
	Reason           string   `json:"reason"`
	TiedCandidates   []string `json:"tiedCandidates,omitempty"`
}

// SubmissionLockedPayload is the payload for a submission-locked event
type SubmissionLockedPayload struct {
	RoundID int64 `json:"roundId"`
}

// Error codes the client reacts to
const (
	CodeAlreadyVoted     = "ALREADY_VOTED"
	CodeAlreadySubmitted = "ALREADY_SUBMITTED"
)

// ErrorPayload is the payload for an error event
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// AuthenticatePayload is the identity handshake command
type AuthenticatePayload struct {
	Address string `json:"address"`
}

// JoinRoundPayload subscribes the socket to a round's room
type JoinRoundPayload struct {
	RoundID int64 `json:"roundId"`
}

// LeaveRoundPayload unsubscribes the socket from a round's room
type LeaveRoundPayload struct {
	RoundID int64 `json:"roundId"`
}

// PaymentProof identifies the entry-fee transfer backing a roast
type PaymentProof struct {
	TxHash string  `json:"txHash"`
	From   string  `json:"from"`
	Amount float64 `json:"amount"`
}

// SubmitRoastPayload is the submit-roast command
type SubmitRoastPayload struct {
	RoundID      int64        `json:"roundId"`
	RoastText    string       `json:"roastText"`
	PaymentProof PaymentProof `json:"paymentProof"`
}

// CastVotePayload is the cast-vote command
type CastVotePayload struct {
	RoundID     int64  `json:"roundId"`
	CharacterID string `json:"characterId"`
}

// PingPayload is the liveness command
type PingPayload struct {
	SentAt time.Time `json:"sentAt"`
}

// GameStats is the data of GET /game/stats
type GameStats struct {
	TotalPlayers int `json:"totalPlayers"`
}

// UserVote is the data of GET /voting/vote/:roundId/:address
type UserVote struct {
	HasVoted    bool   `json:"hasVoted"`
	CharacterID string `json:"characterId,omitempty"`
}

// RecentWinner is one entry of GET /treasury/recent-winners
type RecentWinner struct {
	RoundID       int64     `json:"roundId"`
	WinnerAddress string    `json:"winnerAddress"`
	Amount        float64   `json:"amount"`
	TxHash        string    `json:"txHash"`
	PaidAt        time.Time `json:"paidAt"`
}
