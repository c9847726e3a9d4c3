package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope for every message on the arena event channel, in both directions.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Type names an event or command on the channel
type Type string

// Server pushed events
const (
	TypeConnectionStatus     Type = "connection-status"
	TypeAuthenticated        Type = "authenticated"
	TypeRoundCreated         Type = "round-created"
	TypeRoundUpdated         Type = "round-updated"
	TypeTimerUpdate          Type = "timer-update"
	TypePlayerJoined         Type = "player-joined"
	TypeJudgingStarted       Type = "judging-started"
	TypeRoundCompleted       Type = "round-completed"
	TypeRoastSubmitted       Type = "roast-submitted"
	TypePrizeDistributed     Type = "prize-distributed"
	TypeVotingUpdate         Type = "voting-update"
	TypeVoteCastSuccess      Type = "vote-cast-success"
	TypeVotingLocked         Type = "voting-locked"
	TypeVotingReset          Type = "voting-reset"
	TypeVotingResultAccepted Type = "voting-result-accepted"
	TypeSubmissionLocked     Type = "submission-locked"
	TypeError                Type = "error"
)

// Client commands
const (
	TypeAuthenticate Type = "authenticate"
	TypeJoinRound    Type = "join-round"
	TypeLeaveRound   Type = "leave-round"
	TypeSubmitRoast  Type = "submit-roast"
	TypeCastVote     Type = "cast-vote"
	TypePing         Type = "ping"
)

// InboundTypes lists every server event the client subscribes to.
var InboundTypes = []Type{
	TypeConnectionStatus,
	TypeAuthenticated,
	TypeRoundCreated,
	TypeRoundUpdated,
	TypeTimerUpdate,
	TypePlayerJoined,
	TypeJudgingStarted,
	TypeRoundCompleted,
	TypeRoastSubmitted,
	TypePrizeDistributed,
	TypeVotingUpdate,
	TypeVoteCastSuccess,
	TypeVotingLocked,
	TypeVotingReset,
	TypeVotingResultAccepted,
	TypeSubmissionLocked,
	TypeError,
}

// New builds an envelope around payload. The id is left for the sender to fill.
func New(t Type, payload interface{}) (*Event, error) {
	ev := &Event{Type: t, Timestamp: time.Now().UTC()}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	ev.Data = data
	return ev, nil
}

// ParsePayload parses event data into the payload struct registered for its type.
// Unknown types return (nil, nil).
func ParsePayload(event *Event) (interface{}, error) {
	var target interface{}
	switch event.Type {
	case TypeConnectionStatus:
		target = &ConnectionStatusPayload{}
	case TypeAuthenticated:
		target = &AuthenticatedPayload{}
	case TypeRoundCreated:
		target = &RoundCreatedPayload{}
	case TypeRoundUpdated:
		target = &RoundSnapshot{}
	case TypeTimerUpdate:
		target = &TimerUpdatePayload{}
	case TypePlayerJoined:
		target = &PlayerJoinedPayload{}
	case TypeJudgingStarted:
		target = &JudgingStartedPayload{}
	case TypeRoundCompleted:
		target = &RoundCompletedPayload{}
	case TypeRoastSubmitted:
		target = &RoastSubmittedPayload{}
	case TypePrizeDistributed:
		target = &PrizeDistributedPayload{}
	case TypeVotingUpdate:
		target = &VotingUpdatePayload{}
	case TypeVoteCastSuccess:
		target = &VoteCastSuccessPayload{}
	case TypeVotingLocked:
		target = &VotingLockedPayload{}
	case TypeVotingReset:
		target = &VotingResetPayload{}
	case TypeVotingResultAccepted:
		target = &VotingResultPayload{}
	case TypeSubmissionLocked:
		target = &SubmissionLockedPayload{}
	case TypeError:
		target = &ErrorPayload{}
	default:
		return nil, nil
	}

	// Some events (voting-locked, voting-reset) may arrive without a body
	if len(event.Data) == 0 || string(event.Data) == "null" {
		return target, nil
	}
	if err := json.Unmarshal(event.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return target, nil
}
