package round

import (
	"errors"
	"fmt"
	"strings"
)

// Phase is the client-side stage of a round
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseWriting
	PhaseJudging
	PhaseResults
)

// ErrIllegalTransition is returned when an event asks for a phase change the lifecycle does not allow
var ErrIllegalTransition = errors.New("illegal phase transition")

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseWriting:
		return "writing"
	case PhaseJudging:
		return "judging"
	case PhaseResults:
		return "results"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase as its lowercase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a lowercase phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, c := range []Phase{PhaseWaiting, PhaseWriting, PhaseJudging, PhaseResults} {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// Timed reports whether the local countdown runs in this phase.
func (p Phase) Timed() bool {
	return p == PhaseWriting || p == PhaseJudging
}

// ParseServerStatus maps the server's round status onto a client phase.
func ParseServerStatus(status string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "waiting", "":
		return PhaseWaiting, nil
	case "active":
		return PhaseWriting, nil
	case "judging":
		return PhaseJudging, nil
	case "completed":
		return PhaseResults, nil
	default:
		return PhaseWaiting, fmt.Errorf("unknown round status %q", status)
	}
}

// transitions lists the allowed targets per phase. Staying in the same phase is always
// allowed. Skipping forward is allowed because a reconnect gap can swallow intermediate
// events; moving back into a round that has already advanced is not.
var transitions = map[Phase][]Phase{
	PhaseWaiting: {PhaseWriting, PhaseJudging, PhaseResults},
	PhaseWriting: {PhaseJudging, PhaseResults, PhaseWaiting},
	PhaseJudging: {PhaseResults, PhaseWaiting},
	PhaseResults: {PhaseWaiting},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns ErrIllegalTransition when it is not allowed.
func Transition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
