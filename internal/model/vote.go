package model

import (
	"errors"
	"fmt"
	"time"
)

// Direction is the sign of a vote: +1 for up, -1 for down.
type Direction int

const (
	Up   Direction = 1
	Down Direction = -1
)

// ParseDirection accepts exactly 1 or -1.
func ParseDirection(v int) (Direction, error) {
	switch Direction(v) {
	case Up, Down:
		return Direction(v), nil
	default:
		return 0, fmt.Errorf("invalid vote direction %d", v)
	}
}

// TargetKind names the type of content a vote applies to.
type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
)

// VoteTarget references a Question xor an Answer.
type VoteTarget struct {
	QuestionID string `json:"questionId,omitempty"`
	AnswerID   string `json:"answerId,omitempty"`
}

var (
	errNoTarget   = errors.New("a vote needs a questionId or an answerId")
	errTwoTargets = errors.New("a vote cannot reference both a question and an answer")
)

// Validate checks that exactly one of QuestionID and AnswerID is set.
func (t VoteTarget) Validate() error {
	switch {
	case t.QuestionID == "" && t.AnswerID == "":
		return errNoTarget
	case t.QuestionID != "" && t.AnswerID != "":
		return errTwoTargets
	}
	return nil
}

// Kind returns which kind of content the target is. Only meaningful after
// Validate has passed.
func (t VoteTarget) Kind() TargetKind {
	if t.QuestionID != "" {
		return TargetQuestion
	}
	return TargetAnswer
}

// ID returns the referenced content id.
func (t VoteTarget) ID() string {
	if t.QuestionID != "" {
		return t.QuestionID
	}
	return t.AnswerID
}

// Vote is one ledger row: the current vote of UserID on Target.
type Vote struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Target    VoteTarget `json:"target"`
	Direction Direction  `json:"direction"`
	CreatedAt time.Time  `json:"createdAt"`
}

// VoteAction is what a cast did to the ledger.
type VoteAction string

const (
	VoteCreated VoteAction = "created"
	VoteRemoved VoteAction = "removed"
	VoteFlipped VoteAction = "flipped"
)

// VoteOutcome describes a ledger transition and the counter adjustment that
// keeps the target's total equal to the ledger sum.
type VoteOutcome struct {
	Action VoteAction `json:"action"`
	Delta  int        `json:"delta"`
	// Next is the ledger direction after the cast; nil when the vote was removed.
	Next *Direction `json:"direction,omitempty"`
}

// ResolveVote decides the transition for a voter who currently has
// existing (nil if none) and casts requested.
//
//	none     -> create, counter += d
//	same     -> remove, counter -= d
//	opposite -> flip,   counter += 2d
//
// The flip arithmetic relies on exactly two legal directions.
func ResolveVote(existing *Direction, requested Direction) VoteOutcome {
	d := requested
	switch {
	case existing == nil:
		return VoteOutcome{Action: VoteCreated, Delta: int(d), Next: &d}
	case *existing == requested:
		return VoteOutcome{Action: VoteRemoved, Delta: -int(d)}
	default:
		return VoteOutcome{Action: VoteFlipped, Delta: 2 * int(d), Next: &d}
	}
}
