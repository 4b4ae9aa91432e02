// Package votings implements the vote contract, quorum/consensus
// thresholds, and resolution into inter-service calls (spec §4.2).
package votings

import (
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// VotingID identifies a voting for its lifetime.
type VotingID uint64

// Stage is the voting's position in its state machine.
type Stage int

const (
	StageInProgress Stage = iota
	StageExecuting
	StageSuccess
	StageFail
)

// Vote is one voter's cast for one option bucket.
type Vote struct {
	ApprovalLevel        *e8s.E8s // nil means reject
	TotalVoterReputation e8s.E8s
}

// Option is a single option bucket: votes keyed by voter.
type Option struct {
	Votes map[core.Principal]Vote
}

// KindTag discriminates the voting's CallToExecute-producing payload.
type KindTag int

const (
	KindFinishEditTask KindTag = iota
	KindEvaluateTask
)

// SolutionRef names the (task, solver) pair an EvaluateTask voting
// option corresponds to.
type SolutionRef struct {
	TaskID uint64
	Solver core.Principal
}

// Kind is the tagged union of voting payloads (spec §4.2).
type Kind struct {
	Tag KindTag

	// KindFinishEditTask
	TaskID uint64

	// KindEvaluateTask
	EvaluateTaskID uint64
	Solutions      []SolutionRef
}

// CallToExecute is the inter-service dispatch a resolved voting
// produces.
type CallToExecute struct {
	ServiceID  string
	Method     string
	Args       interface{}
}

// Voting is the full lifecycle record for one vote.
type Voting struct {
	ID        VotingID
	Kind      Kind
	Options   []Option
	CreatedAt core.TimestampNs

	// Thresholds snapshotted at creation time from the total
	// reputation supply T (spec §4.2).
	Quorum     e8s.E8s // T/3
	Consensus  e8s.E8s // 2T/3
	FinishEarly e8s.E8s // 2T/3
	Duration   core.DurationNs

	Stage     Stage
	FailReason string
}

// ResolutionResult is the per-option outcome once a voting is resolved.
type ResolutionResult struct {
	BinaryResult []bool
	RangedResult []*e8s.E8s // nil entry means the option's reject share hit consensus
}

// Event is one entry of the bounded voting-history ring (spec §4.2).
type Event struct {
	VotingID VotingID
	Stage    Stage
	Reason   string
	At       core.TimestampNs
}
