// Package tasks implements task lifecycle management: creation,
// editing, solving, evaluation, and the reward algorithm that turns
// evaluator scores into hours/storypoints payouts (spec §4.1).
package tasks

import (
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// TaskID identifies a task for its whole lifetime, including after it
// moves into the archive.
type TaskID uint64

// Stage is the task's position in its state machine: Edit -> Solve ->
// Evaluate -> Archive.
type Stage int

const (
	StageEdit Stage = iota
	StageSolve
	StageEvaluate
	StageArchive
)

func (s Stage) String() string {
	switch s {
	case StageEdit:
		return "edit"
	case StageSolve:
		return "solve"
	case StageEvaluate:
		return "evaluate"
	case StageArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// UrlKind constrains a Url-kind solution field to a known domain
// suffix, or Any to skip the check (spec §4.1 SolveTask).
type UrlKind int

const (
	UrlKindAny UrlKind = iota
	UrlKindGitHub
	UrlKindFigma
	UrlKindNotion
	UrlKindTwitter
	UrlKindDfinityForum
	UrlKindFortMajor
)

// urlKindSuffixes lists the acceptable domain suffixes per UrlKind;
// Notion and Twitter each accept either of two suffixes.
var urlKindSuffixes = map[UrlKind][]string{
	UrlKindGitHub:       {"github.com"},
	UrlKindFigma:        {"figma.com"},
	UrlKindNotion:       {"notion.so", "notion.site"},
	UrlKindTwitter:      {"twitter.com", "x.com"},
	UrlKindDfinityForum: {"forum.dfinity.org"},
	UrlKindFortMajor:    {"fort-major.org"},
}

// FieldKind is the solution-field validation discriminant.
type FieldKind int

const (
	FieldKindMd FieldKind = iota
	FieldKindUrl
)

// SolutionField describes one required field of a task's submission
// form.
type SolutionField struct {
	Name        string
	Description string
	Kind        FieldKind
	UrlKind     UrlKind // only meaningful when Kind == FieldKindUrl
}

// SolverConstraints restricts who may attach to / solve a task.
type SolverConstraints struct {
	TeamOnly bool
}

// Solution is one solver's submission for a task.
type Solution struct {
	Solver         core.Principal
	FilledInFields []*string // nil entries mean "field left blank"
	SolvedAt       core.TimestampNs
}

// Evaluation is one solver's score once the votings service resolves
// an EvaluateTask voting (spec §4.1).
type Evaluation struct {
	Solver core.Principal
	Score  *e8s.E8s // nil means rejected
}

// Task is the full lifecycle record for a single piece of work.
type Task struct {
	ID      TaskID
	Creator core.Principal

	Title       string
	Description string

	SolutionFields    []SolutionField
	SolverConstraints SolverConstraints

	HoursBase              e8s.E8s
	StorypointsBase        e8s.E8s
	StorypointsExtBudget   e8s.E8s

	CreatedAt     core.TimestampNs
	Stage         Stage
	DaysToSolveNs core.DurationNs  // captured at creation, consumed by FinishEditTask
	SolveUntil    core.TimestampNs // meaningful only once Stage >= StageSolve

	Candidates map[core.Principal]struct{}
	Solutions  map[core.Principal]*Solution
}

// RewardEntry is one solver's payout as computed by the reward
// algorithm (spec §4.1.1).
type RewardEntry struct {
	Solver             core.Principal
	RewardHours        e8s.E8s
	RewardStorypoints  e8s.E8s
	Rejected           bool
}

// Stats is the aggregate counters behind GetTasksStats.
type Stats struct {
	TotalCount    uint64
	EditCount     uint64
	SolveCount    uint64
	EvaluateCount uint64
	ArchiveCount  uint64
}
