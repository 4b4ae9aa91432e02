// Package workreports implements proof-of-work gated report
// submission and delegation-aware evaluation (spec §4.8).
package workreports

import (
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/liquiddemocracy"
)

// ReportID identifies a work report for its lifetime, including once
// archived.
type ReportID uint64

// ReportEval is one evaluator's judgement of a report, at the depth in
// the delegation tree it was cast from (spec §4.8).
type ReportEval struct {
	Score   e8s.E8s
	Rep     e8s.E8s
	IsSpam  bool
	Depth   uint32
}

// Report is the live (unevaluated or still-accumulating) record.
type Report struct {
	ID        ReportID
	Reporter  core.Principal
	CreatedAt core.TimestampNs
	UpdatedAt core.TimestampNs

	DecisionTopic liquiddemocracy.DecisionTopicID
	Title         string
	Goal          string
	Description   string
	Result        string
	WantRep       bool

	TotalRepSupply     e8s.E8s
	TotalRepEvaluated  e8s.E8s
	TotalRepSaidIsSpam e8s.E8s

	Evaluation map[core.Principal]ReportEval
}

// ArchivedReport is the frozen record kept once a report is accepted
// (spec §4.8's local archive).
type ArchivedReport struct {
	Version int

	ID            ReportID
	Reporter      core.Principal
	CreatedAt     core.TimestampNs
	UpdatedAt     core.TimestampNs
	DecisionTopic liquiddemocracy.DecisionTopicID
	Title         string
	Goal          string
	Description   string
	Result        string
	WantRep       bool
	TotalScore    e8s.E8s
}

const archivedReportVersion = 1

func (r *Report) threshold() e8s.E8s {
	return e8s.FromUint64(67_000_000) // 0.67
}

// revertPrevEval undoes evaluator's previous evaluation of this
// report if one exists and was cast at a depth >= the new one, per
// spec §4.8 ("an existing eval from the same principal at a shallower
// depth wins"). Returns false if the existing eval should be kept
// (shallower, i.e. closer to the reporter) instead.
func (r *Report) revertPrevEval(evaluator core.Principal, depth uint32) bool {
	prev, ok := r.Evaluation[evaluator]
	if !ok {
		return true
	}
	if prev.Depth < depth {
		return false
	}
	if prev.IsSpam {
		r.TotalRepSaidIsSpam, _ = e8s.Sub(r.TotalRepSaidIsSpam, prev.Rep)
	} else {
		r.TotalRepEvaluated, _ = e8s.Sub(r.TotalRepEvaluated, prev.Rep)
	}
	delete(r.Evaluation, evaluator)
	return true
}

func (r *Report) applyEval(evaluator core.Principal, eval ReportEval) {
	if eval.IsSpam {
		r.TotalRepSaidIsSpam = e8s.Add(r.TotalRepSaidIsSpam, eval.Rep)
	} else {
		r.TotalRepEvaluated = e8s.Add(r.TotalRepEvaluated, eval.Rep)
	}
	r.Evaluation[evaluator] = eval
}

func (r *Report) evalThresholdReached() bool {
	if r.TotalRepSupply.IsZero() {
		return false
	}
	share, err := e8s.Div(r.TotalRepEvaluated, r.TotalRepSupply)
	if err != nil {
		return false
	}
	return e8s.Cmp(share, r.threshold()) >= 0
}

func (r *Report) spamThresholdReached() bool {
	if r.TotalRepSupply.IsZero() {
		return false
	}
	share, err := e8s.Div(r.TotalRepSaidIsSpam, r.TotalRepSupply)
	if err != nil {
		return false
	}
	return e8s.Cmp(share, r.threshold()) >= 0
}

// calcResultingScore sums rep-weighted scores across all evaluations,
// bounded at 100 (spec §4.8).
func (r *Report) calcResultingScore() e8s.E8s {
	total := e8s.Zero()
	if r.TotalRepSupply.IsZero() {
		return total
	}
	for _, eval := range r.Evaluation {
		share, err := e8s.Div(eval.Rep, r.TotalRepSupply)
		if err != nil {
			continue
		}
		total = e8s.Add(total, e8s.Mul(share, eval.Score))
	}
	maxScore := e8s.FromUint64(100 * 100_000_000)
	if e8s.Cmp(total, maxScore) > 0 {
		return maxScore
	}
	return total
}

func (r *Report) toArchived(score e8s.E8s) ArchivedReport {
	return ArchivedReport{
		Version:       archivedReportVersion,
		ID:            r.ID,
		Reporter:      r.Reporter,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		DecisionTopic: r.DecisionTopic,
		Title:         r.Title,
		Goal:          r.Goal,
		Description:   r.Description,
		Result:        r.Result,
		WantRep:       r.WantRep,
		TotalScore:    score,
	}
}
