package workreports

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/liquiddemocracy"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "workreports")

const (
	titleMinGraphemes       = 10
	titleMaxGraphemes       = 256
	goalMinGraphemes        = 16
	goalMaxGraphemes        = 1024
	descriptionMinGraphemes = 16
	descriptionMaxGraphemes = 4096
	resultMinGraphemes      = 16
	resultMaxGraphemes      = 1024
)

// DelegationNode is the in-process form of a reputation delegation
// tree: the evaluator's own node, with recursively nested delegators
// (spec §4.8's "reputation_delegation_tree").
type DelegationNode struct {
	Principal  core.Principal
	Reputation e8s.E8s
	TopicSet   *liquiddemocracy.TopicSet
	Delegators []*DelegationNode
}

// traverse walks the delegation tree depth-first starting at depth 0,
// invoking visit(node, depth) and recursing into node's delegators
// only if visit returned true (mirrors the original's short-circuiting
// traversal: a node whose topicset doesn't match, or whose eval lost
// to a shallower one, stops its subtree from being visited too).
func traverse(node *DelegationNode, depth uint32, visit func(*DelegationNode, uint32) bool) {
	if !visit(node, depth) {
		return
	}
	for _, child := range node.Delegators {
		traverse(child, depth+1, visit)
	}
}

// RewardMinter is the subset of Humans' RPC surface Evaluate
// needs on acceptance.
type RewardMinter interface {
	MintStorypoints(reporter core.Principal, storypoints e8s.E8s) error
}

// RepMinter is the subset of Reputation's RPC surface Evaluate needs
// when want_rep was set.
type RepMinter interface {
	MintReputation(reporter core.Principal, qty e8s.E8s) error
}

// Service owns the live report map and local archive exclusively.
type Service struct {
	mu sync.Mutex

	reports map[ReportID]*Report
	archive map[ReportID]ArchivedReport
	nextID  ReportID

	selfID core.Principal // this service's own principal, used as PoW target_service_id

	humans     RewardMinter
	reputation RepMinter
}

// New builds an empty WorkReports service.
func New(selfID core.Principal, humans RewardMinter, reputation RepMinter) *Service {
	return &Service{
		reports: make(map[ReportID]*Report),
		archive: make(map[ReportID]ArchivedReport),
		selfID:  selfID,
		humans:  humans,
		reputation: reputation,
	}
}

func validateLen(name, value string, min, max int) error {
	l := core.GraphemeLen(value)
	if l < min || l > max {
		return svcerr.Validationf("workreports: %s must be %d-%d graphemes, got %d", name, min, max, l)
	}
	return nil
}

// CreateReport submits a new work report, rejecting it outright if its
// proof-of-work is missing or invalid (spec §4.8).
func (s *Service) CreateReport(
	caller core.Principal,
	topic liquiddemocracy.DecisionTopicID,
	title, goal, description, result string,
	wantRep bool,
	nonce uint64,
	submittedPow [32]byte,
	totalRepSupply e8s.E8s,
	now core.TimestampNs,
) (ReportID, error) {
	if !verifyPow(s.selfID, caller, topic, title, goal, description, result, wantRep, nonce, submittedPow) {
		return 0, svcerr.Validationf("workreports: proof of work is invalid")
	}
	if err := validateLen("title", title, titleMinGraphemes, titleMaxGraphemes); err != nil {
		return 0, err
	}
	if err := validateLen("goal", goal, goalMinGraphemes, goalMaxGraphemes); err != nil {
		return 0, err
	}
	if err := validateLen("description", description, descriptionMinGraphemes, descriptionMaxGraphemes); err != nil {
		return 0, err
	}
	if err := validateLen("result", result, resultMinGraphemes, resultMaxGraphemes); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.reports[id] = &Report{
		ID:                 id,
		Reporter:           caller,
		CreatedAt:          now,
		UpdatedAt:          now,
		DecisionTopic:      topic,
		Title:              core.EscapeScriptTags(title),
		Goal:               core.EscapeScriptTags(goal),
		Description:        core.EscapeScriptTags(description),
		Result:             core.EscapeScriptTags(result),
		WantRep:            wantRep,
		TotalRepSupply:     totalRepSupply,
		TotalRepEvaluated:  e8s.Zero(),
		TotalRepSaidIsSpam: e8s.Zero(),
		Evaluation:         make(map[core.Principal]ReportEval),
	}
	log.Info("work report created", "id", id, "reporter", caller)
	return id, nil
}

// Evaluate applies an evaluator's score across their whole delegation
// tree in one pass (spec §4.8): each node whose topicset matches the
// report's topic gets its own eval installed (subject to the
// shallower-wins rule), and accepted/spam thresholds are checked
// afterward.
func (s *Service) Evaluate(id ReportID, tree *DelegationNode, score e8s.E8s, isSpam bool, now core.TimestampNs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[id]
	if !ok {
		return svcerr.Statef("workreports: no report %d", id)
	}

	topics := []liquiddemocracy.DecisionTopicID{report.DecisionTopic}

	traverse(tree, 0, func(node *DelegationNode, depth uint32) bool {
		if node.TopicSet != nil && !node.TopicSet.Matches(topics) {
			return false
		}
		if !report.revertPrevEval(node.Principal, depth) {
			return false
		}
		report.applyEval(node.Principal, ReportEval{Score: score, Rep: node.Reputation, IsSpam: isSpam, Depth: depth})
		return true
	})
	report.UpdatedAt = now

	switch {
	case report.evalThresholdReached():
		return s.accept(report, now)
	case report.spamThresholdReached():
		delete(s.reports, id)
		log.Info("work report rejected as spam", "id", id)
		return nil
	default:
		return nil
	}
}

func (s *Service) accept(report *Report, now core.TimestampNs) error {
	totalScore := report.calcResultingScore()

	if err := s.humans.MintStorypoints(report.Reporter, totalScore); err != nil {
		return err
	}
	if report.WantRep {
		if err := s.reputation.MintReputation(report.Reporter, totalScore); err != nil {
			return err
		}
	}

	s.archive[report.ID] = report.toArchived(totalScore)
	delete(s.reports, report.ID)
	log.Info("work report accepted", "id", report.ID, "score", totalScore.Display())
	return nil
}

// GetReport and ListReports are the supplemented read-only queries
// over the live map; GetArchivedReports mirrors them for the local
// archive.
func (s *Service) GetReport(id ReportID) (*Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, false
	}
	cp := *r
	cp.Evaluation = make(map[core.Principal]ReportEval, len(r.Evaluation))
	for p, e := range r.Evaluation {
		cp.Evaluation[p] = e
	}
	return &cp, true
}

func (s *Service) ListReports(topic *liquiddemocracy.DecisionTopicID) []*Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Report, 0, len(s.reports))
	for _, r := range s.reports {
		if topic != nil && r.DecisionTopic != *topic {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (s *Service) GetArchivedReports(topic *liquiddemocracy.DecisionTopicID) []ArchivedReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ArchivedReport, 0, len(s.archive))
	for _, r := range s.archive {
		if topic != nil && r.DecisionTopic != *topic {
			continue
		}
		out = append(out, r)
	}
	return out
}
