package votings

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "votings")

const eventsRingCapacity = core.EventsLogCapacity

// Dispatcher executes the CallToExecute a resolved voting produces.
// Implemented by the process wiring Tasks' FinishEditTask/EvaluateTask
// RPCs (spec §4.2's "dispatch asynchronously").
type Dispatcher interface {
	Dispatch(call CallToExecute) error
}

// Service owns the voting map and event ring exclusively.
type Service struct {
	mu sync.Mutex

	votings map[VotingID]*Voting
	nextID  VotingID

	events []Event

	dispatcher Dispatcher
}

// New builds an empty Votings service.
func New(dispatcher Dispatcher) *Service {
	return &Service{votings: make(map[VotingID]*Voting), dispatcher: dispatcher}
}

// StartVoting creates a new InProgress voting with thresholds
// snapshotted from the current total reputation supply T (spec §4.2).
func (s *Service) StartVoting(kind Kind, numOptions int, totalRepSupply e8s.E8s, now core.TimestampNs) (VotingID, error) {
	if numOptions <= 0 {
		return 0, svcerr.Validationf("votings: a voting needs at least one option")
	}

	three := e8s.FromUint64(3 * 100_000_000)
	quorum, err := e8s.Div(totalRepSupply, three)
	if err != nil {
		return 0, err
	}
	twoThirds := e8s.Add(quorum, quorum)

	options := make([]Option, numOptions)
	for i := range options {
		options[i] = Option{Votes: make(map[core.Principal]Vote)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.votings[id] = &Voting{
		ID:          id,
		Kind:        kind,
		Options:     options,
		CreatedAt:   now,
		Quorum:      quorum,
		Consensus:   twoThirds,
		FinishEarly: twoThirds,
		Duration:    core.OneWeekNs,
		Stage:       StageInProgress,
	}
	log.Info("voting started", "id", id, "options", numOptions)
	return id, nil
}

// CastVote records voter's vote for option within voting, and resolves
// the voting immediately if every option has reached finish_early
// (spec §4.2's "cast vote" trigger rule).
func (s *Service) CastVote(voter core.Principal, id VotingID, option int, approvalLevel *e8s.E8s, voterReputation e8s.E8s, now core.TimestampNs) error {
	if approvalLevel != nil && e8s.Cmp(*approvalLevel, voterReputation) > 0 {
		return svcerr.Validationf("votings: approval level exceeds voter's reputation")
	}

	s.mu.Lock()
	v, ok := s.votings[id]
	if !ok {
		s.mu.Unlock()
		return svcerr.Statef("votings: no voting %d", id)
	}
	if v.Stage != StageInProgress {
		// Another concurrent cast already drove resolution; no-op
		// per spec §5's ordering guarantee.
		s.mu.Unlock()
		return nil
	}
	if option < 0 || option >= len(v.Options) {
		s.mu.Unlock()
		return svcerr.Validationf("votings: option %d out of range", option)
	}

	v.Options[option].Votes[voter] = Vote{ApprovalLevel: approvalLevel, TotalVoterReputation: voterReputation}

	readyToResolve := everyOptionReached(v, v.FinishEarly)
	s.mu.Unlock()

	if readyToResolve {
		return s.resolve(id, now)
	}
	return nil
}

func everyOptionReached(v *Voting, threshold e8s.E8s) bool {
	for _, opt := range v.Options {
		total := e8s.Zero()
		for _, vote := range opt.Votes {
			total = e8s.Add(total, vote.TotalVoterReputation)
		}
		if e8s.Cmp(total, threshold) < 0 {
			return false
		}
	}
	return true
}

// TimerResolve is invoked by the scheduled timer created_at+duration
// after StartVoting (spec §4.2). If every option reached quorum, it
// resolves as usual; otherwise the voting fails with "Quorum not
// reached".
func (s *Service) TimerResolve(id VotingID, now core.TimestampNs) error {
	s.mu.Lock()
	v, ok := s.votings[id]
	if !ok {
		s.mu.Unlock()
		return svcerr.Statef("votings: no voting %d", id)
	}
	if v.Stage != StageInProgress {
		s.mu.Unlock()
		return nil
	}
	if !everyOptionReached(v, v.Quorum) {
		v.Stage = StageFail
		v.FailReason = "Quorum not reached"
		s.recordEvent(Event{VotingID: id, Stage: StageFail, Reason: v.FailReason, At: now})
		delete(s.votings, id)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.resolve(id, now)
}

// resolveVoting computes binary/ranged results per spec §4.2.
func resolveVoting(v *Voting) ResolutionResult {
	binary := make([]bool, len(v.Options))
	ranged := make([]*e8s.E8s, len(v.Options))

	for i, opt := range v.Options {
		total, approve, reject := e8s.Zero(), e8s.Zero(), e8s.Zero()
		for _, vote := range opt.Votes {
			total = e8s.Add(total, vote.TotalVoterReputation)
			if vote.ApprovalLevel != nil {
				approve = e8s.Add(approve, *vote.ApprovalLevel)
			} else {
				reject = e8s.Add(reject, vote.TotalVoterReputation)
			}
		}

		binary[i] = e8s.Cmp(approve, v.Consensus) >= 0

		if e8s.Cmp(reject, v.Consensus) >= 0 {
			ranged[i] = nil
			continue
		}
		if total.IsZero() {
			zero := e8s.Zero()
			ranged[i] = &zero
			continue
		}
		score, err := e8s.Div(approve, total)
		if err != nil {
			zero := e8s.Zero()
			ranged[i] = &zero
			continue
		}
		ranged[i] = &score
	}

	return ResolutionResult{BinaryResult: binary, RangedResult: ranged}
}

// buildCall turns a resolved voting's result into the CallToExecute
// its kind produces, or nil if consensus was not reached (spec §4.2).
func buildCall(v *Voting, result ResolutionResult) *CallToExecute {
	switch v.Kind.Tag {
	case KindFinishEditTask:
		if len(result.BinaryResult) < 1 || !result.BinaryResult[0] {
			return nil
		}
		return &CallToExecute{ServiceID: "tasks", Method: "FinishEditTask", Args: v.Kind.TaskID}

	case KindEvaluateTask:
		type solverScore struct {
			Solver core.Principal
			Score  *e8s.E8s
		}
		scores := make([]solverScore, 0, len(v.Kind.Solutions))
		anyResolved := false
		for i, sol := range v.Kind.Solutions {
			if i >= len(result.RangedResult) {
				break
			}
			scores = append(scores, solverScore{Solver: sol.Solver, Score: result.RangedResult[i]})
			anyResolved = true
		}
		if !anyResolved {
			return nil
		}
		return &CallToExecute{ServiceID: "tasks", Method: "EvaluateTask", Args: struct {
			TaskID uint64
			Scores []solverScore
		}{TaskID: v.Kind.EvaluateTaskID, Scores: scores}}
	default:
		return nil
	}
}

// resolve transitions a voting to Executing, dispatches its call, and
// records the terminal outcome (spec §4.2).
func (s *Service) resolve(id VotingID, now core.TimestampNs) error {
	s.mu.Lock()
	v, ok := s.votings[id]
	if !ok || v.Stage != StageInProgress {
		s.mu.Unlock()
		return nil
	}
	v.Stage = StageExecuting
	result := resolveVoting(v)
	call := buildCall(v, result)
	s.mu.Unlock()

	if call == nil {
		s.mu.Lock()
		v.Stage = StageFail
		v.FailReason = "Consensus not reached"
		s.recordEvent(Event{VotingID: id, Stage: StageFail, Reason: v.FailReason, At: now})
		delete(s.votings, id)
		s.mu.Unlock()
		return nil
	}

	dispatchErr := s.dispatcher.Dispatch(*call)

	s.mu.Lock()
	defer s.mu.Unlock()
	if dispatchErr != nil {
		v.Stage = StageFail
		v.FailReason = dispatchErr.Error()
		s.recordEvent(Event{VotingID: id, Stage: StageFail, Reason: v.FailReason, At: now})
	} else {
		v.Stage = StageSuccess
		s.recordEvent(Event{VotingID: id, Stage: StageSuccess, At: now})
	}
	delete(s.votings, id)
	return dispatchErr
}

// recordEvent appends to the bounded ring, evicting the oldest entry
// once at capacity (spec §4.2's "bounded ring (1000)").
func (s *Service) recordEvent(e Event) {
	s.events = append(s.events, e)
	if len(s.events) > eventsRingCapacity {
		s.events = s.events[len(s.events)-eventsRingCapacity:]
	}
}

// GetEvents is the read-only query over the retained voting history.
func (s *Service) GetEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// GetVoting is a read-only query for an in-progress voting.
func (s *Service) GetVoting(id VotingID) (*Voting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votings[id]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}
