package tasks

import (
	"net/url"
	"strings"
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "tasks")

const (
	titleMinGraphemes       = 1
	titleMaxGraphemes       = 256
	descriptionMinGraphemes = 16
	descriptionMaxGraphemes = 4096
	fieldDescMaxGraphemes   = 512
	fieldNameMinGraphemes   = 1
	fieldNameMaxGraphemes   = 64
)

// TeamChecker lets Tasks ask Humans whether a principal is currently a
// team member, for team-only creation/solving rules.
type TeamChecker interface {
	IsTeamMember(p core.Principal) bool
}

// ArchiveSink receives tasks that leave the live map once they reach
// Archive, paired with the reward entries EvaluateTask just computed
// for them (spec §4.1.2's archive pump queues them for later RPC; this
// is the queue Service pushes into).
type ArchiveSink interface {
	Enqueue(t *Task, rewards []RewardEntry)
}

// Service owns the task map exclusively.
type Service struct {
	mu sync.Mutex

	tasks  map[TaskID]*Task
	nextID TaskID

	team    TeamChecker
	archive ArchiveSink

	votingsCallerID string
}

// New builds an empty Tasks service.
func New(team TeamChecker, archive ArchiveSink, votingsCallerID string) *Service {
	return &Service{
		tasks:           make(map[TaskID]*Task),
		team:            team,
		archive:         archive,
		votingsCallerID: votingsCallerID,
	}
}

func validateTitle(title string) error {
	l := core.GraphemeLen(title)
	if l < titleMinGraphemes || l > titleMaxGraphemes {
		return svcerr.Validationf("tasks: title must be %d-%d graphemes, got %d", titleMinGraphemes, titleMaxGraphemes, l)
	}
	return nil
}

func validateDescription(desc string) error {
	l := core.GraphemeLen(desc)
	if l < descriptionMinGraphemes || l > descriptionMaxGraphemes {
		return svcerr.Validationf("tasks: description must be %d-%d graphemes, got %d", descriptionMinGraphemes, descriptionMaxGraphemes, l)
	}
	return nil
}

func validateSolutionFields(fields []SolutionField) error {
	for i, f := range fields {
		nameLen := core.GraphemeLen(f.Name)
		if nameLen < fieldNameMinGraphemes || nameLen > fieldNameMaxGraphemes {
			return svcerr.Validationf("tasks: solution field %d name must be %d-%d graphemes, got %d", i, fieldNameMinGraphemes, fieldNameMaxGraphemes, nameLen)
		}
		if core.GraphemeLen(f.Description) > fieldDescMaxGraphemes {
			return svcerr.Validationf("tasks: solution field %d description exceeds %d graphemes", i, fieldDescMaxGraphemes)
		}
	}
	return nil
}

func escapeFields(fields []SolutionField) []SolutionField {
	out := make([]SolutionField, len(fields))
	for i, f := range fields {
		f.Name = core.EscapeScriptTags(f.Name)
		f.Description = core.EscapeScriptTags(f.Description)
		out[i] = f
	}
	return out
}

// CreateTask creates a fresh task in the Edit stage (spec §4.1). caller
// must currently be a team member.
func (s *Service) CreateTask(
	caller core.Principal,
	title, description string,
	daysToSolve uint64,
	solutionFields []SolutionField,
	constraints SolverConstraints,
	hoursBase, storypointsBase, storypointsExtBudget e8s.E8s,
	now core.TimestampNs,
) (TaskID, error) {
	if !s.team.IsTeamMember(caller) {
		return 0, svcerr.Authorizationf("tasks: caller %s is not a team member", caller)
	}
	if err := validateTitle(title); err != nil {
		return 0, err
	}
	if err := validateDescription(description); err != nil {
		return 0, err
	}
	if err := validateSolutionFields(solutionFields); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	t := &Task{
		ID:                   id,
		Creator:              caller,
		Title:                core.EscapeScriptTags(title),
		Description:          core.EscapeScriptTags(description),
		SolutionFields:       escapeFields(solutionFields),
		SolverConstraints:    constraints,
		HoursBase:            hoursBase,
		StorypointsBase:      storypointsBase,
		StorypointsExtBudget: storypointsExtBudget,
		CreatedAt:            now,
		Stage:                StageEdit,
		Candidates:           make(map[core.Principal]struct{}),
		Solutions:            make(map[core.Principal]*Solution),
	}
	// days_to_solve is interpreted once FinishEditTask moves the task
	// into Solve; stash it on the task so that transition has it.
	t.DaysToSolveNs = core.DurationNs(daysToSolve) * core.OneDayNs

	s.tasks[id] = t
	log.Info("task created", "id", id, "creator", caller)
	return id, nil
}

func (s *Service) authorizeVotings(callerID string) error {
	if callerID != s.votingsCallerID {
		return svcerr.Authorizationf("tasks: caller %q is not the votings service", callerID)
	}
	return nil
}

// TaskEdits carries the optional overrides EditTask may apply.
type TaskEdits struct {
	Title                *string
	Description          *string
	SolutionFields       []SolutionField
	SolverConstraints    *SolverConstraints
	HoursBase            *e8s.E8s
	StorypointsBase      *e8s.E8s
	StorypointsExtBudget *e8s.E8s
}

// EditTask applies overrides while the task is still in Edit (spec
// §4.1). callerID is the service-caller identity ("" for an
// end-user call, checked instead by principal equality to Creator).
func (s *Service) EditTask(caller core.Principal, callerID string, id TaskID, edits TaskEdits) error {
	if edits.Title != nil {
		if err := validateTitle(*edits.Title); err != nil {
			return err
		}
	}
	if edits.Description != nil {
		if err := validateDescription(*edits.Description); err != nil {
			return err
		}
	}
	if edits.SolutionFields != nil {
		if err := validateSolutionFields(edits.SolutionFields); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageEdit {
		return svcerr.Statef("tasks: task %d is not in edit stage", id)
	}
	if t.Creator != caller && callerID != s.votingsCallerID {
		return svcerr.Authorizationf("tasks: caller is neither the task creator nor the votings service")
	}

	if edits.Title != nil {
		t.Title = core.EscapeScriptTags(*edits.Title)
	}
	if edits.Description != nil {
		t.Description = core.EscapeScriptTags(*edits.Description)
	}
	if edits.SolutionFields != nil {
		t.SolutionFields = escapeFields(edits.SolutionFields)
	}
	if edits.SolverConstraints != nil {
		t.SolverConstraints = *edits.SolverConstraints
	}
	if edits.HoursBase != nil {
		t.HoursBase = *edits.HoursBase
	}
	if edits.StorypointsBase != nil {
		t.StorypointsBase = *edits.StorypointsBase
	}
	if edits.StorypointsExtBudget != nil {
		t.StorypointsExtBudget = *edits.StorypointsExtBudget
	}
	return nil
}

// FinishEditTask moves a task from Edit into Solve (spec §4.1),
// callable only by the votings service once its EditTask/FinishEditTask
// voting has resolved.
func (s *Service) FinishEditTask(callerID string, id TaskID, finalStorypointsExtBudget e8s.E8s, now core.TimestampNs) error {
	if err := s.authorizeVotings(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageEdit {
		return svcerr.Statef("tasks: task %d is not in edit stage", id)
	}

	t.StorypointsExtBudget = finalStorypointsExtBudget
	t.Stage = StageSolve
	t.SolveUntil = now.Add(t.DaysToSolveNs)
	return nil
}

// StartSolveTask / AttachToTask record or remove a solving candidate
// (spec §4.1). Permitted while the task is in Edit or Solve.
func (s *Service) AttachToTask(caller core.Principal, id TaskID, detach bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageEdit && t.Stage != StageSolve {
		return svcerr.Statef("tasks: task %d is not accepting candidates", id)
	}
	if detach {
		delete(t.Candidates, caller)
		return nil
	}
	if t.SolverConstraints.TeamOnly && !s.team.IsTeamMember(caller) {
		return svcerr.Authorizationf("tasks: task %d is team-only", id)
	}
	t.Candidates[caller] = struct{}{}
	return nil
}

func validateSolutionField(f SolutionField, value string) error {
	switch f.Kind {
	case FieldKindMd:
		return nil
	case FieldKindUrl:
		parsed, err := url.Parse(value)
		if err != nil || parsed.Host == "" {
			return svcerr.Validationf("tasks: field %q is not a valid URL", f.Name)
		}
		if f.UrlKind == UrlKindAny {
			return nil
		}
		suffixes, ok := urlKindSuffixes[f.UrlKind]
		if !ok {
			return svcerr.Validationf("tasks: field %q has an unknown URL kind", f.Name)
		}
		host := strings.ToLower(parsed.Hostname())
		for _, suffix := range suffixes {
			if strings.HasSuffix(host, suffix) {
				return nil
			}
		}
		return svcerr.Validationf("tasks: field %q URL domain does not match the expected kind", f.Name)
	default:
		return svcerr.Validationf("tasks: field %q has an unknown kind", f.Name)
	}
}

// SolveTask submits (or updates) caller's solution while the task is
// in Solve (spec §4.1).
func (s *Service) SolveTask(caller core.Principal, id TaskID, filledInFields []*string, now core.TimestampNs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageSolve {
		return svcerr.Statef("tasks: task %d is not in solve stage", id)
	}
	if t.SolverConstraints.TeamOnly && !s.team.IsTeamMember(caller) {
		return svcerr.Authorizationf("tasks: task %d is team-only", id)
	}
	if filledInFields != nil {
		if len(filledInFields) != len(t.SolutionFields) {
			return svcerr.Validationf("tasks: expected %d solution fields, got %d", len(t.SolutionFields), len(filledInFields))
		}
		for i, field := range t.SolutionFields {
			value := filledInFields[i]
			if value == nil {
				continue
			}
			if err := validateSolutionField(field, *value); err != nil {
				return err
			}
		}
	}

	t.Solutions[caller] = &Solution{Solver: caller, FilledInFields: filledInFields, SolvedAt: now}
	t.Candidates[caller] = struct{}{}
	return nil
}

// FinishSolveTask moves Solve -> Evaluate (spec §4.1), callable only
// by the votings service.
func (s *Service) FinishSolveTask(callerID string, id TaskID) error {
	if err := s.authorizeVotings(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageSolve {
		return svcerr.Statef("tasks: task %d is not in solve stage", id)
	}
	t.Stage = StageEvaluate
	return nil
}

// EvaluateTask scores every solution, computes rewards (spec §4.1.1),
// and archives the task, callable only by the votings service.
func (s *Service) EvaluateTask(callerID string, id TaskID, evaluations []Evaluation) ([]RewardEntry, error) {
	if err := s.authorizeVotings(callerID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage != StageEvaluate {
		return nil, svcerr.Statef("tasks: task %d is not in evaluate stage", id)
	}

	seen := make(map[core.Principal]struct{}, len(evaluations))
	for _, ev := range evaluations {
		if _, ok := t.Solutions[ev.Solver]; !ok {
			return nil, svcerr.Validationf("tasks: evaluation for %s who did not submit a solution", ev.Solver)
		}
		if _, dup := seen[ev.Solver]; dup {
			return nil, svcerr.Validationf("tasks: duplicate evaluation for solver %s", ev.Solver)
		}
		seen[ev.Solver] = struct{}{}
		if ev.Score != nil && e8s.Cmp(*ev.Score, e8s.FromUint64(100_000_000)) > 0 {
			return nil, svcerr.Validationf("tasks: evaluation score for %s exceeds 1.0", ev.Solver)
		}
	}
	for solver := range t.Solutions {
		if _, ok := seen[solver]; !ok {
			return nil, svcerr.Validationf("tasks: missing evaluation for solver %s", solver)
		}
	}

	rewards := computeRewards(t, evaluations)

	t.Stage = StageArchive
	s.archive.Enqueue(t, rewards)
	delete(s.tasks, id)

	log.Info("task evaluated", "id", id, "rewards", len(rewards))
	return rewards, nil
}

// computeRewards implements the reward algorithm of spec §4.1.1. B is
// the extended storypoints budget; sigma is the sum of all non-rejected
// scores; m is the maximum non-rejected score. Each accepted solver
// (score is Some, including Some(0)) gets storypoints_base +
// (B*m/sigma)*score and hours_base only when score > 0; a None score is
// the only thing that rejects a solver outright (mirrors the original's
// evaluate, which treats only eval_opt.is_none() as rejected).
func computeRewards(t *Task, evaluations []Evaluation) []RewardEntry {
	sigma, m := e8s.Zero(), e8s.Zero()
	for _, ev := range evaluations {
		if ev.Score == nil {
			continue
		}
		sigma = e8s.Add(sigma, *ev.Score)
		if e8s.Cmp(*ev.Score, m) > 0 {
			m = *ev.Score
		}
	}

	rewards := make([]RewardEntry, 0, len(evaluations))
	for _, ev := range evaluations {
		if ev.Score == nil {
			rewards = append(rewards, RewardEntry{Solver: ev.Solver, Rejected: true})
			continue
		}

		storypointsReward := t.StorypointsBase
		if !sigma.IsZero() {
			budgetShare, err := e8s.Div(e8s.Mul(t.StorypointsExtBudget, m), sigma)
			if err == nil {
				weighted := e8s.Mul(budgetShare, *ev.Score)
				storypointsReward = e8s.Add(storypointsReward, weighted)
			}
		}

		hoursReward := e8s.Zero()
		if !ev.Score.IsZero() {
			hoursReward = t.HoursBase
		}

		rewards = append(rewards, RewardEntry{
			Solver:            ev.Solver,
			RewardHours:       hoursReward,
			RewardStorypoints: storypointsReward,
		})
	}
	return rewards
}

// DeleteTask removes a task outright (spec §4.1): the creator may do
// so only while it is in Edit; the votings service may do so in any
// non-Archive stage.
func (s *Service) DeleteTask(caller core.Principal, callerID string, id TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return svcerr.Statef("tasks: no task %d", id)
	}
	if t.Stage == StageArchive {
		return svcerr.Statef("tasks: task %d is already archived", id)
	}
	if callerID == s.votingsCallerID {
		delete(s.tasks, id)
		return nil
	}
	if t.Creator == caller && t.Stage == StageEdit {
		delete(s.tasks, id)
		return nil
	}
	return svcerr.Authorizationf("tasks: caller may not delete task %d in its current stage", id)
}

// GetTasksByID is a read-only query (spec §4.1).
func (s *Service) GetTasksByID(ids []TaskID) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// GetTaskIDs lists every live (non-archived) task id.
func (s *Service) GetTaskIDs() []TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	return out
}

// GetTasksStats aggregates per-stage counts.
func (s *Service) GetTasksStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	for _, t := range s.tasks {
		stats.TotalCount++
		switch t.Stage {
		case StageEdit:
			stats.EditCount++
		case StageSolve:
			stats.SolveCount++
		case StageEvaluate:
			stats.EvaluateCount++
		case StageArchive:
			stats.ArchiveCount++
		}
	}
	return stats
}

func cloneTask(t *Task) *Task {
	cp := *t
	cp.SolutionFields = append([]SolutionField(nil), t.SolutionFields...)
	cp.Candidates = make(map[core.Principal]struct{}, len(t.Candidates))
	for c := range t.Candidates {
		cp.Candidates[c] = struct{}{}
	}
	cp.Solutions = make(map[core.Principal]*Solution, len(t.Solutions))
	for p, sol := range t.Solutions {
		solCopy := *sol
		solCopy.FilledInFields = append([]*string(nil), sol.FilledInFields...)
		cp.Solutions[p] = &solCopy
	}
	return &cp
}
