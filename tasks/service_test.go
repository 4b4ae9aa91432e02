package tasks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

type stubTeam struct {
	members map[core.Principal]struct{}
}

func newStubTeam(members ...core.Principal) *stubTeam {
	s := &stubTeam{members: make(map[core.Principal]struct{})}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s
}

func (s *stubTeam) IsTeamMember(p core.Principal) bool {
	_, ok := s.members[p]
	return ok
}

type stubArchive struct {
	enqueued []*Task
	rewards  [][]RewardEntry
}

func (a *stubArchive) Enqueue(t *Task, rewards []RewardEntry) {
	a.enqueued = append(a.enqueued, t)
	a.rewards = append(a.rewards, rewards)
}

func longDescription() string { return strings.Repeat("a", 20) }

func TestCreateTaskRequiresTeamMembership(t *testing.T) {
	caller := core.NewRandomPrincipal()
	svc := New(newStubTeam(), &stubArchive{}, "votings")

	_, err := svc.CreateTask(caller, "title", longDescription(), 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	assert.Error(t, err)
}

func TestCreateTaskValidatesBounds(t *testing.T) {
	caller := core.NewRandomPrincipal()
	svc := New(newStubTeam(caller), &stubArchive{}, "votings")

	_, err := svc.CreateTask(caller, "", longDescription(), 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	assert.Error(t, err)

	_, err = svc.CreateTask(caller, "title", "short", 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	assert.Error(t, err)

	id, err := svc.CreateTask(caller, "title", longDescription(), 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	require.NoError(t, err)
	assert.Equal(t, TaskID(1), id)
}

func TestFullLifecycleAndRewardAlgorithm(t *testing.T) {
	creator := core.NewRandomPrincipal()
	solverA := core.NewRandomPrincipal()
	solverB := core.NewRandomPrincipal()
	team := newStubTeam(creator, solverA, solverB)
	archive := &stubArchive{}
	svc := New(team, archive, "votings")

	hoursBase := e8s.FromUint64(10 * 100_000_000)
	storypointsBase := e8s.FromUint64(5 * 100_000_000)
	budget := e8s.FromUint64(100 * 100_000_000)

	id, err := svc.CreateTask(creator, "title", longDescription(), 7, nil, SolverConstraints{}, hoursBase, storypointsBase, budget, 1)
	require.NoError(t, err)

	require.NoError(t, svc.FinishEditTask("votings", id, budget, 1))

	require.NoError(t, svc.AttachToTask(solverA, id, false))
	require.NoError(t, svc.AttachToTask(solverB, id, false))
	require.NoError(t, svc.SolveTask(solverA, id, nil, 2))
	require.NoError(t, svc.SolveTask(solverB, id, nil, 2))

	require.NoError(t, svc.FinishSolveTask("votings", id))

	full := e8s.FromUint64(100_000_000)
	half := e8s.FromUint64(50_000_000)
	rewards, err := svc.EvaluateTask("votings", id, []Evaluation{
		{Solver: solverA, Score: &full},
		{Solver: solverB, Score: &half},
	})
	require.NoError(t, err)
	require.Len(t, rewards, 2)

	byPrincipal := map[core.Principal]RewardEntry{}
	for _, r := range rewards {
		byPrincipal[r.Solver] = r
	}

	// solverA has the max score: B*M/sigma = 100*1/1.5 = 66.66666666, times
	// score 1.0, plus storypoints base 5 = 71.66666666.
	aReward := byPrincipal[solverA]
	assert.False(t, aReward.Rejected)
	assert.Equal(t, hoursBase.Raw().Uint64(), aReward.RewardHours.Raw().Uint64())
	assert.Equal(t, uint64(7_166_666_666), aReward.RewardStorypoints.Raw().Uint64())

	bReward := byPrincipal[solverB]
	assert.False(t, bReward.Rejected)
	assert.True(t, e8s.Cmp(bReward.RewardStorypoints, aReward.RewardStorypoints) < 0)

	assert.Len(t, archive.enqueued, 1)
	assert.Equal(t, StageArchive, archive.enqueued[0].Stage)
	assert.Empty(t, svc.GetTaskIDs())
}

func TestEvaluateTaskRejectedSolverGetsNoReward(t *testing.T) {
	creator := core.NewRandomPrincipal()
	solver := core.NewRandomPrincipal()
	team := newStubTeam(creator, solver)
	svc := New(team, &stubArchive{}, "votings")

	id, err := svc.CreateTask(creator, "title", longDescription(), 7, nil, SolverConstraints{}, e8s.FromUint64(1), e8s.FromUint64(1), e8s.Zero(), 1)
	require.NoError(t, err)
	require.NoError(t, svc.FinishEditTask("votings", id, e8s.Zero(), 1))
	require.NoError(t, svc.SolveTask(solver, id, nil, 2))
	require.NoError(t, svc.FinishSolveTask("votings", id))

	rewards, err := svc.EvaluateTask("votings", id, []Evaluation{{Solver: solver, Score: nil}})
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.True(t, rewards[0].Rejected)
}

func TestSolveTaskRejectsNonTeamOnTeamOnlyTask(t *testing.T) {
	creator := core.NewRandomPrincipal()
	outsider := core.NewRandomPrincipal()
	team := newStubTeam(creator)
	svc := New(team, &stubArchive{}, "votings")

	id, err := svc.CreateTask(creator, "title", longDescription(), 7, nil, SolverConstraints{TeamOnly: true}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	require.NoError(t, err)
	require.NoError(t, svc.FinishEditTask("votings", id, e8s.Zero(), 1))

	err = svc.SolveTask(outsider, id, nil, 2)
	assert.Error(t, err)
}

func TestSolveTaskValidatesUrlFieldDomain(t *testing.T) {
	creator := core.NewRandomPrincipal()
	solver := core.NewRandomPrincipal()
	team := newStubTeam(creator, solver)
	svc := New(team, &stubArchive{}, "votings")

	fields := []SolutionField{{Name: "pr", Description: "link", Kind: FieldKindUrl, UrlKind: UrlKindGitHub}}
	id, err := svc.CreateTask(creator, "title", longDescription(), 7, fields, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	require.NoError(t, err)
	require.NoError(t, svc.FinishEditTask("votings", id, e8s.Zero(), 1))

	bad := "https://example.com/pr/1"
	err = svc.SolveTask(solver, id, []*string{&bad}, 2)
	assert.Error(t, err)

	good := "https://github.com/org/repo/pull/1"
	err = svc.SolveTask(solver, id, []*string{&good}, 2)
	assert.NoError(t, err)
}

func TestDeleteTaskAuthorization(t *testing.T) {
	creator := core.NewRandomPrincipal()
	other := core.NewRandomPrincipal()
	team := newStubTeam(creator)
	svc := New(team, &stubArchive{}, "votings")

	id, err := svc.CreateTask(creator, "title", longDescription(), 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	require.NoError(t, err)

	err = svc.DeleteTask(other, "", id)
	assert.Error(t, err)

	require.NoError(t, svc.DeleteTask(creator, "", id))
	assert.Empty(t, svc.GetTaskIDs())
}

func TestEditTaskOnlyInEditStage(t *testing.T) {
	creator := core.NewRandomPrincipal()
	team := newStubTeam(creator)
	svc := New(team, &stubArchive{}, "votings")

	id, err := svc.CreateTask(creator, "title", longDescription(), 7, nil, SolverConstraints{}, e8s.Zero(), e8s.Zero(), e8s.Zero(), 1)
	require.NoError(t, err)
	require.NoError(t, svc.FinishEditTask("votings", id, e8s.Zero(), 1))

	newTitle := "new title"
	err = svc.EditTask(creator, "", id, TaskEdits{Title: &newTitle})
	assert.Error(t, err)
}
