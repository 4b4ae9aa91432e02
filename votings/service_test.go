package votings

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

type stubDispatcher struct {
	mu    sync.Mutex
	calls []CallToExecute
	fail  bool
}

func (d *stubDispatcher) Dispatch(call CallToExecute) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return assertErr{}
	}
	d.calls = append(d.calls, call)
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "dispatch failed" }

func oneThird(total e8s.E8s) e8s.E8s {
	v, _ := e8s.Div(total, e8s.FromUint64(3*100_000_000))
	return v
}

func TestCastVoteResolvesImmediatelyOnFinishEarly(t *testing.T) {
	disp := &stubDispatcher{}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	id, err := svc.StartVoting(Kind{Tag: KindFinishEditTask, TaskID: 7}, 1, total, 1)
	require.NoError(t, err)

	// finish_early = 2T/3 = 600; a single voter with 600 rep and full
	// approval pushes this option past finish_early and consensus.
	voterRep := e8s.FromUint64(600 * 100_000_000)
	require.NoError(t, svc.CastVote(core.NewRandomPrincipal(), id, 0, &voterRep, voterRep, 2))

	require.Len(t, disp.calls, 1)
	assert.Equal(t, "FinishEditTask", disp.calls[0].Method)

	_, ok := svc.GetVoting(id)
	assert.False(t, ok)
}

func TestCastVoteSecondResolveIsNoop(t *testing.T) {
	disp := &stubDispatcher{}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	id, err := svc.StartVoting(Kind{Tag: KindFinishEditTask, TaskID: 1}, 1, total, 1)
	require.NoError(t, err)

	voterRep := e8s.FromUint64(600 * 100_000_000)
	require.NoError(t, svc.CastVote(core.NewRandomPrincipal(), id, 0, &voterRep, voterRep, 2))
	require.Len(t, disp.calls, 1)

	// Voting already resolved and deleted; a further cast is rejected with
	// an error and does not dispatch a second call.
	err = svc.CastVote(core.NewRandomPrincipal(), id, 0, &voterRep, voterRep, 3)
	assert.Error(t, err) // no longer exists
	assert.Len(t, disp.calls, 1)
}

func TestTimerResolveFailsWithoutQuorum(t *testing.T) {
	disp := &stubDispatcher{}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	id, err := svc.StartVoting(Kind{Tag: KindFinishEditTask, TaskID: 1}, 1, total, 1)
	require.NoError(t, err)

	tiny := e8s.FromUint64(1)
	require.NoError(t, svc.CastVote(core.NewRandomPrincipal(), id, 0, &tiny, tiny, 2))

	require.NoError(t, svc.TimerResolve(id, 100))
	assert.Empty(t, disp.calls)

	events := svc.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, StageFail, events[0].Stage)
	assert.Equal(t, "Quorum not reached", events[0].Reason)
}

func TestTimerResolveSucceedsAtQuorum(t *testing.T) {
	disp := &stubDispatcher{}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	// An EvaluateTask voting dispatches its ranged result once quorum is
	// met; a FinishEditTask voting would also need approval >= consensus
	// (2T/3), which a single 1T/3 vote cannot reach.
	kind := Kind{Tag: KindEvaluateTask, EvaluateTaskID: 1, Solutions: []SolutionRef{{TaskID: 1, Solver: core.NewRandomPrincipal()}}}
	id, err := svc.StartVoting(kind, 1, total, 1)
	require.NoError(t, err)

	quorumRep := oneThird(total) // exactly at quorum
	require.NoError(t, svc.CastVote(core.NewRandomPrincipal(), id, 0, &quorumRep, quorumRep, 2))

	require.NoError(t, svc.TimerResolve(id, 100))
	require.Len(t, disp.calls, 1)
}

func TestEvaluateTaskVotingProducesRankedResult(t *testing.T) {
	disp := &stubDispatcher{}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	solverA := core.NewRandomPrincipal()
	kind := Kind{Tag: KindEvaluateTask, EvaluateTaskID: 5, Solutions: []SolutionRef{{TaskID: 5, Solver: solverA}}}
	id, err := svc.StartVoting(kind, 1, total, 1)
	require.NoError(t, err)

	fullApproval := e8s.FromUint64(600 * 100_000_000)
	require.NoError(t, svc.CastVote(core.NewRandomPrincipal(), id, 0, &fullApproval, fullApproval, 2))

	require.Len(t, disp.calls, 1)
	assert.Equal(t, "EvaluateTask", disp.calls[0].Method)
}

func TestDispatchFailureRecordsFailEvent(t *testing.T) {
	disp := &stubDispatcher{fail: true}
	svc := New(disp)
	total := e8s.FromUint64(900 * 100_000_000)

	id, err := svc.StartVoting(Kind{Tag: KindFinishEditTask, TaskID: 1}, 1, total, 1)
	require.NoError(t, err)

	voterRep := e8s.FromUint64(600 * 100_000_000)
	err = svc.CastVote(core.NewRandomPrincipal(), id, 0, &voterRep, voterRep, 2)
	assert.Error(t, err)

	events := svc.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, StageFail, events[0].Stage)
}
