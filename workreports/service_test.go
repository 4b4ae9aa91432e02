package workreports

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/liquiddemocracy"
)

type stubHumans struct {
	minted map[core.Principal]e8s.E8s
}

func (h *stubHumans) MintStorypoints(reporter core.Principal, storypoints e8s.E8s) error {
	if h.minted == nil {
		h.minted = map[core.Principal]e8s.E8s{}
	}
	h.minted[reporter] = storypoints
	return nil
}

type stubReputation struct {
	minted map[core.Principal]e8s.E8s
}

func (r *stubReputation) MintReputation(reporter core.Principal, qty e8s.E8s) error {
	if r.minted == nil {
		r.minted = map[core.Principal]e8s.E8s{}
	}
	r.minted[reporter] = qty
	return nil
}

func rep(n string, l int) string { return strings.Repeat(n, l) }

func findValidNonce(t *testing.T, selfID, caller core.Principal, topic liquiddemocracy.DecisionTopicID, title, goal, description, result string, wantRep bool) (uint64, [32]byte) {
	t.Helper()
	for nonce := uint64(0); nonce < 2_000_000; nonce++ {
		h := powHash(selfID, caller, topic, title, goal, description, result, wantRep, nonce)
		if verifyPow(selfID, caller, topic, title, goal, description, result, wantRep, nonce, h) {
			return nonce, h
		}
	}
	t.Fatal("could not find a valid proof of work within the search budget")
	return 0, [32]byte{}
}

func TestCreateReportRejectsInvalidPow(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	caller := core.NewRandomPrincipal()
	svc := New(selfID, &stubHumans{}, &stubReputation{})

	_, err := svc.CreateReport(caller, liquiddemocracy.TopicGovernance, rep("t", 10), rep("g", 16), rep("d", 16), rep("r", 16), false, 0, [32]byte{}, e8s.FromUint64(1), 1)
	assert.Error(t, err)
}

func TestCreateReportAcceptsValidPowAndValidatesBounds(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	caller := core.NewRandomPrincipal()
	svc := New(selfID, &stubHumans{}, &stubReputation{})

	title, goal, description, result := rep("t", 10), rep("g", 16), rep("d", 16), rep("r", 16)
	nonce, pow := findValidNonce(t, selfID, caller, liquiddemocracy.TopicGovernance, title, goal, description, result, false)

	id, err := svc.CreateReport(caller, liquiddemocracy.TopicGovernance, title, goal, description, result, false, nonce, pow, e8s.FromUint64(100), 1)
	require.NoError(t, err)
	assert.Equal(t, ReportID(1), id)
}

func TestCreateReportValidatesTitleBounds(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	caller := core.NewRandomPrincipal()
	svc := New(selfID, &stubHumans{}, &stubReputation{})

	title, goal, description, result := "short", rep("g", 16), rep("d", 16), rep("r", 16)
	nonce, pow := findValidNonce(t, selfID, caller, liquiddemocracy.TopicGovernance, title, goal, description, result, false)

	_, err := svc.CreateReport(caller, liquiddemocracy.TopicGovernance, title, goal, description, result, false, nonce, pow, e8s.FromUint64(100), 1)
	assert.Error(t, err)
}

func TestEvaluateAcceptsAtThresholdAndMintsRewards(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	reporter := core.NewRandomPrincipal()
	evaluator := core.NewRandomPrincipal()
	humans := &stubHumans{}
	reputation := &stubReputation{}
	svc := New(selfID, humans, reputation)

	title, goal, description, result := rep("t", 10), rep("g", 16), rep("d", 16), rep("r", 16)
	nonce, pow := findValidNonce(t, selfID, reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, true)

	totalSupply := e8s.FromUint64(100 * 100_000_000)
	id, err := svc.CreateReport(reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, true, nonce, pow, totalSupply, 1)
	require.NoError(t, err)

	tree := &DelegationNode{
		Principal:  evaluator,
		Reputation: e8s.FromUint64(70 * 100_000_000), // 70/100 = 0.70 >= 0.67 threshold
		TopicSet:   liquiddemocracy.It(liquiddemocracy.TopicGovernance),
	}

	fullScore := e8s.FromUint64(100_000_000)
	require.NoError(t, svc.Evaluate(id, tree, fullScore, false, 2))

	_, stillLive := svc.GetReport(id)
	assert.False(t, stillLive)

	archived := svc.GetArchivedReports(nil)
	require.Len(t, archived, 1)
	assert.False(t, humans.minted[reporter].IsZero())
	assert.False(t, reputation.minted[reporter].IsZero())
}

func TestEvaluateRejectsAsSpamAtThreshold(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	reporter := core.NewRandomPrincipal()
	evaluator := core.NewRandomPrincipal()
	svc := New(selfID, &stubHumans{}, &stubReputation{})

	title, goal, description, result := rep("t", 10), rep("g", 16), rep("d", 16), rep("r", 16)
	nonce, pow := findValidNonce(t, selfID, reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, false)

	totalSupply := e8s.FromUint64(100 * 100_000_000)
	id, err := svc.CreateReport(reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, false, nonce, pow, totalSupply, 1)
	require.NoError(t, err)

	tree := &DelegationNode{
		Principal:  evaluator,
		Reputation: e8s.FromUint64(70 * 100_000_000),
		TopicSet:   liquiddemocracy.It(liquiddemocracy.TopicGovernance),
	}
	require.NoError(t, svc.Evaluate(id, tree, e8s.Zero(), true, 2))

	_, stillLive := svc.GetReport(id)
	assert.False(t, stillLive)
	assert.Empty(t, svc.GetArchivedReports(nil))
}

func TestEvaluateAppliesEvalAcrossDelegationTree(t *testing.T) {
	selfID := core.NewRandomPrincipal()
	reporter := core.NewRandomPrincipal()
	delegator := core.NewRandomPrincipal()
	subDelegator := core.NewRandomPrincipal()
	svc := New(selfID, &stubHumans{}, &stubReputation{})

	title, goal, description, result := rep("t", 10), rep("g", 16), rep("d", 16), rep("r", 16)
	nonce, pow := findValidNonce(t, selfID, reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, false)
	totalSupply := e8s.FromUint64(1000 * 100_000_000)
	id, err := svc.CreateReport(reporter, liquiddemocracy.TopicGovernance, title, goal, description, result, false, nonce, pow, totalSupply, 1)
	require.NoError(t, err)

	tree := &DelegationNode{
		Principal:  delegator,
		Reputation: e8s.FromUint64(10 * 100_000_000),
		TopicSet:   liquiddemocracy.It(liquiddemocracy.TopicGovernance),
		Delegators: []*DelegationNode{
			{
				Principal:  subDelegator,
				Reputation: e8s.FromUint64(5 * 100_000_000),
				TopicSet:   liquiddemocracy.It(liquiddemocracy.TopicGovernance),
			},
		},
	}

	require.NoError(t, svc.Evaluate(id, tree, e8s.FromUint64(50_000_000), false, 2))

	report, ok := svc.GetReport(id)
	require.True(t, ok)
	_, sawDelegator := report.Evaluation[delegator]
	_, sawSub := report.Evaluation[subDelegator]
	assert.True(t, sawDelegator)
	assert.True(t, sawSub)
}
