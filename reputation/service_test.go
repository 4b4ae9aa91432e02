package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, []string{"tasks", "work_reports"})
}

func TestMintUnauthorizedCaller(t *testing.T) {
	svc := newTestService(t)
	p := core.NewRandomPrincipal()
	err := svc.Mint("votings", []MintEntry{{Account: p, Qty: e8s.FromUint64(1)}}, 1)
	assert.Error(t, err)
}

func TestMintAccumulatesBalanceAndSupply(t *testing.T) {
	svc := newTestService(t)
	a := core.NewRandomPrincipal()
	b := core.NewRandomPrincipal()

	require.NoError(t, svc.Mint("tasks", []MintEntry{
		{Account: a, Qty: e8s.FromUint64(100_000_000)},
		{Account: b, Qty: e8s.FromUint64(50_000_000)},
	}, 1))
	require.NoError(t, svc.Mint("work_reports", []MintEntry{
		{Account: a, Qty: e8s.FromUint64(25_000_000)},
	}, 2))

	balA, err := svc.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(125_000_000), balA.Raw().Uint64())

	supply, err := svc.GetTotalSupply()
	require.NoError(t, err)
	assert.Equal(t, uint64(175_000_000), supply.Raw().Uint64())
}

func TestDecayRoundScenario5(t *testing.T) {
	svc := newTestService(t)
	a := core.NewRandomPrincipal()

	require.NoError(t, svc.Mint("tasks", []MintEntry{{Account: a, Qty: e8s.FromUint64(100 * 100_000_000)}}, 0))

	// Not yet due: less than a week elapsed.
	reschedule, err := svc.DecayRound(core.OneWeekNs - 1)
	require.NoError(t, err)
	assert.False(t, reschedule) // single entry visited, pass completes

	balBefore, err := svc.GetBalance(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(100*100_000_000), balBefore.Raw().Uint64())

	// Now due.
	now := core.TimestampNs(core.OneWeekNs + 1)
	_, err = svc.DecayRound(now)
	require.NoError(t, err)

	balAfter, err := svc.GetBalance(a)
	require.NoError(t, err)
	// Four successive sqrt reductions applied in one round.
	assert.Less(t, balAfter.Raw().Uint64(), balBefore.Raw().Uint64())

	supply, err := svc.GetTotalSupply()
	require.NoError(t, err)
	assert.Equal(t, balAfter.Raw().Uint64(), supply.Raw().Uint64())
}

func TestDecayDeletesZeroBalance(t *testing.T) {
	svc := newTestService(t)
	a := core.NewRandomPrincipal()
	require.NoError(t, svc.Mint("tasks", []MintEntry{{Account: a, Qty: e8s.FromUint64(1)}}, 0))

	now := core.TimestampNs(core.OneWeekNs + 1)
	_, err := svc.DecayRound(now)
	require.NoError(t, err)

	bal, err := svc.GetBalance(a)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	supply, err := svc.GetTotalSupply()
	require.NoError(t, err)
	assert.True(t, supply.IsZero())
}

func TestGetRepProofOnlyMeSkipsCache(t *testing.T) {
	svc := newTestService(t)
	a := core.NewRandomPrincipal()
	require.NoError(t, svc.Mint("tasks", []MintEntry{{Account: a, Qty: e8s.FromUint64(10)}}, 0))

	require.NoError(t, svc.GetRepProofPart1(a, SelectorOnlyMe, 100))
	proof, err := svc.GetRepProofPart2(a, SelectorOnlyMe)
	require.NoError(t, err)
	assert.Equal(t, a, proof.ID)
	assert.Len(t, proof.Followers, 0)
}

func TestGetRepProofWithFollowersNeedsRefresh(t *testing.T) {
	svc := newTestService(t)
	a := core.NewRandomPrincipal()

	err := svc.GetRepProofPart1(a, SelectorWithFollowers, 100)
	var refresh *RefreshNeeded
	assert.ErrorAs(t, err, &refresh)

	svc.RefreshFollowerCache(a, nil, 100)
	require.NoError(t, svc.GetRepProofPart1(a, SelectorWithFollowers, 100))

	_, err = svc.GetRepProofPart2(a, SelectorWithFollowers)
	require.NoError(t, err)
}
