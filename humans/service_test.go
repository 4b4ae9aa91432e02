package humans

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New([]string{"tasks", "work_reports"}, "bank")
}

func strp(s string) *string { return &s }

func TestRegisterValidatesNameBounds(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()

	err := svc.Register(caller, strp("ab"), nil, 1)
	assert.Error(t, err)

	err = svc.Register(caller, strp(strings.Repeat("a", 129)), nil, 1)
	assert.Error(t, err)

	require.NoError(t, svc.Register(caller, strp("abc"), nil, 1))
	p, ok := svc.GetProfile(caller)
	require.True(t, ok)
	assert.Equal(t, "abc", *p.Name)
}

func TestRegisterValidatesAvatarSize(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	big := strings.Repeat("x", avatarMaxBytes+1)
	err := svc.Register(caller, nil, &big, 1)
	assert.Error(t, err)
}

func TestEditProfileDoubleOptionalSemantics(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, strp("original"), strp("avatar1"), 1))

	// Leave both unchanged.
	require.NoError(t, svc.EditProfile(caller, OptStr{}, OptStr{}))
	p, _ := svc.GetProfile(caller)
	assert.Equal(t, "original", *p.Name)
	assert.Equal(t, "avatar1", *p.AvatarSrc)

	// Clear avatar explicitly, leave name.
	require.NoError(t, svc.EditProfile(caller, OptStr{}, OptStr{Present: true, Value: nil}))
	p, _ = svc.GetProfile(caller)
	assert.Equal(t, "original", *p.Name)
	assert.Nil(t, p.AvatarSrc)

	// Set name to a new value.
	require.NoError(t, svc.EditProfile(caller, OptStr{Present: true, Value: strp("updated")}, OptStr{}))
	p, _ = svc.GetProfile(caller)
	assert.Equal(t, "updated", *p.Name)
}

func TestMintRewardsUnauthorizedCaller(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))

	err := svc.MintRewards("votings", []RewardEntry{{Solver: caller, RewardHours: e8s.FromUint64(1)}})
	assert.Error(t, err)
}

func TestMintRewardsDropsUnregisteredSilently(t *testing.T) {
	svc := newTestService(t)
	ghost := core.NewRandomPrincipal()
	err := svc.MintRewards("tasks", []RewardEntry{{Solver: ghost, RewardHours: e8s.FromUint64(1)}})
	assert.NoError(t, err)
}

func TestMintRewardsUpdatesBalancesAndReputation(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))

	hours := e8s.FromUint64(2 * 100_000_000)
	storypoints := e8s.FromUint64(3 * 100_000_000)
	require.NoError(t, svc.MintRewards("tasks", []RewardEntry{{Solver: caller, RewardHours: hours, RewardStorypoints: storypoints}}))

	p, _ := svc.GetProfile(caller)
	assert.Equal(t, hours.Raw().Uint64(), p.HoursBalance.Raw().Uint64())
	assert.Equal(t, storypoints.Raw().Uint64(), p.StorypointsBalance.Raw().Uint64())
	assert.Equal(t, e8s.Add(hours, storypoints).Raw().Uint64(), p.Reputation.Raw().Uint64())
	// Invariant: balance never exceeds what was earned (spec §8 invariant 2).
	assert.True(t, e8s.Cmp(p.HoursBalance, p.EarnedHours) <= 0)
	assert.True(t, e8s.Cmp(p.StorypointsBalance, p.EarnedStorypoints) <= 0)
}

func TestSpendRewardsRequiresBankCaller(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))
	require.NoError(t, svc.MintRewards("tasks", []RewardEntry{{Solver: caller, RewardHours: e8s.FromUint64(100_000_000)}}))

	err := svc.SpendRewards("tasks", caller, e8s.FromUint64(1), e8s.Zero())
	assert.Error(t, err)

	require.NoError(t, svc.SpendRewards("bank", caller, e8s.FromUint64(100_000_000), e8s.Zero()))
	p, _ := svc.GetProfile(caller)
	assert.True(t, p.HoursBalance.IsZero())
}

func TestSpendRewardsUnderflowRejected(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))

	err := svc.SpendRewards("bank", caller, e8s.FromUint64(1), e8s.Zero())
	assert.Error(t, err)
}

func TestRefundRewardsRestoresBalance(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))
	require.NoError(t, svc.MintRewards("tasks", []RewardEntry{{Solver: caller, RewardHours: e8s.FromUint64(100_000_000)}}))
	require.NoError(t, svc.SpendRewards("bank", caller, e8s.FromUint64(100_000_000), e8s.Zero()))
	require.NoError(t, svc.RefundRewards("bank", caller, e8s.FromUint64(100_000_000), e8s.Zero()))

	p, _ := svc.GetProfile(caller)
	assert.Equal(t, uint64(100_000_000), p.HoursBalance.Raw().Uint64())
}

func TestEmployUnemployTogglesTeamMembership(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))

	require.NoError(t, svc.Employ(caller, e8s.FromUint64(40*100_000_000), 1))
	assert.True(t, svc.IsTeamMember(caller))
	assert.Contains(t, svc.ListTeam(), caller)

	require.NoError(t, svc.Unemploy(caller))
	assert.False(t, svc.IsTeamMember(caller))
	assert.NotContains(t, svc.ListTeam(), caller)
}

func TestGetProfileProofsReflectsTeamAndReputation(t *testing.T) {
	svc := newTestService(t)
	caller := core.NewRandomPrincipal()
	require.NoError(t, svc.Register(caller, nil, nil, 1))
	require.NoError(t, svc.MintRewards("tasks", []RewardEntry{{Solver: caller, RewardHours: e8s.FromUint64(100_000_000)}}))
	require.NoError(t, svc.Employ(caller, e8s.FromUint64(20*100_000_000), 1))

	proof, err := svc.GetProfileProofs(caller)
	require.NoError(t, err)
	assert.True(t, proof.IsTeamMember)
	assert.Equal(t, uint64(100_000_000), proof.Reputation.Raw().Uint64())
	assert.Equal(t, uint64(100_000_000), proof.ReputationTotalSupply.Raw().Uint64())
}

func TestGetProfileProofsUnregisteredCallerErrors(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetProfileProofs(core.NewRandomPrincipal())
	assert.Error(t, err)
}
