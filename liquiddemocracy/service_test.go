package liquiddemocracy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
)

func TestFollowCycleScenario7(t *testing.T) {
	svc := New()
	a := core.NewRandomPrincipal()
	b := core.NewRandomPrincipal()

	require.NoError(t, svc.Follow(a, b, It(TopicGovernance)))
	require.NoError(t, svc.Follow(b, a, It(TopicGovernance)))

	got := svc.GetFollowersOf([]core.Principal{a})[a]
	assert.Len(t, got, 1)
	_, ok := got[b]
	assert.True(t, ok)
	_, selfPresent := got[a]
	assert.False(t, selfPresent, "a must not appear as its own follower despite the cycle")

	// Idempotent across duplicate calls.
	got2 := svc.GetFollowersOf([]core.Principal{a})[a]
	assert.Equal(t, got, got2)
}

func TestFollowTransitiveChain(t *testing.T) {
	svc := New()
	a, b, c := core.NewRandomPrincipal(), core.NewRandomPrincipal(), core.NewRandomPrincipal()

	// c follows b, b follows a => followers_of(a) = {b, c}
	require.NoError(t, svc.Follow(b, a, It(TopicDevelopment)))
	require.NoError(t, svc.Follow(c, b, It(TopicDevelopment)))

	got := svc.GetFollowersOf([]core.Principal{a})[a]
	assert.Len(t, got, 2)
	for _, p := range []core.Principal{b, c} {
		_, ok := got[p]
		assert.True(t, ok)
	}
}

func TestUnfollowRemovesBothSides(t *testing.T) {
	svc := New()
	a, b := core.NewRandomPrincipal(), core.NewRandomPrincipal()

	require.NoError(t, svc.Follow(a, b, It(TopicDesign)))
	require.NoError(t, svc.Follow(a, b, nil))

	got := svc.GetFollowersOf([]core.Principal{b})[b]
	assert.Len(t, got, 0)

	followed, err := svc.GetFollowedByMe(a, nil)
	require.NoError(t, err)
	assert.Len(t, followed, 0)
}

func TestTopicSetMatches(t *testing.T) {
	ts := Or(It(TopicDesign), And(It(TopicDevelopment), Not(It(TopicMarketing))))
	assert.True(t, ts.Matches([]DecisionTopicID{TopicDesign}))
	assert.True(t, ts.Matches([]DecisionTopicID{TopicDevelopment}))
	assert.False(t, ts.Matches([]DecisionTopicID{TopicMarketing}))
	assert.False(t, ts.Matches([]DecisionTopicID{TopicDevelopment, TopicMarketing}))
}

func TestTopicSetEqualStructural(t *testing.T) {
	a := And(It(TopicDesign), It(TopicMarketing))
	b := And(It(TopicDesign), It(TopicMarketing))
	c := And(It(TopicMarketing), It(TopicDesign))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestGetFollowedByMeTopicFilter(t *testing.T) {
	svc := New()
	a, b, c := core.NewRandomPrincipal(), core.NewRandomPrincipal(), core.NewRandomPrincipal()

	require.NoError(t, svc.Follow(a, b, It(TopicDesign)))
	require.NoError(t, svc.Follow(a, c, It(TopicMarketing)))

	onlyDesign, err := svc.GetFollowedByMe(a, []DecisionTopicID{TopicDesign})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.Principal{b}, onlyDesign)
}
