package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func testCatalog() core.Catalog {
	return core.Catalog{
		"a1": {ID: "a1", Name: "Analyst", ModelName: "mock"},
		"a2": {ID: "a2", Name: "Critic", ModelName: "mock"},
		"a3": {ID: "a3", Name: "Moderator", ModelName: "mock"},
		"a4": {ID: "a4", Name: "Historian", ModelName: "mock"},
	}
}

func TestResolveTargets_Collaborative(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeCollaborative, roles, "hello there", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_CollaborativeMention(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeCollaborative, roles, "@Critic what do you think?", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, targets)
}

func TestResolveTargets_MentionCaseInsensitive(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeCollaborative, roles, "hey @critic, thoughts?", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, targets)
}

func TestResolveTargets_MentionUnknownFallsBack(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeCollaborative, roles, "@Nobody are you there?", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_MentionAmbiguousFallsBack(t *testing.T) {
	catalog := core.Catalog{
		"a1": {ID: "a1", Name: "Twin"},
		"a2": {ID: "a2", Name: "Twin"},
	}
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeCollaborative, roles, "@Twin hello", catalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_MentionOnlyAppliesToCollaborative(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeParallel, roles, "@Critic solo please", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_Council(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2", Council: []string{"a1", "a3", "a4"}}

	targets, err := ResolveTargets(core.ModeExpertCouncil, roles, "", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a3", "a4"}, targets)
}

func TestResolveTargets_CouncilDefaultsToPair(t *testing.T) {
	roles := core.Roles{System1: "a1", System2: "a2"}

	targets, err := ResolveTargets(core.ModeExpertCouncil, roles, "", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_Debate(t *testing.T) {
	roles := core.Roles{Proponent: "a1", Opponent: "a2", Moderator: "a3"}

	targets, err := ResolveTargets(core.ModeDebate, roles, "", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, targets)
}

func TestResolveTargets_DebateWithoutModerator(t *testing.T) {
	roles := core.Roles{Proponent: "a1", Opponent: "a2"}

	targets, err := ResolveTargets(core.ModeDebate, roles, "", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, targets)
}

func TestResolveTargets_UnknownMode(t *testing.T) {
	_, err := ResolveTargets(core.Mode("duet"), core.Roles{}, "", testCatalog())
	assert.Error(t, err)
}

func TestMentions(t *testing.T) {
	assert.Equal(t, []string{"Critic"}, mentions("@Critic hello"))
	assert.Equal(t, []string{"Critic"}, mentions("hey @Critic, hello"))
	assert.Equal(t, []string{"a", "b"}, mentions("@a and @b"))
	assert.Nil(t, mentions("no mentions here"))
	assert.Nil(t, mentions("lone @ sign"))
}

func TestPricingCost(t *testing.T) {
	p := Pricing{MinimumCharge: 0.01, PerToken: 0.0001}

	assert.InDelta(t, 0.01, p.Cost(0), 1e-9)
	assert.InDelta(t, 0.01, p.Cost(50), 1e-9) // below the floor
	assert.InDelta(t, 0.02, p.Cost(200), 1e-9)
	assert.InDelta(t, 1.0, p.Cost(10000), 1e-9)
}
