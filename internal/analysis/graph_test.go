package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamxray/xray/internal/models"
)

func TestBusFactorColor(t *testing.T) {
	tests := []struct {
		bf    float64
		color string
		risk  string
	}{
		{0.1, "#ef4444", "critical"},
		{0.3, "#f97316", "high"},
		{0.5, "#eab308", "moderate"},
		{0.7, "#22c55e", "low"},
		{1.0, "#22c55e", "low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.color, BusFactorColor(tt.bf), "bf %v", tt.bf)
		assert.Equal(t, tt.risk, BusFactorRisk(tt.bf), "bf %v", tt.bf)
	}
}

func testGraphInput() ([]*models.ContributorStats, []*models.ModuleStats) {
	contributors := []*models.ContributorStats{
		{Name: "Alice", Email: "alice@example.com", TotalCommits: 10, TotalAdditions: 500, TotalDeletions: 100},
		{Name: "Bob", Email: "bob@example.com", TotalCommits: 5, TotalAdditions: 200, TotalDeletions: 50},
		{Name: "Idle", Email: "idle@example.com", TotalCommits: 1},
	}
	modules := []*models.ModuleStats{
		{
			Module:       "lib/core",
			TotalCommits: 12,
			BusFactor:    0.70,
			Contributors: map[string]*models.ContributorModuleStats{
				"alice@example.com": {Commits: 10},
				"bob@example.com":   {Commits: 2},
			},
		},
		{
			Module:       "lib/util",
			TotalCommits: 3,
			BusFactor:    0.20,
			Contributors: map[string]*models.ContributorModuleStats{
				"bob@example.com": {Commits: 3},
			},
		},
	}
	return contributors, modules
}

func TestBuildGraph(t *testing.T) {
	contributors, modules := testGraphInput()
	g := BuildGraph(contributors, modules, nil)

	// Idle has no link so the node is pruned.
	require.Len(t, g.Nodes, 4)
	byID := make(map[string]models.GraphNode)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	alice := byID["c:alice@example.com"]
	assert.Equal(t, "contributor", alice.Type)
	assert.Equal(t, "Alice", alice.Label)
	assert.InDelta(t, 3+12.0, alice.Size, 1e-9) // max commit count
	assert.Equal(t, 600, alice.TotalLines)

	bob := byID["c:bob@example.com"]
	assert.InDelta(t, 3+5.0/10.0*12, bob.Size, 1e-9)

	core := byID["m:lib/core"]
	assert.Equal(t, "module", core.Type)
	assert.InDelta(t, 5+15.0, core.Size, 1e-9)
	assert.Equal(t, "#22c55e", core.Color)
	assert.Equal(t, "low", core.RiskLevel)

	util := byID["m:lib/util"]
	assert.InDelta(t, 5+3.0/12.0*15, util.Size, 1e-9)
	assert.Equal(t, "#ef4444", util.Color)

	require.Len(t, g.Links, 3)
	linkKey := make(map[string]models.GraphLink)
	for _, l := range g.Links {
		linkKey[l.Source+"->"+l.Target] = l
	}
	// Weights normalize against the busiest contributor-module pair.
	assert.InDelta(t, 1.0, linkKey["c:alice@example.com->m:lib/core"].Weight, 1e-9)
	assert.InDelta(t, 0.2, linkKey["c:bob@example.com->m:lib/core"].Weight, 1e-9)
	assert.InDelta(t, 0.3, linkKey["c:bob@example.com->m:lib/util"].Weight, 1e-9)
	assert.Equal(t, "working", linkKey["c:alice@example.com->m:lib/core"].ExpertiseDepth)
}

func TestBuildGraphExpertiseDepth(t *testing.T) {
	contributors, modules := testGraphInput()
	expertise := []models.ExpertiseClassification{
		{PRNumber: 1, Author: "alice", KnowledgeDepth: "surface", ModulesTouched: []string{"lib/core"}},
		{PRNumber: 2, Author: "alice", KnowledgeDepth: "architect", ModulesTouched: []string{"lib/core"}},
	}

	g := BuildGraph(contributors, modules, expertise)

	var coreLink *models.GraphLink
	for i, l := range g.Links {
		if l.Source == "c:alice@example.com" && l.Target == "m:lib/core" {
			coreLink = &g.Links[i]
		}
	}
	require.NotNil(t, coreLink)
	// The highest observed depth wins.
	assert.Equal(t, "architect", coreLink.ExpertiseDepth)

	var alice models.GraphNode
	for _, n := range g.Nodes {
		if n.ID == "c:alice@example.com" {
			alice = n
		}
	}
	assert.Equal(t, []string{"lib/core"}, alice.ExpertiseAreas)
}

func TestBuildGraphTopModuleCap(t *testing.T) {
	var modules []*models.ModuleStats
	contributors := []*models.ContributorStats{
		{Name: "A", Email: "a@x.com", TotalCommits: 1},
	}
	for i := 0; i < 25; i++ {
		modules = append(modules, &models.ModuleStats{
			Module:       "m" + string(rune('a'+i)),
			TotalCommits: 100 - i,
			Contributors: map[string]*models.ContributorModuleStats{
				"a@x.com": {Commits: 100 - i},
			},
		})
	}

	g := BuildGraph(contributors, modules, nil)

	moduleNodes := 0
	for _, n := range g.Nodes {
		if n.Type == "module" {
			moduleNodes++
		}
	}
	assert.Equal(t, 20, moduleNodes)
	assert.Len(t, g.Links, 20)
}

func TestBuildGraphNoiseFloor(t *testing.T) {
	contributors := []*models.ContributorStats{
		{Name: "A", Email: "a@x.com", TotalCommits: 200},
		{Name: "B", Email: "b@x.com", TotalCommits: 1},
	}
	modules := []*models.ModuleStats{
		{
			Module:       "lib/core",
			TotalCommits: 201,
			Contributors: map[string]*models.ContributorModuleStats{
				"a@x.com": {Commits: 200},
				"b@x.com": {Commits: 1},
			},
		},
	}

	g := BuildGraph(contributors, modules, nil)

	// 1/200 = 0.005 sits below the floor, so B gets no link and no node.
	require.Len(t, g.Links, 1)
	assert.Equal(t, "c:a@x.com", g.Links[0].Source)
	for _, n := range g.Nodes {
		assert.NotEqual(t, "c:b@x.com", n.ID)
	}
}
