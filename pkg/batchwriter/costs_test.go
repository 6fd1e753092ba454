package batchwriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupModelCost_PrefixMatch(t *testing.T) {
	cost, ok := LookupModelCost(DefaultModelCosts, "claude-3-5-sonnet-20241022")
	assert.True(t, ok)
	assert.Equal(t, DefaultModelCosts["claude-3-5-sonnet"], cost)
}

func TestLookupModelCost_LongestPrefixWins(t *testing.T) {
	table := map[string]ModelCost{
		"gpt-4":    {InputPerMillion: 1},
		"gpt-4o":   {InputPerMillion: 2},
		"gpt-4o-mini": {InputPerMillion: 3},
	}
	cost, ok := LookupModelCost(table, "gpt-4o-mini-2024")
	assert.True(t, ok)
	assert.Equal(t, 3.0, cost.InputPerMillion)
}

func TestLookupModelCost_NoMatch(t *testing.T) {
	_, ok := LookupModelCost(DefaultModelCosts, "llama-3")
	assert.False(t, ok)
}

func TestUsageCostUSD_Formula(t *testing.T) {
	cost := ModelCost{InputPerMillion: 3, OutputPerMillion: 15, CacheReadPerMillion: 0.3, CacheWritePerMillion: 3.75}
	// 1000 input tokens, 200 cached read, 100 cached write, 500 output
	got := UsageCostUSD(cost, 1000, 500, 200, 100)
	uncached := 1000.0 - 200 - 100
	want := (uncached*3 + 500*15 + 200*0.3 + 100*3.75) / 1e6
	assert.InDelta(t, want, got, 1e-12)
}

func TestUsageCostUSD_ClampsNegativeUncached(t *testing.T) {
	cost := ModelCost{InputPerMillion: 3, OutputPerMillion: 15}
	got := UsageCostUSD(cost, 100, 0, 80, 50) // cacheRead+cacheWrite > input
	assert.Equal(t, 0.0, got)
}
