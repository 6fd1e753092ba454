package batchwriter

import "strings"

// ModelCost is the per-million-token pricing for one model family
// (spec.md §4.4: "cost via MODEL_COSTS table keyed by prefix match on
// model name").
type ModelCost struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheReadPerMillion  float64
	CacheWritePerMillion float64
}

// DefaultModelCosts is a representative pricing table for commonly used
// model families. Operators override/extend it via configuration; lookups
// are by longest-matching prefix so "claude-3-5-sonnet-20241022" matches
// the "claude-3-5-sonnet" entry.
var DefaultModelCosts = map[string]ModelCost{
	"claude-3-5-sonnet": {InputPerMillion: 3, OutputPerMillion: 15, CacheReadPerMillion: 0.30, CacheWritePerMillion: 3.75},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4, CacheReadPerMillion: 0.08, CacheWritePerMillion: 1},
	"claude-3-opus":     {InputPerMillion: 15, OutputPerMillion: 75, CacheReadPerMillion: 1.50, CacheWritePerMillion: 18.75},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10, CacheReadPerMillion: 1.25},
	"gpt-4.1":           {InputPerMillion: 2, OutputPerMillion: 8, CacheReadPerMillion: 0.50},
	"o1":                {InputPerMillion: 15, OutputPerMillion: 60},
}

// LookupModelCost finds the longest table key that is a prefix of model.
func LookupModelCost(table map[string]ModelCost, model string) (ModelCost, bool) {
	best := ""
	bestCost := ModelCost{}
	found := false
	for prefix, cost := range table {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, bestCost, found = prefix, cost, true
		}
	}
	return bestCost, found
}

// UsageCostUSD computes the §4.4 enrichment formula:
//
//	uncachedInput = max(0, input - cacheRead - cacheWrite)
//	totalCost = (uncachedInput*in + output*out + cacheRead*cr + cacheWrite*cw) / 1e6
func UsageCostUSD(cost ModelCost, inputTokens, outputTokens, cacheReadTokens, cacheWriteTokens int64) float64 {
	uncachedInput := inputTokens - cacheReadTokens - cacheWriteTokens
	if uncachedInput < 0 {
		uncachedInput = 0
	}
	total := float64(uncachedInput)*cost.InputPerMillion +
		float64(outputTokens)*cost.OutputPerMillion +
		float64(cacheReadTokens)*cost.CacheReadPerMillion +
		float64(cacheWriteTokens)*cost.CacheWritePerMillion
	return total / 1e6
}
