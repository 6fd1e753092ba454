package benchmark

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentlens/backend/pkg/store"
)

// Engine computes benchmark results on demand (spec.md §4.11: "cache
// results when status=completed; compute on-the-fly while running").
type Engine struct {
	reader store.EventReader
}

func New(reader store.EventReader) *Engine {
	return &Engine{reader: reader}
}

// Compute runs every metric's full pairwise comparison for b and returns
// the result. Callers decide whether to cache it (store it on
// Benchmark.CachedResult) based on b.Status.
func (e *Engine) Compute(ctx context.Context, b *Benchmark) (*Result, error) {
	if len(b.Variants) < 2 {
		return nil, fmt.Errorf("benchmark: at least 2 variants are required")
	}
	if len(b.Metrics) == 0 {
		return nil, fmt.Errorf("benchmark: at least 1 metric is required")
	}

	variantSessions := make(map[string][]*store.Session, len(b.Variants))
	for _, v := range b.Variants {
		sessions, err := e.allSessions(ctx, b.TenantID, v.Tag)
		if err != nil {
			return nil, fmt.Errorf("benchmark: query sessions for variant %q: %w", v.Name, err)
		}
		variantSessions[v.Name] = sessions
	}

	result := &Result{BenchmarkID: b.ID, Metrics: make([]*MetricResult, 0, len(b.Metrics))}
	for _, metric := range b.Metrics {
		result.Metrics = append(result.Metrics, e.computeMetric(b.Variants, variantSessions, metric))
	}
	result.Summary = buildSummary(result)
	return result, nil
}

func (e *Engine) computeMetric(variants []Variant, variantSessions map[string][]*store.Session, metric MetricName) *MetricResult {
	mr := &MetricResult{Metric: metric}
	values := make(map[string][]float64, len(variants))
	for _, v := range variants {
		vals := collectMetricValues(variantSessions[v.Name], metric)
		values[v.Name] = vals
		st := summarize(vals)
		st.VariantName = v.Name
		mr.Stats = append(mr.Stats, st)
	}

	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			a, b := variants[i], variants[j]
			mr.Comparisons = append(mr.Comparisons, compareVariants(metric, a.Name, b.Name, statsFor(mr.Stats, a.Name), statsFor(mr.Stats, b.Name)))
		}
	}
	return mr
}

func statsFor(stats []*VariantStats, name string) *VariantStats {
	for _, s := range stats {
		if s.VariantName == name {
			return s
		}
	}
	return &VariantStats{VariantName: name}
}

func compareVariants(metric MetricName, nameA, nameB string, a, b *VariantStats) *Comparison {
	c := &Comparison{Metric: metric, VariantA: nameA, VariantB: nameB}

	if proportionMetrics[metric] {
		successA, totalA := int(a.Mean*float64(a.Count)+0.5), a.Count
		successB, totalB := int(b.Mean*float64(b.Count)+0.5), b.Count
		chi2, p := chiSquaredTest(successA, totalA, successB, totalB)
		c.TestUsed = "chi_squared"
		c.PValue = p
		c.EffectSize = phiCoefficient(chi2, totalA+totalB)
		c.EffectName = "phi"
	} else {
		_, _, p := welchTTest(a, b)
		c.TestUsed = "welch_t"
		c.PValue = p
		c.EffectSize = cohensD(a, b)
		c.EffectName = "cohensD"
	}

	c.Stars = confidenceStars(c.PValue)
	c.Significant = c.PValue < 0.1

	if c.Significant && !neutralMetrics[metric] {
		c.Winner = winner(metric, nameA, nameB, a.Mean, b.Mean)
	}
	return c
}

func winner(metric MetricName, nameA, nameB string, meanA, meanB float64) string {
	if meanA == meanB {
		return ""
	}
	aIsBetter := meanA < meanB
	if !lowerIsBetter[metric] {
		aIsBetter = meanA > meanB
	}
	if aIsBetter {
		return nameA
	}
	return nameB
}

// buildSummary joins significant comparisons into a human sentence, per
// spec.md §4.11.
func buildSummary(r *Result) string {
	var sentences []string
	var insufficient []string
	anySignificant := false

	seenInsufficient := map[string]bool{}
	for _, mr := range r.Metrics {
		for _, st := range mr.Stats {
			if st.Insufficient && !seenInsufficient[st.VariantName] {
				seenInsufficient[st.VariantName] = true
				insufficient = append(insufficient, st.VariantName)
			}
		}
		for _, c := range mr.Comparisons {
			if !c.Significant || c.Winner == "" {
				continue
			}
			anySignificant = true
			loser := c.VariantA
			if c.Winner == c.VariantA {
				loser = c.VariantB
			}
			sentences = append(sentences, fmt.Sprintf("%s outperforms %s on %s (%s)", c.Winner, loser, c.Metric, c.Stars))
		}
	}

	var out []string
	if len(insufficient) > 0 {
		out = append(out, fmt.Sprintf("%s: insufficient data", strings.Join(insufficient, ", ")))
	}
	if anySignificant {
		out = append(out, sentences...)
	} else {
		out = append(out, "no significant difference")
	}
	return strings.Join(out, "; ")
}

func (e *Engine) allSessions(ctx context.Context, tenantID, tag string) ([]*store.Session, error) {
	var all []*store.Session
	offset := 0
	for {
		page, err := e.reader.QuerySessions(ctx, tenantID, store.SessionFilter{Tags: []string{tag}, Limit: 1000, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Sessions...)
		if !page.HasMore || len(page.Sessions) == 0 {
			return all, nil
		}
		offset += len(page.Sessions)
	}
}
