// Package benchmark implements C12: pairwise statistical comparison of
// session cohorts tagged as benchmark variants (spec.md §4.11).
package benchmark

import "time"

// MetricName is the closed set of metric extraction rules.
type MetricName string

const (
	MetricAvgCost         MetricName = "avg_cost"
	MetricErrorRate       MetricName = "error_rate"
	MetricToolSuccessRate MetricName = "tool_success_rate"
	MetricCompletionRate  MetricName = "completion_rate"
	MetricAvgTokens       MetricName = "avg_tokens"
	MetricAvgDuration     MetricName = "avg_duration"
)

// proportionMetrics are treated categorically for chi-squared testing.
var proportionMetrics = map[MetricName]bool{
	MetricCompletionRate:  true,
	MetricErrorRate:       true,
	MetricToolSuccessRate: true,
}

// lowerIsBetter names metrics whose smaller mean is the better outcome.
var lowerIsBetter = map[MetricName]bool{
	MetricAvgCost:     true,
	MetricErrorRate:   true,
	MetricAvgDuration: true,
}

// neutralMetrics never declare a winner (spec.md §4.11: "for tokens it is
// neutral and no winner is declared").
var neutralMetrics = map[MetricName]bool{
	MetricAvgTokens: true,
}

// Variant is one benchmark arm, identified by the session tag it draws
// its population from.
type Variant struct {
	Name string
	Tag  string
}

// BenchmarkStatus mirrors the source's completed/running distinction
// (spec.md §4.11: "cache results when status=completed; compute on the
// fly while running").
type BenchmarkStatus string

const (
	StatusRunning   BenchmarkStatus = "running"
	StatusCompleted BenchmarkStatus = "completed"
)

// Benchmark is one comparison definition.
type Benchmark struct {
	ID       string
	TenantID string
	Name     string
	Variants []Variant
	Metrics  []MetricName
	Status   BenchmarkStatus

	CachedResult *Result // set once Status becomes completed
}

// VariantStats is the aggregate for one variant/metric pair.
type VariantStats struct {
	VariantName  string
	Mean         float64
	Median       float64
	StdDev       float64 // sample standard deviation
	Min          float64
	Max          float64
	Count        int
	Insufficient bool // sessionCount < 30
}

// Comparison is one pairwise A-vs-B result for a single metric.
type Comparison struct {
	Metric      MetricName
	VariantA    string
	VariantB    string
	PValue      float64
	Significant bool
	Stars       string // "★★★" | "★★" | "★" | "—"
	EffectSize  float64
	EffectName  string // "cohensD" | "phi"
	Winner      string // variant name, or "" if none/neutral
	TestUsed    string // "welch_t" | "chi_squared"
}

// MetricResult bundles one metric's per-variant stats with every pairwise
// comparison across variants.
type MetricResult struct {
	Metric      MetricName
	Stats       []*VariantStats
	Comparisons []*Comparison
}

// Result is the full benchmark computation output.
type Result struct {
	BenchmarkID string
	ComputedAt  time.Time
	Metrics     []*MetricResult
	Summary     string
}
