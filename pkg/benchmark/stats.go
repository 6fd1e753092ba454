package benchmark

import "math"

// No statistics library appears anywhere in the retrieval pack, so the
// formulae from spec.md §4.11 are implemented directly against math —
// documented as a stdlib usage in DESIGN.md.

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sortFloats(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// sampleStdDev is the n-1 denominator (sample) standard deviation.
func sampleStdDev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func summarize(xs []float64) *VariantStats {
	st := &VariantStats{Count: len(xs), Insufficient: len(xs) < 30}
	if len(xs) == 0 {
		return st
	}
	st.Mean = mean(xs)
	st.Median = median(xs)
	st.StdDev = sampleStdDev(xs, st.Mean)
	st.Min, st.Max = xs[0], xs[0]
	for _, x := range xs {
		if x < st.Min {
			st.Min = x
		}
		if x > st.Max {
			st.Max = x
		}
	}
	return st
}

// welchTTest returns (t, df, p) for two independent samples with unequal
// variance, per spec.md §4.11's literal formula.
func welchTTest(a, b *VariantStats) (t, df, p float64) {
	varA := st2(a)
	varB := st2(b)
	nA, nB := float64(a.Count), float64(b.Count)
	if nA == 0 || nB == 0 || (varA == 0 && varB == 0) {
		return 0, 0, 1
	}

	se2 := varA/nA + varB/nB
	if se2 <= 0 {
		return 0, 0, 1
	}
	t = (a.Mean - b.Mean) / math.Sqrt(se2)

	num := se2 * se2
	denom := 0.0
	if nA > 1 {
		denom += (varA / nA) * (varA / nA) / (nA - 1)
	}
	if nB > 1 {
		denom += (varB / nB) * (varB / nB) / (nB - 1)
	}
	if denom == 0 {
		df = nA + nB - 2
	} else {
		df = num / denom
	}

	p = twoSidedStudentTP(t, df)
	return t, df, p
}

func st2(v *VariantStats) float64 { return v.StdDev * v.StdDev }

// twoSidedStudentTP returns the two-sided p-value for statistic t with df
// degrees of freedom, via the regularized incomplete beta function
// (Abramowitz & Stegun 26.7.1's relation between the Student-t CDF and I_x).
func twoSidedStudentTP(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	x := df / (df + t*t)
	ib := regularizedIncompleteBeta(x, df/2, 0.5)
	return clampProbability(ib)
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// regularizedIncompleteBeta computes I_x(a, b) via the continued-fraction
// expansion (Numerical Recipes §6.4), a standard stdlib-free approach to
// the incomplete beta function.
func regularizedIncompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b)
	front := math.Exp(lbeta + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betacf(x, a, b) / a
	}
	return 1 - front*betacf(1-x, b, a)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// betacf is the continued-fraction evaluation used by the incomplete
// beta function (Lentz's algorithm).
func betacf(x, a, b float64) float64 {
	const maxIter = 200
	const epsilon = 1e-12
	const tiny = 1e-300

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		mf := float64(m)
		m2 := 2 * mf

		aa := mf * (b - mf) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + mf) * (qab + mf) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

// chiSquaredTest runs a 2x2 contingency-table test (df=1) on successes
// vs failures for two variants of a proportion metric.
func chiSquaredTest(successA, totalA, successB, totalB int) (chi2, p float64) {
	if totalA == 0 || totalB == 0 {
		return 0, 1
	}
	failA := totalA - successA
	failB := totalB - successB
	n := float64(totalA + totalB)

	// Expected counts under the null (no association between variant and outcome).
	rowSuccess := float64(successA + successB)
	rowFail := float64(failA + failB)
	colA := float64(totalA)
	colB := float64(totalB)

	expSA := rowSuccess * colA / n
	expFA := rowFail * colA / n
	expSB := rowSuccess * colB / n
	expFB := rowFail * colB / n

	chi2 = chiTerm(float64(successA), expSA) + chiTerm(float64(failA), expFA) +
		chiTerm(float64(successB), expSB) + chiTerm(float64(failB), expFB)

	p = 1 - chiSquaredCDF1DF(chi2)
	return chi2, clampProbability(p)
}

func chiTerm(observed, expected float64) float64 {
	if expected == 0 {
		return 0
	}
	d := observed - expected
	return d * d / expected
}

// chiSquaredCDF1DF is the df=1 chi-squared CDF, expressible in closed form
// via the error function: P(X <= x) = erf(sqrt(x/2)).
func chiSquaredCDF1DF(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Erf(math.Sqrt(x / 2))
}

// confidenceStars maps a p-value to spec.md §4.11's star rating.
func confidenceStars(p float64) string {
	switch {
	case p < 0.01:
		return "★★★"
	case p < 0.05:
		return "★★"
	case p < 0.1:
		return "★"
	default:
		return "—"
	}
}

// cohensD is the standardized mean difference for t-tests.
func cohensD(a, b *VariantStats) float64 {
	pooled := math.Sqrt((st2(a) + st2(b)) / 2)
	if pooled == 0 {
		return 0
	}
	return math.Abs(a.Mean-b.Mean) / pooled
}

// phiCoefficient is the effect size for a 2x2 chi-squared test.
func phiCoefficient(chi2 float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Sqrt(chi2 / float64(n))
}
