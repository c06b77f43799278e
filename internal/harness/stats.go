package harness

import (
	"math"
	"sort"

	"golang.org/x/perf/benchmath"
)

// Stats summarises per-iteration times in nanoseconds. The confidence
// interval is distribution-free and brackets the median.
type Stats struct {
	N          int
	Min        float64
	Max        float64
	Mean       float64
	Median     float64
	StdDev     float64
	CILow      float64
	CIHigh     float64
	Confidence float64
	Warnings   []string
}

// Summarize computes Stats for samples at the given confidence level.
func Summarize(samples []float64, confidence float64) Stats {
	if len(samples) == 0 {
		return Stats{Confidence: confidence}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean, sd := meanStdDev(sorted)
	st := Stats{
		N:          len(sorted),
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       mean,
		StdDev:     sd,
		Confidence: confidence,
	}

	sum := benchmath.AssumeNothing.Summary(benchmath.NewSample(sorted, &benchmath.DefaultThresholds), confidence)
	st.Median = sum.Center
	st.CILow, st.CIHigh = sum.Lo, sum.Hi
	for _, w := range sum.Warnings {
		st.Warnings = append(st.Warnings, w.Error())
	}
	// Too few samples leave the interval unbounded; fall back to the range.
	if !finite(st.CILow) || !finite(st.CIHigh) {
		st.CILow, st.CIHigh = st.Min, st.Max
	}
	return st
}

// Comparison contrasts two measured variants.
type Comparison struct {
	Baseline  Variant
	Candidate Variant
	// Speedup is the baseline median divided by the candidate median.
	Speedup     float64
	P           float64
	Alpha       float64
	Significant bool
	Warnings    []string
}

// Compare runs a Mann-Whitney U test between the two sample sets.
func Compare(baseline, candidate *Result) Comparison {
	s1 := benchmath.NewSample(append([]float64(nil), baseline.Samples...), &benchmath.DefaultThresholds)
	s2 := benchmath.NewSample(append([]float64(nil), candidate.Samples...), &benchmath.DefaultThresholds)
	c := benchmath.AssumeNothing.Compare(s1, s2)

	cmp := Comparison{
		Baseline:  baseline.Variant,
		Candidate: candidate.Variant,
		P:         c.P,
		Alpha:     c.Alpha,
	}
	if !finite(cmp.P) {
		cmp.P = 1
	}
	if candidate.Stats.Median > 0 {
		cmp.Speedup = baseline.Stats.Median / candidate.Stats.Median
	}
	cmp.Significant = cmp.P < cmp.Alpha
	for _, w := range c.Warnings {
		cmp.Warnings = append(cmp.Warnings, w.Error())
	}
	return cmp
}

func meanStdDev(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// relStdErr is the standard error of the mean relative to the mean.
func relStdErr(xs []float64) float64 {
	mean, sd := meanStdDev(xs)
	if mean == 0 {
		return math.Inf(1)
	}
	return sd / math.Sqrt(float64(len(xs))) / mean
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
