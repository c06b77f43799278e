// Package report turns harness results into a protocol.Report and renders it
// as text, json, yaml or Go benchmark format.
package report

import (
	"errors"
	"runtime"
	"time"

	"github.com/croncommander/clonebench/internal/harness"
	"github.com/croncommander/clonebench/internal/protocol"
)

// Meta describes the run a report belongs to.
type Meta struct {
	RunID       string
	StartedAt   time.Time
	Hostname    string
	BufferSize  int // characters
	BufferBytes int
	Alphabet    string
	Suffix      string
	Workload    harness.Workload
}

// Build assembles the report. A comparison is added only when both the
// owned-copy and the shared-cell variants completed.
func Build(meta Meta, results []*harness.Result, failures []error) *protocol.Report {
	r := &protocol.Report{
		RunID:       meta.RunID,
		StartedAt:   meta.StartedAt.UTC().Format(time.RFC3339),
		Hostname:    meta.Hostname,
		GoVersion:   runtime.Version(),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
		BufferSize:  meta.BufferSize,
		BufferBytes: meta.BufferBytes,
		Alphabet:    meta.Alphabet,
		Suffix:      meta.Suffix,
		Workload:    string(meta.Workload),
		Variants:    make([]protocol.VariantReport, 0, len(results)),
	}

	var owned, shared *harness.Result
	for _, res := range results {
		r.Variants = append(r.Variants, Variant(res))
		switch res.Variant {
		case harness.VariantOwned:
			owned = res
		case harness.VariantShared:
			shared = res
		}
	}
	if owned != nil && shared != nil {
		cmp := harness.Compare(owned, shared)
		r.Comparison = &protocol.Comparison{
			Baseline:    string(cmp.Baseline),
			Candidate:   string(cmp.Candidate),
			Speedup:     cmp.Speedup,
			P:           cmp.P,
			Alpha:       cmp.Alpha,
			Significant: cmp.Significant,
			Warnings:    cmp.Warnings,
		}
	}

	for _, err := range failures {
		r.Failures = append(r.Failures, Failure(err))
	}
	return r
}

// Variant converts one harness result.
func Variant(res *harness.Result) protocol.VariantReport {
	st := res.Stats
	return protocol.VariantReport{
		Variant:     string(res.Variant),
		Samples:     st.N,
		Batch:       res.Batch,
		Iterations:  res.Iterations,
		Warmup:      res.Warmup,
		MinNs:       st.Min,
		MeanNs:      st.Mean,
		MedianNs:    st.Median,
		MaxNs:       st.Max,
		StdDevNs:    st.StdDev,
		CILowNs:     st.CILow,
		CIHighNs:    st.CIHigh,
		Confidence:  st.Confidence,
		BytesPerSec: Throughput(res.Bytes, st.Mean),
		DurationMs:  int(res.Elapsed.Milliseconds()),
		Warnings:    st.Warnings,
		SamplesNs:   res.Samples,
	}
}

// Failure converts a trial error. Errors that are not a *harness.TrialError
// are recorded without a variant.
func Failure(err error) protocol.Failure {
	var trialErr *harness.TrialError
	if errors.As(err, &trialErr) {
		return protocol.Failure{
			Variant:   string(trialErr.Variant),
			Iteration: trialErr.Iteration,
			Reason:    trialErr.Err.Error(),
		}
	}
	return protocol.Failure{Reason: err.Error()}
}

// Throughput returns bytes processed per second for one iteration of nsPerOp.
func Throughput(bytes int, nsPerOp float64) float64 {
	if nsPerOp <= 0 {
		return 0
	}
	return float64(bytes) / nsPerOp * 1e9
}
