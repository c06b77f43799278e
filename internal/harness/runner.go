// Package harness times buffer representations under a fixed workload.
//
// A run for one case goes through three phases:
//
//  1. warm-up: Config.Warmup single iterations, discarded
//  2. calibration: the batch size doubles until one batch takes at least
//     Config.MinSampleTime; these iterations are discarded as well
//  3. sampling: batches are timed and divided by the batch size until the
//     relative standard error of the mean drops to Config.TargetRelErr, the
//     sample count reaches Config.MaxSamples, or Config.MaxTime runs out.
//     At least Config.MinSamples are always taken.
//
// The first failing iteration aborts the case with a *TrialError.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// maxBatch bounds calibration for operations the clock cannot resolve.
const maxBatch = 1 << 22

// Config controls warm-up, batching and the adaptive stopping rule.
type Config struct {
	Warmup        int           `yaml:"warmup"`
	MinSamples    int           `yaml:"min_samples"`
	MaxSamples    int           `yaml:"max_samples"`
	TargetRelErr  float64       `yaml:"target_rel_err"`
	MinSampleTime time.Duration `yaml:"min_sample_time"`
	MaxTime       time.Duration `yaml:"max_time"`
	Confidence    float64       `yaml:"confidence"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Warmup:        3,
		MinSamples:    20,
		MaxSamples:    200,
		TargetRelErr:  0.02,
		MinSampleTime: 50 * time.Microsecond,
		MaxTime:       5 * time.Second,
		Confidence:    0.95,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.Warmup < 0:
		return fmt.Errorf("%w: warmup must not be negative", ErrInvalidConfig)
	case c.MinSamples < 2:
		return fmt.Errorf("%w: min samples must be at least 2", ErrInvalidConfig)
	case c.MaxSamples < c.MinSamples:
		return fmt.Errorf("%w: max samples (%d) below min samples (%d)", ErrInvalidConfig, c.MaxSamples, c.MinSamples)
	case c.TargetRelErr < 0:
		return fmt.Errorf("%w: target relative error must not be negative", ErrInvalidConfig)
	case c.MinSampleTime < 0:
		return fmt.Errorf("%w: min sample time must not be negative", ErrInvalidConfig)
	case c.MaxTime <= 0:
		return fmt.Errorf("%w: max time must be positive", ErrInvalidConfig)
	case c.Confidence <= 0 || c.Confidence >= 1:
		return fmt.Errorf("%w: confidence must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}

// TrialError reports an iteration whose operation failed. No sample is
// recorded for it and the case is abandoned.
type TrialError struct {
	Variant   Variant
	Iteration int
	Err       error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("%s trial failed at iteration %d: %v", e.Variant, e.Iteration, e.Err)
}

func (e *TrialError) Unwrap() error {
	return e.Err
}

// Observer is notified of every sample and failure as they happen.
type Observer interface {
	ObserveSample(v Variant, nsPerOp float64)
	ObserveFailure(v Variant, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSample(Variant, float64) {}
func (nopObserver) ObserveFailure(Variant, error)  {}

// Result holds the measurements for one case.
type Result struct {
	Variant    Variant
	Workload   Workload
	Bytes      int
	Warmup     int       // iterations discarded before sampling
	Batch      int       // iterations per sample
	Iterations int       // iterations measured
	Samples    []float64 // nanoseconds per iteration, one entry per sample
	Elapsed    time.Duration
	Stats      Stats
}

// sink receives every operation result so the work stays observable.
var sink int

// Runner executes cases one after another on the calling goroutine.
type Runner struct {
	cfg      Config
	logger   *zap.Logger
	observer Observer
}

// NewRunner returns a runner. logger and observer may be nil.
func NewRunner(cfg Config, logger *zap.Logger, observer Observer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Runner{cfg: cfg, logger: logger, observer: observer}
}

// Run measures c. It returns a *TrialError if any iteration fails and the
// context error if ctx is cancelled between samples.
func (r *Runner) Run(ctx context.Context, c *Case) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	log := r.logger.With(zap.String("variant", string(c.Variant)), zap.String("workload", string(c.Workload)))

	iteration := 0
	timeBatch := func(n int) (time.Duration, error) {
		start := time.Now()
		for i := 0; i < n; i++ {
			iteration++
			v, err := c.Op()
			if err != nil {
				return 0, &TrialError{Variant: c.Variant, Iteration: iteration, Err: err}
			}
			sink = v
		}
		return time.Since(start), nil
	}
	fail := func(err error) (*Result, error) {
		r.observer.ObserveFailure(c.Variant, err)
		log.Warn("Trial aborted", zap.Error(err))
		return nil, err
	}

	for i := 0; i < r.cfg.Warmup; i++ {
		if _, err := timeBatch(1); err != nil {
			return fail(err)
		}
	}

	batch := 1
	for batch < maxBatch {
		d, err := timeBatch(batch)
		if err != nil {
			return fail(err)
		}
		if d >= r.cfg.MinSampleTime {
			break
		}
		batch *= 2
	}
	log.Debug("Calibrated batch size", zap.Int("batch", batch), zap.Int("discarded", iteration))

	res := &Result{
		Variant:  c.Variant,
		Workload: c.Workload,
		Bytes:    c.Bytes,
		Warmup:   iteration,
		Batch:    batch,
		Samples:  make([]float64, 0, r.cfg.MinSamples),
	}

	begin := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := timeBatch(batch)
		if err != nil {
			return fail(err)
		}
		ns := float64(d.Nanoseconds()) / float64(batch)
		res.Samples = append(res.Samples, ns)
		r.observer.ObserveSample(c.Variant, ns)

		n := len(res.Samples)
		if n >= r.cfg.MaxSamples {
			break
		}
		if n < r.cfg.MinSamples {
			continue
		}
		if time.Since(begin) >= r.cfg.MaxTime {
			log.Debug("Sampling time budget exhausted", zap.Int("samples", n))
			break
		}
		if r.cfg.TargetRelErr > 0 && relStdErr(res.Samples) <= r.cfg.TargetRelErr {
			break
		}
	}

	res.Elapsed = time.Since(begin)
	res.Iterations = len(res.Samples) * batch
	res.Stats = Summarize(res.Samples, r.cfg.Confidence)
	log.Info("Variant measured",
		zap.Int("samples", res.Stats.N),
		zap.Int("batch", res.Batch),
		zap.Float64("median_ns", res.Stats.Median),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
