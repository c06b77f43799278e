package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/croncommander/clonebench/internal/buffer"
	"github.com/croncommander/clonebench/internal/harness"
	"github.com/croncommander/clonebench/internal/protocol"
	"github.com/croncommander/clonebench/internal/report"
)

type runFlags struct {
	contend  bool
	progress bool
	noColor  bool
}

func newRunCmd(a *app) *cobra.Command {
	flagCfg := defaultConfig()
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark and print a report",
		Long: `Generate a random input buffer, then time "duplicate, append suffix" for the
owned-copy and shared-cell representations one after the other.

The command exits non-zero when the input cannot be generated (nothing is
printed) or when a trial hits an access conflict (the report lists it).

Example:
  clonebench run --size 1000000 --format json
  clonebench run --workload clone --variant shared-cell
  clonebench run --contend   # hold a second mutable borrow to show the conflict path`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(a.configFile)
			if err != nil {
				return err
			}
			if path != "" {
				a.logger.Info("Loaded config", zap.String("path", path))
			}
			overlayFlags(cmd, &cfg, flagCfg)
			return runBench(cmd, a.logger, cfg, *rf)
		},
	}

	d := defaultConfig()
	f := cmd.Flags()
	f.IntVarP(&flagCfg.Size, "size", "n", d.Size, "Input buffer size in characters")
	f.StringVar(&flagCfg.Alphabet, "alphabet", d.Alphabet, "Characters the input is drawn from")
	f.StringVar(&flagCfg.Suffix, "suffix", d.Suffix, "Suffix appended to each duplicate")
	f.StringVarP(&flagCfg.Workload, "workload", "w", d.Workload, "Per-iteration operation (clone, clone-append)")
	f.StringVar(&flagCfg.Variant, "variant", d.Variant, "Variant to run (all, owned-copy, shared-cell)")
	f.Uint64Var(&flagCfg.Seed, "seed", d.Seed, "Input generator seed (0 picks one)")
	f.StringVarP(&flagCfg.Format, "format", "f", d.Format, "Report format (text, json, yaml, benchfmt)")
	f.StringVarP(&flagCfg.Output, "output", "o", d.Output, "Write the report to this file instead of stdout")
	f.StringVar(&flagCfg.MetricsFile, "metrics-file", d.MetricsFile, "Write Prometheus metrics to this textfile")
	f.StringVar(&flagCfg.PublishURL, "publish", d.PublishURL, "Stream results to a WebSocket collector (ws:// or wss://)")
	f.IntVar(&flagCfg.Harness.Warmup, "warmup", d.Harness.Warmup, "Iterations discarded before calibration")
	f.IntVar(&flagCfg.Harness.MinSamples, "min-samples", d.Harness.MinSamples, "Minimum samples per variant")
	f.IntVar(&flagCfg.Harness.MaxSamples, "max-samples", d.Harness.MaxSamples, "Maximum samples per variant")
	f.Float64Var(&flagCfg.Harness.TargetRelErr, "target-rel-err", d.Harness.TargetRelErr, "Stop once the relative standard error of the mean is this low (0 disables)")
	f.DurationVar(&flagCfg.Harness.MinSampleTime, "min-sample-time", d.Harness.MinSampleTime, "Batch iterations until one sample takes at least this long")
	f.DurationVar(&flagCfg.Harness.MaxTime, "max-time", d.Harness.MaxTime, "Sampling time budget per variant")
	f.Float64Var(&flagCfg.Harness.Confidence, "confidence", d.Harness.Confidence, "Confidence level of the median interval")
	f.BoolVar(&rf.contend, "contend", false, "Hold a second mutable borrow on the shared cell for the whole trial")
	f.BoolVar(&rf.progress, "progress", false, "Show a spinner on stderr while measuring")
	f.BoolVar(&rf.noColor, "no-color", false, "Disable colour in the text report")

	return cmd
}

func selectVariants(name string) ([]harness.Variant, error) {
	if name == variantAll || name == "" {
		return harness.Variants, nil
	}
	v, err := harness.ParseVariant(name)
	if err != nil {
		return nil, err
	}
	return []harness.Variant{v}, nil
}

func runBench(cmd *cobra.Command, logger *zap.Logger, cfg Config, rf runFlags) error {
	workload, err := harness.ParseWorkload(cfg.Workload)
	if err != nil {
		return err
	}
	variants, err := selectVariants(cfg.Variant)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	if err := cfg.Harness.Validate(); err != nil {
		return err
	}

	input, err := buffer.Generate(cfg.Size, cfg.Alphabet, buffer.NewRand(cfg.Seed))
	if err != nil {
		return fmt.Errorf("failed to generate input: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := report.Meta{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		Hostname:    getHostname(),
		BufferSize:  cfg.Size,
		BufferBytes: len(input),
		Alphabet:    cfg.Alphabet,
		Suffix:      cfg.Suffix,
		Workload:    workload,
	}
	log := logger.With(zap.String("run_id", meta.RunID))
	log.Info("Benchmark starting", zap.Int("size", cfg.Size), zap.String("workload", string(workload)))

	var pub *publisher
	if cfg.PublishURL != "" {
		pub = newPublisher(cfg.PublishURL, log)
		if err := pub.connect(ctx); err != nil {
			log.Warn("Publishing disabled", zap.Error(err))
			pub = nil
		}
		defer pub.close()
	}
	pub.publish(protocol.RunStartedMessage{
		Type:        protocol.TypeRunStarted,
		RunID:       meta.RunID,
		Hostname:    meta.Hostname,
		BufferSize:  meta.BufferSize,
		BufferBytes: meta.BufferBytes,
		Workload:    string(workload),
	})

	metrics := report.NewMetrics(len(input))
	runner := harness.NewRunner(cfg.Harness, log, metrics)

	var results []*harness.Result
	var failures []error
	for _, v := range variants {
		c, err := harness.NewCase(v, workload, input, harness.CaseOptions{Suffix: cfg.Suffix, Contend: rf.contend})
		if err != nil {
			return err
		}

		spin := startSpinner(rf.progress, cmd.ErrOrStderr(), v)
		res, err := runner.Run(ctx, c)
		spin.Stop()
		c.Close()

		if err != nil {
			var trialErr *harness.TrialError
			if !errors.As(err, &trialErr) {
				return err
			}
			failures = append(failures, err)
			continue
		}
		results = append(results, res)
		pub.publish(protocol.VariantResultMessage{
			Type:    protocol.TypeVariantResult,
			RunID:   meta.RunID,
			Payload: report.Variant(res),
		})
	}

	rep := report.Build(meta, results, failures)
	metrics.RecordReport(rep)

	if err := emitReport(cmd, cfg, format, rep, rf); err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	pub.publish(protocol.RunReportMessage{Type: protocol.TypeRunReport, Payload: *rep})

	if len(failures) > 0 {
		return fmt.Errorf("%d trial(s) failed: %w", len(failures), errors.Join(failures...))
	}
	return nil
}

func emitReport(cmd *cobra.Command, cfg Config, format report.Format, rep *protocol.Report, rf runFlags) error {
	if cfg.Output == "" {
		useColor := !rf.noColor && !color.NoColor
		return writeReport(cmd.OutOrStdout(), format, rep, useColor)
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := writeReport(f, format, rep, false); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}

func writeReport(w io.Writer, format report.Format, rep *protocol.Report, useColor bool) error {
	if err := report.Write(w, format, rep, report.Options{Color: useColor}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

type stopper interface{ Stop() }

type noSpinner struct{}

func (noSpinner) Stop() {}

func startSpinner(enabled bool, w io.Writer, v harness.Variant) stopper {
	if !enabled {
		return noSpinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " measuring " + string(v)
	s.Start()
	return s
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
