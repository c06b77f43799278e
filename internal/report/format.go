package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/perf/benchfmt"
	"gopkg.in/yaml.v3"

	"github.com/croncommander/clonebench/internal/protocol"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatBenchfmt Format = "benchfmt"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatBenchfmt}

// ParseFormat accepts a format name as used on the command line.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Options tune rendering.
type Options struct {
	Color bool
}

// Write renders r to w in format f.
func Write(w io.Writer, f Format, r *protocol.Report, opts Options) error {
	switch f {
	case FormatText:
		return writeText(w, r, newPalette(opts.Color))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatBenchfmt:
		return writeBenchfmt(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

type palette struct {
	heading func(a ...interface{}) string
	good    func(a ...interface{}) string
	bad     func(a ...interface{}) string
	muted   func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		heading: mk(color.FgWhite, color.Bold),
		good:    mk(color.FgGreen),
		bad:     mk(color.FgRed),
		muted:   mk(color.FgHiBlack),
	}
}

// tableRow pads every column to a fixed width.
const (
	tableRow   = "%-12s %-8s %-8s %-10s %-10s %-10s %-10s %-28s %s\n"
	tableWidth = 116
)

func writeText(w io.Writer, r *protocol.Report, p palette) error {
	fmt.Fprintf(w, "%s  run %s\n", p.heading("clonebench"), r.RunID)
	fmt.Fprintf(w, "workload %s, buffer %d characters (%d bytes), suffix %q, %s %s/%s\n\n",
		r.Workload, r.BufferSize, r.BufferBytes, r.Suffix, r.GoVersion, r.GOOS, r.GOARCH)

	if len(r.Variants) > 0 {
		fmt.Fprintf(w, tableRow, "VARIANT", "SAMPLES", "BATCH", "MIN", "MEDIAN", "MEAN", "MAX", "MEDIAN CI", "THROUGHPUT")
		fmt.Fprintln(w, strings.Repeat("─", tableWidth))
		for _, v := range r.Variants {
			fmt.Fprintf(w, tableRow,
				v.Variant, fmt.Sprint(v.Samples), fmt.Sprint(v.Batch),
				FormatNs(v.MinNs), FormatNs(v.MedianNs), FormatNs(v.MeanNs), FormatNs(v.MaxNs),
				fmt.Sprintf("[%s, %s] @%.0f%%", FormatNs(v.CILowNs), FormatNs(v.CIHighNs), v.Confidence*100),
				FormatRate(v.BytesPerSec),
			)
		}
		for _, v := range r.Variants {
			for _, warn := range v.Warnings {
				fmt.Fprintf(w, "%s\n", p.muted(fmt.Sprintf("  %s: %s", v.Variant, warn)))
			}
		}
	}

	if c := r.Comparison; c != nil {
		verdict := "not significant"
		if c.Significant {
			verdict = "significant"
		}
		line := fmt.Sprintf("%s is %.2fx faster than %s by median (p=%.3g, %s)", c.Candidate, c.Speedup, c.Baseline, c.P, verdict)
		if c.Speedup < 1 && c.Speedup > 0 {
			line = fmt.Sprintf("%s is %.2fx slower than %s by median (p=%.3g, %s)", c.Candidate, 1/c.Speedup, c.Baseline, c.P, verdict)
		}
		fmt.Fprintf(w, "\n%s\n", p.good(line))
	}

	for _, f := range r.Failures {
		who := f.Variant
		if who == "" {
			who = "run"
		}
		fmt.Fprintf(w, "%s\n", p.bad(fmt.Sprintf("FAILED %s at iteration %d: %s", who, f.Iteration, f.Reason)))
	}
	return nil
}

func writeBenchfmt(w io.Writer, r *protocol.Report) error {
	bw := benchfmt.NewWriter(w)
	cfg := []benchfmt.Config{
		{Key: "goos", Value: []byte(r.GOOS), File: true},
		{Key: "goarch", Value: []byte(r.GOARCH), File: true},
		{Key: "pkg", Value: []byte("github.com/croncommander/clonebench"), File: true},
		{Key: "run", Value: []byte(r.RunID), File: true},
	}
	for _, v := range r.Variants {
		name := fmt.Sprintf("%s/%s/size=%d", benchName(r.Workload), v.Variant, r.BufferSize)
		for _, ns := range v.SamplesNs {
			res := &benchfmt.Result{
				Config: cfg,
				Name:   benchfmt.Name(name),
				Iters:  v.Batch,
				Values: []benchfmt.Value{
					{Value: ns, Unit: "ns/op"},
					{Value: Throughput(r.BufferBytes, ns) / 1e6, Unit: "MB/s"},
				},
			}
			if err := bw.Write(res); err != nil {
				return fmt.Errorf("failed to write benchmark line: %w", err)
			}
		}
	}
	return nil
}

// benchName turns a workload such as "clone-append" into "CloneAppend".
func benchName(workload string) string {
	var sb strings.Builder
	for _, part := range strings.Split(workload, "-") {
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	return sb.String()
}

// FormatNs renders a nanosecond duration with four significant digits in
// the largest unit that keeps the value at or above one.
func FormatNs(ns float64) string {
	switch {
	case ns >= 1e9:
		return fmt.Sprintf("%.4gs", ns/1e9)
	case ns >= 1e6:
		return fmt.Sprintf("%.4gms", ns/1e6)
	case ns >= 1e3:
		return fmt.Sprintf("%.4gµs", ns/1e3)
	default:
		return fmt.Sprintf("%.4gns", ns)
	}
}

// FormatRate renders a bytes-per-second figure in decimal units.
func FormatRate(bps float64) string {
	switch {
	case bps >= 1e12:
		return fmt.Sprintf("%.2f TB/s", bps/1e12)
	case bps >= 1e9:
		return fmt.Sprintf("%.2f GB/s", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%.2f MB/s", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%.2f KB/s", bps/1e3)
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}
