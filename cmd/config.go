package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/croncommander/clonebench/internal/buffer"
	"github.com/croncommander/clonebench/internal/harness"
	"github.com/croncommander/clonebench/internal/report"
)

// Config represents the benchmark configuration
type Config struct {
	Size        int            `yaml:"size"`
	Alphabet    string         `yaml:"alphabet"`
	Suffix      string         `yaml:"suffix"`
	Workload    string         `yaml:"workload"`
	Variant     string         `yaml:"variant"`
	Seed        uint64         `yaml:"seed"`
	Format      string         `yaml:"format"`
	Output      string         `yaml:"output"`
	MetricsFile string         `yaml:"metrics_file"`
	PublishURL  string         `yaml:"publish_url"`
	Harness     harness.Config `yaml:"harness"`
}

const variantAll = "all"

func defaultConfig() Config {
	return Config{
		Size:     1_000_000,
		Alphabet: buffer.UppercaseAlphabet,
		Suffix:   "B",
		Workload: string(harness.WorkloadCloneAppend),
		Variant:  variantAll,
		Format:   string(report.FormatText),
		Harness:  harness.DefaultConfig(),
	}
}

func configPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{"clonebench.yaml", "clonebench.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".clonebench/config.yaml"))
	}
	return paths
}

// loadConfig overlays the first config file found onto the defaults. A
// missing file is only an error when it was named explicitly.
func loadConfig(explicit string) (Config, string, error) {
	cfg := defaultConfig()
	for _, path := range configPaths(explicit) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && explicit == "" {
				continue
			}
			return cfg, "", fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, "", fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		return cfg, path, nil
	}
	return cfg, "", nil
}

// overlayFlags copies every flag the user set explicitly from src into dst.
func overlayFlags(cmd *cobra.Command, dst *Config, src Config) {
	setters := map[string]func(){
		"size":            func() { dst.Size = src.Size },
		"alphabet":        func() { dst.Alphabet = src.Alphabet },
		"suffix":          func() { dst.Suffix = src.Suffix },
		"workload":        func() { dst.Workload = src.Workload },
		"variant":         func() { dst.Variant = src.Variant },
		"seed":            func() { dst.Seed = src.Seed },
		"format":          func() { dst.Format = src.Format },
		"output":          func() { dst.Output = src.Output },
		"metrics-file":    func() { dst.MetricsFile = src.MetricsFile },
		"publish":         func() { dst.PublishURL = src.PublishURL },
		"warmup":          func() { dst.Harness.Warmup = src.Harness.Warmup },
		"min-samples":     func() { dst.Harness.MinSamples = src.Harness.MinSamples },
		"max-samples":     func() { dst.Harness.MaxSamples = src.Harness.MaxSamples },
		"target-rel-err":  func() { dst.Harness.TargetRelErr = src.Harness.TargetRelErr },
		"min-sample-time": func() { dst.Harness.MinSampleTime = src.Harness.MinSampleTime },
		"max-time":        func() { dst.Harness.MaxTime = src.Harness.MaxTime },
		"confidence":      func() { dst.Harness.Confidence = src.Harness.Confidence },
	}
	for name, set := range setters {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
}
