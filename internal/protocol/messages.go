package protocol

// Message types sent to a results collector.
const (
	TypeRunStarted    = "run_started"
	TypeVariantResult = "variant_result"
	TypeRunReport     = "run_report"
)

// Message is the base message type
type Message struct {
	Type string `json:"type"`
}

// RunStartedMessage announces a run before any timing begins
type RunStartedMessage struct {
	Type        string `json:"type"`
	RunID       string `json:"runId"`
	Hostname    string `json:"hostname"`
	BufferSize  int    `json:"bufferSize"`
	BufferBytes int    `json:"bufferBytes"`
	Workload    string `json:"workload"`
}

// VariantResultMessage carries one finished variant
type VariantResultMessage struct {
	Type    string        `json:"type"`
	RunID   string        `json:"runId"`
	Payload VariantReport `json:"payload"`
}

// RunReportMessage wraps the final report
type RunReportMessage struct {
	Type    string `json:"type"`
	Payload Report `json:"payload"`
}

// Report is the complete outcome of one harness run.
type Report struct {
	RunID       string          `json:"runId" yaml:"run_id"`
	StartedAt   string          `json:"startedAt" yaml:"started_at"`
	Hostname    string          `json:"hostname" yaml:"hostname"`
	GoVersion   string          `json:"goVersion" yaml:"go_version"`
	GOOS        string          `json:"goos" yaml:"goos"`
	GOARCH      string          `json:"goarch" yaml:"goarch"`
	BufferSize  int             `json:"bufferSize" yaml:"buffer_size"` // characters
	BufferBytes int             `json:"bufferBytes" yaml:"buffer_bytes"`
	Alphabet    string          `json:"alphabet" yaml:"alphabet"`
	Suffix      string          `json:"suffix" yaml:"suffix"`
	Workload    string          `json:"workload" yaml:"workload"`
	Variants    []VariantReport `json:"variants" yaml:"variants"`
	Comparison  *Comparison     `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Failures    []Failure       `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// VariantReport holds the timing distribution for one representation.
// All times are nanoseconds per iteration.
type VariantReport struct {
	Variant     string    `json:"variant" yaml:"variant"`
	Samples     int       `json:"samples" yaml:"samples"`
	Batch       int       `json:"batch" yaml:"batch"`
	Iterations  int       `json:"iterations" yaml:"iterations"`
	Warmup      int       `json:"warmup" yaml:"warmup"`
	MinNs       float64   `json:"minNs" yaml:"min_ns"`
	MeanNs      float64   `json:"meanNs" yaml:"mean_ns"`
	MedianNs    float64   `json:"medianNs" yaml:"median_ns"`
	MaxNs       float64   `json:"maxNs" yaml:"max_ns"`
	StdDevNs    float64   `json:"stdDevNs" yaml:"std_dev_ns"`
	CILowNs     float64   `json:"ciLowNs" yaml:"ci_low_ns"`
	CIHighNs    float64   `json:"ciHighNs" yaml:"ci_high_ns"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
	BytesPerSec float64   `json:"bytesPerSec" yaml:"bytes_per_sec"`
	DurationMs  int       `json:"durationMs" yaml:"duration_ms"`
	Warnings    []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	SamplesNs   []float64 `json:"samplesNs,omitempty" yaml:"samples_ns,omitempty"`
}

// Comparison contrasts the two variants
type Comparison struct {
	Baseline    string   `json:"baseline" yaml:"baseline"`
	Candidate   string   `json:"candidate" yaml:"candidate"`
	Speedup     float64  `json:"speedup" yaml:"speedup"`
	P           float64  `json:"p" yaml:"p"`
	Alpha       float64  `json:"alpha" yaml:"alpha"`
	Significant bool     `json:"significant" yaml:"significant"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Failure records a variant whose trial was aborted
type Failure struct {
	Variant   string `json:"variant" yaml:"variant"`
	Iteration int    `json:"iteration" yaml:"iteration"`
	Reason    string `json:"reason" yaml:"reason"`
}
