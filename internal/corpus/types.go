package corpus

import (
	"path/filepath"
	"time"
)

// Record is one labeled sample from an evaluation dataset. Label names
// the category the text is expected to trigger, or "none" when the text
// must come through clean.
type Record struct {
	Text  string `csv:"text" parquet:"text" json:"text"`
	Label string `csv:"label" parquet:"label" json:"label"`
}

// Config controls the evaluation pipeline.
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ValidateOnly   bool `yaml:"validate_only" mapstructure:"validate_only"`     // false
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"` // 1000
	// MissSamples caps how many missed texts are kept per category for
	// the report.
	MissSamples int `yaml:"miss_samples" mapstructure:"miss_samples"` // 5
}

// CategoryCoverage tallies one expected category.
type CategoryCoverage struct {
	Expected int     `json:"expected"`
	Hits     int     `json:"hits"`
	Misses   int     `json:"misses"`
	Recall   float64 `json:"recall"`
	// MissSamples holds truncated texts the category failed to catch.
	MissSamples []string `json:"miss_samples,omitempty"`
}

// CoverageReport is the outcome of evaluating one dataset. A record
// counts as a hit when any match of its expected category fires; a
// record labeled "none" counts as a false positive when anything fires.
// Precision is a proxy: hits over hits plus false positives.
type CoverageReport struct {
	TotalRecords   int64                        `json:"total_records"`
	ValidRecords   int64                        `json:"valid_records"`
	InvalidRecords int64                        `json:"invalid_records"`
	CleanRecords   int64                        `json:"clean_records"`
	FalsePositives int64                        `json:"false_positives"`
	Categories     map[string]*CategoryCoverage `json:"categories"`
	Precision      float64                      `json:"precision"`
	Duration       time.Duration                `json:"duration"`
	RatePerSecond  float64                      `json:"rate_per_second"`
}

// FileFormat represents supported dataset formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects the dataset format from the file extension.
func DetectFileFormat(filename string) FileFormat {
	switch filepath.Ext(filename) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
