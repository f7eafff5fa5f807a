// Package etl anonymizes datasets in bulk. Records are read from CSV, JSON
// lines or Parquet files and written with their text replaced by the
// anonymized text. Mappings are discarded, so the output cannot be reversed.
package etl

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one row of a dataset. ID is optional and passed through.
type Record struct {
	ID   string `parquet:"id" json:"id,omitempty"`
	Text string `parquet:"text" json:"text"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords      int64            `json:"total_records"`
	AnonymizedRecords int64            `json:"anonymized_records"`
	Entities          int64            `json:"entities"`
	EntitiesByType    map[string]int64 `json:"entities_by_type"`
	Duration          time.Duration    `json:"duration"`
	AnonymizeTime     time.Duration    `json:"anonymize_time"`
}

// Config contains pipeline configuration
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      1000,
		WorkerCount:    4,
		ProgressReport: 10000,
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. Unknown extensions
// are read as CSV.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
