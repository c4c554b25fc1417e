// Package config loads an optional YAML overlay for `mine` runs. Flags
// remain the primary configuration surface (as in cuemby-warren's
// cmd/warren/apply.go); this package only lets a batch/declarative run
// pin the same knobs in a checked-in file instead of a long flag list.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MineConfig mirrors the subset of engine.Config a YAML file can pin.
// Durations are plain strings in the file (e.g. "30s", "1h"), parsed
// with time.ParseDuration.
type MineConfig struct {
	AssetsDir  string `yaml:"assetsDir"`
	ReportsDir string `yaml:"reportsDir"`

	IOBoundProcessors   int `yaml:"ioBoundProcessors"`
	CPUBoundProcessors  int `yaml:"cpuBoundProcessors"`
	CPUOBoundProcessors int `yaml:"cpuOBoundProcessors"`

	ScheduleInterval      string `yaml:"scheduleInterval"`
	FetchEvery            string `yaml:"fetchEvery"`
	ProcessAndReportEvery string `yaml:"processAndReportEvery"`
	TimeLimit             string `yaml:"timeLimit"`

	IndexFixture string `yaml:"indexFixture"`
}

// LoadMineConfig reads and parses a YAML file at path.
func LoadMineConfig(path string) (MineConfig, error) {
	var cfg MineConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Durations holds the MineConfig fields parsed into time.Duration,
// zero for any field left blank in the file.
type Durations struct {
	ScheduleInterval      time.Duration
	FetchEvery            time.Duration
	ProcessAndReportEvery time.Duration
	TimeLimit             time.Duration
}

// ParseDurations parses every duration-shaped field in c, returning the
// first parse error encountered (naming which field failed).
func (c MineConfig) ParseDurations() (Durations, error) {
	var d Durations
	var err error
	if d.ScheduleInterval, err = parseOptional(c.ScheduleInterval); err != nil {
		return d, &FieldError{Field: "scheduleInterval", Err: err}
	}
	if d.FetchEvery, err = parseOptional(c.FetchEvery); err != nil {
		return d, &FieldError{Field: "fetchEvery", Err: err}
	}
	if d.ProcessAndReportEvery, err = parseOptional(c.ProcessAndReportEvery); err != nil {
		return d, &FieldError{Field: "processAndReportEvery", Err: err}
	}
	if d.TimeLimit, err = parseOptional(c.TimeLimit); err != nil {
		return d, &FieldError{Field: "timeLimit", Err: err}
	}
	return d, nil
}

func parseOptional(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// FieldError names which YAML field failed to parse.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }
