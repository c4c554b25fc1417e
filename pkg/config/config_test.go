package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMineConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assetsDir: /data/assets
reportsDir: /data/reports
ioBoundProcessors: 16
cpuBoundProcessors: 8
scheduleInterval: 10s
fetchEvery: 1h
timeLimit: 24h
`), 0o644))

	cfg, err := LoadMineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/assets", cfg.AssetsDir)
	assert.Equal(t, 16, cfg.IOBoundProcessors)

	durations, err := cfg.ParseDurations()
	require.NoError(t, err)
	assert.Equal(t, "10s", durations.ScheduleInterval.String())
	assert.Equal(t, "1h0m0s", durations.FetchEvery.String())
	assert.Equal(t, "24h0m0s", durations.TimeLimit.String())
	assert.Equal(t, time.Duration(0), durations.ProcessAndReportEvery)
}

func TestParseDurationsReportsOffendingField(t *testing.T) {
	cfg := MineConfig{ScheduleInterval: "not-a-duration"}
	_, err := cfg.ParseDurations()
	require.Error(t, err)
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "scheduleInterval", fieldErr.Field)
}

func TestLoadMineConfigMissingFile(t *testing.T) {
	_, err := LoadMineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
