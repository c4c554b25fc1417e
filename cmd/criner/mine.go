package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/criner-dev/criner/pkg/config"
	"github.com/criner-dev/criner/pkg/engine"
	"github.com/criner-dev/criner/pkg/index"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run the miner: poll the index, download, extract, and report",
	Long: `mine opens the ledger at --db-path, then runs the scheduler,
download and extract worker pools, the index poller (every
--fetch-every), and the
report generator until --time-limit passes or it is interrupted.`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().String("assets-dir", "", "Directory downloaded .crate archives are written to (default: alongside --db-path, assets/)")
	mineCmd.Flags().String("reports-dir", "", "Directory waste reports are written to (default: alongside --db-path, reports/)")
	mineCmd.Flags().Int("io-bound-processors", 8, "Worker count for the download stage (io_bound_processors)")
	mineCmd.Flags().Int("cpu-bound-processors", 4, "Worker count for the extract stage (cpu_bound_processors)")
	mineCmd.Flags().Int("cpu-o-bound-processors", 2, "Worker count for the report stage (cpu_o_bound_processors)")
	mineCmd.Flags().Duration("schedule-interval", 5*time.Second, "How often the scheduler walks the crate/version universe")
	mineCmd.Flags().Duration("fetch-every", time.Hour, "How often the index source is polled for new crate versions")
	mineCmd.Flags().Duration("process-and-report-every", 30*time.Second, "How often pending waste reports are generated")
	mineCmd.Flags().Duration("time-limit", 0, "Stop after this long (0 = run until interrupted)")
	mineCmd.Flags().String("index-fixture", "", "Newline-delimited JSON file of CrateVersion records to poll as the index source (omit to run with no upstream)")
	mineCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the /metrics, /health, /ready, /live endpoints are served on")
	mineCmd.Flags().String("config", "", "Optional YAML file overlaying these flags for declarative/batch runs (flags passed explicitly on the command line win)")
}

// applyConfigOverlay fills any flag the caller didn't pass explicitly
// from the YAML file at path. Flags set explicitly on the command line
// always win.
func applyConfigOverlay(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}
	fileCfg, err := config.LoadMineConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %v", err)
	}
	durations, err := fileCfg.ParseDurations()
	if err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	setIfUnset := func(name, value string) error {
		if value == "" || cmd.Flags().Changed(name) {
			return nil
		}
		return cmd.Flags().Set(name, value)
	}
	setDurationIfUnset := func(name string, d time.Duration) error {
		if d == 0 || cmd.Flags().Changed(name) {
			return nil
		}
		return cmd.Flags().Set(name, d.String())
	}

	if err := setIfUnset("assets-dir", fileCfg.AssetsDir); err != nil {
		return err
	}
	if err := setIfUnset("reports-dir", fileCfg.ReportsDir); err != nil {
		return err
	}
	if err := setIfUnset("index-fixture", fileCfg.IndexFixture); err != nil {
		return err
	}
	if fileCfg.IOBoundProcessors != 0 && !cmd.Flags().Changed("io-bound-processors") {
		if err := cmd.Flags().Set("io-bound-processors", fmt.Sprint(fileCfg.IOBoundProcessors)); err != nil {
			return err
		}
	}
	if fileCfg.CPUBoundProcessors != 0 && !cmd.Flags().Changed("cpu-bound-processors") {
		if err := cmd.Flags().Set("cpu-bound-processors", fmt.Sprint(fileCfg.CPUBoundProcessors)); err != nil {
			return err
		}
	}
	if fileCfg.CPUOBoundProcessors != 0 && !cmd.Flags().Changed("cpu-o-bound-processors") {
		if err := cmd.Flags().Set("cpu-o-bound-processors", fmt.Sprint(fileCfg.CPUOBoundProcessors)); err != nil {
			return err
		}
	}
	if err := setDurationIfUnset("schedule-interval", durations.ScheduleInterval); err != nil {
		return err
	}
	if err := setDurationIfUnset("fetch-every", durations.FetchEvery); err != nil {
		return err
	}
	if err := setDurationIfUnset("process-and-report-every", durations.ProcessAndReportEvery); err != nil {
		return err
	}
	return setDurationIfUnset("time-limit", durations.TimeLimit)
}

func runMine(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if err := applyConfigOverlay(cmd, configPath); err != nil {
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db-path")
	assetsDir, _ := cmd.Flags().GetString("assets-dir")
	reportsDir, _ := cmd.Flags().GetString("reports-dir")
	ioProcs, _ := cmd.Flags().GetInt("io-bound-processors")
	cpuProcs, _ := cmd.Flags().GetInt("cpu-bound-processors")
	cpuOProcs, _ := cmd.Flags().GetInt("cpu-o-bound-processors")
	scheduleInterval, _ := cmd.Flags().GetDuration("schedule-interval")
	fetchEvery, _ := cmd.Flags().GetDuration("fetch-every")
	reportEvery, _ := cmd.Flags().GetDuration("process-and-report-every")
	deadline, _ := cmd.Flags().GetDuration("time-limit")
	indexFixture, _ := cmd.Flags().GetString("index-fixture")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %v", err)
	}
	if assetsDir == "" {
		assetsDir = filepath.Join(dataDir, "assets")
	}
	if reportsDir == "" {
		reportsDir = filepath.Join(dataDir, "reports")
	}

	logger := log.WithComponent("mine")
	logger.Info().Str("db_path", dbPath).Msg("opening ledger")

	db, err := ledger.OpenFile(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %v", err)
	}
	defer db.Close()

	var idx engine.Source = index.NullSource{}
	if indexFixture != "" {
		idx = index.NewFileSource(indexFixture)
	}

	cfg := engine.Config{
		AssetsDir:             assetsDir,
		ReportsDir:            reportsDir,
		IOBoundProcessors:     ioProcs,
		CPUBoundProcessors:    cpuProcs,
		CPUOBoundProcessors:   cpuOProcs,
		ScheduleInterval:      scheduleInterval,
		FetchEvery:            fetchEvery,
		ProcessAndReportEvery: reportEvery,
		Index:                 idx,
		ProgressOut:           os.Stderr,
	}
	if deadline > 0 {
		cfg.Deadline = time.Now().Add(deadline)
	}

	miner := engine.New(db, cfg)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("ledger", true, "open")
	metrics.RegisterComponent("scheduler", true, "running")

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("signal received, shutting down")
		cancel()
	}()

	err = miner.Run(ctx)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("miner run ended with error: %v", err)
	}
	return nil
}
