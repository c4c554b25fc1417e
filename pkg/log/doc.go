/*
Package log provides structured logging for the miner using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper
functions for common logging patterns.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithCrateVersion("serde", "1.0.3")       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	import "github.com/criner-dev/criner/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("scheduler started")

	taskLog := log.WithCrateVersion("serde", "1.0.3")
	taskLog.Error().Err(err).Msg("download failed")

# Integration Points

This package integrates with pkg/scheduler, pkg/reconciler,
pkg/pipeline, pkg/engine, and the cmd/criner commands, each pulling a
component-scoped logger via WithComponent; pkg/pipeline also tags a
failed task attempt's log line via WithCrateVersion.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup,
    accessible from every package without threading it through calls.

Context Logger Pattern:
  - Child loggers carry fixed fields (component, crate, version) so
    callers never repeat them at each call site.

# Best Practices

Do:
  - Use Info level for production, structured fields for queryable
    data, .Err() for error values.

Don't:
  - Log in tight loops without sampling, concatenate strings instead
    of using typed fields.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
