// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to a rotating file (lumberjack) when Config.File is set
//   - Keeps the last records in a ring buffer served by the status API
//
// Every record carries the pid and heap use (mem_kb) of the process that
// wrote it. Workers log JSON to stdout only; the master parses those lines
// and re-logs them with the worker's pid, so only the master writes the
// journal and the log file.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		File:   "zba.log",   // Rotating log file, empty to disable
//		Modules: map[string]string{
//			"supervisor": "debug",  // Per-module overrides
//			"api":        "warn",
//		},
//	})
//	defer logging.Close()
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("worker").With("task", name)
//	logger.Info("Worker started")  // Includes task in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → both, through ProcessHandler
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t zba              # All zba logs
//	journalctl -t zba -f           # Follow live
//	journalctl -t zba --since "5m" # Last 5 minutes
//	journalctl -t zba -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t zba MODULE=supervisor
//	journalctl -t zba TASK=mailer
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	file = "zba.log"
//	max_size_mb = 100
//
//	[logging.modules]
//	supervisor = "debug"
//	api = "warn"
package logging
