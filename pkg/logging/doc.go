// Package logging configures the process-wide slog logger shared by
// shotspool-agent and shotspool-collector.
//
// Setup(cfg) installs a JSON handler on stdout. When cfg.File is set the
// records are fanned out to stdout and the file with slog-multi, so operators
// keep a local log even when stdout is discarded by the service manager.
package logging
