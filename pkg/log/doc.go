/*
Package log provides structured logging for Stratum using zerolog.

The package wraps zerolog to give every component — scheduler, executor,
webhook notifier, cleanup — a consistent JSON or console logger carrying a
"component" field, plus helpers to attach a task_id, batch_id, or index_uid
to a single log line without constructing a new logger by hand each time.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Msg("scheduler started")

	taskLogger := log.WithTaskID(42)
	taskLogger.Warn().Str("reason", "PrimaryKeyMismatch").Msg("task failed")

Call Init exactly once at process startup, before any component builds a
child logger from the package-level Logger.
*/
package log
