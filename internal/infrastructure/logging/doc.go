// Package logging builds the zap loggers used across the engine.
//
// Production mode writes JSON for machine parsing; development mode writes
// colored console output. Components receive a named child logger:
// "manager", "stream.<name>" and "stream.<name>.<step kind>".
//
//	logger, level, err := logging.New(logging.FromConfig(cfg.Logging))
//	logging.ForStream(logger, "world").Info("Stream started")
package logging
