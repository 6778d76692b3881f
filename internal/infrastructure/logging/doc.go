// Package logging builds the agent's zap loggers.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger named after themselves
// (logger.Component("files")) and attach structured fields for the
// connection, session and request they are serving. Logs can additionally
// be written to a file in the configured logs directory.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Error("Failed to connect", zap.Error(err))
package logging
