// Package config provides 12-factor configuration management for the agent
// server.
//
// Configuration starts from built-in defaults, is optionally read from a
// YAML file named by AGENT_CONFIG_FILE, and is finally overridden by
// environment variables. CLI flags can override the result in main.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, frame size, origins)
//   - Paths: application, user data, extension and log locations
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Watch: change batching delay and watcher creation breaker
//   - Scan: extension scan concurrency
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Server running on %s\n", cfg.Addr())
//
// Environment Variables:
//   - PORT, HOST, MAX_MESSAGE_SIZE, ALLOWED_ORIGINS, CONNECTION_TOKEN
//   - APP_ROOT, USER_HOME, USER_DATA_PATH, EXTENSIONS_PATH, BUILTIN_EXTENSIONS_PATH
//   - EXTRA_EXTENSIONS_PATHS, EXTRA_BUILTIN_EXTENSIONS_PATHS, LOGS_PATH
//   - LOG_LEVEL, LOG_DEV, LOG_TO_FILE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - WATCH_BATCH_DELAY, SCAN_CONCURRENCY
package config
