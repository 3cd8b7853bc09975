// Package config provides 12-factor configuration management for the
// userscript manager.
//
// Values are layered: built-in defaults, then an optional TOML or YAML file
// named by USERSCRIPTS_CONFIG, then environment variables.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Storage: SQLite database path and scripts directory
//   - Fetch: outbound fetch timeout, user agent, rate limit, body cap
//   - Sandbox: execution timeout and runtime pool size
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, USERSCRIPTS_DB, USERSCRIPTS_DIR
//   - FETCH_TIMEOUT, FETCH_USER_AGENT, FETCH_RPS, FETCH_MAX_BODY
//   - SANDBOX_TIMEOUT, SANDBOX_POOL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
