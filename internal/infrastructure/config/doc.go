// Package config provides 12-factor configuration management for the service.
//
// Configuration is loaded from environment variables with sensible defaults.
// Plugin scope/escape rules are loaded separately from a YAML or TOML file
// referenced by PLUGINS_PATH.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Plugins: Plugin-rule file path
//   - Loader: Remote script fetch limits
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - PLUGINS_PATH
//   - LOADER_MAX_SCRIPT_BYTES, LOADER_RETRY_MAX, LOADER_TIMEOUT_SECONDS
package config
