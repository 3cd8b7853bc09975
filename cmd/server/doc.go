// Package main is the entry point for the userscript manager server.
//
// The server restores installed scripts from storage, installs any
// .user.js files found in the scripts directory, then serves the JSON API,
// the WebSocket event stream and Prometheus metrics.
//
// Configuration:
//   - Defaults, then the file named by USERSCRIPTS_CONFIG (TOML or YAML)
//   - Environment variables
//   - CLI flags (override everything)
//
// Usage:
//
//	# Persistent store, scripts seeded from ./scripts
//	./server -port 8000 -db data/userscripts.db -scripts scripts
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
