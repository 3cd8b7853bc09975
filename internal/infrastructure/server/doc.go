// Package server assembles the userscript manager: storage, the script
// store and its persister, the installer, bridge, dispatcher, sandbox pool,
// WebSocket hub and the gin router, and runs them until shutdown.
package server
