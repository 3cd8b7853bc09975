// Package types provides shared data structures for the userscript manager.
//
// Core Types:
//   - Script: an installed userscript (identity, rules, resources, grants, body)
//   - Key: (name, namespace) identity used for collision detection
//   - Resource: @require / @resource dependency with its cache reference
//   - RunAt: injection phase
//
// Request Types:
//   - HTTPRequest, HTTPResponse: cross-origin requests made through the bridge
//   - InstallRequest: install call from the UI
//   - WSMessage: WebSocket communication
package types
