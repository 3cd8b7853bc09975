// Package ws pushes live events to connected UIs over WebSocket.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established
//   - install: Outcome of an install or update attempt
//   - notification: GM_notification from a script
//   - open_tab: GM_openInTab from a script
//   - pong: Reply to ping
//   - error: Unknown message
//
// Example Usage:
//
//	hub := ws.NewHub(metrics, logger)
//	router.GET("/stream", hub.HandleConnection)
package ws
