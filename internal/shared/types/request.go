package types

import "time"

// HTTPRequest is a cross-origin request issued by a script
type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// HTTPResponse is handed back to the script that issued the request
type HTTPResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	FinalURL   string            `json:"final_url"`
}

// InstallRequest is the body of an install call from the UI
type InstallRequest struct {
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}
