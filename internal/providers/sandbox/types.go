package sandbox

import (
	"time"
)

// Config defines sandbox configuration
type Config struct {
	Timeout       time.Duration // Wall-clock limit for one script, callbacks included
	MaxCallStack  int           // Maximum JavaScript call depth
	EnableConsole bool          // Capture console.log/warn/error
}

// Result holds the outcome of running one script
type Result struct {
	ScriptID string        // Script that ran
	Name     string        // Script name
	Console  []LogEntry    // Console and GM_log output
	Turns    int           // Callbacks run after the first turn
	Duration time.Duration // Execution time
	Error    error         // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`   // log, info, warn, error, debug
	Message string    `json:"message"` // Log message
	Time    time.Time `json:"time"`    // Timestamp
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}
