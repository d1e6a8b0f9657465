package runtime

import "time"

// Config controls script execution.
type Config struct {
	// Timeout bounds a single Execute call.
	Timeout time.Duration

	// EnableConsole captures console output into the result.
	EnableConsole bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		EnableConsole: true,
	}
}

// Result is the outcome of one Execute call.
type Result struct {
	Value    interface{}   `json:"value,omitempty"`
	Console  []LogEntry    `json:"console,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// LogEntry is one captured console line.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
