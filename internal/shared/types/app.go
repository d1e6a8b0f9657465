package types

import "time"

// State represents sandbox lifecycle states
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

// App describes a hosted application instance as seen by the control API
type App struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	BaseRoute  string    `json:"base_route"`
	PublicPath string    `json:"public_path"`
	State      State     `json:"state"`
	UMD        bool      `json:"umd"`
	CreatedAt  time.Time `json:"created_at"`

	// Bookkeeping exposed for inspection
	InjectedKeys []string `json:"injected_keys,omitempty"`
	EscapedKeys  []string `json:"escaped_keys,omitempty"`
}

// Stats contains registry statistics
type Stats struct {
	TotalApps  int `json:"total_apps"`
	ActiveApps int `json:"active_apps"`
}
