package health

import "time"

// Overall statuses.
const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
	StatusDown     = "DOWN"
)

// Status captures the state of the service at a moment in time.
type Status struct {
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Environment  string            `json:"environment"`
	Status       string            `json:"status"`
	StartedAt    time.Time         `json:"startedAt"`
	Uptime       string            `json:"uptime"`
	UptimeSecs   int64             `json:"uptimeSeconds"`
	Dependencies []DependencyCheck `json:"dependencies,omitempty"`
}

// DependencyCheck is the result of probing one dependency.
type DependencyCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}
