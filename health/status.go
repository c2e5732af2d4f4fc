package health

import (
	"regexp"
	"time"

	"github.com/c360/frontgate/component"
)

// Health states, worst to best.
const (
	StateUnhealthy = "unhealthy"
	StateDegraded  = "degraded"
	StateHealthy   = "healthy"
)

// Status is the health of one component or of the whole host. It is a
// value type; the Monitor hands out copies, never shared references.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the counters a component reports alongside its health.
type Metrics struct {
	Uptime          time.Duration `json:"uptime"`
	ErrorCount      int           `json:"error_count"`
	EventsDelivered int64         `json:"events_delivered,omitempty"`
	LastActivity    time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// redaction is one sanitization rule applied to component error messages
// before they appear in /healthz responses.
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Ordered: URLs before paths, since a URL contains a path.
var redactions = []redaction{
	{regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// sanitizeErrorMessage strips URLs, file paths, addresses and
// credential-shaped substrings from an error message. The full message
// stays in the server log; /healthz only gets the redacted form.
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}

// FromComponentHealth converts the health a Discoverable component reports
// into a Status, sanitizing the last error on the way.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	state := StateUnhealthy
	if ch.Healthy {
		state = StateHealthy
	}

	message := "component healthy"
	if ch.LastError != "" {
		message = sanitizeErrorMessage(ch.LastError)
	}

	return Status{
		Component: name,
		Healthy:   ch.Healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:          ch.Uptime,
			ErrorCount:      ch.ErrorCount,
			EventsDelivered: ch.EventsDelivered,
			LastActivity:    ch.LastCheck,
		},
	}
}
