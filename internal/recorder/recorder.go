package recorder

import "PriceWatch/internal/model"

// Status event types.
const (
	EventRateLimited = "RATE_LIMITED"
	EventError       = "ERROR"
	EventRecovered   = "RECOVERED"
)

// StatusEvent records a scheduler status transition.
type StatusEvent struct {
	EventType     string
	Detail        string
	CooldownTicks int
}

// Recorder journals samples and status events for offline analysis.
// The journal is write-only: nothing is read back on startup.
type Recorder interface {
	RecordSample(symbol string, s model.Sample) error
	RecordEvent(evt *StatusEvent) error
	Close() error
}
