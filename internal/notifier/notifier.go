package notifier

import (
	"log"
	"sync"
	"time"
)

// Notifier receives status transitions from the scheduler. An empty message
// means nominal; anything else is a human-readable condition to display.
// Report must not block for long: it is called from the tick.
type Notifier interface {
	Report(message string)
}

// Multi fans a report out to several notifiers in order.
type Multi []Notifier

func (m Multi) Report(message string) {
	for _, n := range m {
		n.Report(message)
	}
}

// LogNotifier writes status changes to the standard logger.
type LogNotifier struct {
	mu   sync.Mutex
	last string
}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (l *LogNotifier) Report(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if message == l.last {
		return
	}
	l.last = message
	if message == "" {
		log.Println("[INFO] status cleared")
		return
	}
	log.Printf("[WARN] status: %s", message)
}

// Board keeps the current status so readers can show it next to the series.
type Board struct {
	mu      sync.RWMutex
	message string
	since   time.Time
}

func NewBoard() *Board { return &Board{since: time.Now()} }

func (b *Board) Report(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if message == b.message {
		return
	}
	b.message = message
	b.since = time.Now()
}

// Current returns the active status message and when it was set.
func (b *Board) Current() (string, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.message, b.since
}
