package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisplayLayout is the timestamp format used when a sample is shown to a user.
const DisplayLayout = "2006-01-02 15:04:05"

// Sample is one observed price. It is immutable once constructed.
type Sample struct {
	value      decimal.Decimal
	observedAt time.Time
}

// NewSample creates a sample for value observed at the given instant.
func NewSample(value decimal.Decimal, observedAt time.Time) Sample {
	return Sample{value: value, observedAt: observedAt}
}

func (s Sample) Value() decimal.Decimal { return s.value }

func (s Sample) ObservedAt() time.Time { return s.observedAt }

// Display returns the observation time formatted for charts and replies.
func (s Sample) Display() string {
	return s.observedAt.Format(DisplayLayout)
}
