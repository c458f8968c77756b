package recorder

import "PriceWatch/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSample(_ string, _ model.Sample) error { return nil }
func (n *NoopRecorder) RecordEvent(_ *StatusEvent) error           { return nil }
func (n *NoopRecorder) Close() error                               { return nil }
