package scheduler

import (
	"slices"

	"PriceWatch/internal/notifier"
)

const seriesReplyLen = 10

// HandleCommand answers a chat command and returns the reply.
func (s *Scheduler) HandleCommand(command string) string {
	st := s.State()
	switch command {
	case "/price", "/latest":
		last, ok := s.sink.Last()
		return notifier.FormatLatest(st.Symbol, last, ok, s.sink.Len())
	case "/series":
		return notifier.FormatSeries(st.Symbol, slices.Collect(s.sink.All()), seriesReplyLen)
	case "/status":
		return notifier.FormatStatus(st.Status, st.CooldownRemaining)
	default:
		return "Commands:\n• /price\n• /series\n• /status"
	}
}
