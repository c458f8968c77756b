package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	"PriceWatch/internal/model"
)

// FormatStatusChange formats a status transition for chat delivery.
func FormatStatusChange(prev, cur string) string {
	if cur == "" {
		if prev == "" {
			return "✅ <b>PriceWatch</b> | updates nominal"
		}
		return fmt.Sprintf("✅ <b>PriceWatch</b> | updates resumed\n(was: %s)", html.EscapeString(prev))
	}
	return fmt.Sprintf("⚠️ <b>PriceWatch</b> | %s", html.EscapeString(cur))
}

// FormatLatest formats the most recent sample of symbol.
func FormatLatest(symbol string, last model.Sample, ok bool, total int) string {
	if !ok {
		return fmt.Sprintf("📈 <b>%s</b>\n\nno samples yet", html.EscapeString(symbol))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b>\n\n", html.EscapeString(symbol)))
	b.WriteString(fmt.Sprintf("Price: %s\n", last.Value().StringFixed(2)))
	b.WriteString(fmt.Sprintf("Time: %s (%s)\n", last.Display(), humanize.Time(last.ObservedAt())))
	b.WriteString(fmt.Sprintf("Samples: %s\n", humanize.Comma(int64(total))))
	return b.String()
}

// FormatSeries formats up to the last n samples, oldest first.
func FormatSeries(symbol string, samples []model.Sample, n int) string {
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | last %d samples\n\n", html.EscapeString(symbol), len(samples)))
	for _, s := range samples {
		b.WriteString(fmt.Sprintf("%s  %s\n", s.Display(), s.Value().StringFixed(2)))
	}
	return b.String()
}

// FormatStatus formats the scheduler status for a chat reply.
func FormatStatus(status string, cooldownRemaining int) string {
	var b strings.Builder
	b.WriteString("🛰 <b>PriceWatch status</b>\n\n")
	if status == "" {
		b.WriteString("Status: nominal\n")
	} else {
		b.WriteString(fmt.Sprintf("Status: %s\n", html.EscapeString(status)))
	}
	if cooldownRemaining > 0 {
		b.WriteString(fmt.Sprintf("Cooldown remaining: %d ticks\n", cooldownRemaining))
	}
	return b.String()
}
