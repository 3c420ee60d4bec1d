package cli

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration formats d for status lines: "850ms", "12.5s", "3m4.0s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatLatency formats a latency in milliseconds with one decimal.
func FormatLatency(ms float64) string {
	return fmt.Sprintf("%.1fms", ms)
}

// FormatHz formats a frequency, e.g. "440.0 Hz". Non-finite or
// non-positive values render as "-".
func FormatHz(hz float64) string {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f Hz", hz)
}

// FormatCents formats a signed cents offset, e.g. "+12c" or "-3c".
func FormatCents(c float64) string {
	return fmt.Sprintf("%+.0fc", math.Round(c))
}

// FormatConfidence formats a confidence in [0, 1] as a percentage.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.0f%%", c*100)
}

// FormatBytes formats a byte count, e.g. "1.50 MB".
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
