package transcripts

import (
	"fmt"
	"math"
)

// MissingTimestamp stands in for an offset the recognizer did not report.
const MissingTimestamp = "--:--"

// FormatTimestamp renders seconds as MM:SS, or H:MM:SS from one hour on.
// Fractions are truncated. seconds must not be negative.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatSpan renders "[start - end]", substituting MissingTimestamp for
// absent or invalid offsets.
func FormatSpan(start, end *float64) string {
	return "[" + formatOffset(start) + " - " + formatOffset(end) + "]"
}

func formatOffset(sec *float64) string {
	if sec == nil || *sec < 0 || math.IsNaN(*sec) || math.IsInf(*sec, 0) {
		return MissingTimestamp
	}
	return FormatTimestamp(*sec)
}
