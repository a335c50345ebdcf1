package worker

import (
	"fmt"
	"time"
)

// FormatDuration renders a duration the way the original system did:
// "N sec" under a minute, "N min M sec" under an hour, "N hr M min"
// beyond that (SPEC_FULL.md SUPPLEMENTED FEATURES, resolving spec §4.4
// step 8's "human-readable" requirement against original_source/).
func FormatDuration(d time.Duration) string {
	totalSeconds := int(d.Round(time.Second).Seconds())
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	if totalSeconds < 60 {
		return fmt.Sprintf("%d sec", totalSeconds)
	}
	totalMinutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if totalMinutes < 60 {
		return fmt.Sprintf("%d min %d sec", totalMinutes, seconds)
	}
	hours := totalMinutes / 60
	minutes := totalMinutes % 60
	return fmt.Sprintf("%d hr %d min", hours, minutes)
}
