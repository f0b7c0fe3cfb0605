package anilist

import (
	"fmt"
	"strings"
	"time"
)

// FormatTimeUntil renders a countdown like "2 days, 3 hours".
// Minutes only show under a day; negative means the episode already aired.
func FormatTimeUntil(seconds int64) string {
	if seconds < 0 {
		return "already aired"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 && days == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}

// FormatAiringInfo renders the next-episode line for user-facing messages.
func FormatAiringInfo(next *NextAiringEpisode) string {
	if next == nil {
		return "No airing information available"
	}
	at := time.Unix(next.AiringAt, 0).UTC()
	return fmt.Sprintf("Episode %d airs %s (%s from now)",
		next.Episode,
		at.Format("Mon, 02 Jan 2006 15:04 MST"),
		FormatTimeUntil(next.TimeUntilAiring),
	)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
