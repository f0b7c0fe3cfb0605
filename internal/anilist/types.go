// Package anilist talks to the AniList GraphQL API: series search,
// per-series details, and airing metadata.
package anilist

import "airabot/internal/episode"

// Title holds the series title variants. Romaji is always populated
// upstream; English and Native may be empty.
type Title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// Display prefers the romaji title, falling back to english then native.
func (t Title) Display() string {
	if t.Romaji != "" {
		return t.Romaji
	}
	if t.English != "" {
		return t.English
	}
	return t.Native
}

// NextAiringEpisode describes the next episode not yet aired.
type NextAiringEpisode struct {
	Episode int `json:"episode"`
	// AiringAt is a unix timestamp (seconds).
	AiringAt int64 `json:"airingAt"`
	// TimeUntilAiring is seconds from the query time until airing.
	TimeUntilAiring int64 `json:"timeUntilAiring"`
}

type CoverImage struct {
	Medium string `json:"medium"`
	Large  string `json:"large,omitempty"`
}

type StudioNodes struct {
	Nodes []struct {
		Name string `json:"name"`
	} `json:"nodes"`
}

// Media is one series as returned by search or details queries.
// Episodes is nil while the total count is unknown (ongoing series);
// NextAiringEpisode is nil once the series has finished airing.
type Media struct {
	ID                int                `json:"id"`
	Title             Title              `json:"title"`
	CoverImage        CoverImage         `json:"coverImage"`
	Episodes          *int               `json:"episodes"`
	Status            string             `json:"status"`
	Season            string             `json:"season"`
	SeasonYear        int                `json:"seasonYear"`
	Genres            []string           `json:"genres"`
	AverageScore      *int               `json:"averageScore"`
	Popularity        int                `json:"popularity"`
	NextAiringEpisode *NextAiringEpisode `json:"nextAiringEpisode"`
	Description       string             `json:"description"`
	Studios           *StudioNodes       `json:"studios,omitempty"`
}

// Snapshot projects the airing fields the advancement logic needs.
func (m *Media) Snapshot() episode.Snapshot {
	snap := episode.Snapshot{
		Episodes: m.Episodes,
		Finished: m.Status == "FINISHED",
	}
	if m.NextAiringEpisode != nil {
		ep := m.NextAiringEpisode.Episode
		snap.NextEpisode = &ep
	}
	return snap
}
