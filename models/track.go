package models

import (
	"strings"
	"time"
)

// Track represents a Spotify track as returned by the player endpoints.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      string   `json:"album"`
	URL        string   `json:"url"`
	CoverURL   string   `json:"coverUrl"`
	DurationMs int64    `json:"durationMs"`
}

type Artist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	URL  string `json:"url,omitempty"`
}

// ArtistNames returns the ordered artist names joined with ", ",
// the form used in notifications and reports.
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// NowPlaying is a detected transition to a new currently-playing track
// for a given chat. Immutable once constructed.
type NowPlaying struct {
	ChatID     int64     `json:"chatId"`
	Track      Track     `json:"track"`
	ObservedAt time.Time `json:"observedAt"`
}
