package telegram

import (
	"strings"
	"testing"

	"github.com/tempo-fm/chime/models"
	"github.com/tempo-fm/chime/service/cleanmeta"
	"github.com/tempo-fm/chime/service/history"
)

func TestFormatNowPlaying(t *testing.T) {
	s := &Service{}

	caption := s.formatNowPlaying(models.Track{
		Name:    "One More Time",
		Artists: []models.Artist{{Name: "Daft Punk"}},
		Album:   "Discovery",
		URL:     "https://open.spotify.com/track/t1",
	})

	if !strings.Contains(caption, "[One More Time](https://open.spotify.com/track/t1)") {
		t.Errorf("Expected linked track title, got:\n%s", caption)
	}
	if !strings.Contains(caption, "Daft Punk") {
		t.Errorf("Expected artist name, got:\n%s", caption)
	}
	if !strings.Contains(caption, "Discovery") {
		t.Errorf("Expected album name, got:\n%s", caption)
	}
}

func TestFormatNowPlayingCleansTitle(t *testing.T) {
	s := &Service{deps: Deps{Cleaner: cleanmeta.NewCleaner()}}

	caption := s.formatNowPlaying(models.Track{
		Name:    "Money (Remastered 2011)",
		Artists: []models.Artist{{Name: "Pink Floyd"}},
		Album:   "The Dark Side of the Moon",
		URL:     "https://open.spotify.com/track/t1",
	})

	if strings.Contains(caption, "Remastered") {
		t.Errorf("Expected remaster suffix to be cleaned, got:\n%s", caption)
	}
	if !strings.Contains(caption, "[Money]") {
		t.Errorf("Expected cleaned title, got:\n%s", caption)
	}
}

func TestFormatNowPlayingEscapesMarkdown(t *testing.T) {
	s := &Service{}

	caption := s.formatNowPlaying(models.Track{
		Name:    "Track_With*Specials",
		Artists: []models.Artist{{Name: "Some.Artist"}},
		Album:   "Album!",
		URL:     "https://open.spotify.com/track/t1",
	})

	if strings.Contains(caption, "Track_With*Specials") {
		t.Errorf("Expected markdown specials to be escaped, got:\n%s", caption)
	}
}

func TestFormatReport(t *testing.T) {
	s := &Service{}

	report := history.Report{
		ChatID: 1,
		Entries: []history.Entry{
			{Track: "T1", Artists: "A1"},
			{Track: "T2", Artists: "A2"},
		},
		Total: 2,
	}

	text := s.formatReport(report)

	if !strings.Contains(text, "*Tracks played:* 2") {
		t.Errorf("Expected total of 2, got:\n%s", text)
	}

	first := strings.Index(text, "T1")
	second := strings.Index(text, "T2")
	if first == -1 || second == -1 || first > second {
		t.Errorf("Expected entries in insertion order, got:\n%s", text)
	}
}

func TestFormatReportEmpty(t *testing.T) {
	s := &Service{}

	text := s.formatReport(history.Report{ChatID: 1})

	if !strings.Contains(text, "did not listen") {
		t.Errorf("Expected the no-music message, got:\n%s", text)
	}
}

func TestFormatTopTracks(t *testing.T) {
	tracks := []models.Track{
		{Name: "One", URL: "https://open.spotify.com/track/t1", Artists: []models.Artist{{Name: "A1"}}},
		{Name: "Two", URL: "https://open.spotify.com/track/t2", Artists: []models.Artist{{Name: "A2"}}},
	}

	text := formatTopTracks(tracks)

	if !strings.Contains(text, "1\\. [One](https://open.spotify.com/track/t1)") {
		t.Errorf("Expected numbered linked entry, got:\n%s", text)
	}
}

func TestFormatTopTracksEmpty(t *testing.T) {
	text := formatTopTracks(nil)
	if !strings.Contains(text, "Could not fetch") {
		t.Errorf("Expected failure message for empty list, got:\n%s", text)
	}
}

func TestFormatListeningTime(t *testing.T) {
	tracks := []models.Track{
		{DurationMs: 180000},
		{DurationMs: 240000},
	}

	text := formatListeningTime(tracks)

	if !strings.Contains(text, "7 minutes") {
		t.Errorf("Expected 7 minutes, got:\n%s", text)
	}
}

func TestFormatTodayCount(t *testing.T) {
	if got := formatTodayCount(5); !strings.Contains(got, "5 tracks") {
		t.Errorf("Expected count in message, got %q", got)
	}
}

func TestFirstArtist(t *testing.T) {
	if got := firstArtist(models.Track{}); got != "Unknown Artist" {
		t.Errorf("Expected Unknown Artist for empty list, got %q", got)
	}

	track := models.Track{Artists: []models.Artist{{Name: "A"}, {Name: "B"}}}
	if got := firstArtist(track); got != "A" {
		t.Errorf("Expected first artist, got %q", got)
	}
}
