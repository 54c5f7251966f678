package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/tempo-fm/chime/models"
	"github.com/tempo-fm/chime/service/history"
)

const authNeededText = "🔑 You need to authorize Spotify first, send /start"

const aboutText = "ℹ️ *About this bot*\n\n" +
	"I analyze your Spotify listening 🎼\n" +
	"🔹 Your top 10 tracks 🎶\n" +
	"🔹 Your top 10 artists 🎤\n" +
	"🔹 Now\\-playing notifications 🎧\n" +
	"🔹 A daily listening report 📊"

// cleanTitle applies the configured title cleaner, if any.
func (s *Service) cleanTitle(title string) string {
	if s.deps.Cleaner == nil {
		return title
	}
	cleaned, _ := s.deps.Cleaner.CleanTitle(title)
	return cleaned
}

func (s *Service) formatNowPlaying(track models.Track) string {
	return fmt.Sprintf(
		"🎵 *Now playing:*\n"+
			"🎧 *Track:* [%s](%s)\n"+
			"🎤 *Artist:* %s\n"+
			"💿 *Album:* %s",
		bot.EscapeMarkdown(s.cleanTitle(track.Name)),
		track.URL,
		bot.EscapeMarkdown(track.ArtistNames()),
		bot.EscapeMarkdown(track.Album),
	)
}

func (s *Service) formatReport(report history.Report) string {
	if report.Empty() {
		return "📊 You did not listen to any music today 🎵"
	}

	var lines []string
	for i, entry := range report.Entries {
		lines = append(lines, fmt.Sprintf("%d\\. %s — %s",
			i+1,
			bot.EscapeMarkdown(s.cleanTitle(entry.Track)),
			bot.EscapeMarkdown(entry.Artists)))
	}

	return fmt.Sprintf(
		"📊 *Daily Spotify report* 🎵\n\n"+
			"🔢 *Tracks played:* %d\n\n"+
			"🎶 *Today's tracks:*\n%s",
		report.Total,
		strings.Join(lines, "\n"),
	)
}

func formatTodayCount(count int) string {
	return fmt.Sprintf("🎵 You played %d tracks today 🎵", count)
}

func formatTopTracks(tracks []models.Track) string {
	if len(tracks) == 0 {
		return "❌ Could not fetch your top tracks"
	}

	var lines []string
	for i, track := range tracks {
		lines = append(lines, fmt.Sprintf("%d\\. [%s](%s) — %s",
			i+1,
			bot.EscapeMarkdown(track.Name),
			track.URL,
			bot.EscapeMarkdown(firstArtist(track))))
	}

	return "🎶 *Your top 10 tracks:*\n\n" + strings.Join(lines, "\n")
}

func formatTopArtists(artists []models.Artist) string {
	if len(artists) == 0 {
		return "❌ Could not fetch your top artists"
	}

	var lines []string
	for i, artist := range artists {
		if artist.URL != "" {
			lines = append(lines, fmt.Sprintf("%d\\. [%s](%s)", i+1, bot.EscapeMarkdown(artist.Name), artist.URL))
		} else {
			lines = append(lines, fmt.Sprintf("%d\\. %s", i+1, bot.EscapeMarkdown(artist.Name)))
		}
	}

	return "🎤 *Your top 10 artists:*\n\n" + strings.Join(lines, "\n")
}

func formatOverallStats(tracks []models.Track, artists []models.Artist) string {
	return "📊 *Your Spotify stats:*\n\n" +
		formatTopTracks(tracks) + "\n\n" + formatTopArtists(artists)
}

func formatListeningTime(tracks []models.Track) string {
	var totalMs int64
	for _, track := range tracks {
		totalMs += track.DurationMs
	}
	minutes := totalMs / 60000

	return fmt.Sprintf("⏳ Listening time over your last %d tracks: %d minutes", len(tracks), minutes)
}

func firstArtist(track models.Track) string {
	if len(track.Artists) == 0 {
		return "Unknown Artist"
	}
	return track.Artists[0].Name
}
