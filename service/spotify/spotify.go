package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tempo-fm/chime/models"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// Time windows accepted by the top-tracks/top-artists endpoints.
const (
	WindowShort  = "short_term"
	WindowMedium = "medium_term"
	WindowLong   = "long_term"
)

var (
	// ErrUnauthorized maps a 401 from the API; the stored token is invalid.
	ErrUnauthorized = errors.New("spotify: unauthorized")
	// ErrTransient covers rate limits and server-side failures; the caller
	// should retry on its next natural tick.
	ErrTransient = errors.New("spotify: transient API fault")
)

// Client is a thin HTTP client for the handful of Spotify Web API
// endpoints the bot needs. One client is shared by all chats; calls are
// authorized per request with a bearer token.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		logger:  log.New(os.Stdout, "spotify: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// NewClientWithBaseURL is used by tests to point the client at a fake API.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

func (c *Client) get(ctx context.Context, token, path string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, body)
	}

	return resp, nil
}

// CurrentlyPlaying returns the chat's current track, or nil when nothing
// is playing or playback is paused. A missing album image is not an
// error; the cover URL is simply left empty.
func (c *Client) CurrentlyPlaying(ctx context.Context, token string) (*models.Track, error) {
	resp, err := c.get(ctx, token, "/me/player/currently-playing")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Nothing playing
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body)
	}

	var response struct {
		IsPlaying bool `json:"is_playing"`
		Item      *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
				ID   string `json:"id"`
			} `json:"artists"`
			Album struct {
				Name   string `json:"name"`
				Images []struct {
					URL string `json:"url"`
				} `json:"images"`
			} `json:"album"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
			DurationMs int64 `json:"duration_ms"`
		} `json:"item"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding currently-playing response: %w", err)
	}

	if !response.IsPlaying || response.Item == nil {
		return nil, nil
	}

	var artists []models.Artist
	for _, artist := range response.Item.Artists {
		artists = append(artists, models.Artist{Name: artist.Name, ID: artist.ID})
	}

	track := &models.Track{
		ID:         response.Item.ID,
		Name:       response.Item.Name,
		Artists:    artists,
		Album:      response.Item.Album.Name,
		URL:        response.Item.ExternalURLs.Spotify,
		DurationMs: response.Item.DurationMs,
	}
	if len(response.Item.Album.Images) > 0 {
		track.CoverURL = response.Item.Album.Images[0].URL
	}

	return track, nil
}

// TopTracks returns the chat's most played tracks for the given window.
func (c *Client) TopTracks(ctx context.Context, token string, limit int, window string) ([]models.Track, error) {
	path := "/me/top/tracks?limit=" + strconv.Itoa(limit) + "&time_range=" + window
	resp, err := c.get(ctx, token, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body)
	}

	var response struct {
		Items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
				ID   string `json:"id"`
			} `json:"artists"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding top-tracks response: %w", err)
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, item := range response.Items {
		track := models.Track{
			ID:   item.ID,
			Name: item.Name,
			URL:  item.ExternalURLs.Spotify,
		}
		for _, artist := range item.Artists {
			track.Artists = append(track.Artists, models.Artist{Name: artist.Name, ID: artist.ID})
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

// TopArtists returns the chat's most played artists for the given window.
func (c *Client) TopArtists(ctx context.Context, token string, limit int, window string) ([]models.Artist, error) {
	path := "/me/top/artists?limit=" + strconv.Itoa(limit) + "&time_range=" + window
	resp, err := c.get(ctx, token, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body)
	}

	var response struct {
		Items []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding top-artists response: %w", err)
	}

	artists := make([]models.Artist, 0, len(response.Items))
	for _, item := range response.Items {
		artists = append(artists, models.Artist{
			Name: item.Name,
			ID:   item.ID,
			URL:  item.ExternalURLs.Spotify,
		})
	}

	return artists, nil
}

// RecentlyPlayed returns recently finished tracks, durations included so
// callers can sum listening time.
func (c *Client) RecentlyPlayed(ctx context.Context, token string, limit int) ([]models.Track, error) {
	path := "/me/player/recently-played?limit=" + strconv.Itoa(limit)
	resp, err := c.get(ctx, token, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, body)
	}

	var response struct {
		Items []struct {
			Track struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
				DurationMs int64 `json:"duration_ms"`
			} `json:"track"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding recently-played response: %w", err)
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, item := range response.Items {
		track := models.Track{
			ID:         item.Track.ID,
			Name:       item.Track.Name,
			DurationMs: item.Track.DurationMs,
		}
		for _, artist := range item.Track.Artists {
			track.Artists = append(track.Artists, models.Artist{Name: artist.Name})
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}
