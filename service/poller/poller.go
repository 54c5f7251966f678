// Package poller implements the per-chat track-change detector. Each tick
// fetches the chat's currently-playing track and emits an event only on a
// transition to a different track ID.
package poller

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tempo-fm/chime/db"
	"github.com/tempo-fm/chime/models"
	"github.com/tempo-fm/chime/service/auth"
	"github.com/tempo-fm/chime/service/history"
)

// NowPlayingClient is the slice of the Spotify client the poller needs.
type NowPlayingClient interface {
	CurrentlyPlaying(ctx context.Context, token string) (*models.Track, error)
}

// Sink receives detected now-playing events.
type Sink interface {
	NotifyNowPlaying(ctx context.Context, event *models.NowPlaying) error
}

// Poller holds the per-chat poll state. Per-chat tick ordering is the
// scheduler's job; the maps here only need to isolate one chat's state
// from another's.
type Poller struct {
	tokens  auth.Store
	client  NowPlayingClient
	history *history.Log
	db      *db.DB
	sink    Sink
	logger  *log.Logger

	// Called once when a chat's credentials are gone and its polling
	// is suspended. Wired to scheduler removal and the re-auth prompt.
	onAuthLost func(chatID int64)

	mu          sync.RWMutex
	lastTrackID map[int64]string
	suspended   map[int64]bool
}

func New(tokens auth.Store, client NowPlayingClient, hist *history.Log, database *db.DB, sink Sink) *Poller {
	return &Poller{
		tokens:      tokens,
		client:      client,
		history:     hist,
		db:          database,
		sink:        sink,
		logger:      log.New(os.Stdout, "poller: ", log.LstdFlags|log.Lmsgprefix),
		lastTrackID: make(map[int64]string),
		suspended:   make(map[int64]bool),
	}
}

// OnAuthLost registers the suspension hook.
func (p *Poller) OnAuthLost(fn func(chatID int64)) {
	p.onAuthLost = fn
}

// Suspended reports whether the chat's polling was halted by an auth loss.
func (p *Poller) Suspended(chatID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.suspended[chatID]
}

// Resume clears the suspension and change-detection state for a chat,
// typically after it re-authorizes.
func (p *Poller) Resume(chatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.suspended, chatID)
	delete(p.lastTrackID, chatID)
}

// Tick runs one poll for one chat. Every failure is contained here: auth
// loss suspends the chat, transient API faults are logged and retried on
// the next natural tick, and nothing ever propagates past the scheduler.
func (p *Poller) Tick(ctx context.Context, chatID int64) {
	p.mu.RLock()
	halted := p.suspended[chatID]
	p.mu.RUnlock()
	if halted {
		return
	}

	token, err := p.tokens.Token(ctx, chatID)
	if err != nil {
		if errors.Is(err, auth.ErrAuthRequired) || errors.Is(err, auth.ErrAuthExpired) {
			p.suspend(chatID, err)
			return
		}
		p.logger.Printf("Error getting token for chat %d: %v", chatID, err)
		return
	}

	track, err := p.client.CurrentlyPlaying(ctx, token)
	if err != nil {
		// Transient: no state change, the next tick retries.
		p.logger.Printf("Error fetching track for chat %d: %v", chatID, err)
		return
	}

	// Nothing playing, or paused: emit nothing, keep lastTrackID so a
	// resume of the same track stays silent.
	if track == nil {
		return
	}

	p.mu.Lock()
	if p.lastTrackID[chatID] == track.ID {
		p.mu.Unlock()
		return
	}
	p.lastTrackID[chatID] = track.ID
	p.mu.Unlock()

	event := &models.NowPlaying{
		ChatID:     chatID,
		Track:      *track,
		ObservedAt: time.Now(),
	}

	p.history.Append(event)

	if p.db != nil {
		if _, err := p.db.SavePlay(event); err != nil {
			p.logger.Printf("Error saving play for chat %d: %v", chatID, err)
		}
	}

	if err := p.sink.NotifyNowPlaying(ctx, event); err != nil {
		p.logger.Printf("Error notifying chat %d: %v", chatID, err)
	}

	p.logger.Printf("Chat %d is listening to: %s by %s", chatID, track.Name, track.ArtistNames())
}

func (p *Poller) suspend(chatID int64, cause error) {
	p.mu.Lock()
	already := p.suspended[chatID]
	p.suspended[chatID] = true
	p.mu.Unlock()

	if already {
		return
	}

	p.logger.Printf("Suspending polling for chat %d: %v", chatID, cause)
	if p.onAuthLost != nil {
		p.onAuthLost(chatID)
	}
}
