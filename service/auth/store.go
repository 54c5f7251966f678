package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tempo-fm/chime/db"
	"github.com/tempo-fm/chime/models"
)

var (
	// ErrAuthRequired means no session exists for the chat yet.
	ErrAuthRequired = errors.New("auth: authorization required")
	// ErrAuthExpired means the refresh exchange failed and the chat
	// has to authorize again.
	ErrAuthExpired = errors.New("auth: authorization expired")
)

// Store hands out valid access tokens per chat. The OAuth implementation
// keeps one refreshable session per chat; the static implementation shares
// a single app token across all chats.
type Store interface {
	Token(ctx context.Context, chatID int64) (string, error)
	Authorized(chatID int64) bool
}

// OAuthStore holds per-chat Spotify sessions and refreshes them on demand.
// Sessions are mirrored to the database so they can be enumerated.
type OAuthStore struct {
	conf        *oauth2.Config
	db          *db.DB
	refreshSkew time.Duration
	logger      *log.Logger

	mu       sync.RWMutex
	sessions map[int64]*oauth2.Token

	// Per-chat refresh locks. Refresh exchanges are network calls and must
	// never run under s.mu, or one chat's stalled refresh would block every
	// other chat's lookup.
	refreshMu  sync.Mutex
	refreshing map[int64]*sync.Mutex
}

func NewOAuthStore(conf *oauth2.Config, database *db.DB, refreshSkew time.Duration) *OAuthStore {
	return &OAuthStore{
		conf:        conf,
		db:          database,
		refreshSkew: refreshSkew,
		logger:      log.New(os.Stdout, "auth: ", log.LstdFlags|log.Lmsgprefix),
		sessions:    make(map[int64]*oauth2.Token),
		refreshing:  make(map[int64]*sync.Mutex),
	}
}

// AuthCodeURL returns the Spotify authorization page URL for the given state.
func (s *OAuthStore) AuthCodeURL(state string) string {
	return s.conf.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (s *OAuthStore) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.conf.Exchange(ctx, code)
}

// SetSession stores a freshly exchanged token for a chat, replacing any
// previous session.
func (s *OAuthStore) SetSession(chatID int64, token *oauth2.Token) error {
	s.mu.Lock()
	s.sessions[chatID] = token
	s.mu.Unlock()

	if err := s.persist(chatID, token); err != nil {
		s.logger.Printf("Error storing session for chat %d: %v", chatID, err)
		return err
	}

	s.logger.Printf("Stored session for chat %d (expires %s)", chatID, token.Expiry.Format(time.RFC3339))
	return nil
}

// Forget drops a chat's session entirely.
func (s *OAuthStore) Forget(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()

	if err := s.db.DeleteUser(chatID); err != nil {
		s.logger.Printf("Error deleting user %d: %v", chatID, err)
	}
}

func (s *OAuthStore) Authorized(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[chatID]
	return ok
}

// ChatIDs returns every chat with a live session.
func (s *OAuthStore) ChatIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Token returns a valid access token for the chat, refreshing first when
// the stored token expires within the refresh skew. Exactly one refresh
// exchange happens per expired lookup; concurrent lookups for the same
// chat serialize on that chat's refresh lock, and lookups for other chats
// are never held up by it.
func (s *OAuthStore) Token(ctx context.Context, chatID int64) (string, error) {
	s.mu.RLock()
	token, ok := s.sessions[chatID]
	s.mu.RUnlock()

	if !ok {
		return "", ErrAuthRequired
	}

	if time.Until(token.Expiry) >= s.refreshSkew {
		return token.AccessToken, nil
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check: another caller may have refreshed while we waited.
	s.mu.RLock()
	token, ok = s.sessions[chatID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrAuthRequired
	}
	if time.Until(token.Expiry) >= s.refreshSkew {
		return token.AccessToken, nil
	}

	fresh, err := s.refresh(ctx, token)
	if err != nil {
		s.logger.Printf("Refresh failed for chat %d: %v", chatID, err)
		s.mu.Lock()
		delete(s.sessions, chatID)
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	s.mu.Lock()
	s.sessions[chatID] = fresh
	s.mu.Unlock()

	if err := s.persist(chatID, fresh); err != nil {
		s.logger.Printf("Error persisting refreshed token for chat %d: %v", chatID, err)
	}

	s.logger.Printf("Refreshed token for chat %d (expires %s)", chatID, fresh.Expiry.Format(time.RFC3339))
	return fresh.AccessToken, nil
}

// chatLock returns the refresh lock for one chat, creating it on first use.
func (s *OAuthStore) chatLock(chatID int64) *sync.Mutex {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	lock, ok := s.refreshing[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.refreshing[chatID] = lock
	}
	return lock
}

// refresh performs the refresh_token grant against the token endpoint.
// Passing a token without an access token forces the TokenSource to hit
// the network instead of returning the cached value.
func (s *OAuthStore) refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}

	src := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, err
	}

	// Spotify may omit the refresh token in the refresh response.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	return fresh, nil
}

func (s *OAuthStore) persist(chatID int64, token *oauth2.Token) error {
	if s.db == nil {
		return nil
	}
	access := token.AccessToken
	refresh := token.RefreshToken
	expiry := token.Expiry
	return s.db.UpsertUser(&models.User{
		ChatID:       chatID,
		AccessToken:  &access,
		RefreshToken: &refresh,
		TokenExpiry:  &expiry,
	})
}

// LoadAllUsers loads persisted sessions back into memory. With the default
// in-memory database this is a no-op after restart; with a file-backed path
// it repopulates the session map at startup.
func (s *OAuthStore) LoadAllUsers() error {
	if s.db == nil {
		return nil
	}

	users, err := s.db.GetAllUsers()
	if err != nil {
		return fmt.Errorf("error loading users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, user := range users {
		if user.AccessToken == nil || user.RefreshToken == nil || user.TokenExpiry == nil {
			continue
		}
		s.sessions[user.ChatID] = &oauth2.Token{
			AccessToken:  *user.AccessToken,
			RefreshToken: *user.RefreshToken,
			Expiry:       *user.TokenExpiry,
		}
		count++
	}

	s.logger.Printf("Loaded %d stored sessions", count)
	return nil
}
