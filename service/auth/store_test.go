package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/tempo-fm/chime/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	return database
}

// fakeTokenEndpoint counts refresh exchanges and serves either a fresh
// token or an invalid_grant failure.
func fakeTokenEndpoint(t *testing.T, calls *atomic.Int64, fail bool) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse token request form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("Expected grant_type refresh_token, got %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestStore(t *testing.T, tokenURL string) *OAuthStore {
	conf := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		// Pin the auth style so the library never probes the endpoint
		// twice and the refresh-call counts stay exact.
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	return NewOAuthStore(conf, setupTestDB(t), time.Minute)
}

func TestTokenWithoutSession(t *testing.T) {
	store := newTestStore(t, "http://invalid.example/token")

	_, err := store.Token(context.Background(), 1)
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("Expected ErrAuthRequired, got %v", err)
	}
}

func TestTokenFreshSessionSkipsRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, false)
	store := newTestStore(t, srv.URL)

	store.SetSession(1, &oauth2.Token{
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	token, err := store.Token(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "live-token" {
		t.Errorf("Expected live-token, got %q", token)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("Expected 0 refresh calls for a fresh token, got %d", got)
	}
}

func TestTokenExpiredSessionRefreshesOnce(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, false)
	store := newTestStore(t, srv.URL)

	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	})

	token, err := store.Token(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("Expected fresh-token, got %q", token)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 refresh call, got %d", got)
	}

	// Second lookup uses the refreshed expiry, no extra exchange.
	if _, err := store.Token(context.Background(), 1); err != nil {
		t.Fatalf("Unexpected error on second lookup: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected still 1 refresh call, got %d", got)
	}
}

func TestSlowRefreshDoesNotBlockOtherChats(t *testing.T) {
	refreshStarted := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(refreshStarted)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	store := newTestStore(t, srv.URL)
	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	})
	store.SetSession(2, &oauth2.Token{
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	go store.Token(context.Background(), 1)
	<-refreshStarted

	// Chat 1's exchange is parked inside the fake endpoint. Chat 2's
	// fresh-token lookup must return without waiting for it.
	done := make(chan string, 1)
	go func() {
		token, err := store.Token(context.Background(), 2)
		if err != nil {
			t.Errorf("Unexpected error for chat 2: %v", err)
		}
		done <- token
	}()

	select {
	case token := <-done:
		if token != "live-token" {
			t.Errorf("Expected live-token for chat 2, got %q", token)
		}
	case <-time.After(time.Second):
		t.Fatal("Chat 2's lookup blocked behind chat 1's refresh")
	}
}

func TestConcurrentExpiredLookupsRefreshOnce(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, false)
	store := newTestStore(t, srv.URL)

	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := store.Token(context.Background(), 1)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if token != "fresh-token" {
				t.Errorf("Expected fresh-token, got %q", token)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 refresh call across concurrent lookups, got %d", got)
	}
}

func TestTokenWithinSkewRefreshes(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, false)
	store := newTestStore(t, srv.URL)

	// Not yet expired, but inside the 60s refresh skew.
	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(30 * time.Second),
	})

	token, err := store.Token(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("Expected fresh-token, got %q", token)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 refresh call, got %d", got)
	}
}

func TestFailedRefreshYieldsAuthExpired(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, true)
	store := newTestStore(t, srv.URL)

	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	})

	_, err := store.Token(context.Background(), 1)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("Expected ErrAuthExpired, got %v", err)
	}

	// The session is gone; the next lookup demands re-authorization
	// instead of spinning on the dead refresh token.
	_, err = store.Token(context.Background(), 1)
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("Expected ErrAuthRequired after failed refresh, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected no further refresh attempts, got %d calls", got)
	}
}

func TestRefreshKeepsOldRefreshToken(t *testing.T) {
	var calls atomic.Int64
	srv := fakeTokenEndpoint(t, &calls, false)
	store := newTestStore(t, srv.URL)

	store.SetSession(1, &oauth2.Token{
		AccessToken:  "stale-token",
		RefreshToken: "keep-me",
		Expiry:       time.Now().Add(-time.Hour),
	})

	if _, err := store.Token(context.Background(), 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	store.mu.RLock()
	session := store.sessions[1]
	store.mu.RUnlock()

	if session.RefreshToken != "keep-me" {
		t.Errorf("Expected refresh token to survive a response that omits it, got %q", session.RefreshToken)
	}
}

func TestAuthorizedAndForget(t *testing.T) {
	store := newTestStore(t, "http://invalid.example/token")

	if store.Authorized(1) {
		t.Error("Expected chat 1 to be unauthorized")
	}

	store.SetSession(1, &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)})
	if !store.Authorized(1) {
		t.Error("Expected chat 1 to be authorized")
	}

	store.Forget(1)
	if store.Authorized(1) {
		t.Error("Expected chat 1 to be forgotten")
	}
}

func TestSessionsPersistAndReload(t *testing.T) {
	database := setupTestDB(t)
	conf := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: "http://invalid.example/token", AuthStyle: oauth2.AuthStyleInParams},
	}

	store := NewOAuthStore(conf, database, time.Minute)
	store.SetSession(7, &oauth2.Token{
		AccessToken:  "persisted",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	// A second store over the same database sees the session.
	reloaded := NewOAuthStore(conf, database, time.Minute)
	if err := reloaded.LoadAllUsers(); err != nil {
		t.Fatalf("LoadAllUsers failed: %v", err)
	}

	token, err := reloaded.Token(context.Background(), 7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "persisted" {
		t.Errorf("Expected persisted token, got %q", token)
	}
}

func TestStaticStore(t *testing.T) {
	store := NewStaticStore("app-token")

	token, err := store.Token(context.Background(), 99)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "app-token" {
		t.Errorf("Expected app-token, got %q", token)
	}
	if !store.Authorized(99) {
		t.Error("Static store should report every chat authorized")
	}
}
