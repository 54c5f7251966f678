// Package server exposes the OAuth redirect-capture endpoint: it turns a
// callback hit into a stored Spotify session for the Telegram chat that
// requested it.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tempo-fm/chime/service/auth"
	"github.com/tempo-fm/chime/util/statetoken"
)

type Server struct {
	logger *slog.Logger
	store  *auth.OAuthStore
	states *statetoken.Signer

	// Called after a session is stored so the bot can subscribe the chat
	// and start polling right away.
	onAuthorized func(chatID int64)

	httpServer *http.Server
}

func New(addr string, logger *slog.Logger, store *auth.OAuthStore, states *statetoken.Signer, onAuthorized func(chatID int64)) *Server {
	s := &Server{
		logger:       logger,
		store:        store,
		states:       states,
		onAuthorized: onAuthorized,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting callback server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// LoginURL builds the authorize link handed out in Telegram; state is a
// signed token carrying the chat ID.
func (s *Server) LoginURL(chatID int64) (string, error) {
	state, err := s.states.Issue(chatID)
	if err != nil {
		return "", err
	}
	return s.store.AuthCodeURL(state), nil
}
