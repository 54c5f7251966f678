package server

import (
	"net/http"
	"strconv"
)

const successPage = `
	<html>
	<head>
		<title>Chime - Connected</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				max-width: 600px;
				margin: 0 auto;
				padding: 40px 20px;
				line-height: 1.6;
				text-align: center;
			}
			h1 {
				color: #1DB954; /* Spotify green */
			}
		</style>
	</head>
	<body>
		<h1>Spotify connected</h1>
		<p>You're all set. Go back to Telegram — now-playing notifications are on their way.</p>
	</body>
	</html>
`

const failurePage = `
	<html>
	<head>
		<title>Chime - Authorization failed</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				max-width: 600px;
				margin: 0 auto;
				padding: 40px 20px;
				line-height: 1.6;
				text-align: center;
			}
			h1 {
				color: #c0392b;
			}
		</style>
	</head>
	<body>
		<h1>Authorization failed</h1>
		<p>Something went wrong connecting your Spotify account. Go back to Telegram and try /start again.</p>
	</body>
	</html>
`

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`
	<html>
	<head><title>Chime</title></head>
	<body>
		<h1>Chime</h1>
		<p>Chime relays your Spotify listening to Telegram. Talk to the bot to get started.</p>
	</body>
	</html>
	`))
}

// handleLogin redirects the browser to the Spotify authorization page.
// The chat query parameter names the Telegram chat being linked.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat"), 10, 64)
	if err != nil {
		http.Error(w, "Missing or invalid chat parameter", http.StatusBadRequest)
		return
	}

	url, err := s.LoginURL(chatID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

// handleCallback finishes the authorization-code flow: verify the state
// token, exchange the code, store the session, hand the chat back to the
// polling side.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		s.logger.Warn("callback missing code or state")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(failurePage))
		return
	}

	chatID, err := s.states.Verify(state)
	if err != nil {
		s.logger.Warn("callback state rejected", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(failurePage))
		return
	}

	token, err := s.store.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("code exchange failed", "chat_id", chatID, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(failurePage))
		return
	}

	if err := s.store.SetSession(chatID, token); err != nil {
		s.serverError(w, r, err)
		return
	}

	s.logger.Info("chat authorized", "chat_id", chatID)

	if s.onAuthorized != nil {
		s.onAuthorized(chatID)
	}

	w.Write([]byte(successPage))
}
