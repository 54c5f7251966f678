package db

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tempo-fm/chime/models"
)

// DB is a wrapper around sql.DB
type DB struct {
	*sql.DB
}

// New creates a new database connection. The default path is ":memory:";
// everything is intentionally lost on restart.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Initialize sets up the database tables
func (db *DB) Initialize() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		chat_id INTEGER PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		token_expiry TIMESTAMP,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS plays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		track_id TEXT NOT NULL,
		name TEXT NOT NULL,
		artists TEXT NOT NULL,
		album TEXT NOT NULL,
		url TEXT NOT NULL,
		observed_at TIMESTAMP,
		FOREIGN KEY (chat_id) REFERENCES users(chat_id)
	)`)
	if err != nil {
		return err
	}

	return nil
}

// UpsertUser stores or replaces a chat's Spotify credentials.
func (db *DB) UpsertUser(user *models.User) error {
	now := time.Now()

	_, err := db.Exec(`
	INSERT INTO users (chat_id, access_token, refresh_token, token_expiry, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		token_expiry = excluded.token_expiry,
		updated_at = excluded.updated_at`,
		user.ChatID, user.AccessToken, user.RefreshToken, user.TokenExpiry, now, now)

	return err
}

// GetUser retrieves a user by chat ID. Returns nil if no row exists.
func (db *DB) GetUser(chatID int64) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(`
	SELECT chat_id, access_token, refresh_token, token_expiry, created_at, updated_at
	FROM users WHERE chat_id = ?`, chatID).Scan(
		&user.ChatID, &user.AccessToken, &user.RefreshToken,
		&user.TokenExpiry, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetAllUsers returns every stored user.
func (db *DB) GetAllUsers() ([]*models.User, error) {
	rows, err := db.Query(`
	SELECT chat_id, access_token, refresh_token, token_expiry, created_at, updated_at
	FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(&user.ChatID, &user.AccessToken, &user.RefreshToken,
			&user.TokenExpiry, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// UpdateUserToken updates a chat's Spotify tokens after a refresh.
func (db *DB) UpdateUserToken(chatID int64, accessToken, refreshToken string, expiry time.Time) error {
	_, err := db.Exec(`
	UPDATE users SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
	WHERE chat_id = ?`,
		accessToken, refreshToken, expiry, time.Now(), chatID)

	return err
}

// DeleteUser removes a chat's stored credentials.
func (db *DB) DeleteUser(chatID int64) error {
	_, err := db.Exec(`DELETE FROM users WHERE chat_id = ?`, chatID)
	return err
}

// SavePlay appends a detected play to the play log.
func (db *DB) SavePlay(event *models.NowPlaying) (int64, error) {
	result, err := db.Exec(`
	INSERT INTO plays (chat_id, track_id, name, artists, album, url, observed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ChatID, event.Track.ID, event.Track.Name, event.Track.ArtistNames(),
		event.Track.Album, event.Track.URL, event.ObservedAt)

	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// RecentPlays retrieves the most recent plays for a chat, newest first.
func (db *DB) RecentPlays(chatID int64, limit int) ([]*models.NowPlaying, error) {
	rows, err := db.Query(`
	SELECT track_id, name, artists, album, url, observed_at
	FROM plays WHERE chat_id = ?
	ORDER BY observed_at DESC, id DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []*models.NowPlaying
	for rows.Next() {
		event := &models.NowPlaying{ChatID: chatID}
		var artists string
		err := rows.Scan(&event.Track.ID, &event.Track.Name, &artists,
			&event.Track.Album, &event.Track.URL, &event.ObservedAt)
		if err != nil {
			return nil, err
		}
		for _, name := range strings.Split(artists, ", ") {
			if name == "" {
				continue
			}
			event.Track.Artists = append(event.Track.Artists, models.Artist{Name: name})
		}
		plays = append(plays, event)
	}

	return plays, rows.Err()
}
