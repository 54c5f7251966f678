package models

import "time"

// User represents a tracked Telegram chat and its Spotify credentials.
type User struct {
	ChatID       int64
	AccessToken  *string    // Use pointer for nullable fields
	RefreshToken *string
	TokenExpiry  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
