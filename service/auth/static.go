package auth

import "context"

// StaticStore serves one shared app-level token for every chat. It never
// refreshes; a revoked token surfaces as API errors, not ErrAuthExpired.
type StaticStore struct {
	token string
}

func NewStaticStore(token string) *StaticStore {
	return &StaticStore{token: token}
}

func (s *StaticStore) Token(ctx context.Context, chatID int64) (string, error) {
	return s.token, nil
}

func (s *StaticStore) Authorized(chatID int64) bool {
	return true
}
