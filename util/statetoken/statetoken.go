// Package statetoken signs and verifies the OAuth state parameter. The
// state carries the requesting Telegram chat ID as an HS256 JWT so the
// callback can route the exchanged session without server-side state.
package statetoken

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const chatIDClaim = "chat_id"

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed state token for the chat.
func (s *Signer) Issue(chatID int64) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Claim(chatIDClaim, chatID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("error building state token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("error signing state token: %w", err)
	}

	return string(signed), nil
}

// Verify checks the signature and expiry and returns the embedded chat ID.
func (s *Signer) Verify(raw string) (int64, error) {
	token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, s.secret), jwt.WithValidate(true))
	if err != nil {
		return 0, fmt.Errorf("invalid state token: %w", err)
	}

	claim, ok := token.Get(chatIDClaim)
	if !ok {
		return 0, fmt.Errorf("state token missing %s claim", chatIDClaim)
	}

	switch v := claim.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected %s claim type %T", chatIDClaim, claim)
	}
}
