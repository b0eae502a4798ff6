package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

// SessionCookieName is the cookie the auth service sets alongside bearer tokens.
const SessionCookieName = "session"

// Actor is the authenticated user behind a request.
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SessionStore resolves session tokens into actors. Sessions are written to
// Redis by the authentication service; this side only reads them.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionStore{client: client, prefix: prefix}
}

// Resolve loads the actor for token.
func (s *SessionStore) Resolve(ctx context.Context, token string) (*Actor, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("session store not initialised")
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	var actor Actor
	if err := json.Unmarshal(payload, &actor); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	if actor.UserID == 0 || actor.Role == "" {
		return nil, ErrUnauthenticated
	}
	return &actor, nil
}

// Token extracts the session token from the request.
func (s *SessionStore) Token(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *SessionStore) key(token string) string {
	return s.prefix + ":" + token
}
