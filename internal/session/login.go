package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Login authenticates, decodes the returned token and persists the session.
func Login(ctx context.Context, auth Authenticator, store *Store, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("username and password required")
	}
	token, err := auth.Login(ctx, username, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	sess, err := New(token, time.Now())
	if err != nil {
		return Session{}, err
	}
	if err := store.Save(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}
