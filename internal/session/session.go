// Package session persists the access token and decoded identity between
// runs. Sessions expire seven days after login.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is how long a saved session stays valid.
const TTL = 7 * 24 * time.Hour

// FileName is the session file inside the data dir.
const FileName = "session.json"

// ErrNoSession is returned when no valid session is stored.
var ErrNoSession = errors.New("no active session")

// Identity is the user described by the access token.
type Identity struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles"`
}

// DisplayName prefers the full name, then the username.
func (i Identity) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	if i.Username != "" {
		return i.Username
	}
	return i.Email
}

// Session is the persisted credential.
type Session struct {
	Token     string    `json:"token"`
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// New builds a session from an access token, decoding its claims.
func New(token string, now time.Time) (Session, error) {
	id, err := DecodeIdentity(token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: id, ExpiresAt: now.Add(TTL)}, nil
}

// DecodeIdentity reads the identity claims of an access token. The signature
// is not verified; the client holds no key and the API re-checks every call.
func DecodeIdentity(token string) (Identity, error) {
	parser := jwt.NewParser(jwt.WithJSONNumber())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("decode token: %w", err)
	}

	id, err := numericClaim(claims["sub"])
	if err != nil {
		return Identity{}, fmt.Errorf("decode token subject: %w", err)
	}
	identity := Identity{
		ID:       id,
		Email:    stringClaim(claims["email"]),
		Username: stringClaim(claims["username"]),
		Name:     stringClaim(claims["name"]),
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, s)
			}
		}
	}
	return identity, nil
}

func numericClaim(v any) (int64, error) {
	switch val := v.(type) {
	case json.Number:
		return val.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case float64:
		return int64(val), nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func stringClaim(v any) string {
	s, _ := v.(string)
	return s
}

// Store reads and writes the session file. It caches the last loaded session
// so Token can be called on every request.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	current *Session
}

// NewStore returns a store for the session file in dataDir.
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, FileName), now: time.Now}
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the session file. Missing or expired sessions yield
// ErrNoSession; an expired file is removed.
func (s *Store) Load() (Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.set(nil)
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.set(nil)
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	if strings.TrimSpace(sess.Token) == "" || sess.Expired(s.now()) {
		s.set(nil)
		_ = os.Remove(s.path)
		return Session{}, ErrNoSession
	}
	s.set(&sess)
	return sess, nil
}

// Save writes sess with owner-only permissions.
func (s *Store) Save(sess Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	s.set(&sess)
	return nil
}

// Clear removes the session file.
func (s *Store) Clear() error {
	s.set(nil)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Token returns the cached bearer token, or "" when logged out or expired.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Expired(s.now()) {
		return ""
	}
	return s.current.Token
}

// Identity returns the cached identity, nil when logged out.
func (s *Store) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Expired(s.now()) {
		return nil
	}
	id := s.current.User
	return &id
}

func (s *Store) set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}
