// Package auth provides password hashing, the signed session cookie, and the
// middleware that turns that cookie into the current user.
//
// SESSION MODEL:
// The session lives entirely in the client's cookie. It is a JWT signed with
// HMAC-SHA256, so the server can detect any modification without storing
// anything, but the payload is only base64. Anyone holding the cookie can
// read it, so it carries nothing secret: the logged-in user id and the
// pending one-shot flash messages.
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload: {"sub":"42","jti":"cv37rs3pp9olc6atsptg","flashes":["..."],"exp":...}
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	// SessionCookieName is the cookie holding the signed session.
	SessionCookieName = "session"

	// DefaultSessionLifetime bounds how long a signed session is accepted.
	DefaultSessionLifetime = 31 * 24 * time.Hour

	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 16

	sessionIssuer = "blog"
)

// Session is the decoded, mutable session for one request.
//
// Handlers change it through its methods; Modified tells the store whether
// the cookie has to be rewritten when the response goes out.
type Session struct {
	userID   int64
	flashes  []string
	modified bool
}

// UserID returns the logged-in user's id, if any.
func (s *Session) UserID() (int64, bool) {
	return s.userID, s.userID != 0
}

// SetUserID records a login.
func (s *Session) SetUserID(id int64) {
	s.userID = id
	s.modified = true
}

// Clear drops everything in the session: identity and pending flashes.
// Calling it on an empty session is harmless.
func (s *Session) Clear() {
	s.userID = 0
	s.flashes = nil
	s.modified = true
}

// AddFlash queues a one-shot message for the next rendered page.
func (s *Session) AddFlash(msg string) {
	s.flashes = append(s.flashes, msg)
	s.modified = true
}

// PopFlashes returns the queued messages and removes them from the session.
func (s *Session) PopFlashes() []string {
	if len(s.flashes) == 0 {
		return nil
	}
	flashes := s.flashes
	s.flashes = nil
	s.modified = true
	return flashes
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool {
	return s.modified
}

// IsEmpty reports whether there is nothing worth storing.
func (s *Session) IsEmpty() bool {
	return s.userID == 0 && len(s.flashes) == 0
}

// sessionClaims is the JWT payload. "sub" carries the user id.
type sessionClaims struct {
	jwt.RegisteredClaims
	Flashes []string `json:"flashes,omitempty"`
}

// SessionStore signs sessions into cookies and reads them back.
type SessionStore struct {
	secret   []byte
	lifetime time.Duration
	secure   bool
	now      func() time.Time
}

// NewSessionStore creates a SessionStore.
//
// secret must be at least MinSecretLength characters. A non-positive
// lifetime means DefaultSessionLifetime. secure marks the cookie HTTPS-only.
func NewSessionStore(secret string, lifetime time.Duration, secure bool) (*SessionStore, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", MinSecretLength)
	}
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &SessionStore{
		secret:   []byte(secret),
		lifetime: lifetime,
		secure:   secure,
		now:      time.Now,
	}, nil
}

// Encode signs the session into a token string.
// Every call gets a fresh token id, so a re-login never reuses an old value.
func (s *SessionStore) Encode(sess *Session) (string, error) {
	now := s.now()

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
		Flashes: sess.flashes,
	}
	if id, ok := sess.UserID(); ok {
		c.Subject = strconv.FormatInt(id, 10)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies a token and returns the session it carries.
//
// The signature, algorithm (HS256 only), issuer, and expiry are all checked;
// a token failing any of them is an error.
func (s *SessionStore) Decode(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: session expired")
		}
		return nil, fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid session claims")
	}

	sess := &Session{flashes: c.Flashes}
	if c.Subject != "" {
		id, err := strconv.ParseInt(c.Subject, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("auth: invalid session subject %q", c.Subject)
		}
		sess.userID = id
	}
	return sess, nil
}

// Load reads the session cookie from the request.
//
// A missing, expired, tampered or otherwise unreadable cookie gives an empty
// session: the visitor is simply anonymous.
func (s *SessionStore) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}
	}

	sess, err := s.Decode(cookie.Value)
	if err != nil {
		return &Session{}
	}
	return sess
}

// Save writes the session cookie, or deletes it when the session is empty.
// It must run before the response header is written.
func (s *SessionStore) Save(w http.ResponseWriter, sess *Session) error {
	if sess.IsEmpty() {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	value, err := s.Encode(sess)
	if err != nil {
		return err
	}

	// No MaxAge: the cookie ends with the browser session. The signed
	// expiry still caps how long a copied cookie stays usable.
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
