package shared

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "odyssey-signup"

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Identity is the user-shaped payload a session authenticates.
type Identity struct {
	Email string `json:"email"`
}

// SessionManager issues client-held sessions. The whole session travels in
// an HS256 signed cookie; nothing is stored server side, so an identity is
// not re-checked against the user table on each request.
type SessionManager struct {
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	user      *Identity
	flashes   []FlashMessage
	dirty     bool
	destroyed bool
}

type sessionClaims struct {
	Values  map[string]string `json:"vals,omitempty"`
	User    *Identity         `json:"usr,omitempty"`
	Flashes []FlashMessage    `json:"fl,omitempty"`
	jwt.RegisteredClaims
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(cookieName string, secret []byte, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     secret,
		now:        time.Now,
	}
}

// Load returns the session carried by the request cookie. A missing,
// malformed, expired or forged cookie yields a fresh anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	claims, err := sm.parse(cookie.Value)
	if err != nil {
		return sm.newSession(), nil
	}

	sess := &Session{
		ID:      claims.ID,
		values:  claims.Values,
		flashes: claims.Flashes,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	if claims.User != nil && claims.User.Email != "" {
		sess.user = claims.User
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
		sess.dirty = true
	}
	return sess, nil
}

// Authenticate decodes a raw session token into an identity.
func (sm *SessionManager) Authenticate(token string) (*Identity, bool) {
	if token == "" {
		return nil, false
	}
	claims, err := sm.parse(token)
	if err != nil || claims.User == nil || claims.User.Email == "" {
		return nil, false
	}
	return claims.User, true
}

// Commit writes the session cookie when the session changed. Anonymous
// sessions that never stored anything produce no cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	if !sess.dirty {
		return nil
	}

	token, expiresAt, err := sm.sign(sess)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
	sess.dirty = false
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
	sess.user = nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) sign(sess *Session) (string, time.Time, error) {
	now := sm.now()
	expiresAt := now.Add(sm.ttl)
	claims := sessionClaims{
		Values:  sess.values,
		User:    sess.user,
		Flashes: sess.flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if sess.user != nil {
		claims.Subject = sess.user.Email
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (sm *SessionManager) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return sm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("session: invalid token")
	}
	return claims, nil
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with an identity.
func (s *Session) SetUser(email string) {
	s.user = &Identity{Email: email}
	s.dirty = true
}

// User returns the authenticated identity, or nil for anonymous sessions.
func (s *Session) User() *Identity {
	return s.user
}

// Authenticated reports whether the session carries an identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.user != nil && s.user.Email != ""
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: make(map[string]string),
	}
}
