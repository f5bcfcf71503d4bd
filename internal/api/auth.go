package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	cmdfw "github.com/haloiam/core/pkg/command"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
)

// claims is the bearer token shape Authorize expects: a subject, the
// instance it is scoped to, and its resolved roles, mirroring
// pkg/command.AuthContext one-for-one so there is nothing left to resolve
// after verification.
type claims struct {
	jwt.RegisteredClaims
	InstanceID string   `json:"instance_id"`
	Roles      []string `json:"roles"`
}

// TokenVerifier verifies bearer tokens signed with a single shared HMAC
// key. Deliberately the simplest jwt/v5 keyfunc shape rather than a
// JWKS-backed one; token issuance lives outside this module.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a TokenVerifier for the given HMAC secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Authorize parses and verifies a bearer token and returns the
// AuthContext a Dispatcher call should run under.
func (v *TokenVerifier) Authorize(tokenString string) (cmdfw.AuthContext, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return cmdfw.AuthContext{}, fmt.Errorf("api: verifying bearer token: %w", err)
	}
	if !token.Valid {
		return cmdfw.AuthContext{}, fmt.Errorf("api: bearer token is not valid")
	}
	return cmdfw.AuthContext{
		InstanceID: c.InstanceID,
		SubjectID:  c.Subject,
		Roles:      c.Roles,
	}, nil
}

// FromRequest extracts and verifies the bearer token from an incoming
// request's Authorization header. Returned for handwritten transports to
// call before dispatching; no HTTP server is built in this module.
func (v *TokenVerifier) FromRequest(r *http.Request) (cmdfw.AuthContext, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return cmdfw.AuthContext{}, fmt.Errorf("api: missing bearer token")
	}
	return v.Authorize(strings.TrimPrefix(header, prefix))
}

// sessionSubjectKey is the gorilla/sessions value key holding the
// authenticated subject id for browser-based login-policy-driven flows
// (stubbed web flows): a human signing in via a login policy's
// linked IDP gets a cookie, not a bearer token, but still needs to reach
// the same AuthContext shape for subsequent command dispatch.
const sessionSubjectKey = "subject_id"
const sessionInstanceKey = "instance_id"

// SessionStore wraps gorilla/sessions for the browser cookie path.
type SessionStore struct {
	store sessions.Store
	name  string
}

// NewSessionStore builds a SessionStore backed by a cookie store keyed on
// the given secret.
func NewSessionStore(secret []byte, cookieName string) *SessionStore {
	return &SessionStore{store: sessions.NewCookieStore(secret), name: cookieName}
}

// Start begins a browser session for subjectID/instanceID after a
// successful login-policy-driven authentication, and writes the Set-Cookie
// header onto w.
func (s *SessionStore) Start(w http.ResponseWriter, r *http.Request, subjectID, instanceID string) error {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return fmt.Errorf("api: opening session: %w", err)
	}
	session.Values[sessionSubjectKey] = subjectID
	session.Values[sessionInstanceKey] = instanceID
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("api: saving session: %w", err)
	}
	return nil
}

// Authorize reads an existing browser session's cookie and returns the
// AuthContext it carries. Roles are not stored in the cookie, so the
// returned AuthContext has none — unlike the bearer-token path, which takes
// roles from the token's claims. A cookie session's permissions come only
// from what the casbin policy grants the subject, so a stale cookie can
// never grant stale permissions.
func (s *SessionStore) Authorize(r *http.Request) (cmdfw.AuthContext, error) {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return cmdfw.AuthContext{}, fmt.Errorf("api: reading session: %w", err)
	}
	subjectID, _ := session.Values[sessionSubjectKey].(string)
	instanceID, _ := session.Values[sessionInstanceKey].(string)
	if subjectID == "" {
		return cmdfw.AuthContext{}, fmt.Errorf("api: no authenticated session")
	}
	return cmdfw.AuthContext{SubjectID: subjectID, InstanceID: instanceID}, nil
}

// End clears a browser session's cookie.
func (s *SessionStore) End(w http.ResponseWriter, r *http.Request) error {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return fmt.Errorf("api: opening session: %w", err)
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// contextKey avoids collisions on the context.Context key space.
type contextKey string

const authContextKey contextKey = "auth"

// WithAuth returns a context carrying auth, for handlers that pull it back
// out via AuthFromContext instead of threading it as an explicit parameter.
func WithAuth(ctx context.Context, auth cmdfw.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves the AuthContext WithAuth attached, if any.
func AuthFromContext(ctx context.Context) (cmdfw.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(cmdfw.AuthContext)
	return auth, ok
}
