package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity carried by a session token. The account role is
// deliberately absent: it is read fresh from the profile row on every request.
type Claims struct {
	ProfileID string `json:"pid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "authClaims"

// SessionOptions tunes the session cookie.
type SessionOptions struct {
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// SessionManager signs and verifies session tokens carried as HTTP cookies
// or bearer tokens.
type SessionManager struct {
	secret     []byte
	cookieName string
	lifetime   time.Duration
	secure     bool
	now        func() time.Time
}

// NewSessionManager constructs a session manager with the provided HMAC
// secret. The secret is required and should be randomly generated for
// production deployments.
func NewSessionManager(secret string, opts SessionOptions) (*SessionManager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("session secret must be configured")
	}
	if opts.CookieName == "" {
		opts.CookieName = "mp_session"
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 24 * time.Hour
	}

	return &SessionManager{
		secret:     []byte(trimmed),
		cookieName: opts.CookieName,
		lifetime:   opts.Lifetime,
		secure:     opts.Secure,
		now:        time.Now,
	}, nil
}

// CookieName is the name of the session cookie.
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue creates a session for the profile and writes it to the response as
// an HTTP only cookie. The raw token is returned for API clients.
func (m *SessionManager) Issue(w http.ResponseWriter, profileID, email string) (string, error) {
	now := m.now()
	expires := now.Add(m.lifetime)
	claims := &Claims{
		ProfileID: profileID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})

	return token, nil
}

// Clear removes the session cookie from the response.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// Middleware attaches claims from the inbound session, if present. Invalid or
// expired tokens leave the request unauthenticated; route gating decides what
// happens next. Cookie sessions past half their lifetime are re-issued on the
// response so that navigation keeps the session alive.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := m.extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Verify(token)
		if err != nil {
			if fromCookie {
				m.Clear(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		if fromCookie && m.needsRefresh(claims) {
			if _, err := m.Issue(w, claims.ProfileID, claims.Email); err != nil {
				m.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// Verify parses and validates a raw session token.
func (m *SessionManager) Verify(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.ProfileID == "" {
		return nil, errors.New("auth: session token invalid")
	}
	return &claims, nil
}

func (m *SessionManager) needsRefresh(claims *Claims) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return m.now().Sub(claims.IssuedAt.Time) > m.lifetime/2
}

func (m *SessionManager) extractToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}

	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}

	return strings.TrimSpace(authz[len("bearer "):]), false
}

// ContextWithClaims stores claims on ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves the active session claims, if any.
func FromContext(ctx context.Context) *Claims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}
