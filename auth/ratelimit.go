package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/internal/metrics"
)

const (
	loginIPLimit     = 20
	loginEmailLimit  = 5
	loginLimitWindow = time.Minute
	loginFailLimit   = 5
	loginLockTTL     = 15 * time.Minute

	keyPrefix = "mp:login:"
)

// LoginRateLimiter throttles login attempts per client address and per
// email, and locks an email after repeated failed passwords.
type LoginRateLimiter struct {
	rdb          redis.Cmdable
	metrics      *metrics.Metrics
	logger       *zap.Logger
	ipLimit      int
	emailLimit   int
	window       time.Duration
	failLimit    int
	lockDuration time.Duration
}

// NewLoginRateLimiter creates a limiter with the default limits.
func NewLoginRateLimiter(rdb redis.Cmdable, m *metrics.Metrics, logger *zap.Logger) *LoginRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginRateLimiter{
		rdb:          rdb,
		metrics:      m,
		logger:       logger,
		ipLimit:      loginIPLimit,
		emailLimit:   loginEmailLimit,
		window:       loginLimitWindow,
		failLimit:    loginFailLimit,
		lockDuration: loginLockTTL,
	}
}

// Middleware wraps the login handler. Redis failures reject the attempt.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		email := emailFromBody(body)
		ip := clientIP(r)

		allowed, scope, err := l.admit(ctx, ip, email)
		if err != nil {
			l.logger.Error("login rate limiter unavailable", zap.Error(err))
			httpx.Error(w, http.StatusServiceUnavailable, "login temporarily unavailable")
			return
		}
		if !allowed {
			l.metrics.IncLoginThrottled(scope)
			httpx.Error(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if email == "" {
			return
		}
		switch ww.Status() {
		case http.StatusUnauthorized:
			if err := l.recordFailure(ctx, email); err != nil {
				l.logger.Warn("record login failure", zap.Error(err))
			}
		case http.StatusOK:
			_ = l.rdb.Del(ctx, keyPrefix+"fail:"+email).Err()
		}
	})
}

func (l *LoginRateLimiter) admit(ctx context.Context, ip, email string) (bool, string, error) {
	if email != "" {
		locked, err := l.rdb.Exists(ctx, keyPrefix+"lock:"+email).Result()
		if err != nil {
			return false, "", err
		}
		if locked > 0 {
			return false, "lock", nil
		}
	}

	count, err := l.increment(ctx, keyPrefix+"ip:"+ip, l.window)
	if err != nil {
		return false, "", err
	}
	if count > int64(l.ipLimit) {
		return false, "ip", nil
	}

	if email != "" {
		count, err := l.increment(ctx, keyPrefix+"email:"+email, l.window)
		if err != nil {
			return false, "", err
		}
		if count > int64(l.emailLimit) {
			return false, "email", nil
		}
	}
	return true, "", nil
}

func (l *LoginRateLimiter) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (l *LoginRateLimiter) recordFailure(ctx context.Context, email string) error {
	count, err := l.increment(ctx, keyPrefix+"fail:"+email, l.lockDuration)
	if err != nil {
		return err
	}
	if count >= int64(l.failLimit) {
		l.logger.Info("login locked", zap.String("email", email))
		return l.rdb.Set(ctx, keyPrefix+"lock:"+email, "1", l.lockDuration).Err()
	}
	return nil
}

func emailFromBody(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// clientIP prefers the address resolved by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
