package auth

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

const minPasswordLength = 8

// Handler manages password login and the session lifecycle.
type Handler struct {
	repo     profiles.Repository
	sessions *SessionManager
	limiter  *LoginRateLimiter
	logger   *zap.Logger
}

// NewHandler constructs an auth handler. limiter may be nil.
func NewHandler(repo profiles.Repository, sessions *SessionManager, limiter *LoginRateLimiter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, sessions: sessions, limiter: limiter, logger: logger}
}

// Routes exposes the auth endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	if h.limiter != nil {
		r.With(h.limiter.Middleware).Post("/login", h.login)
	} else {
		r.Post("/login", h.login)
	}
	r.Get("/session", h.sessionInfo)
	r.Post("/logout", h.logout)
	return r
}

type credentialsPayload struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	ProfileID string    `json:"profile_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      rbac.Role `json:"role,omitempty"`
	Token     string    `json:"token,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	email, ok := normalizeEmail(payload.Email)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		httpx.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(payload.Password) < minPasswordLength {
		httpx.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	profile, err := h.repo.Create(r.Context(), profiles.CreateParams{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, profiles.ErrDuplicateEmail) {
			httpx.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("register profile failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.sessions.Issue(w, profile.ID, profile.Email)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.logger.Info("profile registered", zap.String("profile_id", profile.ID))
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{
		ProfileID: profile.ID,
		Email:     profile.Email,
		Name:      profile.Name,
		Role:      profile.Role,
		Token:     token,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	creds, err := h.repo.FindCredentials(r.Context(), payload.Email)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			httpx.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("load credentials failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(payload.Password)) != nil {
		httpx.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := h.sessions.Issue(w, creds.ProfileID, creds.Email)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		ProfileID: creds.ProfileID,
		Email:     creds.Email,
		Token:     token,
	})
}

// sessionInfo reports the identity together with the role read from the
// profile row, never from the token.
func (h *Handler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	claims := FromContext(r.Context())
	if claims == nil {
		httpx.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	resp := sessionResponse{ProfileID: claims.ProfileID, Email: claims.Email}
	if viewer := profiles.ViewerFromContext(r.Context()); viewer.Authenticated() {
		role, err := viewer.Role(r.Context())
		if err != nil {
			if !errors.Is(err, profiles.ErrNotFound) {
				h.logger.Warn("session role lookup failed", zap.String("profile_id", claims.ProfileID), zap.Error(err))
			}
			httpx.Error(w, http.StatusUnauthorized, "session no longer valid")
			return
		}
		resp.Role = role
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
