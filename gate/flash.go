package gate

import (
	"net/http"
)

// FlashCookie carries the reason for the last access denial to the page the
// caller lands on.
const FlashCookie = "mp_flash"

const flashMaxAge = 60

// Reason classifies a gate or guard decision.
type Reason string

const (
	ReasonPublic          Reason = "public"
	ReasonAuthorized      Reason = "authorized"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonBackendError    Reason = "backend_error"
)

// Denial reports whether the reason denies access.
func (r Reason) Denial() bool {
	switch r {
	case ReasonUnauthenticated, ReasonUnauthorized, ReasonBackendError:
		return true
	default:
		return false
	}
}

// SetFlash records reason on the response.
func SetFlash(w http.ResponseWriter, reason Reason) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    string(reason),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadFlash returns the denial reason carried by the request, if any.
func ReadFlash(r *http.Request) (Reason, bool) {
	c, err := r.Cookie(FlashCookie)
	if err != nil {
		return "", false
	}
	reason := Reason(c.Value)
	if !reason.Denial() {
		return "", false
	}
	return reason, true
}

// ConsumeFlash reads the flash reason and expires the cookie.
func ConsumeFlash(w http.ResponseWriter, r *http.Request) (Reason, bool) {
	reason, ok := ReadFlash(r)
	if !ok {
		return "", false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return reason, true
}

// Deny sets the flash reason and redirects to target.
func Deny(w http.ResponseWriter, r *http.Request, reason Reason, target string) {
	SetFlash(w, reason)
	http.Redirect(w, r, target, http.StatusFound)
}
