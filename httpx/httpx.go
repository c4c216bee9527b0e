package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// DecodeJSON decodes the request body into dest enforcing strict JSON handling.
func DecodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		return err
	}

	if decoder.More() {
		return errors.New("unexpected data after JSON payload")
	}

	return nil
}

// WriteJSON serializes v as JSON with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a structured error response.
func Error(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// Page holds limit/offset pagination parsed from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset, clamping limit to [1, max].
func ParsePage(r *http.Request, def, max int) Page {
	page := Page{Limit: def}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if page.Limit > max {
		page.Limit = max
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	return page
}
