package currency

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/marketplace/backend/httpx"
)

// Routes registers the public conversion endpoint.
func (c *Converter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/convert", c.convert)
	return r
}

func (c *Converter) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil || amount < 0 || amount > MaxAmount {
		httpx.Error(w, http.StatusBadRequest, "amount must be a non-negative integer in minor units, at most "+strconv.FormatInt(MaxAmount, 10))
		return
	}

	conv, err := c.Convert(r.Context(), amount, q.Get("from"), q.Get("to"))
	switch {
	case errors.Is(err, ErrAmountRange):
		httpx.Error(w, http.StatusBadRequest, "converted amount is out of range")
	case errors.Is(err, ErrInvalidCurrency):
		httpx.Error(w, http.StatusBadRequest, "from and to must be three letter currency codes")
	case err != nil:
		httpx.Error(w, http.StatusBadGateway, "exchange rate unavailable")
	default:
		httpx.WriteJSON(w, http.StatusOK, conv)
	}
}
