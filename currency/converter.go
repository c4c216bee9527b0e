package currency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/internal/metrics"
)

const cacheKeyPrefix = "mp:fx:"

// MaxAmount is the largest amount, in minor units, Convert accepts.
const MaxAmount int64 = 1_000_000_000_000_000

var (
	ErrInvalidCurrency = errors.New("currency: invalid currency code")
	ErrRateUnavailable = errors.New("currency: rate unavailable")
	ErrAmountRange     = errors.New("currency: amount out of range")
)

// Conversion is the result of converting an amount in minor units.
type Conversion struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    int64   `json:"amount"`
	Rate      float64 `json:"rate"`
	Converted int64   `json:"converted"`
}

// Converter converts listing prices using rates from an HTTP rate API,
// cached in Redis.
type Converter struct {
	client  *resty.Client
	cache   redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Options configures a Converter.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// NewConverter creates a converter. cache may be nil to disable caching.
func NewConverter(opts Options, cache redis.Cmdable, m *metrics.Metrics, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Converter{client: client, cache: cache, ttl: opts.CacheTTL, metrics: m, logger: logger}
}

// NormalizeCode upper-cases an ISO 4217 style code and checks its shape.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// Convert converts amount minor units of from into to, rounding to the
// nearest minor unit.
func (c *Converter) Convert(ctx context.Context, amount int64, from, to string) (Conversion, error) {
	if amount < 0 || amount > MaxAmount {
		return Conversion{}, ErrAmountRange
	}
	from, err := NormalizeCode(from)
	if err != nil {
		return Conversion{}, err
	}
	to, err = NormalizeCode(to)
	if err != nil {
		return Conversion{}, err
	}

	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return Conversion{}, err
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	converted := math.Round(float64(amount) * rate)
	if converted >= float64(math.MaxInt64) {
		return Conversion{}, fmt.Errorf("%w: %d %s in %s", ErrAmountRange, amount, from, to)
	}
	return Conversion{
		From:      from,
		To:        to,
		Amount:    amount,
		Rate:      rate,
		Converted: int64(converted),
	}, nil
}

// Rate returns units of to per unit of from. Codes must already be
// normalized.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}

	key := cacheKeyPrefix + from + ":" + to
	if rate, ok := c.cached(ctx, key); ok {
		return rate, nil
	}

	rate, err := c.fetch(ctx, from, to)
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
			c.logger.Warn("cache currency rate failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rate, nil
}

// cached reads a rate from Redis. Cache failures are treated as misses.
func (c *Converter) cached(ctx context.Context, key string) (float64, bool) {
	if c.cache == nil {
		return 0, false
	}
	raw, err := c.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		c.metrics.IncCurrencyCache("miss")
		return 0, false
	}
	if err != nil {
		c.metrics.IncCurrencyCache("error")
		c.logger.Warn("read currency rate cache failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		c.metrics.IncCurrencyCache("miss")
		return 0, false
	}
	c.metrics.IncCurrencyCache("hit")
	return rate, true
}

type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (c *Converter) fetch(ctx context.Context, from, to string) (float64, error) {
	var body latestResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"base": from, "symbols": to}).
		SetResult(&body).
		Get("/latest")
	if err != nil {
		c.logger.Error("currency rate request failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return 0, fmt.Errorf("currency: fetch %s/%s: %w", from, to, err)
	}
	if resp.IsError() {
		c.logger.Error("currency rate API returned error",
			zap.String("from", from),
			zap.String("to", to),
			zap.Int("status_code", resp.StatusCode()),
		)
		return 0, fmt.Errorf("%w: upstream status %d", ErrRateUnavailable, resp.StatusCode())
	}

	rate, ok := body.Rates[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, from, to)
	}
	return rate, nil
}
