package pricefeed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when a mint has no stored price.
var ErrNoPrice = errors.New("pricefeed: no price")

// RedisConfig holds connection parameters for the Redis client.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Connect creates a Redis client and pings it.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisFeed reads prices published by an external writer.
// Each mint's price is a hash at "price:{mint}" with fields "price"
// (decimal string) and "ts" (Unix milliseconds).
type RedisFeed struct {
	rdb    *redis.Client
	maxAge time.Duration
	now    func() time.Time
}

// NewRedisFeed creates a feed on rdb. Prices older than maxAge are
// treated as missing; zero accepts any age.
func NewRedisFeed(rdb *redis.Client, maxAge time.Duration) *RedisFeed {
	return &RedisFeed{rdb: rdb, maxAge: maxAge, now: time.Now}
}

func priceKey(mint string) string {
	return "price:" + mint
}

// SetPrice stores the latest price of mint observed at ts.
func (f *RedisFeed) SetPrice(ctx context.Context, mint string, price decimal.Decimal, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixMilli(), 10),
	}
	if err := f.rdb.HSet(ctx, priceKey(mint), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", mint, err)
	}
	return nil
}

// Price returns the latest price of mint and when it was observed.
// Returns ErrNoPrice when none is stored or it is stale.
func (f *RedisFeed) Price(ctx context.Context, mint string) (decimal.Decimal, time.Time, error) {
	vals, err := f.rdb.HGetAll(ctx, priceKey(mint)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", mint, err)
	}
	price, ts, ok, err := f.parse(vals)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: price %s: %w", mint, err)
	}
	if !ok {
		return decimal.Zero, time.Time{}, ErrNoPrice
	}
	return price, ts, nil
}

// Prices fetches all mints in one pipeline. Missing, stale and malformed
// entries are omitted.
func (f *RedisFeed) Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	if len(mints) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	pipe := f.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(mints))
	for _, m := range mints {
		cmds[m] = pipe.HGetAll(ctx, priceKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(mints))
	for m, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, ok, err := f.parse(vals)
		if err != nil || !ok {
			continue
		}
		out[m] = price
	}
	return out, nil
}

func (f *RedisFeed) parse(vals map[string]string) (decimal.Decimal, time.Time, bool, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, false, nil
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("parse price: %w", err)
	}

	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		ms, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return decimal.Zero, time.Time{}, false, fmt.Errorf("parse ts: %w", err)
		}
		ts = time.UnixMilli(ms)
	}
	if f.maxAge > 0 && (ts.IsZero() || f.now().Sub(ts) > f.maxAge) {
		return decimal.Zero, time.Time{}, false, nil
	}
	return price, ts, true, nil
}
