// internal/app/system/fiscal/cache.go
package fiscal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "bourses:fiscal:"

// CachedLookup answers repeated lookups of the same notice from Redis.
// Only successful results are cached; a Redis failure degrades to a
// direct call.
type CachedLookup struct {
	next    Lookup
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewCachedLookup(next Lookup, rdb redis.Cmdable, ttl time.Duration, m *metrics.Metrics, log *zap.Logger) *CachedLookup {
	return &CachedLookup{next: next, rdb: rdb, ttl: ttl, metrics: m, log: log}
}

// cacheKey never contains the fiscal number itself.
func cacheKey(fiscalNumber, reference string) string {
	sum := sha256.Sum256([]byte(fiscalNumber + "|" + reference))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Lookup implements Lookup.
func (c *CachedLookup) Lookup(ctx context.Context, fiscalNumber, reference string) (Result, error) {
	key := cacheKey(fiscalNumber, reference)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var res Result
		if jerr := json.Unmarshal(raw, &res); jerr == nil {
			c.metrics.IncrementFiscalCache("hit")
			return res, nil
		}
		c.log.Warn("discarding unreadable fiscal cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.metrics.IncrementFiscalCache("error")
		c.log.Warn("fiscal cache read failed", zap.Error(err))
	}
	c.metrics.IncrementFiscalCache("miss")

	res, err := c.next.Lookup(ctx, fiscalNumber, reference)
	if err != nil {
		return Result{}, err
	}

	if b, jerr := json.Marshal(res); jerr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.log.Warn("fiscal cache write failed", zap.Error(serr))
		}
	}
	return res, nil
}
