package fiscal

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLookup struct {
	calls atomic.Int32
	res   Result
	err   error
}

func (s *stubLookup) Lookup(context.Context, string, string) (Result, error) {
	s.calls.Add(1)
	return s.res, s.err
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedLookup_HitAfterMiss(t *testing.T) {
	_, rdb := setupRedis(t)
	m := metrics.New(prometheus.NewRegistry())
	next := &stubLookup{res: Result{TaxYear: "2015", IncomeYear: "2014"}}
	c := NewCachedLookup(next, rdb, time.Hour, m, zap.NewNop())
	ctx := context.Background()

	first, err := c.Lookup(ctx, "123456789", "REF")
	require.NoError(t, err)
	second, err := c.Lookup(ctx, "123456789", "REF")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FiscalCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FiscalCache.WithLabelValues("miss")))

	// a different reference is a different entry
	_, err = c.Lookup(ctx, "123456789", "OTHER")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedLookup_FailuresNotCached(t *testing.T) {
	mr, rdb := setupRedis(t)
	next := &stubLookup{err: &LookupError{Kind: KindUnavailable}}
	c := NewCachedLookup(next, rdb, time.Hour, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(ctx, "1", "r")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Empty(t, mr.Keys())
}

func TestCachedLookup_KeyHidesFiscalNumber(t *testing.T) {
	mr, rdb := setupRedis(t)
	next := &stubLookup{res: Result{TaxYear: "2015"}}
	c := NewCachedLookup(next, rdb, time.Minute, nil, zap.NewNop())

	_, err := c.Lookup(context.Background(), "123456789", "REF")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], keyPrefix))
	assert.NotContains(t, keys[0], "123456789")
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestCachedLookup_Expiry(t *testing.T) {
	mr, rdb := setupRedis(t)
	next := &stubLookup{res: Result{TaxYear: "2015"}}
	c := NewCachedLookup(next, rdb, time.Minute, nil, zap.NewNop())
	ctx := context.Background()

	_, _ = c.Lookup(ctx, "1", "r")
	mr.FastForward(2 * time.Minute)
	_, _ = c.Lookup(ctx, "1", "r")

	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedLookup_RedisDown(t *testing.T) {
	mr, rdb := setupRedis(t)
	mr.Close()

	next := &stubLookup{res: Result{TaxYear: "2015"}}
	c := NewCachedLookup(next, rdb, time.Minute, nil, zap.NewNop())

	res, err := c.Lookup(context.Background(), "1", "r")
	require.NoError(t, err)
	assert.Equal(t, "2015", res.TaxYear)
	assert.Equal(t, int32(1), next.calls.Load())
}
