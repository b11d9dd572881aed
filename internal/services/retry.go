package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
)

const maxBackoff = 30 * time.Second

// backoff returns base * 2^(attempt-1), capped at maxBackoff.
func backoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	d := time.Duration(math.Pow(2, float64(attempt-1)) * float64(base))
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}

// jitter returns a random duration in [0, limit].
func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether a remote fault may go away on its own.
// Protocol faults and missing objects do not.
func retryable(err error) bool {
	return errors.Is(err, registry.ErrTransport)
}

// retryingClient retries transport faults of every remote call with
// exponential backoff and jitter.
type retryingClient struct {
	inner   registry.Client
	retries int
	base    time.Duration
	log     *logger.Logger
	sleep   func(context.Context, time.Duration) error
}

func newRetryingClient(inner registry.Client, retries int, base time.Duration, log *logger.Logger) *retryingClient {
	return &retryingClient{inner: inner, retries: retries, base: base, log: log, sleep: sleepContext}
}

func do[T any](ctx context.Context, c *retryingClient, op string, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || !retryable(err) || attempt >= c.retries || ctx.Err() != nil {
			return v, err
		}

		wait := backoff(attempt+1, c.base)
		wait += jitter(wait / 2)
		c.log.Warn("Registry call failed, retrying", map[string]interface{}{
			"operation": op,
			"attempt":   attempt + 1,
			"wait":      wait.String(),
			"error":     err.Error(),
		})
		if serr := c.sleep(ctx, wait); serr != nil {
			return v, err
		}
	}
}

func (c *retryingClient) ListAfterCursor(ctx context.Context, entity models.EntityType, after *int64, filter registry.Filter, maxCount int) ([]registry.Object, error) {
	return do(ctx, c, "list "+string(entity), func(ctx context.Context) ([]registry.Object, error) {
		return c.inner.ListAfterCursor(ctx, entity, after, filter, maxCount)
	})
}

func (c *retryingClient) FindRelated(ctx context.Context, rel models.Relation, ownerIDs []int64) (map[int64][]int64, error) {
	return do(ctx, c, "find "+rel.Name, func(ctx context.Context) (map[int64][]int64, error) {
		return c.inner.FindRelated(ctx, rel, ownerIDs)
	})
}

func (c *retryingClient) FetchByIDs(ctx context.Context, entity models.EntityType, ids []int64) ([]registry.Object, error) {
	return do(ctx, c, "fetch "+string(entity), func(ctx context.Context) ([]registry.Object, error) {
		return c.inner.FetchByIDs(ctx, entity, ids)
	})
}

func (c *retryingClient) FetchByIDsIgnoreMissing(ctx context.Context, entity models.EntityType, ids []int64) ([]registry.Object, error) {
	return do(ctx, c, "fetch "+string(entity), func(ctx context.Context) ([]registry.Object, error) {
		return c.inner.FetchByIDsIgnoreMissing(ctx, entity, ids)
	})
}

func (c *retryingClient) FetchOne(ctx context.Context, entity models.EntityType, id int64) (registry.Object, error) {
	return do(ctx, c, "fetch one "+string(entity), func(ctx context.Context) (registry.Object, error) {
		return c.inner.FetchOne(ctx, entity, id)
	})
}
