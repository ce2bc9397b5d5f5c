// Package notifygate deduplicates proximity notifications. Each (tier,
// role, trip) triple may fire at most once for the lifetime of the trip;
// the claim is a single atomic set-if-absent in Redis.
package notifygate

import (
	"context"
	"time"

	"github.com/BearBump/GeoCore/internal/cache"
	"github.com/pkg/errors"
)

type Gate struct {
	cache cache.AtomicCache
	ttl   time.Duration
}

// New builds a gate. ttl bounds how long a claim is remembered; zero keeps
// claims until the key is evicted.
func New(c cache.AtomicCache, ttl time.Duration) *Gate {
	return &Gate{cache: c, ttl: ttl}
}

func Key(tier, role, tripReadID string) string {
	return tier + "-" + role + "-" + tripReadID
}

// Acquire claims the notification slot. True means the caller owns the
// slot and must send; false means it was already claimed. On cache errors
// the slot is NOT granted: a missed notification beats a duplicate one.
func (g *Gate) Acquire(ctx context.Context, tier, role, tripReadID string) (bool, error) {
	ok, err := g.cache.SetIfAbsent(ctx, Key(tier, role, tripReadID), []byte("1"), g.ttl)
	if err != nil {
		return false, errors.Wrap(err, "acquire notification slot")
	}
	return ok, nil
}

// Release frees a claimed slot so a later pass can retry, used when the
// notification could not be enqueued after the claim succeeded.
func (g *Gate) Release(ctx context.Context, tier, role, tripReadID string) error {
	return errors.Wrap(g.cache.Delete(ctx, Key(tier, role, tripReadID)), "release notification slot")
}
