// Package redis backs the client lookup cache with a shared redis instance,
// so a registry update or delete on one replica is visible to the rest.
package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// opTimeout bounds every cache round trip. A slow or unreachable redis must
// degrade to a miss, never stall client authentication.
const opTimeout = 250 * time.Millisecond

type Cache struct{ c *rdb.Client }

func New(addr string, db int) *Cache {
	return &Cache{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

func (r *Cache) Get(k string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	b, err := r.c.Get(ctx, k).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(k string, v []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_ = r.c.Set(ctx, k, v, ttl).Err()
}

func (r *Cache) Delete(k string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_ = r.c.Del(ctx, k).Err()
}
