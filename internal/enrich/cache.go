package enrich

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// GeocodeCache stores geocode results in Redis keyed by address hash,
// so re-runs do not re-geocode addresses the hash gate missed (fresh
// records with no stored hash yet). Cache failures are soft: a broken
// Redis degrades to provider calls.
type GeocodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGeocodeCache connects to Redis at addr. Returns nil when addr is
// empty, which disables caching.
func NewGeocodeCache(addr string, ttl time.Duration) *GeocodeCache {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &GeocodeCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func cacheKey(addressHash string) string { return "geocode:" + addressHash }

// Get returns the cached location for an address hash, if present.
func (c *GeocodeCache) Get(ctx context.Context, addressHash string) (*Location, bool) {
	data, err := c.client.Get(ctx, cacheKey(addressHash)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("GeocodeCache: get failed: %v", err)
		return nil, false
	}

	var loc Location
	if err := json.Unmarshal(data, &loc); err != nil {
		log.Printf("GeocodeCache: corrupt entry for %s: %v", addressHash, err)
		return nil, false
	}
	return &loc, true
}

// Put stores a location under an address hash.
func (c *GeocodeCache) Put(ctx context.Context, addressHash string, loc *Location) {
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(addressHash), data, c.ttl).Err(); err != nil {
		log.Printf("GeocodeCache: set failed: %v", err)
	}
}
