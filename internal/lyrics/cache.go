package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"audiolyrics/internal/models"
)

// Cache stores found lyrics keyed by normalized query. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, q models.NormalizedQuery) (*models.LyricsResolution, error)
	Set(ctx context.Context, q models.NormalizedQuery, res *models.LyricsResolution) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, models.NormalizedQuery) (*models.LyricsResolution, error) {
	return nil, nil
}

func (nopCache) Set(context.Context, models.NormalizedQuery, *models.LyricsResolution) error {
	return nil
}

// RedisCache keeps resolutions in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

// cacheKey is case-insensitive so "Daft Punk"/"daft punk" share an entry.
// Fields are query-escaped so a ':' inside one cannot shift the boundary.
func cacheKey(q models.NormalizedQuery) string {
	return fmt.Sprintf("lyrics:%s:%s",
		url.QueryEscape(strings.ToLower(q.Artist)),
		url.QueryEscape(strings.ToLower(q.Track)))
}

func (c *RedisCache) Get(ctx context.Context, q models.NormalizedQuery) (*models.LyricsResolution, error) {
	val, err := c.client.Get(ctx, cacheKey(q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res models.LyricsResolution
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RedisCache) Set(ctx context.Context, q models.NormalizedQuery, res *models.LyricsResolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(q), data, c.ttl).Err()
}
