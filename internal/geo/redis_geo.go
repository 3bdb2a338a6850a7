package geo

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/example/accessiride/internal/models"
)

// RedisIndex implements Index using Redis GEO commands.
type RedisIndex struct {
	client redis.UniversalClient
	key    string
}

func NewRedisIndex(client redis.UniversalClient, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, id string, loc models.Coord) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Lng, Latitude: loc.Lat, Name: id}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, id string) error {
	// GEO sets are plain sorted sets underneath
	return r.client.ZRem(ctx, r.key, id).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]Hit, error) {
	q := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  loc.Lng,
			Latitude:   loc.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}
	res, err := r.client.GeoSearchLocation(ctx, r.key, q).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(res))
	for _, g := range res {
		out = append(out, Hit{ID: g.Name, Distance: g.Dist})
	}
	return out, nil
}
