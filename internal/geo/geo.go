package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/example/accessiride/internal/models"
)

// Hit is an indexed point within a Nearby radius.
type Hit struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance_m"`
}

// Index is the hazard lookup used by the store and the trip coordinator.
type Index interface {
	Upsert(ctx context.Context, id string, loc models.Coord) error
	Remove(ctx context.Context, id string) error
	Nearby(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]Hit, error)
}

// MemoryIndex keeps points in a map and scans on lookup.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]models.Coord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]models.Coord)}
}

func (g *MemoryIndex) Upsert(_ context.Context, id string, loc models.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points[id] = loc
	return nil
}

func (g *MemoryIndex) Remove(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.points, id)
	return nil
}

// naive scan; hazard counts per rider stay small
func (g *MemoryIndex) Nearby(_ context.Context, loc models.Coord, radiusMeters float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hits := make([]Hit, 0)
	for id, p := range g.points {
		d := Haversine(loc.Lat, loc.Lng, p.Lat, p.Lng)
		if d <= radiusMeters {
			hits = append(hits, Hit{ID: id, Distance: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Distance < hits[j].Distance
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
