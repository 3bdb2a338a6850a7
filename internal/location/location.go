package location

import (
	"context"
	"errors"

	"github.com/example/accessiride/internal/models"
)

var (
	ErrGeolocationDenied      = errors.New("unable to retrieve your location, please check your browser permissions")
	ErrGeolocationUnsupported = errors.New("geolocation is not supported by your browser")
)

// Locator yields the rider's current position.
type Locator interface {
	Locate(ctx context.Context) (models.Coord, error)
}

// Geocoder maps a position to a street address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, loc models.Coord) (string, error)
}

// Fix is a position report forwarded by the client's geolocation API.
// Error carries the API's failure code when no position was obtained.
type Fix struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Error string   `json:"error,omitempty"`
}

// Locate implements Locator over a client-supplied fix.
func (f Fix) Locate(context.Context) (models.Coord, error) {
	switch f.Error {
	case "":
	case "unsupported":
		return models.Coord{}, ErrGeolocationUnsupported
	default:
		return models.Coord{}, ErrGeolocationDenied
	}
	if f.Lat == nil || f.Lng == nil {
		return models.Coord{}, ErrGeolocationUnsupported
	}
	return models.Coord{Lat: *f.Lat, Lng: *f.Lng}, nil
}

// CurrentAddress resolves the rider's position to an address usable as a
// trip origin.
func CurrentAddress(ctx context.Context, l Locator, g Geocoder) (string, models.Coord, error) {
	loc, err := l.Locate(ctx)
	if err != nil {
		return "", models.Coord{}, err
	}
	addr, err := g.ReverseGeocode(ctx, loc)
	if err != nil {
		return "", loc, err
	}
	return addr, loc, nil
}

// Announcement is the status line read out after a location lookup.
func Announcement(err error) string {
	switch {
	case err == nil:
		return "Current location set as starting point."
	case errors.Is(err, ErrGeolocationDenied), errors.Is(err, ErrGeolocationUnsupported):
		return "Error: Location access denied."
	}
	return "Error: Could not find address."
}
