package eta

import (
	"fmt"
	"math"

	"github.com/example/accessiride/internal/geo"
	"github.com/example/accessiride/internal/models"
)

const metersPerMile = 1609.34

// RandSource is the subset of math/rand used by the estimator.
type RandSource interface {
	Float64() float64
}

type rideShare struct {
	id         string
	provider   string
	priceMult  float64
	priceNoise float64
	etaOffset  float64
	etaNoise   float64
}

var rideShares = []rideShare{
	{id: "uber-x", provider: "UberX", priceMult: 1, priceNoise: 2, etaNoise: 3},
	{id: "uber-wav", provider: "Uber WAV", priceMult: 1.2, priceNoise: 3, etaOffset: 2, etaNoise: 4},
	{id: "lyft", provider: "Lyft", priceMult: 0.95, priceNoise: 2, etaNoise: 3},
}

// RideShareEstimates is a synthetic pricing model: no dispatch happens.
// Price grows 2.10 per mile over a 5.00 base; pickup ETA 2 minutes per
// mile over a 3 minute base, each jittered by rnd.
func RideShareEstimates(from, to models.Coord, rnd RandSource) []models.SearchOption {
	miles := geo.Haversine(from.Lat, from.Lng, to.Lat, to.Lng) / metersPerMile
	basePrice := 5 + miles*2.1
	baseETA := 3 + miles*2

	out := make([]models.SearchOption, 0, len(rideShares))
	for _, rs := range rideShares {
		etaMin := math.Floor(baseETA + rs.etaOffset + rnd.Float64()*rs.etaNoise)
		price := basePrice*rs.priceMult + rnd.Float64()*rs.priceNoise
		out = append(out, models.SearchOption{
			ID:       rs.id,
			Type:     "Ride-Share",
			Provider: rs.provider,
			Duration: fmt.Sprintf("%d min", int(etaMin)),
			Price:    fmt.Sprintf("$%.2f", price),
		})
	}
	return out
}
