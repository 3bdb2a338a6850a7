package directions

import "github.com/example/accessiride/internal/models"

// decodePolyline expands an encoded polyline (precision 1e5) into points.
// Truncated input yields the points decoded so far.
func decodePolyline(s string) []models.Coord {
	var out []models.Coord
	var lat, lng int
	for i := 0; i < len(s); {
		dlat, n, ok := decodeValue(s, i)
		if !ok {
			break
		}
		i = n
		dlng, n, ok := decodeValue(s, i)
		if !ok {
			break
		}
		i = n
		lat += dlat
		lng += dlng
		out = append(out, models.Coord{Lat: float64(lat) / 1e5, Lng: float64(lng) / 1e5})
	}
	return out
}

func decodeValue(s string, i int) (int, int, bool) {
	var result, shift int
	for i < len(s) {
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), i, true
			}
			return result >> 1, i, true
		}
	}
	return 0, i, false
}
