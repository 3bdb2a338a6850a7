package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

// DefaultEndpoint is the Google Maps web service root.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api"

const (
	StatusOK            = "OK"
	StatusNotFound      = "NOT_FOUND"
	StatusRequestDenied = "REQUEST_DENIED"
	StatusZeroResults   = "ZERO_RESULTS"
)

var (
	ErrUnavailable = errors.New("map service is not available yet")
	ErrNoRoute     = errors.New("no valid routes found for the selected mode")
	ErrNoAddress   = errors.New("could not determine address from location")
)

// Error is a directions lookup that came back with a non-OK status.
type Error struct {
	Status string
}

func (e *Error) Error() string { return "directions: " + e.Status }

// Message is the user-facing explanation of the failure.
func (e *Error) Message() string {
	switch e.Status {
	case StatusNotFound:
		return "No routes could be found. The locations may be too far apart for walking or too close for transit. Please try a different travel mode."
	case StatusRequestDenied:
		return "Directions request was denied. Please ensure the Directions API and Places API are enabled."
	}
	return fmt.Sprintf("Directions request failed: %s. Please check addresses.", e.Status)
}

// Announcement is the screen-reader status line for the failure.
func (e *Error) Announcement() string {
	return "Error finding directions. Status: " + e.Status
}

// Request describes one route lookup.
type Request struct {
	Origin        string
	Destination   string
	Mode          models.TravelMode
	TransitModes  []string
	DepartureTime *time.Time
}

func (r Request) cacheKey() string {
	k := r.Origin + "|" + r.Destination + "|" + string(r.Mode) + "|" + strings.Join(r.TransitModes, ",")
	if r.DepartureTime != nil {
		k += "|" + strconv.FormatInt(r.DepartureTime.Unix(), 10)
	}
	return k
}

// Client performs directions and reverse geocoding lookups against the
// Google Maps JSON web services.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client

	cache  *Cache
	logger *slog.Logger
}

func NewClient(endpoint, apiKey string, timeout, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: timeout},
		cache:    NewCache(cacheTTL),
		logger:   logger,
	}
}

// State reports whether lookups can be served. The public endpoint needs
// an API key; a self-hosted endpoint does not.
func (c *Client) State() models.ServiceState {
	if c.APIKey == "" && c.Endpoint == DefaultEndpoint {
		return models.StateFailed
	}
	return models.StateReady
}

type textValue struct {
	Text string `json:"text"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l latLng) coord() models.Coord { return models.Coord{Lat: l.Lat, Lng: l.Lng} }

type apiStep struct {
	HTMLInstructions string    `json:"html_instructions"`
	TravelMode       string    `json:"travel_mode"`
	Distance         textValue `json:"distance"`
	Duration         textValue `json:"duration"`
	StartLocation    latLng    `json:"start_location"`
	EndLocation      latLng    `json:"end_location"`
	TransitDetails   *struct {
		Line struct {
			Name      string `json:"name"`
			ShortName string `json:"short_name"`
			Vehicle   struct {
				Type string `json:"type"`
			} `json:"vehicle"`
		} `json:"line"`
		DepartureStop struct {
			Name string `json:"name"`
		} `json:"departure_stop"`
		ArrivalStop struct {
			Name string `json:"name"`
		} `json:"arrival_stop"`
		DepartureTime textValue `json:"departure_time"`
		ArrivalTime   textValue `json:"arrival_time"`
	} `json:"transit_details"`
}

type apiLeg struct {
	StartAddress  string    `json:"start_address"`
	EndAddress    string    `json:"end_address"`
	StartLocation latLng    `json:"start_location"`
	EndLocation   latLng    `json:"end_location"`
	Distance      textValue `json:"distance"`
	Duration      textValue `json:"duration"`
	Steps         []apiStep `json:"steps"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs             []apiLeg `json:"legs"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected http status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Route returns the first leg of the first route between origin and
// destination. A non-OK answer is returned as *Error.
func (c *Client) Route(ctx context.Context, r Request) (models.RouteLeg, error) {
	if c.State() != models.StateReady {
		return models.RouteLeg{}, ErrUnavailable
	}
	key := r.cacheKey()
	if leg, ok := c.cache.Get(key); ok {
		observability.DirectionsCacheHits.Inc()
		return leg, nil
	}

	q := url.Values{}
	q.Set("origin", r.Origin)
	q.Set("destination", r.Destination)
	q.Set("mode", strings.ToLower(string(r.Mode)))
	if r.Mode == models.ModeTransit {
		if len(r.TransitModes) > 0 {
			modes := make([]string, len(r.TransitModes))
			for i, m := range r.TransitModes {
				modes[i] = strings.ToLower(m)
			}
			q.Set("transit_mode", strings.Join(modes, "|"))
		}
		if r.DepartureTime != nil {
			q.Set("departure_time", strconv.FormatInt(r.DepartureTime.Unix(), 10))
		}
	}

	var out directionsResponse
	if err := c.get(ctx, "/directions/json", q, &out); err != nil {
		observability.DirectionsRequests.WithLabelValues("transport_error").Inc()
		return models.RouteLeg{}, fmt.Errorf("directions: %w", err)
	}
	observability.DirectionsRequests.WithLabelValues(out.Status).Inc()
	if out.Status != StatusOK {
		c.logger.Warn("directions lookup failed", "status", out.Status, "error", out.ErrorMessage)
		return models.RouteLeg{}, &Error{Status: out.Status}
	}
	if len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return models.RouteLeg{}, ErrNoRoute
	}

	leg := convertLeg(out.Routes[0].Legs[0])
	leg.OverviewPath = decodePolyline(out.Routes[0].OverviewPolyline.Points)
	c.cache.Set(key, leg)
	return leg, nil
}

func convertLeg(l apiLeg) models.RouteLeg {
	leg := models.RouteLeg{
		StartAddress:  l.StartAddress,
		EndAddress:    l.EndAddress,
		StartLocation: l.StartLocation.coord(),
		EndLocation:   l.EndLocation.coord(),
		Distance:      l.Distance.Text,
		Duration:      l.Duration.Text,
		Steps:         make([]models.RouteStep, 0, len(l.Steps)),
	}
	for _, s := range l.Steps {
		step := models.RouteStep{
			Instructions:  s.HTMLInstructions,
			TravelMode:    models.TravelMode(s.TravelMode),
			Distance:      s.Distance.Text,
			Duration:      s.Duration.Text,
			StartLocation: s.StartLocation.coord(),
			EndLocation:   s.EndLocation.coord(),
		}
		if td := s.TransitDetails; td != nil {
			step.Transit = &models.TransitDetails{
				Line: models.TransitLine{
					Name:        td.Line.Name,
					ShortName:   td.Line.ShortName,
					VehicleType: td.Line.Vehicle.Type,
				},
				DepartureStop: td.DepartureStop.Name,
				ArrivalStop:   td.ArrivalStop.Name,
				DepartureTime: td.DepartureTime.Text,
				ArrivalTime:   td.ArrivalTime.Text,
			}
		}
		leg.Steps = append(leg.Steps, step)
	}
	return leg
}

// ReverseGeocode returns the formatted address of the best match for loc.
func (c *Client) ReverseGeocode(ctx context.Context, loc models.Coord) (string, error) {
	if c.State() != models.StateReady {
		return "", ErrUnavailable
	}
	q := url.Values{}
	q.Set("latlng", strconv.FormatFloat(loc.Lat, 'f', 6, 64)+","+strconv.FormatFloat(loc.Lng, 'f', 6, 64))
	var out struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/geocode/json", q, &out); err != nil {
		return "", fmt.Errorf("geocode: %w", err)
	}
	if out.Status != StatusOK || len(out.Results) == 0 || out.Results[0].FormattedAddress == "" {
		c.logger.Warn("reverse geocode failed", "status", out.Status)
		return "", ErrNoAddress
	}
	return out.Results[0].FormattedAddress, nil
}
