package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"

	"github.com/example/accessiride/internal/directions"
	"github.com/example/accessiride/internal/eta"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/voice"
)

var (
	ErrMissingEndpoints = errors.New("both from and to are required")
	ErrInvalidMode      = errors.New("invalid travel mode")
	ErrNotUnderstood    = errors.New("voice command not understood")
)

// transit searches are restricted to step-free friendly modes
var transitModes = []string{"BUS", "TRAIN"}

// Router is the directions collaborator.
type Router interface {
	Route(ctx context.Context, r directions.Request) (models.RouteLeg, error)
}

// HazardFinder looks up community reports around a point.
type HazardFinder interface {
	NearbyReports(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]models.CommunityReport, error)
}

type Config struct {
	HazardRadius float64
	HazardLimit  int
	Rand         eta.RandSource
	Logger       *slog.Logger
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Coordinator runs a trip search: one directions lookup reshaped into
// result options, synthetic ride-share estimates and nearby hazards.
type Coordinator struct {
	router  Router
	hazards HazardFinder
	cfg     Config
}

func NewCoordinator(router Router, hazards HazardFinder, cfg Config) *Coordinator {
	if cfg.HazardRadius <= 0 {
		cfg.HazardRadius = 250
	}
	if cfg.HazardLimit <= 0 {
		cfg.HazardLimit = 20
	}
	if cfg.Rand == nil {
		cfg.Rand = globalRand{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{router: router, hazards: hazards, cfg: cfg}
}

func (c *Coordinator) speak(ctx context.Context, sp voice.Speaker, text string) {
	if sp == nil {
		return
	}
	if err := sp.Speak(ctx, text); err != nil {
		c.cfg.Logger.Warn("speech output failed", "error", err)
	}
}

// Search looks up a route for q. On failure the returned result still
// carries the announcement for screen readers.
func (c *Coordinator) Search(ctx context.Context, q models.TripSearch, sp voice.Speaker) (models.TripResult, error) {
	q.From, q.To = strings.TrimSpace(q.From), strings.TrimSpace(q.To)
	if q.From == "" || q.To == "" {
		return models.TripResult{}, ErrMissingEndpoints
	}
	if q.Mode == "" {
		q.Mode = models.ModeTransit
	}
	if !q.Mode.Valid() {
		return models.TripResult{}, fmt.Errorf("%w: %s", ErrInvalidMode, q.Mode)
	}

	req := directions.Request{Origin: q.From, Destination: q.To, Mode: q.Mode}
	if q.Mode == models.ModeTransit {
		req.TransitModes = transitModes
		req.DepartureTime = q.DepartureTime
	}
	leg, err := c.router.Route(ctx, req)
	if err != nil {
		var de *directions.Error
		switch {
		case errors.As(err, &de):
			c.speak(ctx, sp, "Sorry, there was an error finding directions.")
			return models.TripResult{Announcement: de.Announcement()}, err
		case errors.Is(err, directions.ErrNoRoute):
			return models.TripResult{Announcement: "Search complete. No routes found."}, err
		}
		return models.TripResult{Announcement: "Error finding directions."}, err
	}

	options := RouteOptions(q.Mode, leg)
	res := models.TripResult{
		Leg:          leg,
		Announcement: fmt.Sprintf("Search complete. Found %d options.", len(options)),
	}
	c.speak(ctx, sp, res.Announcement)

	res.Options = append(options, eta.RideShareEstimates(leg.StartLocation, leg.EndLocation, c.cfg.Rand)...)
	res.Hazards = c.hazardsAlong(ctx, leg)
	c.cfg.Logger.Info("trip search", "mode", q.Mode, "options", len(res.Options), "hazards", len(res.Hazards))
	return res, nil
}

// RouteOptions turns a leg into result rows: each transit step for
// TRANSIT, otherwise one summary row for the mode.
func RouteOptions(mode models.TravelMode, leg models.RouteLeg) []models.SearchOption {
	if mode != models.ModeTransit {
		return []models.SearchOption{{
			ID:       strings.ToLower(string(mode)),
			Type:     string(mode),
			Duration: leg.Duration,
			Distance: leg.Distance,
		}}
	}
	var out []models.SearchOption
	for _, s := range leg.Steps {
		if s.TravelMode != models.ModeTransit {
			continue
		}
		out = append(out, models.SearchOption{
			ID:      fmt.Sprintf("transit-%g", s.StartLocation.Lat),
			Type:    string(models.ModeTransit),
			Details: s.Transit,
		})
	}
	return out
}

// hazardsAlong returns reports near the start and end of the leg. Lookup
// failures only cost the hazard list.
func (c *Coordinator) hazardsAlong(ctx context.Context, leg models.RouteLeg) []models.CommunityReport {
	out := []models.CommunityReport{}
	if c.hazards == nil {
		return out
	}
	seen := map[string]bool{}
	for _, p := range []models.Coord{leg.StartLocation, leg.EndLocation} {
		reports, err := c.hazards.NearbyReports(ctx, p, c.cfg.HazardRadius, c.cfg.HazardLimit)
		if err != nil {
			c.cfg.Logger.Warn("hazard lookup failed", "error", err)
			continue
		}
		for _, r := range reports {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// Voice handles a spoken route request, using template for the travel
// mode and departure time.
func (c *Coordinator) Voice(ctx context.Context, transcript string, template models.TripSearch, sp voice.Speaker) (voice.Command, models.TripResult, error) {
	c.speak(ctx, sp, "Heard: "+transcript)
	cmd, ok := voice.ParseCommand(transcript)
	if !ok {
		c.speak(ctx, sp, voice.HelpPrompt)
		return voice.Command{}, models.TripResult{Announcement: voice.HelpPrompt}, ErrNotUnderstood
	}
	c.speak(ctx, sp, fmt.Sprintf("Okay, searching for a route from %s to %s.", cmd.From, cmd.To))
	template.From, template.To = cmd.From, cmd.To
	res, err := c.Search(ctx, template, sp)
	return cmd, res, err
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// StepsSpeech is the read-aloud text of a leg's steps with markup removed.
func StepsSpeech(steps []models.RouteStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, tagPattern.ReplaceAllString(s.Instructions, ""))
	}
	return strings.Join(parts, ". ")
}
