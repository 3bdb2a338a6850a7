package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/accessiride/internal/geo"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

const (
	SlotPreferences = "accessiride-prefs"
	SlotTrips       = "accessiride-trips"
	SlotReports     = "accessiride-reports"
)

var ErrInvalidReportType = errors.New("invalid report type")

// ReportObserver is notified after every local report mutation.
type ReportObserver func(ctx context.Context, ev models.ReportEvent)

type Options struct {
	// Namespace prefixes every slot key so deployments can share a backend.
	Namespace string
	Logger    *slog.Logger
	Index     geo.Index
	Now       func() time.Time
	Origin    string
}

// Store holds preferences, saved trips and community reports. Each
// collection is re-serialized to its slot on every mutation; write
// failures are logged and otherwise ignored.
type Store struct {
	mu        sync.Mutex
	kv        KV
	ns        string
	logger    *slog.Logger
	index     geo.Index
	now       func() time.Time
	origin    string
	observers []ReportObserver

	prefs   models.Preferences
	trips   []models.SavedTrip
	reports []models.CommunityReport
	lastID  int64
}

// Open loads all three collections. Missing or malformed slots fall back
// to defaults; Open never fails because of slot contents.
func Open(ctx context.Context, kv KV, opts Options) *Store {
	s := &Store{
		kv:     kv,
		ns:     opts.Namespace,
		logger: opts.Logger,
		index:  opts.Index,
		now:    opts.Now,
		origin: opts.Origin,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.prefs = models.DefaultPreferences()
	if raw, ok := s.read(ctx, SlotPreferences); ok {
		// decode over the defaults so fields missing from older records keep them
		p := models.DefaultPreferences()
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.readFailed(SlotPreferences, err)
		} else {
			s.prefs = p
		}
	}

	s.trips = []models.SavedTrip{}
	if raw, ok := s.read(ctx, SlotTrips); ok {
		var trips []models.SavedTrip
		if err := json.Unmarshal([]byte(raw), &trips); err != nil {
			s.readFailed(SlotTrips, err)
		} else if trips != nil {
			s.trips = trips
		}
	}

	s.reports = []models.CommunityReport{}
	if raw, ok := s.read(ctx, SlotReports); ok {
		var reports []models.CommunityReport
		if err := json.Unmarshal([]byte(raw), &reports); err != nil {
			s.readFailed(SlotReports, err)
		} else if reports != nil {
			s.reports = reports
		}
	}

	for _, t := range s.trips {
		s.observeID(t.ID)
	}
	for _, r := range s.reports {
		s.observeID(r.ID)
		s.indexUpsert(ctx, r)
	}
	return s
}

// Subscribe registers an observer for report mutations made through this
// store (not for events applied with Apply).
func (s *Store) Subscribe(o ReportObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) key(slot string) string {
	if s.ns == "" {
		return slot
	}
	return s.ns + ":" + slot
}

func (s *Store) read(ctx context.Context, slot string) (string, bool) {
	raw, ok, err := s.kv.Get(ctx, s.key(slot))
	if err != nil {
		s.readFailed(slot, err)
		return "", false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return raw, true
}

func (s *Store) readFailed(slot string, err error) {
	observability.StoreReadFallbacks.WithLabelValues(slot).Inc()
	s.logger.Warn("slot unreadable, using defaults", "slot", slot, "error", fmt.Errorf("%w: %v", ErrStorageRead, err))
}

// write serializes v into slot. Callers hold s.mu.
func (s *Store) write(ctx context.Context, slot string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		observability.StoreWrites.WithLabelValues(slot, "error").Inc()
		s.logger.Warn("slot encode failed", "slot", slot, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key(slot), string(b)); err != nil {
		observability.StoreWrites.WithLabelValues(slot, "error").Inc()
		s.logger.Warn("slot write failed", "slot", slot, "error", err)
		return
	}
	observability.StoreWrites.WithLabelValues(slot, "ok").Inc()
}

// nextID returns a millisecond timestamp id, bumped past the last issued
// one so ids created within the same millisecond stay unique.
func (s *Store) nextID() string {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func (s *Store) observeID(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > s.lastID {
		s.lastID = n
	}
}

func (s *Store) Preferences() models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (s *Store) SavePreferences(ctx context.Context, p models.Preferences) models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	s.write(ctx, SlotPreferences, s.prefs)
	return s.prefs
}

func (s *Store) Trips() []models.SavedTrip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SavedTrip(nil), s.trips...)
}

// AddTrip assigns an id and appends the trip.
func (s *Store) AddTrip(ctx context.Context, name, from, to string) models.SavedTrip {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.SavedTrip{ID: s.nextID(), Name: name, From: from, To: to}
	s.trips = append(s.trips, t)
	s.write(ctx, SlotTrips, s.trips)
	return t
}

// RemoveTrip reports whether a trip was removed. Unknown ids are a no-op.
func (s *Store) RemoveTrip(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]models.SavedTrip, 0, len(s.trips))
	for _, t := range s.trips {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	removed := len(kept) != len(s.trips)
	s.trips = kept
	s.write(ctx, SlotTrips, s.trips)
	return removed
}

func (s *Store) Reports() []models.CommunityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CommunityReport(nil), s.reports...)
}

func (s *Store) Report(id string) (models.CommunityReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.reportIndex(id); i >= 0 {
		return s.reports[i], true
	}
	return models.CommunityReport{}, false
}

func (s *Store) reportIndex(id string) int {
	for i, r := range s.reports {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// AddReport creates a report with one confirmation at the head of the list.
func (s *Store) AddReport(ctx context.Context, typ models.ReportType, description string, loc models.Coord) (models.CommunityReport, error) {
	if !typ.Valid() {
		return models.CommunityReport{}, fmt.Errorf("%w: %q", ErrInvalidReportType, typ)
	}
	s.mu.Lock()
	r := models.CommunityReport{
		ID:            s.nextID(),
		Type:          typ,
		Description:   description,
		Location:      loc,
		Timestamp:     s.now().UTC(),
		Confirmations: 1,
	}
	s.reports = append([]models.CommunityReport{r}, s.reports...)
	s.write(ctx, SlotReports, s.reports)
	observers := s.observers
	s.mu.Unlock()

	s.indexUpsert(ctx, r)
	rc := r
	s.notify(ctx, observers, models.ReportEvent{Kind: models.ReportAdded, ReportID: r.ID, Report: &rc})
	return r, nil
}

// ConfirmReport adds one confirmation. Unknown ids leave the collection
// untouched and return false.
func (s *Store) ConfirmReport(ctx context.Context, id string) (models.CommunityReport, bool) {
	s.mu.Lock()
	i := s.reportIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return models.CommunityReport{}, false
	}
	s.reports[i].Confirmations++
	r := s.reports[i]
	s.write(ctx, SlotReports, s.reports)
	observers := s.observers
	s.mu.Unlock()

	rc := r
	s.notify(ctx, observers, models.ReportEvent{Kind: models.ReportConfirmed, ReportID: id, Report: &rc})
	return r, true
}

// ResolveReport removes a report. Unknown ids are a no-op.
func (s *Store) ResolveReport(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.reportIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.reports = append(s.reports[:i:i], s.reports[i+1:]...)
	s.write(ctx, SlotReports, s.reports)
	observers := s.observers
	s.mu.Unlock()

	s.indexRemove(ctx, id)
	s.notify(ctx, observers, models.ReportEvent{Kind: models.ReportResolved, ReportID: id})
	return true
}

// Apply mirrors a report event produced by another deployment. Adds are
// idempotent by id; confirm and resolve of unknown ids are ignored.
// Observers are not notified so events never echo back.
func (s *Store) Apply(ctx context.Context, ev models.ReportEvent) error {
	switch ev.Kind {
	case models.ReportAdded:
		if ev.Report == nil {
			return fmt.Errorf("%s event without report", ev.Kind)
		}
		if !ev.Report.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidReportType, ev.Report.Type)
		}
		r := *ev.Report
		if r.Confirmations < 1 {
			r.Confirmations = 1
		}
		s.mu.Lock()
		if s.reportIndex(r.ID) >= 0 {
			s.mu.Unlock()
			return nil
		}
		s.observeID(r.ID)
		s.reports = append([]models.CommunityReport{r}, s.reports...)
		s.write(ctx, SlotReports, s.reports)
		s.mu.Unlock()
		s.indexUpsert(ctx, r)
	case models.ReportConfirmed:
		s.mu.Lock()
		if i := s.reportIndex(ev.ReportID); i >= 0 {
			s.reports[i].Confirmations++
			s.write(ctx, SlotReports, s.reports)
		}
		s.mu.Unlock()
	case models.ReportResolved:
		s.mu.Lock()
		i := s.reportIndex(ev.ReportID)
		if i >= 0 {
			s.reports = append(s.reports[:i:i], s.reports[i+1:]...)
			s.write(ctx, SlotReports, s.reports)
		}
		s.mu.Unlock()
		if i >= 0 {
			s.indexRemove(ctx, ev.ReportID)
		}
	default:
		return fmt.Errorf("unknown report event kind %q", ev.Kind)
	}
	return nil
}

// NearbyReports returns reports within radius of loc, nearest first.
func (s *Store) NearbyReports(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]models.CommunityReport, error) {
	if s.index == nil {
		return nil, nil
	}
	hits, err := s.index.Nearby(ctx, loc, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CommunityReport, 0, len(hits))
	for _, h := range hits {
		if i := s.reportIndex(h.ID); i >= 0 {
			out = append(out, s.reports[i])
		}
	}
	return out, nil
}

func (s *Store) indexUpsert(ctx context.Context, r models.CommunityReport) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(ctx, r.ID, r.Location); err != nil {
		s.logger.Warn("hazard index upsert failed", "report_id", r.ID, "error", err)
	}
}

func (s *Store) indexRemove(ctx context.Context, id string) {
	if s.index == nil {
		return
	}
	if err := s.index.Remove(ctx, id); err != nil {
		s.logger.Warn("hazard index remove failed", "report_id", id, "error", err)
	}
}

func (s *Store) notify(ctx context.Context, observers []ReportObserver, ev models.ReportEvent) {
	ev.Origin = s.origin
	ev.At = s.now().UTC()
	for _, o := range observers {
		o(ctx, ev)
	}
}
