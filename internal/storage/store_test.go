package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/accessiride/internal/geo"
	"github.com/example/accessiride/internal/models"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// countingKV wraps MemoryKV and counts writes per key.
type countingKV struct {
	*MemoryKV
	sets    map[string]int
	failGet bool
	failSet bool
}

func newCountingKV() *countingKV {
	return &countingKV{MemoryKV: NewMemoryKV(), sets: make(map[string]int)}
}

func (c *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if c.failGet {
		return "", false, errors.New("backend down")
	}
	return c.MemoryKV.Get(ctx, key)
}

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.sets[key]++
	if c.failSet {
		return errors.New("backend down")
	}
	return c.MemoryKV.Set(ctx, key, value)
}

func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func openTest(t *testing.T, kv KV) *Store {
	t.Helper()
	return Open(context.Background(), kv, Options{Logger: quietLogger, Now: stepClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))})
}

func TestOpenDefaults(t *testing.T) {
	s := openTest(t, NewMemoryKV())
	if got := s.Preferences(); got != models.DefaultPreferences() {
		t.Fatalf("expected default preferences, got %+v", got)
	}
	if len(s.Trips()) != 0 || len(s.Reports()) != 0 {
		t.Fatalf("expected empty collections")
	}
}

func TestOpenMalformedSlotsFallBack(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	_ = kv.Set(ctx, SlotPreferences, "{not json")
	_ = kv.Set(ctx, SlotTrips, "[1,2")
	_ = kv.Set(ctx, SlotReports, "nope")
	s := openTest(t, kv)
	if s.Preferences() != models.DefaultPreferences() || len(s.Trips()) != 0 || len(s.Reports()) != 0 {
		t.Fatalf("malformed slots should yield defaults")
	}
}

func TestOpenBackendErrorFallsBack(t *testing.T) {
	kv := newCountingKV()
	kv.failGet = true
	s := openTest(t, kv)
	if s.Preferences() != models.DefaultPreferences() {
		t.Fatalf("read errors should yield defaults")
	}
}

func TestPartialPreferencesMergeOverDefaults(t *testing.T) {
	kv := NewMemoryKV()
	_ = kv.Set(context.Background(), SlotPreferences, `{"audioNav":true}`)
	p := openTest(t, kv).Preferences()
	if !p.AudioNav || !p.Wheelchair || !p.AvoidCurbs {
		t.Fatalf("expected saved field merged over defaults, got %+v", p)
	}
}

func TestSavePreferencesIdempotent(t *testing.T) {
	kv := newCountingKV()
	s := openTest(t, kv)
	ctx := context.Background()
	p := models.Preferences{Wheelchair: false, AudioNav: true, MaxSteps: 3}
	s.SavePreferences(ctx, p)
	first, _, _ := kv.MemoryKV.Get(ctx, SlotPreferences)
	s.SavePreferences(ctx, p)
	second, _, _ := kv.MemoryKV.Get(ctx, SlotPreferences)
	if first != second {
		t.Fatalf("persisted state changed: %s vs %s", first, second)
	}
	if got := openTest(t, kv).Preferences(); got != p {
		t.Fatalf("reloaded %+v, want %+v", got, p)
	}
}

func TestTripsAddRemove(t *testing.T) {
	kv := NewMemoryKV()
	s := openTest(t, kv)
	ctx := context.Background()
	a := s.AddTrip(ctx, "work", "Downtown", "Oakland")
	b := s.AddTrip(ctx, "home", "Oakland", "Downtown")
	if a.ID == b.ID {
		t.Fatalf("trip ids must be unique")
	}
	trips := s.Trips()
	if len(trips) != 2 || trips[0].ID != a.ID || trips[1].ID != b.ID {
		t.Fatalf("insertion order not preserved: %+v", trips)
	}
	if s.RemoveTrip(ctx, "missing") {
		t.Fatalf("removing unknown id should be a no-op")
	}
	if !s.RemoveTrip(ctx, a.ID) {
		t.Fatalf("expected removal")
	}
	reloaded := openTest(t, kv).Trips()
	if len(reloaded) != 1 || reloaded[0] != b {
		t.Fatalf("reloaded trips %+v", reloaded)
	}
}

func TestTripIDsSurviveReload(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	first := openTest(t, kv).AddTrip(ctx, "a", "x", "y")
	// same clock start: the reloaded store must not hand out the same id
	second := openTest(t, kv).AddTrip(ctx, "b", "x", "y")
	if first.ID == second.ID {
		t.Fatalf("duplicate id %s after reload", first.ID)
	}
}

func TestReportsNewestFirstAndConfirm(t *testing.T) {
	s := openTest(t, NewMemoryKV())
	ctx := context.Background()
	older, err := s.AddReport(ctx, models.ReportBlockedSidewalk, "scaffolding", models.Coord{Lat: 1, Lng: 2})
	if err != nil {
		t.Fatal(err)
	}
	newer, _ := s.AddReport(ctx, models.ReportBrokenElevator, "", models.Coord{Lat: 3, Lng: 4})
	reports := s.Reports()
	if reports[0].ID != newer.ID || reports[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", reports)
	}
	if older.Confirmations != 1 {
		t.Fatalf("new reports start with one confirmation")
	}

	before := s.Reports()
	if _, ok := s.ConfirmReport(ctx, "nope"); ok {
		t.Fatalf("confirming unknown id should report false")
	}
	after := s.Reports()
	if len(before) != len(after) {
		t.Fatalf("collection changed on unknown confirm")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("collection changed on unknown confirm")
		}
	}

	confirmed, ok := s.ConfirmReport(ctx, older.ID)
	if !ok {
		t.Fatalf("expected confirm to succeed")
	}
	want := older
	want.Confirmations = 2
	if confirmed != want {
		t.Fatalf("confirm changed more than the counter: %+v vs %+v", confirmed, want)
	}
}

func TestAddReportRejectsUnknownType(t *testing.T) {
	s := openTest(t, NewMemoryKV())
	_, err := s.AddReport(context.Background(), "pothole", "", models.Coord{})
	if !errors.Is(err, ErrInvalidReportType) {
		t.Fatalf("expected ErrInvalidReportType, got %v", err)
	}
}

func TestResolveReport(t *testing.T) {
	idx := geo.NewMemoryIndex()
	s := Open(context.Background(), NewMemoryKV(), Options{Logger: quietLogger, Index: idx})
	ctx := context.Background()
	r, _ := s.AddReport(ctx, models.ReportOther, "", models.Coord{Lat: 40, Lng: -80})
	if hits, _ := s.NearbyReports(ctx, r.Location, 10, 0); len(hits) != 1 {
		t.Fatalf("expected report to be indexed")
	}
	if s.ResolveReport(ctx, "missing") {
		t.Fatalf("resolve of unknown id should be a no-op")
	}
	if !s.ResolveReport(ctx, r.ID) {
		t.Fatalf("expected resolve")
	}
	if len(s.Reports()) != 0 {
		t.Fatalf("report not removed")
	}
	if hits, _ := s.NearbyReports(ctx, r.Location, 10, 0); len(hits) != 0 {
		t.Fatalf("resolved report still indexed")
	}
}

func TestReportsRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	s := openTest(t, kv)
	ctx := context.Background()
	a, _ := s.AddReport(ctx, models.ReportMissingCurbCut, "corner", models.Coord{Lat: 40.1, Lng: -79.9})
	b, _ := s.AddReport(ctx, models.ReportBlockedSidewalk, "", models.Coord{Lat: 40.2, Lng: -79.8})
	s.ConfirmReport(ctx, a.ID)

	raw, _, _ := kv.Get(ctx, SlotReports)
	var decoded []models.CommunityReport
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatal(err)
	}
	orig := s.Reports()
	reloaded := openTest(t, kv).Reports()
	for _, got := range [][]models.CommunityReport{decoded, reloaded} {
		if len(got) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(got))
		}
		for i := range orig {
			if got[i].ID != orig[i].ID || got[i].Type != orig[i].Type || got[i].Confirmations != orig[i].Confirmations {
				t.Fatalf("tuple mismatch: %+v vs %+v", got[i], orig[i])
			}
			if !got[i].Timestamp.Equal(orig[i].Timestamp) {
				t.Fatalf("timestamp mismatch: %v vs %v", got[i].Timestamp, orig[i].Timestamp)
			}
		}
	}
	if orig[0].ID != b.ID {
		t.Fatalf("expected newest first")
	}
}

func TestWritesOnEveryMutationAndSwallowFailures(t *testing.T) {
	kv := newCountingKV()
	s := openTest(t, kv)
	ctx := context.Background()
	kv.failSet = true
	s.AddTrip(ctx, "x", "a", "b")
	r, err := s.AddReport(ctx, models.ReportOther, "", models.Coord{})
	if err != nil {
		t.Fatalf("write failures must not surface: %v", err)
	}
	s.ConfirmReport(ctx, r.ID)
	s.ResolveReport(ctx, r.ID)
	if kv.sets[SlotTrips] != 1 || kv.sets[SlotReports] != 3 {
		t.Fatalf("unexpected write counts %+v", kv.sets)
	}
	if len(s.Trips()) != 1 {
		t.Fatalf("in-memory state should survive write failures")
	}
}

func TestObserversAndApply(t *testing.T) {
	ctx := context.Background()
	var events []models.ReportEvent
	src := Open(ctx, NewMemoryKV(), Options{Logger: quietLogger, Origin: "a"})
	src.Subscribe(func(_ context.Context, ev models.ReportEvent) { events = append(events, ev) })
	r, _ := src.AddReport(ctx, models.ReportBrokenElevator, "lift 3", models.Coord{Lat: 1, Lng: 1})
	src.ConfirmReport(ctx, r.ID)
	src.ResolveReport(ctx, r.ID)
	if len(events) != 3 || events[0].Kind != models.ReportAdded || events[2].Kind != models.ReportResolved || events[0].Origin != "a" {
		t.Fatalf("unexpected events %+v", events)
	}

	dst := Open(ctx, NewMemoryKV(), Options{Logger: quietLogger, Origin: "b"})
	var echoed int
	dst.Subscribe(func(context.Context, models.ReportEvent) { echoed++ })
	for _, ev := range events[:2] {
		if err := dst.Apply(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	// duplicate add is ignored
	if err := dst.Apply(ctx, events[0]); err != nil {
		t.Fatal(err)
	}
	got, ok := dst.Report(r.ID)
	if !ok || got.Confirmations != 2 {
		t.Fatalf("expected mirrored report with 2 confirmations, got %+v ok=%v", got, ok)
	}
	if err := dst.Apply(ctx, events[2]); err != nil {
		t.Fatal(err)
	}
	if _, ok := dst.Report(r.ID); ok {
		t.Fatalf("expected mirrored resolve")
	}
	if echoed != 0 {
		t.Fatalf("applied events must not be re-published")
	}
}
