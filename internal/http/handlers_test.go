package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/accessiride/internal/booking"
	"github.com/example/accessiride/internal/cabservice"
	"github.com/example/accessiride/internal/directions"
	"github.com/example/accessiride/internal/dispatch"
	"github.com/example/accessiride/internal/geo"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/storage"
	"github.com/example/accessiride/internal/trip"
	"github.com/example/accessiride/internal/voice"
)

type fakeCab struct {
	callbackErr error
}

func (fakeCab) Initiate(_ context.Context, _ models.Channel, body cabservice.ContactRequest) (string, error) {
	return "track-" + body.CabCompany, nil
}

func (fakeCab) Status(context.Context, models.Channel, string) (*cabservice.Status, error) {
	yes, pickup, fare := true, "2026-03-01T12:20:00Z", cabservice.Fare(42.5)
	return &cabservice.Status{CorrectDispatcher: &yes, TaxiAvailable: &yes, EarliestPickupTime: &pickup, EstimatedFare: &fare}, nil
}

func (f fakeCab) RequestCallback(context.Context, cabservice.CallbackRequest) error { return f.callbackErr }

type fakeHolder struct {
	mu   sync.Mutex
	next int
	fail error
}

func (h *fakeHolder) Hold(context.Context, int64, string, map[string]string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return "", h.fail
	}
	h.next++
	return "pi_" + string(rune('0'+h.next)), nil
}

func (h *fakeHolder) Capture(context.Context, string) error { return nil }

func (h *fakeHolder) Cancel(context.Context, string) error { return nil }

type fakeRouter struct {
	leg models.RouteLeg
	err error
}

func (f *fakeRouter) Route(context.Context, directions.Request) (models.RouteLeg, error) {
	return f.leg, f.err
}

type fakeGeocoder struct {
	addr string
	err  error
}

func (f fakeGeocoder) ReverseGeocode(context.Context, models.Coord) (string, error) {
	return f.addr, f.err
}

type testEnv struct {
	srv    *httptest.Server
	router *fakeRouter
	store  *storage.Store
	mgr    *booking.Manager
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const appOrigin = "https://app.accessiride.test"

func newTestEnv(t *testing.T, holder booking.FareHolder) *testEnv {
	t.Helper()
	return newTestEnvWithCab(t, holder, fakeCab{})
}

func newTestEnvWithCab(t *testing.T, holder booking.FareHolder, cab booking.CabService) *testEnv {
	t.Helper()
	logger := quietLogger()
	store := storage.Open(context.Background(), storage.NewMemoryKV(), storage.Options{Index: geo.NewMemoryIndex(), Logger: logger})
	hub := dispatch.NewHub(logger)
	mgr := booking.NewManager(cab, booking.Config{
		Providers: []models.CabProvider{
			{ID: "yellow", Name: "Yellow Cab", Phone: "4125550100"},
			{ID: "classy", Name: "Classy Cab", Email: "dispatch@classy.test"},
		},
		PollInterval: 5 * time.Millisecond,
		RunTimeout:   time.Second,
		Logger:       logger,
		Holder:       holder,
	})
	mgr.Subscribe(hub.Publish)
	router := &fakeRouter{}
	s := NewServer(Deps{
		Store:    store,
		Bookings: mgr,
		Trips:    trip.NewCoordinator(router, store, trip.Config{Logger: logger}),
		Geocoder: fakeGeocoder{addr: "5000 Forbes Ave, Pittsburgh"},
		Hub:      hub,
		Logger:   logger,

		AllowedOrigins: []string{appOrigin},
	})
	env := &testEnv{srv: httptest.NewServer(s), router: router, store: store, mgr: mgr}
	t.Cleanup(func() {
		mgr.CloseAll()
		hub.CloseAll()
		env.srv.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, nil)

	var p models.Preferences
	if code := env.do(t, http.MethodGet, "/api/v1/preferences", "", &p); code != http.StatusOK || !p.Wheelchair || !p.AvoidCurbs {
		t.Fatalf("defaults: %d %+v", code, p)
	}
	if code := env.do(t, http.MethodPut, "/api/v1/preferences", `{"audioNav":true,"maxSteps":2}`, &p); code != http.StatusOK {
		t.Fatalf("put: %d", code)
	}
	if !p.AudioNav || p.MaxSteps != 2 || !p.Wheelchair {
		t.Fatalf("omitted fields should keep defaults: %+v", p)
	}
	if got := env.store.Preferences(); !got.AudioNav {
		t.Fatalf("store not updated: %+v", got)
	}
	if code := env.do(t, http.MethodPut, "/api/v1/preferences", `{"maxSteps":-1}`, nil); code != http.StatusBadRequest {
		t.Fatalf("negative maxSteps: %d", code)
	}
	if code := env.do(t, http.MethodPut, "/api/v1/preferences", `{`, nil); code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", code)
	}
}

func TestTripsAndReports(t *testing.T) {
	env := newTestEnv(t, nil)

	var saved models.SavedTrip
	if code := env.do(t, http.MethodPost, "/api/v1/trips", `{"name":"Work","from":"Home","to":"CMU"}`, &saved); code != http.StatusCreated || saved.ID == "" {
		t.Fatalf("add trip: %d %+v", code, saved)
	}
	var trips []models.SavedTrip
	env.do(t, http.MethodGet, "/api/v1/trips", "", &trips)
	if len(trips) != 1 || trips[0].Name != "Work" {
		t.Fatalf("list trips: %+v", trips)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/trips/"+saved.ID, "", nil); code != http.StatusNoContent {
		t.Fatalf("remove trip: %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/trips/"+saved.ID, "", nil); code != http.StatusNotFound {
		t.Fatalf("remove missing trip: %d", code)
	}

	if code := env.do(t, http.MethodPost, "/api/v1/reports", `{"type":"pothole","location":{"lat":1,"lng":1}}`, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid type: %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/reports", `{"type":"other"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("missing location: %d", code)
	}
	var rep models.CommunityReport
	body := `{"type":"broken-elevator","description":"out of order","location":{"lat":40.4406,"lng":-79.9959}}`
	if code := env.do(t, http.MethodPost, "/api/v1/reports", body, &rep); code != http.StatusCreated || rep.Confirmations != 0 {
		t.Fatalf("add report: %d %+v", code, rep)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/reports/"+rep.ID+"/confirm", "", &rep); code != http.StatusOK || rep.Confirmations != 1 {
		t.Fatalf("confirm: %d %+v", code, rep)
	}

	var nearby []models.CommunityReport
	if code := env.do(t, http.MethodGet, "/api/v1/reports/nearby?lat=40.4407&lng=-79.9958", "", &nearby); code != http.StatusOK || len(nearby) != 1 {
		t.Fatalf("nearby: %d %+v", code, nearby)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/reports/nearby?lat=41&lng=-80&radius=10", "", &nearby); code != http.StatusOK || len(nearby) != 0 {
		t.Fatalf("nearby far: %d %+v", code, nearby)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/reports/nearby?lat=x", "", nil); code != http.StatusBadRequest {
		t.Fatalf("nearby bad query: %d", code)
	}

	if code := env.do(t, http.MethodDelete, "/api/v1/reports/"+rep.ID, "", nil); code != http.StatusNoContent {
		t.Fatalf("resolve: %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/reports/"+rep.ID+"/confirm", "", nil); code != http.StatusNotFound {
		t.Fatalf("confirm resolved: %d", code)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.router.leg = models.RouteLeg{
		Duration: "12 mins",
		Distance: "3 km",
		Steps: []models.RouteStep{
			{Instructions: "Walk to <b>Forbes</b>", TravelMode: models.ModeWalking},
			{Instructions: "Bus 61C", TravelMode: models.ModeTransit, Transit: &models.TransitDetails{Line: models.TransitLine{ShortName: "61C"}}},
		},
	}

	var res searchResponse
	if code := env.do(t, http.MethodPost, "/api/v1/search", `{"from":"Downtown","to":"Oakland"}`, &res); code != http.StatusOK {
		t.Fatalf("search: %d", code)
	}
	if res.Announcement != "Search complete. Found 1 options." || len(res.Speech) != 1 || res.Speech[0] != res.Announcement {
		t.Fatalf("unexpected announcement %q speech %v", res.Announcement, res.Speech)
	}
	if res.StepsSpeech != "Walk to Forbes. Bus 61C" {
		t.Fatalf("steps speech %q", res.StepsSpeech)
	}

	env.router.err = directions.ErrNoRoute
	if code := env.do(t, http.MethodPost, "/api/v1/search", `{"from":"A","to":"B","mode":"DRIVING"}`, &res); code != http.StatusOK || res.Announcement != "Search complete. No routes found." {
		t.Fatalf("no route: %d %q", code, res.Announcement)
	}

	env.router.err = &directions.Error{Status: directions.StatusRequestDenied}
	var e errorResponse
	if code := env.do(t, http.MethodPost, "/api/v1/search", `{"from":"A","to":"B"}`, &e); code != http.StatusBadGateway {
		t.Fatalf("denied: %d", code)
	}
	if !strings.HasPrefix(e.Error, "Directions request was denied") || e.Announcement != "Error finding directions. Status: REQUEST_DENIED" {
		t.Fatalf("unexpected error body %+v", e)
	}

	if code := env.do(t, http.MethodPost, "/api/v1/search", `{"from":"A"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("missing destination: %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/search", `{"from":"A","to":"B","mode":"FLYING"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid mode: %d", code)
	}
}

func TestVoice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.router.leg = models.RouteLeg{Duration: "8 mins"}

	var res voiceResponse
	code := env.do(t, http.MethodPost, "/api/v1/voice", `{"transcript":"Get a ride from Downtown to the University","mode":"DRIVING"}`, &res)
	if code != http.StatusOK {
		t.Fatalf("voice: %d", code)
	}
	if res.Command.From != "downtown" || res.Command.To != "the university" {
		t.Fatalf("unexpected command %+v", res.Command)
	}
	if len(res.Speech) < 2 || res.Speech[1] != "Okay, searching for a route from downtown to the university." {
		t.Fatalf("unexpected speech %v", res.Speech)
	}

	var e errorResponse
	if code := env.do(t, http.MethodPost, "/api/v1/voice", `{"transcript":"hello there"}`, &e); code != http.StatusBadRequest || e.Announcement != voice.HelpPrompt {
		t.Fatalf("not understood: %d %+v", code, e)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/voice", `{"audio":"AAAA"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("raw audio: %d", code)
	}
}

func TestReverseLocation(t *testing.T) {
	env := newTestEnv(t, nil)

	var loc locationResponse
	if code := env.do(t, http.MethodPost, "/api/v1/location/reverse", `{"lat":40.44,"lng":-79.94}`, &loc); code != http.StatusOK {
		t.Fatalf("reverse: %d", code)
	}
	if loc.Address != "5000 Forbes Ave, Pittsburgh" || loc.Announcement != "Current location set as starting point." {
		t.Fatalf("unexpected response %+v", loc)
	}

	var e errorResponse
	if code := env.do(t, http.MethodPost, "/api/v1/location/reverse", `{"error":"denied"}`, &e); code != http.StatusBadRequest || e.Announcement != "Error: Location access denied." {
		t.Fatalf("denied: %d %+v", code, e)
	}
}

func TestReverseLocationGeocoderFailure(t *testing.T) {
	s := NewServer(Deps{Geocoder: fakeGeocoder{err: directions.ErrNoAddress}, Logger: quietLogger()})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/location/reverse", strings.NewReader(`{"lat":1,"lng":2}`)))
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "Error: Could not find address.") {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func waitComplete(t *testing.T, env *testEnv, id string) bookingResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var snap bookingResponse
		env.do(t, http.MethodGet, "/api/v1/bookings/"+id, "", &snap)
		if snap.Status == models.RunComplete {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never completed: %+v", id, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, &fakeHolder{})

	var started bookingResponse
	code := env.do(t, http.MethodPost, "/api/v1/bookings", `{"origin":"Downtown","destination":"Oakland"}`, &started)
	if code != http.StatusCreated || started.RunID == "" || len(started.Entries) != 2 {
		t.Fatalf("start: %d %+v", code, started)
	}
	if started.Announcement != announceContacting && started.Announcement != announceFound {
		t.Fatalf("unexpected announcement %q", started.Announcement)
	}

	snap := waitComplete(t, env, started.RunID)
	if snap.Announcement != announceFound {
		t.Fatalf("completed announcement %q", snap.Announcement)
	}
	if e, _ := snap.Entry("yellow"); e.Price == "" || e.Fare != 42.5 {
		t.Fatalf("entry not quoted: %+v", e)
	}

	var act actionResponse
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/classy/callback", "", &act); code != http.StatusOK {
		t.Fatalf("callback: %d", code)
	}
	if act.Announcement != "Requested a callback from Classy Cab." || act.Entry.RequestingCallback {
		t.Fatalf("unexpected callback response %+v", act)
	}

	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/yellow/select", "", &act); code != http.StatusCreated || act.Entry.HoldID == "" {
		t.Fatalf("hold: %d %+v", code, act)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/yellow/select", "", nil); code != http.StatusConflict {
		t.Fatalf("second hold: %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/yellow/capture", "", &act); code != http.StatusOK || act.Announcement != "Booked your ride with Yellow Cab." {
		t.Fatalf("capture: %d %+v", code, act)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/bookings/"+started.RunID+"/providers/classy/select", "", nil); code != http.StatusConflict {
		t.Fatalf("release without hold: %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/nobody/callback", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown provider: %d", code)
	}

	var restarted bookingResponse
	body := `{"origin":"Downtown","destination":"Oakland","previousRunId":"` + started.RunID + `"}`
	if code := env.do(t, http.MethodPost, "/api/v1/bookings", body, &restarted); code != http.StatusCreated || restarted.RunID == started.RunID {
		t.Fatalf("restart: %d %+v", code, restarted)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/bookings/"+started.RunID, "", nil); code != http.StatusNotFound {
		t.Fatalf("previous run should be gone: %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/bookings/"+restarted.RunID, "", nil); code != http.StatusNoContent {
		t.Fatalf("close: %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/bookings/"+restarted.RunID, "", nil); code != http.StatusNotFound {
		t.Fatalf("close twice: %d", code)
	}
}

func TestFareHoldWithoutPayments(t *testing.T) {
	env := newTestEnv(t, nil)
	var started bookingResponse
	env.do(t, http.MethodPost, "/api/v1/bookings", `{"origin":"A","destination":"B"}`, &started)
	waitComplete(t, env, started.RunID)
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/yellow/select", "", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestBookingStream(t *testing.T) {
	env := newTestEnv(t, nil)
	var started bookingResponse
	env.do(t, http.MethodPost, "/api/v1/bookings", `{"origin":"A","destination":"B"}`, &started)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/bookings/" + started.RunID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap models.BookingSnapshot
	if err := conn.ReadJSON(&snap); err != nil || snap.RunID != started.RunID {
		t.Fatalf("first snapshot: %+v %v", snap, err)
	}
	env.mgr.Close(started.RunID)
	for !snap.Closed {
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("stream ended before the closing snapshot: %v", err)
		}
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("closed run should not stream: %v", err)
	}
}

func TestRequestIDAndStatusMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") != "abc" {
		t.Fatalf("unexpected %d %q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}

	cases := map[error]int{
		booking.ErrRunClosed:                           http.StatusConflict,
		booking.ErrCallbackRequestFailed:               http.StatusBadGateway,
		booking.ErrPaymentFailed:                       http.StatusBadGateway,
		directions.ErrUnavailable:                      http.StatusServiceUnavailable,
		storage.ErrInvalidReportType:                   http.StatusBadRequest,
		errors.New("boom"):                             http.StatusInternalServerError,
		&directions.Error{Status: directions.StatusOK}: http.StatusBadGateway,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(Deps{AllowedOrigins: []string{"https://app.accessiride.test"}, Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "https://app.accessiride.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.accessiride.test" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}

	req.Header.Set("Origin", "https://elsewhere.test")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" || rec.Code == http.StatusNoContent {
		t.Fatalf("foreign origin should not be granted: %d %v", rec.Code, rec.Header())
	}
}

func TestBookingFailuresCarryAnnouncements(t *testing.T) {
	env := newTestEnvWithCab(t, &fakeHolder{fail: errors.New("card declined")}, fakeCab{callbackErr: errors.New("status 400: line busy")})
	var started bookingResponse
	env.do(t, http.MethodPost, "/api/v1/bookings", `{"origin":"A","destination":"B"}`, &started)
	waitComplete(t, env, started.RunID)

	var e errorResponse
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/yellow/callback", "", &e); code != http.StatusBadGateway {
		t.Fatalf("callback failure: %d", code)
	}
	if e.Announcement != "Callback request to Yellow Cab failed." || !strings.Contains(e.Error, "line busy") {
		t.Fatalf("unexpected error body %+v", e)
	}

	e = errorResponse{}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/classy/select", "", &e); code != http.StatusBadGateway {
		t.Fatalf("hold failure: %d", code)
	}
	if e.Announcement != "Could not hold your fare with Classy Cab." || !strings.Contains(e.Error, "card declined") {
		t.Fatalf("unexpected hold error body %+v", e)
	}

	e = errorResponse{}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/classy/capture", "", &e); code != http.StatusConflict || e.Announcement != "Could not book your ride with Classy Cab." {
		t.Fatalf("capture without hold: %d %+v", code, e)
	}

	e = errorResponse{}
	if code := env.do(t, http.MethodPost, "/api/v1/bookings/"+started.RunID+"/providers/nobody/callback", "", &e); code != http.StatusNotFound || e.Announcement != "" {
		t.Fatalf("unknown provider: %d %+v", code, e)
	}
}

func TestBookingStreamChecksOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	var started bookingResponse
	env.do(t, http.MethodPost, "/api/v1/bookings", `{"origin":"A","destination":"B"}`, &started)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/bookings/" + started.RunID

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{appOrigin}})
	if err != nil {
		t.Fatalf("allowed origin should stream: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap models.BookingSnapshot
	if err := conn.ReadJSON(&snap); err != nil || snap.RunID != started.RunID {
		t.Fatalf("first snapshot: %+v %v", snap, err)
	}
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://elsewhere.test"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin should be refused: %v", err)
	}
}

func TestReadiness(t *testing.T) {
	var down error
	s := NewServer(Deps{Ready: func(context.Context) error { return down }, Logger: quietLogger()})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}

	down = errors.New("redis: connection refused")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("backend down: %d", rec.Code)
	}
}
