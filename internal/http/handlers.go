package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/accessiride/internal/booking"
	"github.com/example/accessiride/internal/directions"
	"github.com/example/accessiride/internal/dispatch"
	"github.com/example/accessiride/internal/location"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/storage"
	"github.com/example/accessiride/internal/trip"
	"github.com/example/accessiride/internal/voice"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Store        *storage.Store
	Bookings     *booking.Manager
	Trips        *trip.Coordinator
	Geocoder     location.Geocoder
	Recognizer   voice.Recognizer
	Hub          *dispatch.Hub
	HazardRadius float64
	// Ready reports whether the durable backend is reachable; nil means
	// always ready.
	Ready        func(ctx context.Context) error

	// AllowedOrigins lists browser origins granted CORS access; "*"
	// allows any.
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	store        *storage.Store
	bookings     *booking.Manager
	trips        *trip.Coordinator
	geocoder     location.Geocoder
	recognizer   voice.Recognizer
	hub          *dispatch.Hub
	hazardRadius float64
	ready        func(ctx context.Context) error
	logger       *slog.Logger
	mux          *mux.Router
	handler      http.Handler
	upgrader     websocket.Upgrader

	allowedOrigins []string
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Recognizer == nil {
		d.Recognizer = voice.DeviceRecognizer{}
	}
	if d.HazardRadius <= 0 {
		d.HazardRadius = 250
	}
	s := &Server{
		store:        d.Store,
		bookings:     d.Bookings,
		trips:        d.Trips,
		geocoder:     d.Geocoder,
		recognizer:   d.Recognizer,
		hub:          d.Hub,
		hazardRadius: d.HazardRadius,
		ready:        d.Ready,
		logger:       d.Logger,
		mux:          mux.NewRouter(),

		allowedOrigins: d.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.registerMiddleware()
	s.routes()
	s.handler = s.cors(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods(http.MethodPut)

	api.HandleFunc("/trips", s.handleListTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips", s.handleAddTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}", s.handleRemoveTrip).Methods(http.MethodDelete)

	api.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports", s.handleAddReport).Methods(http.MethodPost)
	api.HandleFunc("/reports/nearby", s.handleNearbyReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}/confirm", s.handleConfirmReport).Methods(http.MethodPost)
	api.HandleFunc("/reports/{id}", s.handleResolveReport).Methods(http.MethodDelete)

	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/voice", s.handleVoice).Methods(http.MethodPost)
	api.HandleFunc("/location/reverse", s.handleReverseLocation).Methods(http.MethodPost)

	api.HandleFunc("/bookings", s.handleStartBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{run}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{run}", s.handleCloseBooking).Methods(http.MethodDelete)
	api.HandleFunc("/bookings/{run}/providers/{provider}/callback", s.handleCallback).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{run}/providers/{provider}/select", s.handleHoldFare).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{run}/providers/{provider}/select", s.handleReleaseFare).Methods(http.MethodDelete)
	api.HandleFunc("/bookings/{run}/providers/{provider}/capture", s.handleCaptureFare).Methods(http.MethodPost)

	s.mux.HandleFunc("/ws/bookings/{run}", s.handleBookingStream).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("backend not ready", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

type errorResponse struct {
	Error        string `json:"error"`
	Announcement string `json:"announcement,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var de *directions.Error
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, storage.ErrInvalidReportType),
		errors.Is(err, trip.ErrMissingEndpoints),
		errors.Is(err, trip.ErrInvalidMode),
		errors.Is(err, trip.ErrNotUnderstood),
		errors.Is(err, voice.ErrSpeechUnsupported),
		errors.Is(err, location.ErrGeolocationDenied),
		errors.Is(err, location.ErrGeolocationUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound),
		errors.Is(err, booking.ErrUnknownRun),
		errors.Is(err, booking.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrRunClosed),
		errors.Is(err, booking.ErrNotQuoted),
		errors.Is(err, booking.ErrAlreadyHeld),
		errors.Is(err, booking.ErrNoHold),
		errors.Is(err, booking.ErrCallbackInFlight):
		return http.StatusConflict
	case errors.As(err, &de),
		errors.Is(err, directions.ErrNoRoute),
		errors.Is(err, directions.ErrNoAddress),
		errors.Is(err, booking.ErrCallbackRequestFailed),
		errors.Is(err, booking.ErrPaymentFailed):
		return http.StatusBadGateway
	case errors.Is(err, booking.ErrPaymentsDisabled),
		errors.Is(err, directions.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, announcement string) {
	status := statusFor(err)
	msg := err.Error()
	var de *directions.Error
	if errors.As(err, &de) {
		msg = de.Message()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Announcement: announcement})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Preferences())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	p := models.DefaultPreferences()
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if p.MaxSteps < 0 {
		s.writeError(w, r, fmt.Errorf("%w: maxSteps must be >= 0", errBadRequest), "")
		return
	}
	writeJSON(w, http.StatusOK, s.store.SavePreferences(r.Context(), p))
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Trips())
}

type addTripRequest struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleAddTrip(w http.ResponseWriter, r *http.Request) {
	var req addTripRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if req.Name == "" {
		s.writeError(w, r, fmt.Errorf("%w: name is required", errBadRequest), "")
		return
	}
	t := s.store.AddTrip(r.Context(), req.Name, req.From, req.To)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleRemoveTrip(w http.ResponseWriter, r *http.Request) {
	if !s.store.RemoveTrip(r.Context(), mux.Vars(r)["id"]) {
		s.writeError(w, r, fmt.Errorf("trip %w", errNotFound), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Reports())
}

type addReportRequest struct {
	Type        models.ReportType `json:"type"`
	Description string            `json:"description"`
	Location    *models.Coord     `json:"location"`
}

func (s *Server) handleAddReport(w http.ResponseWriter, r *http.Request) {
	var req addReportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if req.Location == nil {
		s.writeError(w, r, fmt.Errorf("%w: location is required", errBadRequest), "")
		return
	}
	rep, err := s.store.AddReport(r.Context(), req.Type, req.Description, *req.Location)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleNearbyReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		s.writeError(w, r, fmt.Errorf("%w: lat and lng are required", errBadRequest), "")
		return
	}
	radius := s.hazardRadius
	if v := q.Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid radius", errBadRequest), "")
			return
		}
		radius = f
	}
	reports, err := s.store.NearbyReports(r.Context(), models.Coord{Lat: lat, Lng: lng}, radius, 50)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if reports == nil {
		reports = []models.CommunityReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleConfirmReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.store.ConfirmReport(r.Context(), mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, r, fmt.Errorf("report %w", errNotFound), "")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	if !s.store.ResolveReport(r.Context(), mux.Vars(r)["id"]) {
		s.writeError(w, r, fmt.Errorf("report %w", errNotFound), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
