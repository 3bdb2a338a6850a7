package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/accessiride/internal/booking"
	"github.com/example/accessiride/internal/models"
)

const (
	announceContacting = "AccessiBot is contacting companies for pricing and availability..."
	announceFound      = "AccessiBot has found your options."
)

type startBookingRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	PreviousRunID string `json:"previousRunId,omitempty"`
}

type bookingResponse struct {
	models.BookingSnapshot
	Announcement string `json:"announcement,omitempty"`
}

func snapshotResponse(snap models.BookingSnapshot) bookingResponse {
	resp := bookingResponse{BookingSnapshot: snap}
	switch {
	case snap.Closed:
	case snap.Status == models.RunComplete:
		resp.Announcement = announceFound
	default:
		resp.Announcement = announceContacting
	}
	return resp
}

type actionResponse struct {
	Entry        models.CabBookingEntry `json:"entry"`
	Announcement string                 `json:"announcement"`
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) (*booking.Run, bool) {
	run, ok := s.bookings.Get(mux.Vars(r)["run"])
	if !ok {
		s.writeError(w, r, booking.ErrUnknownRun, "")
	}
	return run, ok
}

func (s *Server) handleStartBooking(w http.ResponseWriter, r *http.Request) {
	var req startBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	run := s.bookings.Restart(req.PreviousRunID, req.Origin, req.Destination)
	writeJSON(w, http.StatusCreated, snapshotResponse(run.Snapshot()))
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(run.Snapshot()))
}

func (s *Server) handleCloseBooking(w http.ResponseWriter, r *http.Request) {
	if !s.bookings.Close(mux.Vars(r)["run"]) {
		s.writeError(w, r, booking.ErrUnknownRun, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	providerID := mux.Vars(r)["provider"]
	if err := run.RequestCallback(r.Context(), providerID); err != nil {
		s.writeError(w, r, err, failureAnnouncement(run, providerID, "Callback request to %s failed."))
		return
	}
	e, _ := run.Snapshot().Entry(providerID)
	writeJSON(w, http.StatusOK, actionResponse{
		Entry:        e,
		Announcement: fmt.Sprintf("Requested a callback from %s.", e.Provider.Name),
	})
}

// failureAnnouncement names the provider in a spoken failure message. It
// is empty for providers the run does not know.
func failureAnnouncement(run *booking.Run, providerID, format string) string {
	e, ok := run.Snapshot().Entry(providerID)
	if !ok {
		return ""
	}
	return fmt.Sprintf(format, e.Provider.Name)
}

type fareActionSpec struct {
	status  int
	success string
	failure string
	act     func(run *booking.Run, ctx context.Context, providerID string) (models.CabBookingEntry, error)
}

var (
	holdFare = fareActionSpec{
		status:  http.StatusCreated,
		success: "Holding your fare with %s.",
		failure: "Could not hold your fare with %s.",
		act:     (*booking.Run).HoldFare,
	}
	releaseFare = fareActionSpec{
		status:  http.StatusOK,
		success: "Released your fare with %s.",
		failure: "Could not release your fare with %s.",
		act:     (*booking.Run).ReleaseHold,
	}
	captureFare = fareActionSpec{
		status:  http.StatusOK,
		success: "Booked your ride with %s.",
		failure: "Could not book your ride with %s.",
		act:     (*booking.Run).CaptureHold,
	}
)

func (s *Server) fareAction(w http.ResponseWriter, r *http.Request, spec fareActionSpec) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	providerID := mux.Vars(r)["provider"]
	e, err := spec.act(run, r.Context(), providerID)
	if err != nil {
		s.writeError(w, r, err, failureAnnouncement(run, providerID, spec.failure))
		return
	}
	writeJSON(w, spec.status, actionResponse{Entry: e, Announcement: fmt.Sprintf(spec.success, e.Provider.Name)})
}

func (s *Server) handleHoldFare(w http.ResponseWriter, r *http.Request) {
	s.fareAction(w, r, holdFare)
}

func (s *Server) handleReleaseFare(w http.ResponseWriter, r *http.Request) {
	s.fareAction(w, r, releaseFare)
}

func (s *Server) handleCaptureFare(w http.ResponseWriter, r *http.Request) {
	s.fareAction(w, r, captureFare)
}

// checkOrigin admits websocket clients from the same origins CORS grants.
// Requests without an Origin header come from non-browser clients.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.originAllowed(origin)
}

// handleBookingStream upgrades to a websocket that receives every
// snapshot of the run until it is closed.
func (s *Server) handleBookingStream(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "run_id", run.ID, "error", err)
		return
	}
	s.hub.Serve(r.Context(), run.ID, conn, run.Snapshot)
}
