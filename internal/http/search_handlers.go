package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/example/accessiride/internal/directions"
	"github.com/example/accessiride/internal/location"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/trip"
	"github.com/example/accessiride/internal/voice"
)

// searchResponse carries the result plus everything the client should
// read aloud, in order.
type searchResponse struct {
	models.TripResult
	Speech      []string `json:"speech"`
	StepsSpeech string   `json:"stepsSpeech,omitempty"`
}

func newSearchResponse(res models.TripResult, rec *voice.Recorder) searchResponse {
	if res.Options == nil {
		res.Options = []models.SearchOption{}
	}
	if res.Hazards == nil {
		res.Hazards = []models.CommunityReport{}
	}
	speech := rec.History()
	if speech == nil {
		speech = []string{}
	}
	return searchResponse{TripResult: res, Speech: speech, StepsSpeech: trip.StepsSpeech(res.Leg.Steps)}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q models.TripSearch
	if err := decodeJSON(r, &q); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	rec := voice.NewRecorder(s.logger)
	res, err := s.trips.Search(r.Context(), q, rec)
	switch {
	case errors.Is(err, directions.ErrNoRoute):
		writeJSON(w, http.StatusOK, newSearchResponse(res, rec))
	case err != nil:
		s.writeError(w, r, err, res.Announcement)
	default:
		writeJSON(w, http.StatusOK, newSearchResponse(res, rec))
	}
}

type voiceRequest struct {
	voice.Utterance
	Mode          models.TravelMode `json:"mode"`
	DepartureTime *time.Time        `json:"departureTime,omitempty"`
}

type voiceResponse struct {
	Command voice.Command `json:"command"`
	searchResponse
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	transcript, err := s.recognizer.Recognize(r.Context(), req.Utterance)
	if err != nil {
		s.writeError(w, r, err, "Speech recognition is not supported.")
		return
	}
	rec := voice.NewRecorder(s.logger)
	tmpl := models.TripSearch{Mode: req.Mode, DepartureTime: req.DepartureTime}
	cmd, res, err := s.trips.Voice(r.Context(), transcript, tmpl, rec)
	if err != nil && !errors.Is(err, directions.ErrNoRoute) {
		s.writeError(w, r, err, res.Announcement)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{Command: cmd, searchResponse: newSearchResponse(res, rec)})
}

type locationResponse struct {
	Address      string       `json:"address"`
	Location     models.Coord `json:"location"`
	Announcement string       `json:"announcement"`
}

func (s *Server) handleReverseLocation(w http.ResponseWriter, r *http.Request) {
	var fix location.Fix
	if err := decodeJSON(r, &fix); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if s.geocoder == nil {
		s.writeError(w, r, directions.ErrUnavailable, location.Announcement(directions.ErrUnavailable))
		return
	}
	addr, loc, err := location.CurrentAddress(r.Context(), fix, s.geocoder)
	if err != nil {
		s.writeError(w, r, err, location.Announcement(err))
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Address: addr, Location: loc, Announcement: location.Announcement(nil)})
}
