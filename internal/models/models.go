package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Preferences is the rider's accessibility profile. One record per store,
// replaced wholesale on every save.
type Preferences struct {
	Wheelchair bool `json:"wheelchair"`
	AudioNav   bool `json:"audioNav"`
	LowSensory bool `json:"lowSensory"`
	MaxSteps   int  `json:"maxSteps"`
	AvoidCurbs bool `json:"avoidCurbs"`
	RestStops  bool `json:"restStops"`
	AvoidLoud  bool `json:"avoidLoud"`
}

func DefaultPreferences() Preferences {
	return Preferences{Wheelchair: true, AvoidCurbs: true}
}

type SavedTrip struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

type ReportType string

const (
	ReportBlockedSidewalk ReportType = "blocked-sidewalk"
	ReportBrokenElevator  ReportType = "broken-elevator"
	ReportMissingCurbCut  ReportType = "missing-curb-cut"
	ReportOther           ReportType = "other"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportBlockedSidewalk, ReportBrokenElevator, ReportMissingCurbCut, ReportOther:
		return true
	}
	return false
}

type CommunityReport struct {
	ID            string     `json:"id"`
	Type          ReportType `json:"type"`
	Description   string     `json:"description,omitempty"`
	Location      Coord      `json:"location"`
	Timestamp     time.Time  `json:"timestamp"`
	Confirmations int        `json:"confirmations"`
}

// ServiceState is the lifecycle of an externally loaded collaborator
// (directions client, speech engines).
type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateLoading       ServiceState = "loading"
	StateReady         ServiceState = "ready"
	StateFailed        ServiceState = "failed"
)
