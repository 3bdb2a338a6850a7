package models

import "time"

type TravelMode string

const (
	ModeTransit   TravelMode = "TRANSIT"
	ModeDriving   TravelMode = "DRIVING"
	ModeBicycling TravelMode = "BICYCLING"
	ModeWalking   TravelMode = "WALKING"
)

var TravelModes = []TravelMode{ModeTransit, ModeDriving, ModeBicycling}

func (m TravelMode) Valid() bool {
	switch m {
	case ModeTransit, ModeDriving, ModeBicycling, ModeWalking:
		return true
	}
	return false
}

type TransitLine struct {
	Name        string `json:"name"`
	ShortName   string `json:"short_name,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
}

type TransitDetails struct {
	Line          TransitLine `json:"line"`
	DepartureStop string      `json:"departure_stop"`
	ArrivalStop   string      `json:"arrival_stop"`
	DepartureTime string      `json:"departure_time"`
	ArrivalTime   string      `json:"arrival_time"`
}

type RouteStep struct {
	Instructions  string          `json:"instructions"`
	TravelMode    TravelMode      `json:"travel_mode"`
	Distance      string          `json:"distance"`
	Duration      string          `json:"duration"`
	StartLocation Coord           `json:"start_location"`
	EndLocation   Coord           `json:"end_location"`
	Transit       *TransitDetails `json:"transit,omitempty"`
}

// RouteLeg is the first leg of the first route of a directions response.
type RouteLeg struct {
	StartAddress  string      `json:"start_address"`
	EndAddress    string      `json:"end_address"`
	StartLocation Coord       `json:"start_location"`
	EndLocation   Coord       `json:"end_location"`
	Distance      string      `json:"distance"`
	Duration      string      `json:"duration"`
	Steps         []RouteStep `json:"steps"`
	OverviewPath  []Coord     `json:"overview_path,omitempty"`
}

// SearchOption is one row of the search results list: a transit step,
// a single-mode summary or a ride-share estimate.
type SearchOption struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Provider string          `json:"provider,omitempty"`
	Duration string          `json:"duration,omitempty"`
	Distance string          `json:"distance,omitempty"`
	Price    string          `json:"price,omitempty"`
	Details  *TransitDetails `json:"details,omitempty"`
}

type TripSearch struct {
	From          string     `json:"from"`
	To            string     `json:"to"`
	Mode          TravelMode `json:"mode"`
	DepartureTime *time.Time `json:"departureTime,omitempty"`
}

type TripResult struct {
	Options      []SearchOption    `json:"options"`
	Leg          RouteLeg          `json:"leg"`
	Hazards      []CommunityReport `json:"hazards"`
	Announcement string            `json:"announcement"`
}
