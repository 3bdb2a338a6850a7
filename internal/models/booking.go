package models

import "time"

// CabProvider is an accessible-cab company the booking bot contacts.
type CabProvider struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
	Email string `json:"email,omitempty" yaml:"email"`
}

type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingPolling  BookingStatus = "polling"
	BookingComplete BookingStatus = "complete"
)

// CabBookingEntry is the per-provider projection exposed to clients.
type CabBookingEntry struct {
	Provider           CabProvider   `json:"provider"`
	Price              string        `json:"price,omitempty"`
	ETA                string        `json:"eta,omitempty"`
	Status             BookingStatus `json:"status"`
	Unavailable        bool          `json:"unavailable"`
	Unreachable        bool          `json:"unreachable"`
	TrackingID         string        `json:"trackingId,omitempty"`
	Channel            Channel       `json:"channel,omitempty"`
	RequestingCallback bool          `json:"requestingCallback"`
	Fare               float64       `json:"fare,omitempty"`
	HoldID             string        `json:"holdId,omitempty"`
	Error              string        `json:"error,omitempty"`
}

type RunStatus string

const (
	RunLoading  RunStatus = "loading"
	RunComplete RunStatus = "complete"
)

// BookingSnapshot is an immutable copy of a run's state.
type BookingSnapshot struct {
	RunID       string            `json:"runId"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	Status      RunStatus         `json:"status"`
	TimedOut    bool              `json:"timedOut"`
	Closed      bool              `json:"closed"`
	StartedAt   time.Time         `json:"startedAt"`
	Entries     []CabBookingEntry `json:"entries"`
}

// Entry returns the entry for the given provider id.
func (s BookingSnapshot) Entry(providerID string) (CabBookingEntry, bool) {
	for _, e := range s.Entries {
		if e.Provider.ID == providerID {
			return e, true
		}
	}
	return CabBookingEntry{}, false
}
