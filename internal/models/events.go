package models

import "time"

type ReportEventKind string

const (
	ReportAdded     ReportEventKind = "report.added"
	ReportConfirmed ReportEventKind = "report.confirmed"
	ReportResolved  ReportEventKind = "report.resolved"
)

// ReportEvent is published on every community report mutation so other
// deployments can mirror it. Origin identifies the publishing instance.
type ReportEvent struct {
	Kind     ReportEventKind  `json:"kind"`
	ReportID string           `json:"report_id"`
	Report   *CommunityReport `json:"report,omitempty"`
	Origin   string           `json:"origin"`
	At       time.Time        `json:"at"`
}

// BookingOutcome summarises one provider's result once its entry completes.
type BookingOutcome struct {
	RunID       string    `json:"run_id"`
	ProviderID  string    `json:"provider_id"`
	Provider    string    `json:"provider"`
	Channel     Channel   `json:"channel,omitempty"`
	Outcome     string    `json:"outcome"` // quoted, unavailable, unreachable
	Price       string    `json:"price,omitempty"`
	ETA         string    `json:"eta,omitempty"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	At          time.Time `json:"at"`
}
