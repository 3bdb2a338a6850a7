package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/accessiride/internal/eta"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

var ErrPaymentsDisabled = errors.New("payments disabled")

// FareHolder authorizes a quoted fare without charging it.
type FareHolder interface {
	Hold(ctx context.Context, amount int64, currency string, metadata map[string]string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Cancel(ctx context.Context, holdID string) error
}

// HoldFare places a hold for the provider's quoted fare. Only completed
// entries with a quote can be held, and only once.
func (r *Run) HoldFare(ctx context.Context, providerID string) (models.CabBookingEntry, error) {
	holder := r.cfg.Holder
	if holder == nil {
		return models.CabBookingEntry{}, ErrPaymentsDisabled
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return models.CabBookingEntry{}, ErrRunClosed
	}
	i := r.indexLocked(providerID)
	if i < 0 {
		r.mu.Unlock()
		return models.CabBookingEntry{}, ErrUnknownProvider
	}
	e := r.entries[i]
	if e.Status != models.BookingComplete || e.Unavailable || e.Unreachable || e.Fare <= 0 {
		r.mu.Unlock()
		return models.CabBookingEntry{}, ErrNotQuoted
	}
	if e.HoldID != "" || r.holding[providerID] {
		r.mu.Unlock()
		return models.CabBookingEntry{}, ErrAlreadyHeld
	}
	if r.holding == nil {
		r.holding = make(map[string]bool)
	}
	r.holding[providerID] = true
	r.mu.Unlock()

	id, err := holder.Hold(ctx, eta.MinorUnits(e.Fare), r.cfg.Currency, map[string]string{
		"run_id":   r.ID,
		"provider": e.Provider.Name,
	})

	r.mu.Lock()
	delete(r.holding, providerID)
	if err != nil {
		r.mu.Unlock()
		observability.FareHolds.WithLabelValues("hold", "error").Inc()
		r.logger.Warn("fare hold failed", "provider", e.Provider.Name, "error", err)
		return models.CabBookingEntry{}, fmt.Errorf("%w: hold fare: %w", ErrPaymentFailed, err)
	}
	if r.closed {
		r.mu.Unlock()
		// the run went away while the hold was placed
		if cerr := holder.Cancel(context.WithoutCancel(ctx), id); cerr != nil {
			r.logger.Warn("release orphaned hold failed", "hold_id", id, "error", cerr)
		}
		return models.CabBookingEntry{}, ErrRunClosed
	}
	r.entries[i].HoldID = id
	out := r.entries[i]
	r.publishLocked()
	r.mu.Unlock()

	observability.FareHolds.WithLabelValues("hold", "ok").Inc()
	r.logger.Info("fare held", "provider", e.Provider.Name, "hold_id", id, "fare", e.Price)
	return out, nil
}

// CaptureHold charges the held fare. The hold id stays on the entry so the
// fare cannot be held a second time.
func (r *Run) CaptureHold(ctx context.Context, providerID string) (models.CabBookingEntry, error) {
	return r.settleHold(ctx, providerID, "capture")
}

// ReleaseHold cancels the held fare.
func (r *Run) ReleaseHold(ctx context.Context, providerID string) (models.CabBookingEntry, error) {
	return r.settleHold(ctx, providerID, "cancel")
}

func (r *Run) settleHold(ctx context.Context, providerID, action string) (models.CabBookingEntry, error) {
	holder := r.cfg.Holder
	if holder == nil {
		return models.CabBookingEntry{}, ErrPaymentsDisabled
	}

	r.mu.Lock()
	i := r.indexLocked(providerID)
	if i < 0 {
		r.mu.Unlock()
		return models.CabBookingEntry{}, ErrUnknownProvider
	}
	id := r.entries[i].HoldID
	r.mu.Unlock()
	if id == "" {
		return models.CabBookingEntry{}, ErrNoHold
	}

	var err error
	if action == "capture" {
		err = holder.Capture(ctx, id)
	} else {
		err = holder.Cancel(ctx, id)
	}
	if err != nil {
		observability.FareHolds.WithLabelValues(action, "error").Inc()
		return models.CabBookingEntry{}, fmt.Errorf("%w: %s hold: %w", ErrPaymentFailed, action, err)
	}
	observability.FareHolds.WithLabelValues(action, "ok").Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if action == "cancel" && r.entries[i].HoldID == id {
		r.entries[i].HoldID = ""
		if !r.closed {
			r.publishLocked()
		}
	}
	return r.entries[i], nil
}
