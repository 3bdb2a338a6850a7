package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/accessiride/internal/cabservice"
	"github.com/example/accessiride/internal/eta"
	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

// CabService is the outbound contact collaborator.
type CabService interface {
	Initiate(ctx context.Context, ch models.Channel, body cabservice.ContactRequest) (string, error)
	Status(ctx context.Context, ch models.Channel, trackingID string) (*cabservice.Status, error)
	RequestCallback(ctx context.Context, body cabservice.CallbackRequest) error
}

// Observer receives a snapshot after every state change of a run. It is
// called with the run locked: it must not block or call back into the run.
type Observer func(models.BookingSnapshot)

// OutcomeFunc is called once per provider entry when it completes, under
// the same constraints as Observer.
type OutcomeFunc func(models.BookingOutcome)

// Run is one booking attempt across every configured provider. Each
// provider is driven by its own goroutine; all entry mutations go through
// update so concurrent pollers always transform the live collection.
type Run struct {
	ID          string
	Origin      string
	Destination string

	cfg       Config
	svc       CabService
	logger    *slog.Logger
	observers []Observer
	outcomes  []OutcomeFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	entries   []models.CabBookingEntry
	startedAt time.Time
	status    models.RunStatus
	timedOut  bool
	closed    bool
	timer     *time.Timer
	lifetime  *time.Timer
	done      chan struct{}
	doneOnce  sync.Once
	holding   map[string]bool
}

func newRun(id, origin, destination string, cfg Config, svc CabService, observers []Observer, outcomes []OutcomeFunc) *Run {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		cfg:         cfg,
		svc:         svc,
		logger:      cfg.Logger.With("run_id", id),
		observers:   observers,
		outcomes:    outcomes,
		ctx:         ctx,
		cancel:      cancel,
		startedAt:   cfg.Now(),
		status:      models.RunLoading,
		done:        make(chan struct{}),
	}
	r.entries = make([]models.CabBookingEntry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		r.entries = append(r.entries, models.CabBookingEntry{Provider: p, Status: models.BookingPending})
	}
	return r
}

func (r *Run) start() {
	r.mu.Lock()
	r.publishLocked()
	if len(r.entries) == 0 {
		r.finishLocked("completed")
	}
	providers := make([]models.CabProvider, 0, len(r.entries))
	for _, e := range r.entries {
		providers = append(providers, e.Provider)
	}
	r.wg.Add(len(providers))
	r.mu.Unlock()

	for _, p := range providers {
		go r.drive(p)
	}
}

// Done is closed exactly once, when every entry completed, the run timed
// out or the run was closed.
func (r *Run) Done() <-chan struct{} { return r.done }

// expireAfter schedules fn once d elapses, unless the run is closed first.
func (r *Run) expireAfter(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lifetime = time.AfterFunc(d, fn)
}

func (r *Run) Snapshot() models.BookingSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() models.BookingSnapshot {
	return models.BookingSnapshot{
		RunID:       r.ID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Status:      r.status,
		TimedOut:    r.timedOut,
		Closed:      r.closed,
		StartedAt:   r.startedAt,
		Entries:     append([]models.CabBookingEntry(nil), r.entries...),
	}
}

func (r *Run) publishLocked() {
	if len(r.observers) == 0 {
		return
	}
	snap := r.snapshotLocked()
	for _, o := range r.observers {
		o(snap)
	}
}

// update applies fn to the provider's entry in the live collection. It
// reports false, without applying fn, once the run has been closed.
func (r *Run) update(providerID string, fn func(e *models.CabBookingEntry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	i := r.indexLocked(providerID)
	if i < 0 {
		return false
	}
	wasComplete := r.entries[i].Status == models.BookingComplete
	fn(&r.entries[i])
	if !wasComplete && r.entries[i].Status == models.BookingComplete {
		r.completedLocked(r.entries[i])
	}
	r.publishLocked()
	r.checkProgressLocked()
	return true
}

func (r *Run) indexLocked(providerID string) int {
	for i := range r.entries {
		if r.entries[i].Provider.ID == providerID {
			return i
		}
	}
	return -1
}

// checkProgressLocked starts the run timeout once no entry is pending and
// finishes the run once every entry is complete.
func (r *Run) checkProgressLocked() {
	allStarted, allComplete := true, true
	for _, e := range r.entries {
		if e.Status == models.BookingPending {
			allStarted = false
		}
		if e.Status != models.BookingComplete {
			allComplete = false
		}
	}
	if allComplete {
		r.finishLocked("completed")
		return
	}
	if allStarted && r.timer == nil && r.status == models.RunLoading {
		r.timer = time.AfterFunc(r.cfg.RunTimeout, r.onTimeout)
	}
}

func (r *Run) onTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.status == models.RunComplete {
		return
	}
	r.timedOut = true
	r.logger.Info("booking run timed out", "timeout", r.cfg.RunTimeout)
	r.finishLocked("timeout")
}

func (r *Run) finishLocked(reason string) {
	r.doneOnce.Do(func() {
		r.status = models.RunComplete
		if r.timer != nil {
			r.timer.Stop()
		}
		observability.BookingRunsFinished.WithLabelValues(reason).Inc()
		observability.BookingRunDuration.Observe(r.cfg.Now().Sub(r.startedAt).Seconds())
		close(r.done)
		r.publishLocked()
	})
}

func (r *Run) completedLocked(e models.CabBookingEntry) {
	outcome := "quoted"
	switch {
	case e.Unreachable:
		outcome = "unreachable"
	case e.Unavailable:
		outcome = "unavailable"
	}
	observability.ProviderOutcomes.WithLabelValues(outcome).Inc()
	r.logger.Info("provider resolved", "provider", e.Provider.Name, "outcome", outcome, "price", e.Price, "eta", e.ETA)
	if len(r.outcomes) == 0 {
		return
	}
	o := models.BookingOutcome{
		RunID:       r.ID,
		ProviderID:  e.Provider.ID,
		Provider:    e.Provider.Name,
		Channel:     e.Channel,
		Outcome:     outcome,
		Price:       e.Price,
		ETA:         e.ETA,
		Origin:      r.Origin,
		Destination: r.Destination,
		At:          r.cfg.Now().UTC(),
	}
	for _, fn := range r.outcomes {
		fn(o)
	}
}

// Close tears the run down: every provider task is cancelled and no entry
// changes after Close returns, even if a response is still in flight.
func (r *Run) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.lifetime != nil {
		r.lifetime.Stop()
	}
	if r.status == models.RunComplete {
		r.publishLocked()
	} else {
		// publishes the final snapshot with Closed already set
		r.finishLocked("closed")
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func channelFor(p models.CabProvider) (models.Channel, string, error) {
	switch {
	case p.Phone != "":
		return models.ChannelPhone, p.Phone, nil
	case p.Email != "":
		return models.ChannelEmail, p.Email, nil
	}
	return "", "", ErrNoContactMethod
}

func (r *Run) markUnreachable(providerID string, err error) {
	r.update(providerID, func(e *models.CabBookingEntry) {
		e.Status = models.BookingComplete
		e.Unreachable = true
		e.Unavailable = false
		e.Error = err.Error()
	})
}

// drive contacts one provider and polls until the conversation resolves
// or the run is torn down.
func (r *Run) drive(p models.CabProvider) {
	defer r.wg.Done()
	log := r.logger.With("provider", p.Name)

	ch, to, err := channelFor(p)
	if err != nil {
		log.Warn("provider has no contact method")
		r.markUnreachable(p.ID, err)
		return
	}

	trackingID, err := r.svc.Initiate(r.ctx, ch, cabservice.ContactRequest{
		Source:      r.Origin,
		Destination: r.Destination,
		CabCompany:  p.Name,
		To:          to,
	})
	if r.ctx.Err() != nil {
		return
	}
	if err == nil && trackingID == "" {
		err = fmt.Errorf("no tracking id for %s request", ch)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrContactInitiationFailed, err)
		log.Warn("contact initiation failed", "channel", ch, "error", err)
		r.markUnreachable(p.ID, err)
		return
	}

	ok := r.update(p.ID, func(e *models.CabBookingEntry) {
		e.Status = models.BookingPolling
		e.TrackingID = trackingID
		e.Channel = ch
	})
	if !ok {
		return
	}
	log.Info("provider contacted", "channel", ch, "tracking_id", trackingID)

	for {
		if r.poll(p.ID, ch, trackingID, log) {
			return
		}
		t := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// poll runs one status query and reports whether polling should stop.
func (r *Run) poll(providerID string, ch models.Channel, trackingID string, log *slog.Logger) bool {
	st, err := r.svc.Status(r.ctx, ch, trackingID)
	if r.ctx.Err() != nil {
		return true
	}
	if err != nil {
		observability.CabPolls.WithLabelValues("error").Inc()
		log.Warn("status poll failed", "tracking_id", trackingID, "error", err)
		r.markUnreachable(providerID, err)
		return true
	}
	if st == nil {
		observability.CabPolls.WithLabelValues("unparseable").Inc()
		log.Warn("status poll unparseable", "tracking_id", trackingID)
		r.markUnreachable(providerID, ErrPollUnparseable)
		return true
	}

	res := Evaluate(st)
	observability.CabPolls.WithLabelValues(res.String()).Inc()
	switch res {
	case Unresolved:
		return false
	case ResolvedUnreachable:
		r.update(providerID, func(e *models.CabBookingEntry) {
			e.Status = models.BookingComplete
			e.Unreachable = true
		})
	case ResolvedUnavailable:
		r.update(providerID, func(e *models.CabBookingEntry) {
			e.Status = models.BookingComplete
			e.Unavailable = true
		})
	case ResolvedQuoted:
		fare := float64(*st.EstimatedFare)
		pickup := *st.EarliestPickupTime
		r.update(providerID, func(e *models.CabBookingEntry) {
			e.Status = models.BookingComplete
			e.Fare = fare
			e.Price = eta.FormatFare(fare, r.cfg.Currency)
			e.ETA = eta.Format(pickup, r.cfg.Now())
		})
	}
	return true
}

// RequestCallback asks the provider to call the rider back. The entry's
// requestingCallback flag is set while the request is in flight and is
// always cleared afterwards; price, eta and status are never touched.
func (r *Run) RequestCallback(ctx context.Context, providerID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunClosed
	}
	i := r.indexLocked(providerID)
	if i < 0 {
		r.mu.Unlock()
		return ErrUnknownProvider
	}
	if r.entries[i].RequestingCallback {
		r.mu.Unlock()
		return ErrCallbackInFlight
	}
	p := r.entries[i].Provider
	r.entries[i].RequestingCallback = true
	r.publishLocked()
	r.mu.Unlock()

	defer r.update(providerID, func(e *models.CabBookingEntry) { e.RequestingCallback = false })

	body := cabservice.CallbackRequest{
		Source:      orDefault(r.Origin, "Unknown Location"),
		Destination: orDefault(r.Destination, "Unknown Destination"),
		UserName:    r.cfg.Requester.Name,
		UserPhone:   r.cfg.Requester.Phone,
		CabCompany:  p.Name,
	}
	switch {
	case p.Phone != "":
		body.ToNumber = &p.Phone
	case p.Email != "":
		body.ToEmail = &p.Email
	default:
		observability.CallbackRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrCallbackRequestFailed, ErrNoContactMethod)
	}

	if err := r.svc.RequestCallback(ctx, body); err != nil {
		observability.CallbackRequests.WithLabelValues("error").Inc()
		r.logger.Warn("callback request failed", "provider", p.Name, "error", err)
		return fmt.Errorf("%w: %v", ErrCallbackRequestFailed, err)
	}
	observability.CallbackRequests.WithLabelValues("ok").Inc()
	r.logger.Info("callback requested", "provider", p.Name)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
