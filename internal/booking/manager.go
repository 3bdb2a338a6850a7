package booking

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

// Requester identifies the rider in callback requests.
type Requester struct {
	Name  string
	Phone string
}

type Config struct {
	Providers    []models.CabProvider
	PollInterval time.Duration
	RunTimeout   time.Duration
	// MaxLifetime bounds how long a run may keep polling before it is
	// closed even if the client never tears it down.
	MaxLifetime  time.Duration
	Currency     string
	Requester    Requester
	Now          func() time.Time
	Logger       *slog.Logger
	// Holder places fare holds; nil disables them.
	Holder FareHolder
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 30 * time.Second
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 15 * time.Minute
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Manager owns every live run.
type Manager struct {
	cfg Config
	svc CabService

	mu        sync.Mutex
	runs      map[string]*Run
	observers []Observer
	outcomes  []OutcomeFunc
}

func NewManager(svc CabService, cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults(), svc: svc, runs: make(map[string]*Run)}
}

func (m *Manager) Providers() []models.CabProvider {
	return append([]models.CabProvider(nil), m.cfg.Providers...)
}

// Subscribe registers an observer for runs started afterwards.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// OnOutcome registers a completion hook for runs started afterwards.
func (m *Manager) OnOutcome(fn OutcomeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, fn)
}

// Start creates a run with one pending entry per provider and begins
// contacting all providers concurrently.
func (m *Manager) Start(origin, destination string) *Run {
	m.mu.Lock()
	r := newRun(uuid.NewString(), origin, destination, m.cfg, m.svc,
		append([]Observer(nil), m.observers...), append([]OutcomeFunc(nil), m.outcomes...))
	m.runs[r.ID] = r
	m.mu.Unlock()

	observability.BookingRunsStarted.Inc()
	observability.BookingRunsActive.Inc()
	r.logger.Info("booking run started", "providers", len(m.cfg.Providers), "origin", origin, "destination", destination)
	r.start()
	r.expireAfter(m.cfg.MaxLifetime, func() { m.Close(r.ID) })
	return r
}

// Restart discards the previous run, if any, and starts a new one.
func (m *Manager) Restart(previousID, origin, destination string) *Run {
	if previousID != "" {
		m.Close(previousID)
	}
	return m.Start(origin, destination)
}

func (m *Manager) Get(id string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

// Close tears down and forgets a run.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	r, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	r.Close()
	observability.BookingRunsActive.Dec()
	return true
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}
