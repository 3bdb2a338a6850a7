package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/accessiride/internal/models"
)

// DefaultCabServiceURL is the hosted contact bot.
const DefaultCabServiceURL = "https://access-cab-283394852721.us-central1.run.app"

// DefaultProviders are the accessible-cab companies contacted when no
// providers file is configured.
var DefaultProviders = []models.CabProvider{
	{ID: "yellow-cab-pittsburgh", Name: "Yellow Cab of Pittsburgh", Phone: "4127855227"},
	{ID: "classy-cab", Name: "Classy Cab", Email: "naman.gupta.iiits@gmail.com"},
}

// StoreConfig selects the durable backend. The first configured of Redis,
// Postgres and Mongo wins; with none configured state lives in memory.
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	PGDSN         string
	RunMigrations bool

	MongoURI string
	MongoDB  string

	Namespace string
}

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from environment variables with defaults so the
// binary can run locally without setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	Store              StoreConfig
	StoreWriteAttempts int
	StoreRetryDelay    time.Duration

	KafkaBrokers       []string
	KafkaReportsTopic  string
	KafkaOutcomesTopic string
	// MirrorReports applies report events from other deployments to the
	// live store. KafkaGroup defaults to one group per instance.
	MirrorReports      bool
	KafkaGroup         string

	MapsAPIKey         string
	DirectionsEndpoint string
	DirectionsTimeout  time.Duration
	DirectionsCacheTTL time.Duration
	HazardRadiusM      float64

	CabServiceURL   string
	CabPollInterval time.Duration
	CabRunTimeout   time.Duration
	CabHTTPTimeout  time.Duration
	CabMaxLifetime  time.Duration
	ProvidersFile   string
	Providers       []models.CabProvider
	RequesterName   string
	RequesterPhone  string

	StripeAPIKey string
	FareCurrency string

	LogLevel   string
	LogFormat  string
	InstanceID string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		CORSOrigins:        []string{"*"},
		Store:              defaultStoreConfig(),
		StoreWriteAttempts: 3,
		StoreRetryDelay:    200 * time.Millisecond,
		KafkaReportsTopic:  "community-reports",
		KafkaOutcomesTopic: "booking-outcomes",
		MirrorReports:      true,
		DirectionsTimeout:  5 * time.Second,
		DirectionsCacheTTL: 5 * time.Minute,
		HazardRadiusM:      250,
		CabServiceURL:      DefaultCabServiceURL,
		CabPollInterval:    5 * time.Second,
		CabRunTimeout:      30 * time.Second,
		CabHTTPTimeout:     10 * time.Second,
		CabMaxLifetime:     15 * time.Minute,
		Providers:          DefaultProviders,
		RequesterName:      "AccessiRide rider",
		FareCurrency:       "usd",
		LogLevel:           "info",
		LogFormat:          "json",
		InstanceID:         defaultInstanceID(),
	}
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{RedisGeoKey: "hazards_geo", MongoDB: "accessiride"}
}

func defaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "accessiride"
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitAndTrim(origins)
	}

	loadStoreConfig(&cfg.Store)
	setIntFromEnv(&cfg.StoreWriteAttempts, "STORE_WRITE_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.StoreRetryDelay, "STORE_RETRY_DELAY", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaReportsTopic, "KAFKA_REPORTS_TOPIC")
	setStringFromEnv(&cfg.KafkaOutcomesTopic, "KAFKA_OUTCOMES_TOPIC")
	if v := os.Getenv("KAFKA_MIRROR_REPORTS"); v != "" {
		cfg.MirrorReports = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.MapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	setStringFromEnv(&cfg.DirectionsEndpoint, "DIRECTIONS_ENDPOINT")
	setDurationFromEnv(&cfg.DirectionsTimeout, "DIRECTIONS_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.DirectionsCacheTTL, "DIRECTIONS_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.HazardRadiusM, "HAZARD_RADIUS_M", &errs)

	setStringFromEnv(&cfg.CabServiceURL, "CAB_SERVICE_URL")
	setDurationFromEnv(&cfg.CabPollInterval, "CAB_POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.CabRunTimeout, "CAB_RUN_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.CabHTTPTimeout, "CAB_HTTP_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.CabMaxLifetime, "CAB_RUN_MAX_LIFETIME", &errs)
	setStringFromEnv(&cfg.RequesterName, "REQUESTER_NAME")
	cfg.RequesterPhone = strings.TrimSpace(os.Getenv("REQUESTER_PHONE"))

	setStringFromEnv(&cfg.ProvidersFile, "PROVIDERS_FILE")
	if cfg.ProvidersFile != "" {
		providers, err := LoadProviders(cfg.ProvidersFile)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Providers = providers
		}
	}

	cfg.StripeAPIKey = strings.TrimSpace(os.Getenv("STRIPE_API_KEY"))
	if v := os.Getenv("FARE_CURRENCY"); v != "" {
		cfg.FareCurrency = strings.ToLower(strings.TrimSpace(v))
	}

	loadLogConfig(&cfg.LogLevel, &cfg.LogFormat)
	setStringFromEnv(&cfg.InstanceID, "INSTANCE_ID")
	if cfg.KafkaGroup == "" {
		cfg.KafkaGroup = "accessiride-" + cfg.InstanceID
	}

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c ServerConfig) validate() []error {
	var errs []error
	if c.CabPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("CAB_POLL_INTERVAL must be > 0"))
	}
	if c.CabRunTimeout < c.CabPollInterval {
		errs = append(errs, fmt.Errorf("CAB_RUN_TIMEOUT must be >= CAB_POLL_INTERVAL"))
	}
	if c.CabHTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CAB_HTTP_TIMEOUT must be > 0"))
	}
	if c.StoreWriteAttempts <= 0 {
		errs = append(errs, fmt.Errorf("STORE_WRITE_ATTEMPTS must be > 0"))
	}
	if c.HazardRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("HAZARD_RADIUS_M must be > 0"))
	}
	if len(c.FareCurrency) != 3 {
		errs = append(errs, fmt.Errorf("FARE_CURRENCY must be an ISO 4217 code"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text"))
	}
	return errs
}

func loadStoreConfig(s *StoreConfig) {
	s.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	s.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&s.RedisGeoKey, "REDIS_GEO_KEY")
	s.PGDSN = os.Getenv("PG_DSN")
	s.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")
	s.MongoURI = strings.TrimSpace(os.Getenv("MONGO_URI"))
	setStringFromEnv(&s.MongoDB, "MONGO_DB")
	setStringFromEnv(&s.Namespace, "STORE_NAMESPACE")
}

func loadLogConfig(level, format *string) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		*format = strings.ToLower(strings.TrimSpace(v))
	}
}

type providersFile struct {
	Providers []models.CabProvider `yaml:"providers"`
}

// LoadProviders reads the accessible-cab providers list from a YAML file.
func LoadProviders(path string) ([]models.CabProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading providers file %s: %w", path, err)
	}
	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing providers file %s: %w", path, err)
	}
	if err := validateProviders(f.Providers); err != nil {
		return nil, fmt.Errorf("providers file %s: %w", path, err)
	}
	return f.Providers, nil
}

func validateProviders(ps []models.CabProvider) error {
	if len(ps) == 0 {
		return errors.New("no providers listed")
	}
	seen := make(map[string]bool, len(ps))
	var errs []error
	for i, p := range ps {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("provider %d: id is required", i))
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("provider %d: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("provider %d: name is required", i))
		}
	}
	return errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
