package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultFallbackFetchCap  = 200
	defaultBackfillBatchSize = 100
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	PubSub        PubSubConfig
	Orders        OrderPolicyConfig
	Payments      PaymentsConfig
	QueryFallback QueryFallbackConfig
	Backfill      BackfillConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// InternalToken guards the /internal maintenance routes. Empty means
	// the routes reject every request.
	InternalToken string
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// FirebaseConfig stores authentication parameters.
type FirebaseConfig struct {
	ProjectID string
	// Disabled turns off token verification for local development.
	Disabled bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores the order event topic parameters.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
	Disabled   bool
}

// OrderPolicyConfig carries order lifecycle policy knobs.
type OrderPolicyConfig struct {
	// CustomerCancelStatuses is the allow-list of statuses a customer may
	// self-cancel from. The exact set is a business decision, so it is
	// configuration rather than code.
	CustomerCancelStatuses []string
	// ShipperReadyStatuses enumerates availability values that allow a
	// shipper to claim orders.
	ShipperReadyStatuses []string
}

// PaymentsConfig selects the refund provider.
type PaymentsConfig struct {
	Provider     string
	StripeAPIKey string
}

// QueryFallbackConfig controls the degraded list-query path used while a
// composite index is still building. Never enabled by default.
type QueryFallbackConfig struct {
	Enabled  bool
	FetchCap int
}

// BackfillConfig controls the shipper-field repair tool.
type BackfillConfig struct {
	BatchSize      int
	ActiveStatuses []string
	RunOnStartup   bool
}

// Option customises how Load reads its environment.
type Option func(*loadOptions)

type loadOptions struct {
	envFile string
	envMap  map[string]string
	skipSys bool
}

// WithEnvFile overrides the dotenv file consulted before system env vars.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit values, useful in tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loadOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment entirely.
func WithoutSystemEnv() Option {
	return func(o *loadOptions) { o.skipSys = true }
}

// Load assembles the configuration from the dotenv file and environment.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	fileValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if !options.skipSys {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := fileValues[key]
		return value, ok
	}

	projectID := stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			InternalToken: stringWithDefault(lookup, "INTERNAL_API_TOKEN", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID: stringWithDefault(lookup, "FIREBASE_PROJECT_ID", projectID),
			Disabled:  boolWithDefault(lookup, "AUTH_DISABLED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", projectID),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "PUBSUB_PROJECT_ID", projectID),
			OrderTopic: stringWithDefault(lookup, "PUBSUB_ORDER_TOPIC", "order-events"),
			Disabled:   boolWithDefault(lookup, "PUBSUB_DISABLED", false),
		},
		Orders: OrderPolicyConfig{
			CustomerCancelStatuses: csvWithDefault(lookup, "ORDER_CUSTOMER_CANCEL_STATUSES", []string{"pending", "confirmed"}),
			ShipperReadyStatuses:   csvWithDefault(lookup, "SHIPPER_READY_STATUSES", []string{"available"}),
		},
		Payments: PaymentsConfig{
			Provider:     stringWithDefault(lookup, "PAYMENTS_PROVIDER", "noop"),
			StripeAPIKey: stringWithDefault(lookup, "STRIPE_API_KEY", ""),
		},
		QueryFallback: QueryFallbackConfig{
			Enabled:  boolWithDefault(lookup, "ORDER_QUERY_FALLBACK", false),
			FetchCap: intWithDefault(lookup, "ORDER_QUERY_FALLBACK_CAP", defaultFallbackFetchCap),
		},
		Backfill: BackfillConfig{
			BatchSize:      intWithDefault(lookup, "BACKFILL_BATCH_SIZE", defaultBackfillBatchSize),
			ActiveStatuses: csvWithDefault(lookup, "BACKFILL_ACTIVE_STATUSES", []string{"pending", "confirmed", "preparing", "ready", "shipping"}),
			RunOnStartup:   boolWithDefault(lookup, "BACKFILL_RUN_ON_STARTUP", false),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" && strings.TrimSpace(cfg.Firestore.EmulatorHost) == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if cfg.Payments.Provider == "stripe" && strings.TrimSpace(cfg.Payments.StripeAPIKey) == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}
	if cfg.QueryFallback.FetchCap <= 0 {
		return fmt.Errorf("config: ORDER_QUERY_FALLBACK_CAP must be positive")
	}
	if cfg.Backfill.BatchSize <= 0 || cfg.Backfill.BatchSize > 500 {
		return fmt.Errorf("config: BACKFILL_BATCH_SIZE must be within 1..500")
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	values := map[string]string{}
	if strings.TrimSpace(path) == "" {
		return values, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
