package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	liststrings "awardvote/pkg/platform/strings"
)

// Config captures all environment-provided settings. None of these are
// user-facing flags.
type Config struct {
	Server      Server
	RecordStore RecordStore
	Payment     Payment
	Voting      Voting
	Results     Results
	Session     Session
	Redis       RedisConfig
	Database    Database
	Kafka       Kafka
	RateLimit   RateLimit
	LogLevel    string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// RecordStore points at the external collection service.
type RecordStore struct {
	BaseURL        string
	Categories     string
	Nominees       string
	VoteRecords    string
	RequestTimeout time.Duration
}

// Payment configures the mobile-money gateway.
type Payment struct {
	BaseURL      string
	SecretKey    string
	PublicKey    string
	Currency     string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Voting configures what a voter may buy and until when.
type Voting struct {
	// Amounts are the purchasable bundles in major currency units; one unit buys one vote.
	Amounts           []decimal.Decimal
	Deadline          time.Time
	SubmitConcurrency int
}

type Results struct {
	RefreshInterval time.Duration
}

type Session struct {
	TTL        time.Duration
	SigningKey string
}

// RedisConfig is optional; an empty URL keeps everything in-process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Database is optional; an empty URL keeps the submission ledger in memory.
type Database struct {
	URL string
}

// Kafka is optional; no brokers means audit events stay in memory.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// RateLimit bounds session creation and payment attempts per client IP.
// A zero limit disables that class.
type RateLimit struct {
	Disabled          bool
	SessionsPerWindow int
	PaymentsPerWindow int
	Window            time.Duration
}

// FromEnv builds a Config from environment variables, loading a .env file
// first when one is present so main stays lean.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Config, error) {
	var errs []error
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	duration := func(key string, def time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return n
	}

	cfg := Config{
		Server: Server{Addr: get("AWARDVOTE_ADDR", ":8080")},
		RecordStore: RecordStore{
			BaseURL:        strings.TrimRight(get("RECORD_STORE_URL", ""), "/"),
			Categories:     get("RECORD_STORE_CATEGORIES", "vote_cat"),
			Nominees:       get("RECORD_STORE_NOMINEES", "vote_noms"),
			VoteRecords:    get("RECORD_STORE_VOTES", "nom_votes"),
			RequestTimeout: duration("RECORD_STORE_TIMEOUT", 10*time.Second),
		},
		Payment: Payment{
			BaseURL:      strings.TrimRight(get("PAYMENT_BASE_URL", "https://api.paystack.co"), "/"),
			SecretKey:    get("PAYMENT_SECRET_KEY", ""),
			PublicKey:    get("PAYMENT_PUBLIC_KEY", ""),
			Currency:     get("PAYMENT_CURRENCY", "GHS"),
			PollInterval: duration("PAYMENT_POLL_INTERVAL", 3*time.Second),
			Timeout:      duration("PAYMENT_TIMEOUT", 3*time.Minute),
		},
		Voting: Voting{
			SubmitConcurrency: integer("SUBMIT_CONCURRENCY", 8),
		},
		Results: Results{RefreshInterval: duration("RESULTS_REFRESH_INTERVAL", 30*time.Second)},
		Session: Session{
			TTL: duration("SESSION_TTL", time.Hour),
			// Development default; override in production.
			SigningKey: get("SESSION_SIGNING_KEY", "dev-session-key-change-in-production"),
		},
		Redis: RedisConfig{
			URL:          get("REDIS_URL", ""),
			PoolSize:     integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: Database{URL: get("DATABASE_URL", "")},
		Kafka: Kafka{
			Brokers:    splitList(get("KAFKA_BROKERS", "")),
			AuditTopic: get("KAFKA_AUDIT_TOPIC", "awardvote.audit"),
		},
		RateLimit: RateLimit{
			Disabled:          get("RATE_LIMIT_DISABLED", "false") == "true",
			SessionsPerWindow: integer("RATE_LIMIT_SESSIONS", 20),
			PaymentsPerWindow: integer("RATE_LIMIT_PAYMENTS", 5),
			Window:            duration("RATE_LIMIT_WINDOW", 10*time.Minute),
		},
		LogLevel: get("LOG_LEVEL", "info"),
	}

	amounts, err := parseAmounts(get("VOTE_AMOUNTS", "1,2,5,10"))
	if err != nil {
		errs = append(errs, fmt.Errorf("VOTE_AMOUNTS: %w", err))
	}
	cfg.Voting.Amounts = amounts

	if raw := get("VOTING_DEADLINE", ""); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("VOTING_DEADLINE: %w", err))
		}
		cfg.Voting.Deadline = deadline
	}

	if cfg.RecordStore.BaseURL == "" {
		errs = append(errs, errors.New("RECORD_STORE_URL is required"))
	}
	if cfg.Voting.SubmitConcurrency < 1 {
		errs = append(errs, errors.New("SUBMIT_CONCURRENCY must be positive"))
	}
	if cfg.Payment.Timeout <= 0 || cfg.Payment.PollInterval <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT and PAYMENT_POLL_INTERVAL must be positive"))
	}
	if cfg.Results.RefreshInterval <= 0 {
		errs = append(errs, errors.New("RESULTS_REFRESH_INTERVAL must be positive"))
	}

	return cfg, errors.Join(errs...)
}

func parseAmounts(raw string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, part := range splitList(raw) {
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, err
		}
		if !d.IsPositive() || !d.IsInteger() {
			return nil, fmt.Errorf("amount %s must be a positive whole number", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one amount is required")
	}
	return out, nil
}

// splitList reads comma-separated settings; repeated entries collapse.
func splitList(raw string) []string {
	return liststrings.SplitList(raw, ",")
}
