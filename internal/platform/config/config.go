package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "consent-ledger/pkg/platform/strings"
)

// Blob backends.
const (
	BlobMemory = "memory"
	BlobBadger = "badger"
	BlobRedis  = "redis"
)

// Server is the full process configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        slog.Level
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies is the raw CIDR list allowed to assert the caller header.
	TrustedProxies string
	TxTimeout      time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Blob     BlobConfig
	Signer   SignerConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers     string
	EventsTopic string
	// IngestGroup enables the audit ingest consumer when a database is configured.
	IngestGroup string
}

func (k KafkaConfig) Enabled() bool { return strings.TrimSpace(k.Brokers) != "" }

type BlobConfig struct {
	Backend   string
	BadgerDir string
}

type SignerConfig struct {
	PrivateKey     string
	Timeout        time.Duration
	TokenSecret    string
	TokenTTL       time.Duration
	TrustedIssuers []string
}

// FromEnv builds the configuration from environment variables. Malformed
// values are errors so a bad deployment fails at startup.
func FromEnv() (Server, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Server, error) {
	e := env{lookup: lookup}

	cfg := Server{
		Addr:            e.str("CONSENT_LEDGER_ADDR", ":8080"),
		Environment:     e.str("ENVIRONMENT", "local"),
		LogLevel:        e.level("LOG_LEVEL", slog.LevelInfo),
		RequestTimeout:  e.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		TrustedProxies:  e.str("TRUSTED_PROXIES", ""),
		TxTimeout:       e.duration("TX_TIMEOUT", 5*time.Second),
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     e.str("KAFKA_BROKERS", ""),
			EventsTopic: e.str("LEDGER_EVENTS_TOPIC", "consent-ledger.events"),
			IngestGroup: e.str("AUDIT_INGEST_GROUP", ""),
		},
		Blob: BlobConfig{
			Backend:   strings.ToLower(e.str("BLOB_BACKEND", BlobMemory)),
			BadgerDir: e.str("BLOB_BADGER_DIR", ""),
		},
		Signer: SignerConfig{
			PrivateKey:     e.str("SIGNER_PRIVATE_KEY", ""),
			Timeout:        e.duration("SIGNER_TIMEOUT", 2*time.Second),
			TokenSecret:    e.str("TOKEN_SECRET", ""),
			TokenTTL:       e.duration("TOKEN_TTL", 8760*time.Hour),
			TrustedIssuers: e.list("TRUSTED_ISSUERS"),
		},
	}
	if e.err != nil {
		return Server{}, e.err
	}

	switch cfg.Blob.Backend {
	case BlobMemory, BlobBadger:
	case BlobRedis:
		if cfg.Redis.URL == "" {
			return Server{}, fmt.Errorf("BLOB_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Server{}, fmt.Errorf("BLOB_BACKEND: unknown backend %q", cfg.Blob.Backend)
	}
	return cfg, nil
}

// env reads variables and keeps the first parse error.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s=%q: %w", key, value, err)
	}
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.fail(key, v, fmt.Errorf("want a non-negative integer"))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(key, v, fmt.Errorf("want a positive duration"))
		return def
	}
	return d
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, v, err)
		return def
	}
	return lvl
}

func (e *env) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	return platformstrings.SplitList(v)
}
