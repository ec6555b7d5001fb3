package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	liststr "accounts/pkg/platform/strings"
)

const devSessionSigningKey = "dev-session-key-change-in-production"

// Config is the full service configuration, read once at startup.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Kafka     KafkaConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	LogLevel  slog.Level
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means clients connect directly.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig selects the PostgreSQL user store. An empty URL keeps users
// in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig selects the Redis session store. An empty URL keeps sessions in
// memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	SigningKey   string
	CookieName   string
	TTL          time.Duration
	CookieSecure bool
}

// KafkaConfig enables publishing verification obligations. No brokers means
// obligations are only logged. An empty topic selects the notifier's default.
type KafkaConfig struct {
	Brokers           []string
	VerificationTopic string
}

type PasswordConfig struct {
	MinLength int
}

// RateLimitConfig bounds signup submissions per client IP. A zero limit
// turns throttling off.
type RateLimitConfig struct {
	SignupLimit  int
	SignupWindow time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Server: Server{
			Addr:            r.str("ACCOUNTS_ADDR", ":8080"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  r.prefixes("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			URL:          r.str("DATABASE_URL", ""),
			MaxOpenConns: r.int("DB_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Session: SessionConfig{
			SigningKey:   r.str("SESSION_SIGNING_KEY", devSessionSigningKey),
			CookieName:   r.str("SESSION_COOKIE_NAME", "sessionid"),
			TTL:          r.duration("SESSION_TTL", 14*24*time.Hour),
			CookieSecure: r.bool("SESSION_COOKIE_SECURE", false),
		},
		Kafka: KafkaConfig{
			Brokers:           liststr.SplitList(r.str("KAFKA_BROKERS", ""), ","),
			VerificationTopic: r.str("KAFKA_VERIFICATION_TOPIC", ""),
		},
		Password: PasswordConfig{
			MinLength: r.int("PASSWORD_MIN_LENGTH", 8),
		},
		RateLimit: RateLimitConfig{
			SignupLimit:  r.int("SIGNUP_RATE_LIMIT", 10),
			SignupWindow: r.duration("SIGNUP_RATE_WINDOW", time.Minute),
		},
		LogLevel: r.level("LOG_LEVEL", slog.LevelInfo),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Password.MinLength < 1 || c.Password.MinLength > 72 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be between 1 and 72, got %d", c.Password.MinLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RateLimit.SignupLimit > 0 && c.RateLimit.SignupWindow <= 0 {
		return fmt.Errorf("SIGNUP_RATE_WINDOW must be positive")
	}
	if len(c.Session.SigningKey) < 16 {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least 16 bytes")
	}
	return nil
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (c Config) UsesDevSigningKey() bool {
	return c.Session.SigningKey == devSessionSigningKey
}

// reader collects the first parse error so FromEnv can report it once.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid integer %q: %w", key, raw, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid boolean %q: %w", key, raw, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(fmt.Errorf("%s: invalid duration %q: %w", key, raw, err))
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		r.fail(fmt.Errorf("%s: invalid log level %q: %w", key, raw, err))
		return def
	}
	return lvl
}

// prefixes reads a comma list of CIDRs. A bare address is a single-host
// prefix.
func (r *reader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range liststr.SplitList(r.str(key, ""), ",") {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			r.fail(fmt.Errorf("%s: invalid address or CIDR %q", key, raw))
			return nil
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
