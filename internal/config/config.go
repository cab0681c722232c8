package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	Admin     AdminConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	TTL      time.Duration
}

type ScraperConfig struct {
	BaseURL   string
	UserAgent string
	// Fetcher selects the page fetcher: "chrome" (headless browser) or "http".
	Fetcher string

	RequestDelay       time.Duration
	PageTimeout        time.Duration
	SettleDelay        time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	RateLimitFloor     time.Duration
	Concurrency        int
	RobotsTTL          time.Duration
	RobotsFailOpenWait time.Duration
	MigrationsDir      string
}

type SchedulerConfig struct {
	Tick time.Duration
}

type AdminConfig struct {
	Username     string
	JWTSecret    string
	TokenTTL     time.Duration
	PasswordHash string
}

const (
	FetcherChrome = "chrome"
	FetcherHTTP   = "http"

	minRequestDelay = 2 * time.Second
	maxConcurrency  = 4
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidEnv         = errors.New("invalid environment variables")
)

func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{}

	var missing []string
	var invalid []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string, def string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		return v
	}
	optInt := func(key string, def int) int {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optDur := func(key string, def time.Duration) time.Duration {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		d, err := parseDuration(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return d
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:     opt("DB_HOST", "localhost"),
		DBPort:     opt("DB_PORT", "5432"),
		DBName:     opt("DB_NAME", "notebook_scout"),
		DBUser:     opt("DB_USER", "postgres"),
		DBPassword: opt("DB_PASSWORD", ""),
		DBSSLMode:  opt("DB_SSL_MODE", "disable"),

		ConnectTimeout:        optDur("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolMaxConns:          int32(optInt("DB_POOL_MAX_CONNS", 10)),
		PoolMinConns:          int32(optInt("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   optDur("DB_POOL_MAX_CONN_LIFETIME", time.Hour),
		PoolMaxConnIdleTime:   optDur("DB_POOL_MAX_CONN_IDLE_TIME", 30*time.Minute),
		PoolHealthCheckPeriod: optDur("DB_POOL_HEALTH_CHECK_PERIOD", time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     opt("REDIS_HOST", "localhost"),
		Port:     opt("REDIS_PORT", "6379"),
		Password: opt("REDIS_PASSWORD", ""),
		TTL:      optDur("REDIS_TTL", 600*time.Second),
	}

	cfg.Scraper = ScraperConfig{
		BaseURL:            strings.TrimRight(opt("SCRAPER_BASE_URL", "https://www.kleinanzeigen.de"), "/"),
		UserAgent:          opt("SCRAPER_USER_AGENT", defaultUserAgent),
		Fetcher:            strings.ToLower(opt("SCRAPER_FETCHER", FetcherChrome)),
		RequestDelay:       optDur("SCRAPER_REQUEST_DELAY", 3*time.Second),
		PageTimeout:        optDur("SCRAPER_PAGE_TIMEOUT", 60*time.Second),
		SettleDelay:        optDur("SCRAPER_SETTLE_DELAY", 1500*time.Millisecond),
		MaxRetries:         optInt("SCRAPER_MAX_RETRIES", 3),
		BackoffBase:        optDur("SCRAPER_BACKOFF_BASE", 2*time.Second),
		RateLimitFloor:     optDur("SCRAPER_RATE_LIMIT_FLOOR", 10*time.Second),
		Concurrency:        optInt("SCRAPER_CONCURRENCY", 1),
		RobotsTTL:          optDur("SCRAPER_ROBOTS_TTL", time.Hour),
		RobotsFailOpenWait: optDur("SCRAPER_ROBOTS_FAIL_OPEN_DELAY", 5*time.Second),
		MigrationsDir:      opt("MIGRATIONS_DIR", ""),
	}

	cfg.Scheduler = SchedulerConfig{
		Tick: optDur("SCHEDULER_TICK", time.Minute),
	}

	cfg.Admin = AdminConfig{
		Username:     opt("ADMIN_USERNAME", "admin"),
		JWTSecret:    opt("ADMIN_JWT_SECRET", ""),
		TokenTTL:     optDur("ADMIN_TOKEN_TTL", 12*time.Hour),
		PasswordHash: opt("ADMIN_PASSWORD_HASH", ""),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	invalid = append(invalid, cfg.Scraper.validate()...)
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errInvalidEnv, strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func (s *ScraperConfig) validate() []string {
	var bad []string
	if s.Fetcher != FetcherChrome && s.Fetcher != FetcherHTTP {
		bad = append(bad, "SCRAPER_FETCHER")
	}
	if s.RequestDelay < minRequestDelay {
		s.RequestDelay = minRequestDelay
	}
	if s.MaxRetries < 0 {
		bad = append(bad, "SCRAPER_MAX_RETRIES")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.Concurrency > maxConcurrency {
		s.Concurrency = maxConcurrency
	}
	return bad
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", raw)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
