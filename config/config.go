package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration. Values come from a .env file when
// present and from the process environment otherwise.
type Config struct {
	Port               string
	MongoURI           string
	MongoDatabase      string
	RedisAddr          string
	RedisPassword      string
	JWTSecret          string
	AdminUsername      string
	CDNURL             string
	GreenhouseURL      string
	LogLevel           string
	LogFormat          string
	SnapshotCacheTTL   time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	RequestTimeout     time.Duration
}

// Load reads the configuration from the given .env files (".env" when none
// are given) and the environment. A missing file is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	fileEnv := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			continue
		}
		for k, v := range vals {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
	}
	get := func(key, def string) string {
		if v, ok := fileEnv[key]; ok && v != "" {
			return v
		}
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	port := get("PORT", "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	cfg := Config{
		Port:               port,
		MongoURI:           get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      get("MONGO_DATABASE", "greenhouse"),
		RedisAddr:          get("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		JWTSecret:          get("JWT_SECRET", ""),
		AdminUsername:      get("ADMIN_USERNAME", ""),
		CDNURL:             get("CDN_URL", ""),
		GreenhouseURL:      get("GREENHOUSE_URL", ""),
		LogLevel:           get("LOG_LEVEL", "info"),
		LogFormat:          get("LOG_FORMAT", "text"),
		SnapshotCacheTTL:   duration(get("SNAPSHOT_CACHE_TTL", ""), 5*time.Minute),
		RateLimitPerSecond: float(get("RATE_LIMIT_PER_SECOND", ""), 5),
		RateLimitBurst:     integer(get("RATE_LIMIT_BURST", ""), 10),
		RequestTimeout:     duration(get("REQUEST_TIMEOUT", ""), 5*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func duration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func float(s string, def float64) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func integer(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
