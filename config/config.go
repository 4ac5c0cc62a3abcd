// Package config loads postboard's settings from the environment. A .env file
// in the working directory is read first when present; variables already set
// in the environment win.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	MongoURI      string
	MongoDatabase string

	// RedisURL selects the shared rate limit store. Empty keeps counters in
	// process memory.
	RedisURL string

	JWTSecret string
	TokenTTL  time.Duration

	// CloudinaryURL selects the avatar blob store. Empty keeps avatars in
	// process memory.
	CloudinaryURL    string
	CloudinaryFolder string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	RateLimitRequests int64
	RateLimitWindow   time.Duration
	RateLimitCooldown time.Duration
	FollowLimit       int64

	CacheCapacity   int
	AuthorTTL       time.Duration
	LocationTTL     time.Duration
	AvatarURLTTL    time.Duration
	CredentialTTL   time.Duration
	FanoutWorkers   int
	CommentsPerPost int

	CORSOrigins []string
}

// Load reads the configuration. JWT_SECRET is the only required variable.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment alone.
func FromEnv() (*Config, error) {
	e := &env{}
	cfg := &Config{
		Port:    e.str("PORT", "8080"),
		GinMode: e.str("GIN_MODE", "debug"),

		MongoURI:      e.str("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: e.str("MONGODB_DATABASE", "postboard"),
		RedisURL:      e.str("REDIS_URL", ""),

		JWTSecret: e.str("JWT_SECRET", ""),
		TokenTTL:  e.duration("JWT_TTL", 7*24*time.Hour),

		CloudinaryURL:    e.str("CLOUDINARY_URL", ""),
		CloudinaryFolder: e.str("CLOUDINARY_FOLDER", "postboard/avatars"),

		VAPIDPublicKey:  e.str("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: e.str("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: e.str("VAPID_SUBSCRIBER", "admin@postboard.local"),

		RateLimitRequests: int64(e.integer("RATE_LIMIT_REQUESTS", 60)),
		RateLimitWindow:   e.duration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitCooldown: e.duration("RATE_LIMIT_COOLDOWN", 200*time.Millisecond),
		FollowLimit:       int64(e.integer("RATE_LIMIT_FOLLOWS", 100)),

		CacheCapacity:   e.integer("CACHE_CAPACITY", 10000),
		AuthorTTL:       e.duration("CACHE_AUTHOR_TTL", 5*time.Minute),
		LocationTTL:     e.duration("CACHE_LOCATION_TTL", 10*time.Minute),
		AvatarURLTTL:    e.duration("CACHE_AVATAR_TTL", 24*time.Hour),
		CredentialTTL:   e.duration("CACHE_CREDENTIAL_TTL", 5*time.Minute),
		FanoutWorkers:   e.integer("FANOUT_WORKERS", 8),
		CommentsPerPost: e.integer("FANOUT_COMMENTS", 10),

		CORSOrigins: e.list("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5500", "http://127.0.0.1:5500"}),
	}

	if cfg.JWTSecret == "" {
		e.errs = append(e.errs, errors.New("JWT_SECRET must be set"))
	}
	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		e.errs = append(e.errs, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together"))
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PushEnabled reports whether web push notifications can be sent.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// env collects parse errors so Load reports every bad variable at once.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a non-negative integer", key, raw))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a positive duration", key, raw))
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		log.Printf("[Config] %s is empty, using defaults", key)
		return def
	}
	return out
}
