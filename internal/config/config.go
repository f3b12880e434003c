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

const devUnlockSecret = "dev-secret-change-in-production"

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Unlock    UnlockConfig
	Admin     AdminConfig
	Bulk      BulkConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	ShutdownTimeout time.Duration
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP name the client.
	TrustProxyHeaders bool
}

func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

// StoreConfig picks the key-value driver behind the record store.
type StoreConfig struct {
	Driver   string
	BoltPath string
	PageSize int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type UnlockConfig struct {
	Secret        string
	TTL           time.Duration
	MaxAttempts   int
	Window        time.Duration
	SweepInterval time.Duration
	LookupDelay   time.Duration
	CookieSecure  bool
}

type AdminConfig struct {
	IdentityHeader    string
	AllowedIdentities []string
}

type BulkConfig struct {
	Concurrency int
}

type WebSocketConfig struct {
	ReadBufferSize     int
	WriteBufferSize    int
	MaxMessageSize     int64
	WriteWait          time.Duration
	PongWait           time.Duration
	PingPeriod         time.Duration
	MaxConnPerIdentity int
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	godotenv.Load()

	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getEnvAsDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Host:              getEnv("HOST", "0.0.0.0"),
			Env:               getEnv("ENV", "development"),
			ShutdownTimeout:   duration("SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", "couch")),
			BoltPath: getEnv("BOLT_PATH", "linknote.db"),
			PageSize: getEnvAsInt("STORE_PAGE_SIZE", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "linknote"),
		},
		Unlock: UnlockConfig{
			Secret:        getEnv("UNLOCK_SECRET", ""),
			TTL:           duration("UNLOCK_TTL", time.Hour),
			MaxAttempts:   getEnvAsInt("UNLOCK_MAX_ATTEMPTS", 10),
			Window:        duration("UNLOCK_WINDOW", time.Hour),
			SweepInterval: duration("UNLOCK_SWEEP_INTERVAL", 5*time.Minute),
			LookupDelay:   duration("LOOKUP_DELAY", 50*time.Millisecond),
			CookieSecure:  getEnvAsBool("COOKIE_SECURE", true),
		},
		Admin: AdminConfig{
			IdentityHeader:    getEnv("ADMIN_IDENTITY_HEADER", "Cf-Access-Authenticated-User-Email"),
			AllowedIdentities: getEnvAsList("ADMIN_ALLOWED_IDENTITIES", nil),
		},
		Bulk: BulkConfig{
			Concurrency: getEnvAsInt("BULK_CONCURRENCY", 8),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:     getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize:    getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:     int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
			WriteWait:          duration("WS_WRITE_WAIT", 10*time.Second),
			PongWait:           duration("WS_PONG_WAIT", 60*time.Second),
			PingPeriod:         duration("WS_PING_PERIOD", 54*time.Second),
			MaxConnPerIdentity: getEnvAsInt("WS_MAX_CONN_PER_IDENTITY", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Unlock.Secret == "" {
		if cfg.Server.IsProduction() {
			errs = append(errs, errors.New("UNLOCK_SECRET is required in production"))
		}
		cfg.Unlock.Secret = devUnlockSecret
	}

	if cfg.Server.IsProduction() && len(cfg.Admin.AllowedIdentities) == 0 {
		errs = append(errs, errors.New("ADMIN_ALLOWED_IDENTITIES is required in production"))
	}

	switch cfg.Store.Driver {
	case "couch", "bolt", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver))
	}

	if cfg.Unlock.MaxAttempts <= 0 {
		errs = append(errs, errors.New("UNLOCK_MAX_ATTEMPTS must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
