package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the application configuration, loadable from environment
// variables (ORDERS_ prefix), flags, YAML files and a local .env file.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HMAC secret of bearer tokens (ORDERS_JWT_SECRET)" flag:"jwt-secret"`
	DB          DBConfig
	Tx          TxConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DBConfig sizes the connection pool.
type DBConfig struct {
	MaxConns        int32         `default:"20" usage:"Maximum pool connections" flag:"db-max-conns"`
	MaxConnIdleTime time.Duration `default:"5m" usage:"Idle time before a pooled connection is closed" flag:"db-max-idle"`
	SaturationRatio float64       `default:"0.95" usage:"Acquired/max ratio at which readiness fails" flag:"db-saturation"`
}

// TxConfig bounds how long a transaction may wait.
type TxConfig struct {
	LockTimeout      time.Duration `default:"2s" usage:"Row lock wait limit per transaction" flag:"lock-timeout"`
	StatementTimeout time.Duration `default:"5s" usage:"Statement duration limit per transaction" flag:"statement-timeout"`
}

// NotifyConfig controls the notification spool.
type NotifyConfig struct {
	SpoolPath     string        `default:"orders-spool.db" usage:"Path of the notification spool file" flag:"spool-path"`
	RelayInterval time.Duration `default:"1s" usage:"How often the spool is drained" flag:"relay-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env into the environment, then loads the configuration
// and applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	case len(c.JWTSecret) < 16:
		return errors.New("ORDERS_JWT_SECRET must be at least 16 bytes")
	case c.Tx.LockTimeout <= 0 || c.Tx.StatementTimeout <= 0:
		return errors.New("transaction timeouts must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the ORDERS_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
