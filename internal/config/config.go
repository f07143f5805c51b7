package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const minSecretBytes = 32

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"3000"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`

	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Mongo    MongoConfig    `envPrefix:"MONGODB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	JWT      JWTConfig      `envPrefix:"JWT_"`

	BcryptCost              int `env:"BCRYPT_COST" envDefault:"10"`
	PasswordHashConcurrency int `env:"PASSWORD_HASH_CONCURRENCY"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// HSTS should only be enabled when TLS terminates in front of the service.
	HSTS bool `env:"HSTS_ENABLED" envDefault:"false"`

	AuthRateLimit  int           `env:"AUTH_RATE_LIMIT" envDefault:"20"`
	AuthRateWindow time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"1m"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`

	SeedUser SeedUserConfig `envPrefix:"SEED_USER_"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,required,notEmpty"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER,required,notEmpty"`
	Password string `env:"PASSWORD,required,notEmpty"`
	DB       string `env:"DB,required,notEmpty"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

type MongoConfig struct {
	URI      string `env:"URI,required,notEmpty"`
	Database string `env:"DATABASE" envDefault:"taskhub"`
}

// RedisConfig is optional: with an empty Addr the rate limiter stays in
// process.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type JWTConfig struct {
	Secret     string        `env:"SECRET,required,notEmpty"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

type SeedUserConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"Admin"`
}

// Load reads .env (when present) and the process environment. Any missing or
// malformed value is an error; callers are expected to exit.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		errs = append(errs, fmt.Errorf("POSTGRES_PORT %d out of range", c.Postgres.Port))
	}
	if len(c.JWT.Secret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d,%d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.PasswordHashConcurrency < 0 {
		errs = append(errs, errors.New("PASSWORD_HASH_CONCURRENCY must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive"))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_RATIO must be within [0,1]"))
	}
	if (c.SeedUser.Email == "") != (c.SeedUser.Password == "") {
		errs = append(errs, errors.New("SEED_USER_EMAIL and SEED_USER_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.Env, "dev")
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// PostgresURL builds a pgx connection string. Credentials are escaped.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.DB,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}
	return u.String()
}
