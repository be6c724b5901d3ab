package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"top-game-score"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	// StoreDriver selects the document store backend: "postgres" or "memory".
	// The memory driver is for local development and tests only.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	Postgres Postgres
	Redis    Redis
	Security Security
	Game     Game
	Billing  Billing
	CORS     CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// DSN renders the connection string for pgx.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds the change-notification channel configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	Channel  string `env:"REDIS_CHANGE_CHANNEL" envDefault:"store:changes"`
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// Game groups gameplay defaults and limits.
type Game struct {
	DefaultMaxTimeSec int           `env:"DEFAULT_MAX_TIME_SECONDS" envDefault:"20"`
	MinMaxTimeSec     int           `env:"MIN_MAX_TIME_SECONDS" envDefault:"5"`
	MaxMaxTimeSec     int           `env:"MAX_MAX_TIME_SECONDS" envDefault:"300"`
	TickInterval      time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"250ms"`
	SettleDelay       time.Duration `env:"SESSION_SETTLE_DELAY" envDefault:"400ms"`
	ReconcileInterval time.Duration `env:"SCORE_RECONCILE_INTERVAL" envDefault:"1m"`
}

// Billing governs plan limits and free-tier expiry.
type Billing struct {
	FreeQuestionLimit int           `env:"FREE_QUESTION_LIMIT" envDefault:"10"`
	FreeGroupTTL      time.Duration `env:"FREE_GROUP_TTL" envDefault:"168h"`
	SweepInterval     time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1h"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
