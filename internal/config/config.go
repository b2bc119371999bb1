package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	SiteID   string `env:"SITE_ID" envDefault:"local"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	AuthHMACSecret string        `env:"AUTH_HMAC_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"8h"`
	AdminUser      string        `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash  string        `env:"ADMIN_PASS_HASH" envDefault:"$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"` // bcrypt

	CORSOriginsOnline  []string `env:"CORS_ORIGINS_ONLINE" envSeparator:"," envDefault:"https://exams.mindengage.ai"`
	CORSOriginsOffline []string `env:"CORS_ORIGINS_OFFLINE" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3010"`

	// SweepInterval is how often stale attempts are timed out; 0 disables
	// the sweeper and leaves expiry to the next request.
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	ExportDir string `env:"EXPORT_DIR" envDefault:"./data/exports"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"examd"`
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, fmt.Errorf("MODE: unknown mode %q", c.Mode)
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "dev-secret-change-me" {
		return Config{}, fmt.Errorf("AUTH_HMAC_SECRET must be set in online mode")
	}
	return c, nil
}
