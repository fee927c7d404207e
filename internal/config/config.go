package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds the server configuration parsed from the environment.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret  string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	// ManagerKeys maps manager id to its secret, "id:secret,id:secret".
	// Secrets starting with "$2" are bcrypt hashes.
	ManagerKeys map[string]string `env:"MANAGER_KEYS" envDefault:"alcatamy-esports-by-rolex:ALCA-2025,vigar-fc:VIGA-2025,baena10:BA10-2025,dubai-city-fc:DUBA-2025,visite-la-manga-fc:MANGA-2025,morenazos-fc:MORE-2025"`

	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	LogEnv string `env:"LOG_ENV" envDefault:"development"`

	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate refuses settings that must not reach production. Set
// ALLOW_INSECURE_DEFAULTS=true to bypass for local work.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if len(c.ManagerKeys) == 0 {
		return fmt.Errorf("MANAGER_KEYS is empty")
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or ALLOW_INSECURE_DEFAULTS=true")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32", len(c.JWTSecret))
	}
	return nil
}
