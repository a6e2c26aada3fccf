package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr      string
		PublicDir string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Session struct {
		Secret        string
		TTL           time.Duration
		CookieName    string
		Secure        bool
		Store         string
		SweepInterval time.Duration
	}
	Security struct {
		BcryptCost int
	}
	Admin struct {
		Username string
		Password string
	}
	QR struct {
		URL     string
		Timeout time.Duration
	}
	RateLimit struct {
		Requests int
		Window   time.Duration
		Burst    int
	}
	Storage struct {
		Bucket     string
		KeyPrefix  string
		Region     string
		Endpoint   string
		PresignTTL time.Duration
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// existing environment variables win over .env entries
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.publicdir", "public")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/parcels.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cookiename", "parcel.sid")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.store", "database")
	v.SetDefault("session.sweepinterval", "10m")
	v.SetDefault("security.bcryptcost", 10)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("qr.url", "http://127.0.0.1:5000/readQR")
	v.SetDefault("qr.timeout", "10s")
	v.SetDefault("ratelimit.requests", 5)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "parcel-reports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.presignttl", "15m")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")
}

// Validate checks cross-field constraints that defaults cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Session.Secret) == "" {
		return errors.New("session secret is required (PARCEL_SESSION_SECRET)")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Session.Store {
	case "database", "memory":
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	return nil
}
