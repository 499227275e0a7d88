package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	PublicURL   string        `mapstructure:"public_url"`
	CORSOrigins []string      `mapstructure:"cors_origins"`

	Auth       AuthConfig     `mapstructure:"auth"`
	Database   DatabaseConfig `mapstructure:"database"`
	SMTP       SMTPConfig     `mapstructure:"smtp"`
	Signal     SignalConfig   `mapstructure:"signal"`
	Sessions   SessionsConfig `mapstructure:"sessions"`
	ICEServers []ICEServer    `mapstructure:"ice_servers"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 identity tokens. Empty trusts identity headers
	// and is only accepted in debug mode.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	// DSN is a postgres URL. Empty keeps everything in memory.
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SignalConfig struct {
	SendBuffer int     `mapstructure:"send_buffer"`
	Rate       float64 `mapstructure:"rate"`
	Burst      int     `mapstructure:"burst"`
}

type SessionsConfig struct {
	EmptyRoomGrace time.Duration `mapstructure:"empty_room_grace"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists; PODNEST_* environment variables
// override any key (database.dsn -> PODNEST_DATABASE_DSN).
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("PODNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "PodNest <no-reply@podnest.app>")
	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.rate", 50)
	v.SetDefault("signal.burst", 100)
	v.SetDefault("sessions.empty_room_grace", "0s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("database", cfg.Database.DSN != "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != "debug" && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required outside debug mode")
	}
	if c.Signal.SendBuffer <= 0 {
		return errors.New("signal.send_buffer must be positive")
	}
	if c.Sessions.EmptyRoomGrace < 0 {
		return errors.New("sessions.empty_room_grace must not be negative")
	}
	return nil
}
