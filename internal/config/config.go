// Package config resolves the daemon configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`

	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Reminder ReminderConfig `yaml:"reminder"`
	Notify   NotifyConfig   `yaml:"notify"`
	Backend  BackendConfig  `yaml:"backend"`
	Auth     AuthConfig     `yaml:"auth"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Type           string `yaml:"type"` // memory, file, sqlite, postgres or mongo
	EntriesFile    string `yaml:"entries_file"`
	DoseEventsFile string `yaml:"dose_events_file"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	MongoURI       string `yaml:"mongo_uri"`
	MongoDatabase  string `yaml:"mongo_database"`
}

type ReminderConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timezone     string        `yaml:"timezone"`
	VoiceKeyword string        `yaml:"voice_keyword"`
}

type NotifyConfig struct {
	Type          string        `yaml:"type"` // log, webhook or none
	WebhookURL    string        `yaml:"webhook_url"`
	Timeout       time.Duration `yaml:"timeout"`
	Icon          string        `yaml:"icon"`
	DefaultTone   string        `yaml:"default_tone"`
	PlayerCommand string        `yaml:"player_command"`
}

type BackendConfig struct {
	URL         string        `yaml:"url"`
	Email       string        `yaml:"email"`
	Password    string        `yaml:"password"`
	DoseLogPath string        `yaml:"dose_log_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

var (
	validStorage  = []string{"memory", "file", "sqlite", "postgres", "mongo"}
	validNotifier = []string{"log", "webhook", "none"}
)

func Default() *Config {
	return &Config{
		Addr:      ":8080",
		StaticDir: "./static",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:           "file",
			EntriesFile:    "medicines.json",
			DoseEventsFile: "dose_events.json",
			SQLitePath:     "pharmtrack.db",
			MongoURI:       "mongodb://localhost:27017",
			MongoDatabase:  "pharmtrack",
		},
		Reminder: ReminderConfig{
			Interval:     15 * time.Second,
			VoiceKeyword: "taken",
		},
		Notify: NotifyConfig{
			Type:          "log",
			Timeout:       5 * time.Second,
			Icon:          "/pill-icon.png",
			DefaultTone:   "alarm.mp3",
			PlayerCommand: "paplay",
		},
		Backend: BackendConfig{
			DoseLogPath: "/log-dose",
			Timeout:     10 * time.Second,
		},
	}
}

// LoadFile merges the YAML document at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c with the PHARMTRACK_* variables plus the PORT,
// LOG_LEVEL and LOG_FORMAT conventions.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Addr = ":" + port
	}
	str("PHARMTRACK_ADDR", &c.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("PHARMTRACK_STORAGE", &c.Storage.Type)
	str("PHARMTRACK_SQLITE_PATH", &c.Storage.SQLitePath)
	str("PHARMTRACK_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("PHARMTRACK_MONGO_URI", &c.Storage.MongoURI)
	str("PHARMTRACK_MONGO_DB", &c.Storage.MongoDatabase)
	str("PHARMTRACK_TIMEZONE", &c.Reminder.Timezone)
	str("PHARMTRACK_NOTIFIER", &c.Notify.Type)
	str("PHARMTRACK_WEBHOOK_URL", &c.Notify.WebhookURL)
	str("PHARMTRACK_BACKEND_URL", &c.Backend.URL)
	str("PHARMTRACK_BACKEND_EMAIL", &c.Backend.Email)
	str("PHARMTRACK_BACKEND_PASSWORD", &c.Backend.Password)
	str("PHARMTRACK_JWT_SECRET", &c.Auth.JWTSecret)
	return dur("PHARMTRACK_INTERVAL", &c.Reminder.Interval)
}

func (c *Config) Validate() error {
	if !contains(validStorage, c.Storage.Type) {
		return fmt.Errorf("invalid storage type: %s. Valid options are: %s", c.Storage.Type, strings.Join(validStorage, ", "))
	}
	if !contains(validNotifier, c.Notify.Type) {
		return fmt.Errorf("invalid notifier type: %s. Valid options are: %s", c.Notify.Type, strings.Join(validNotifier, ", "))
	}
	if c.Notify.Type == "webhook" && strings.TrimSpace(c.Notify.WebhookURL) == "" {
		return errors.New("notifier webhook requires a webhook url")
	}
	if c.Storage.Type == "postgres" && strings.TrimSpace(c.Storage.PostgresDSN) == "" {
		return errors.New("storage postgres requires a dsn")
	}
	if c.Reminder.Interval <= 0 {
		return errors.New("reminder interval must be positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the reminder time zone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Reminder.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Reminder.Timezone, err)
	}
	return loc, nil
}

// Load parses args the way the daemon's main does. Flags only override the
// file and environment when they are set explicitly.
func Load(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("pharmtrack", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to a YAML config file (optional)")
	addr := fs.String("addr", "", "address to listen on")
	staticDir := fs.String("static", "", "directory to serve static files from")
	tlsCert := fs.String("tls-cert", "", "path to TLS certificate file (optional)")
	tlsKey := fs.String("tls-key", "", "path to TLS key file (optional)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", "", "log format: text or json")

	// Storage flags
	storageType := fs.String("storage", "", "storage backend to use: memory, file, sqlite, postgres or mongo")
	sqlitePath := fs.String("sqlite-path", "", "SQLite database path (used when storage=sqlite)")
	pgDSN := fs.String("pg-dsn", "", "Postgres DSN (used when storage=postgres)")
	mongoConnString := fs.String("mongo-conn", "", "MongoDB connection string (used when storage=mongo)")
	mongoDatabase := fs.String("mongo-db", "", "MongoDB database name (used when storage=mongo)")

	// Reminder flags
	interval := fs.Duration("interval", 0, "reminder evaluation interval")
	timezone := fs.String("timezone", "", "IANA time zone for scheduled times (default local)")

	// Delivery flags
	notifier := fs.String("notifier", "", "notification channel: log, webhook or none")
	webhookURL := fs.String("webhook-url", "", "URL receiving reminder notifications (used when notifier=webhook)")
	player := fs.String("player", "", "audio player command for reminder tones")

	// Collaborators
	backendURL := fs.String("backend-url", "", "auth/logging backend base URL (optional)")
	jwtSecret := fs.String("jwt-secret", "", "HS256 secret used to verify API bearer tokens (optional)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "static":
			cfg.StaticDir = *staticDir
		case "tls-cert":
			cfg.TLSCert = *tlsCert
		case "tls-key":
			cfg.TLSKey = *tlsKey
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "storage":
			cfg.Storage.Type = *storageType
		case "sqlite-path":
			cfg.Storage.SQLitePath = *sqlitePath
		case "pg-dsn":
			cfg.Storage.PostgresDSN = *pgDSN
		case "mongo-conn":
			cfg.Storage.MongoURI = *mongoConnString
		case "mongo-db":
			cfg.Storage.MongoDatabase = *mongoDatabase
		case "interval":
			cfg.Reminder.Interval = *interval
		case "timezone":
			cfg.Reminder.Timezone = *timezone
		case "notifier":
			cfg.Notify.Type = *notifier
		case "webhook-url":
			cfg.Notify.WebhookURL = *webhookURL
		case "player":
			cfg.Notify.PlayerCommand = *player
		case "backend-url":
			cfg.Backend.URL = *backendURL
		case "jwt-secret":
			cfg.Auth.JWTSecret = *jwtSecret
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
