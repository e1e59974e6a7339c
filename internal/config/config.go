package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Device      DeviceConfig      `yaml:"device"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// PersistenceConfig points at the fingerprint record API the
// coordinator writes through.
type PersistenceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffStep time.Duration `yaml:"backoff_step"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DeviceConfig describes the biometric hardware agent.
type DeviceConfig struct {
	URL        string        `yaml:"url"`
	DeviceType string        `yaml:"device_type"`
	DeviceID   string        `yaml:"device_id"`
	Timeout    time.Duration `yaml:"timeout"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Persistence.MaxAttempts == 0 {
		cfg.Persistence.MaxAttempts = 3
	}
	if cfg.Persistence.BackoffStep == 0 {
		cfg.Persistence.BackoffStep = time.Second
	}
	if cfg.Persistence.Timeout == 0 {
		cfg.Persistence.Timeout = 10 * time.Second
	}
	if cfg.Device.URL == "" {
		cfg.Device.URL = "ws://127.0.0.1:8085/ws/"
	}
	if cfg.Device.DeviceType == "" {
		cfg.Device.DeviceType = "F22"
	}
	if cfg.Device.DeviceID == "" {
		cfg.Device.DeviceID = "F22_001"
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIOSYNC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BIOSYNC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("BIOSYNC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("BIOSYNC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("BIOSYNC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("BIOSYNC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("BIOSYNC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("BIOSYNC_PERSISTENCE_URL"); v != "" {
		cfg.Persistence.BaseURL = v
	}
	if v := os.Getenv("BIOSYNC_DEVICE_URL"); v != "" {
		cfg.Device.URL = v
	}
	if v := os.Getenv("BIOSYNC_DEVICE_ID"); v != "" {
		cfg.Device.DeviceID = v
	}
	if v := os.Getenv("BIOSYNC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("BIOSYNC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("BIOSYNC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("BIOSYNC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("BIOSYNC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
}
