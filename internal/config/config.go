package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml accepts "30s" style values. Bare
// integers are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// yaml.v3 decodes an !!int scalar into a string without complaint, so
	// the tag has to be checked before ParseDuration sees a bare number.
	if value.Tag == "!!int" {
		n, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value.Value)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type CameraConfig struct {
	Address     string   `yaml:"address"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	DialTimeout Duration `yaml:"dial_timeout"`
	IOTimeout   Duration `yaml:"io_timeout"`
	KeepAlive   Duration `yaml:"keep_alive"`
	PoolSize    int      `yaml:"pool_size"`
}

type ResolverConfig struct {
	Workers         int      `yaml:"workers"`
	DownloadTimeout Duration `yaml:"download_timeout"`
	DownloadRetries int      `yaml:"download_retries"`
	MinPayloadBytes int      `yaml:"min_payload_bytes"`
	AcceptThreshold float64  `yaml:"accept_threshold"`
	StrictMarkers   bool     `yaml:"strict_markers"`
	Tolerance       Duration `yaml:"tolerance"`
	ClipWindow      Duration `yaml:"clip_window"`
	PreferLaterClip bool     `yaml:"prefer_later_clip"`
	Lookback        Duration `yaml:"lookback"`
}

type PollerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Batch    int      `yaml:"batch"`
	Lookback Duration `yaml:"lookback"`
}

type ListenerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Heartbeat Duration `yaml:"heartbeat"`
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	// AdminPasswordHash is an argon2id encoded hash guarding mutating endpoints.
	AdminPasswordHash string   `yaml:"admin_password_hash"`
	JWTSigningKey     string   `yaml:"jwt_signing_key"`
	PhotoTokenTTL     Duration `yaml:"photo_token_ttl"`
	// RateLimitRate requests per RateLimitWindow per client IP. 0 disables.
	RateLimitRate   int      `yaml:"rate_limit_rate"`
	RateLimitWindow Duration `yaml:"rate_limit_window"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode)
}

type NATSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	MaxRetries int    `yaml:"max_retries"`
}

type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Resolver ResolverConfig `yaml:"resolver"`
	Poller   PollerConfig   `yaml:"poller"`
	Listener ListenerConfig `yaml:"listener"`
	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
}

// Default returns a config with every tunable at its baseline.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Address:     "192.168.1.10:34567",
			Username:    "admin",
			DialTimeout: Duration(5 * time.Second),
			IOTimeout:   Duration(10 * time.Second),
			KeepAlive:   Duration(20 * time.Second),
			PoolSize:    3,
		},
		Resolver: ResolverConfig{
			Workers:         3,
			DownloadTimeout: Duration(30 * time.Second),
			DownloadRetries: 1,
			MinPayloadBytes: 100,
			AcceptThreshold: 0,
			Tolerance:       Duration(3 * time.Second),
			ClipWindow:      Duration(3 * time.Minute),
			Lookback:        Duration(24 * time.Hour),
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: Duration(30 * time.Second),
			Batch:    20,
			Lookback: Duration(2 * time.Hour),
		},
		Listener: ListenerConfig{
			Enabled:   true,
			Heartbeat: Duration(90 * time.Second),
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			PhotoTokenTTL:   Duration(15 * time.Minute),
			RateLimitRate:   120,
			RateLimitWindow: Duration(time.Minute),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			Subject:    "alarms.resolved",
			MaxRetries: 3,
		},
	}
}

// Load reads the yaml file at path over the defaults, then applies env
// overrides. A missing file is fine, env-only setups are supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Camera.Address, "CAMERA_ADDR")
	setStr(&c.Camera.Username, "CAMERA_USER")
	setStr(&c.Camera.Password, "CAMERA_PASSWORD")
	setStr(&c.HTTP.Addr, "HTTP_ADDR")
	setStr(&c.HTTP.JWTSigningKey, "JWT_SIGNING_KEY")
	setStr(&c.HTTP.AdminPasswordHash, "ADMIN_PASSWORD_HASH")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Postgres.Host, "DB_HOST")
	setStr(&c.Postgres.Port, "DB_PORT")
	setStr(&c.Postgres.User, "DB_USER")
	setStr(&c.Postgres.Password, "DB_PASSWORD")
	setStr(&c.Postgres.Name, "DB_NAME")
	setStr(&c.Postgres.SSLMode, "DB_SSLMODE")
	setStr(&c.NATS.URL, "NATS_URL")
	setStr(&c.NATS.Subject, "NATS_SUBJECT")
	setInt(&c.Camera.PoolSize, "CAMERA_POOL_SIZE")
	setInt(&c.Resolver.Workers, "RESOLVER_WORKERS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) Validate() error {
	if c.Camera.Address == "" {
		return fmt.Errorf("camera.address is required")
	}
	if c.Camera.PoolSize < 1 {
		return fmt.Errorf("camera.pool_size must be >= 1")
	}
	if c.Resolver.Workers < 1 {
		return fmt.Errorf("resolver.workers must be >= 1")
	}
	if c.Resolver.MinPayloadBytes < 0 {
		return fmt.Errorf("resolver.min_payload_bytes must be >= 0")
	}
	return nil
}
