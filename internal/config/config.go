// Package config loads pulse configuration with precedence ENV > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the full runtime configuration.
type AppConfig struct {
	// Core
	DataDir string
	Version string

	// Garmin Connect
	GarminDomain         string
	GarminEmail          string
	GarminConsumerKey    string
	GarminConsumerSecret string

	// Vault
	VaultPassphrase string

	// Sync
	SyncDays        int
	SyncConcurrency int
	SyncRetries     int
	SyncTimeout     time.Duration
	InitialSync     bool

	// API server
	ListenAddr   string
	APIToken     string
	RateLimitRPM int

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Coaching thresholds (hot-reloadable)
	Coach CoachConfig

	// Upstream resilience
	UpstreamRate        float64
	UpstreamBurst       int
	BreakerThreshold    int
	BreakerResetTimeout time.Duration

	// Observability
	LogLevel       string
	MetricsEnabled bool
	OTelEnabled    bool
	OTelEndpoint   string
	OTelExporter   string
	OTelSampling   float64
}

// CoachConfig holds the tunable scoring thresholds of the readiness engine.
type CoachConfig struct {
	SleepTargetHours   float64 `yaml:"sleepTargetHours"`
	HRVPenaltyWeight   float64 `yaml:"hrvPenaltyWeight"`
	SleepPenaltyWeight float64 `yaml:"sleepPenaltyWeight"`
	LoadPenaltyWeight  float64 `yaml:"loadPenaltyWeight"`
	MinBaselineSamples int     `yaml:"minBaselineSamples"`
}

// fileConfig is the YAML schema of the optional config file.
type fileConfig struct {
	DataDir string `yaml:"dataDir"`
	Garmin  struct {
		Domain         string `yaml:"domain"`
		Email          string `yaml:"email"`
		ConsumerKey    string `yaml:"consumerKey"`
		ConsumerSecret string `yaml:"consumerSecret"`
	} `yaml:"garmin"`
	Sync struct {
		Days        int    `yaml:"days"`
		Concurrency int    `yaml:"concurrency"`
		Retries     int    `yaml:"retries"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"sync"`
	API struct {
		ListenAddr   string `yaml:"listenAddr"`
		RateLimitRPM int    `yaml:"rateLimitRPM"`
	} `yaml:"api"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Coach    *CoachConfig `yaml:"coach"`
	LogLevel string       `yaml:"logLevel"`
}

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// DefaultCoachConfig returns the stock readiness thresholds.
func DefaultCoachConfig() CoachConfig {
	return CoachConfig{
		SleepTargetHours:   8.0,
		HRVPenaltyWeight:   12.0,
		SleepPenaltyWeight: 8.0,
		LoadPenaltyWeight:  6.0,
		MinBaselineSamples: 3,
	}
}

// Load loads configuration in strict order: defaults -> file -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{
		DataDir:             "/var/lib/pulse",
		Version:             l.version,
		GarminDomain:        "garmin.com",
		SyncDays:            14,
		SyncConcurrency:     4,
		SyncRetries:         2,
		SyncTimeout:         15 * time.Second,
		InitialSync:         true,
		ListenAddr:          ":8080",
		RateLimitRPM:        60,
		CacheTTL:            5 * time.Minute,
		Coach:               DefaultCoachConfig(),
		UpstreamRate:        5,
		UpstreamBurst:       10,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
		LogLevel:            "info",
		MetricsEnabled:      true,
		OTelExporter:        "grpc",
		OTelSampling:        0.1,
	}

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	// DataDir must be absolute to keep path confinement meaningful.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return err
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.Garmin.Domain != "" {
		cfg.GarminDomain = fc.Garmin.Domain
	}
	if fc.Garmin.Email != "" {
		cfg.GarminEmail = fc.Garmin.Email
	}
	if fc.Garmin.ConsumerKey != "" {
		cfg.GarminConsumerKey = fc.Garmin.ConsumerKey
	}
	if fc.Garmin.ConsumerSecret != "" {
		cfg.GarminConsumerSecret = fc.Garmin.ConsumerSecret
	}
	if fc.Sync.Days > 0 {
		cfg.SyncDays = fc.Sync.Days
	}
	if fc.Sync.Concurrency > 0 {
		cfg.SyncConcurrency = fc.Sync.Concurrency
	}
	if fc.Sync.Retries > 0 {
		cfg.SyncRetries = fc.Sync.Retries
	}
	if fc.Sync.Timeout != "" {
		d, err := time.ParseDuration(fc.Sync.Timeout)
		if err != nil {
			return fmt.Errorf("sync.timeout: %w", err)
		}
		cfg.SyncTimeout = d
	}
	if fc.API.ListenAddr != "" {
		cfg.ListenAddr = fc.API.ListenAddr
	}
	if fc.API.RateLimitRPM > 0 {
		cfg.RateLimitRPM = fc.API.RateLimitRPM
	}
	if fc.Redis.Addr != "" {
		cfg.RedisAddr = fc.Redis.Addr
		cfg.RedisPassword = fc.Redis.Password
		cfg.RedisDB = fc.Redis.DB
	}
	if fc.Coach != nil {
		mergeCoach(&cfg.Coach, *fc.Coach)
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	return nil
}

func mergeCoach(dst *CoachConfig, src CoachConfig) {
	if src.SleepTargetHours > 0 {
		dst.SleepTargetHours = src.SleepTargetHours
	}
	if src.HRVPenaltyWeight > 0 {
		dst.HRVPenaltyWeight = src.HRVPenaltyWeight
	}
	if src.SleepPenaltyWeight > 0 {
		dst.SleepPenaltyWeight = src.SleepPenaltyWeight
	}
	if src.LoadPenaltyWeight > 0 {
		dst.LoadPenaltyWeight = src.LoadPenaltyWeight
	}
	if src.MinBaselineSamples > 0 {
		dst.MinBaselineSamples = src.MinBaselineSamples
	}
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("PULSE_DATA", cfg.DataDir)
	cfg.GarminDomain = ParseString("PULSE_GARMIN_DOMAIN", cfg.GarminDomain)
	cfg.GarminEmail = ParseString("PULSE_GARMIN_EMAIL", cfg.GarminEmail)
	cfg.GarminConsumerKey = ParseString("PULSE_GARMIN_CONSUMER_KEY", cfg.GarminConsumerKey)
	cfg.GarminConsumerSecret = ParseString("PULSE_GARMIN_CONSUMER_SECRET", cfg.GarminConsumerSecret)
	cfg.VaultPassphrase = ParseString("PULSE_VAULT_PASSPHRASE", cfg.VaultPassphrase)
	cfg.SyncDays = ParseInt("PULSE_SYNC_DAYS", cfg.SyncDays)
	cfg.SyncConcurrency = ParseInt("PULSE_SYNC_CONCURRENCY", cfg.SyncConcurrency)
	cfg.SyncRetries = ParseInt("PULSE_SYNC_RETRIES", cfg.SyncRetries)
	cfg.SyncTimeout = ParseDuration("PULSE_SYNC_TIMEOUT", cfg.SyncTimeout)
	cfg.InitialSync = ParseBool("PULSE_INITIAL_SYNC", cfg.InitialSync)
	cfg.ListenAddr = ParseString("PULSE_LISTEN", cfg.ListenAddr)
	cfg.APIToken = ParseString("PULSE_API_TOKEN", cfg.APIToken)
	cfg.RateLimitRPM = ParseInt("PULSE_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RedisAddr = ParseString("PULSE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("PULSE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("PULSE_REDIS_DB", cfg.RedisDB)
	cfg.CacheTTL = ParseDuration("PULSE_CACHE_TTL", cfg.CacheTTL)
	cfg.UpstreamRate = ParseFloat("PULSE_UPSTREAM_RATE", cfg.UpstreamRate)
	cfg.UpstreamBurst = ParseInt("PULSE_UPSTREAM_BURST", cfg.UpstreamBurst)
	cfg.BreakerThreshold = ParseInt("PULSE_BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerResetTimeout = ParseDuration("PULSE_BREAKER_RESET", cfg.BreakerResetTimeout)
	cfg.LogLevel = ParseString("PULSE_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = ParseBool("PULSE_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OTelEnabled = ParseBool("PULSE_OTEL_ENABLED", cfg.OTelEnabled)
	cfg.OTelEndpoint = ParseString("PULSE_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.OTelExporter = ParseString("PULSE_OTEL_EXPORTER", cfg.OTelExporter)
	cfg.OTelSampling = ParseFloat("PULSE_OTEL_SAMPLING", cfg.OTelSampling)
}

// Validation errors.
var (
	ErrDataDirEmpty   = errors.New("config: data dir is empty")
	ErrBadListenAddr  = errors.New("config: invalid listen address")
	ErrBadSyncBounds  = errors.New("config: sync bounds out of range")
	ErrBadCoachConfig = errors.New("config: invalid coach thresholds")
)

// Validate fails fast on configuration that cannot possibly work.
func Validate(cfg AppConfig) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadListenAddr, cfg.ListenAddr, err)
	}
	if cfg.SyncDays < 1 || cfg.SyncDays > 365 {
		return fmt.Errorf("%w: days=%d (want 1..365)", ErrBadSyncBounds, cfg.SyncDays)
	}
	if cfg.SyncConcurrency < 1 || cfg.SyncConcurrency > 8 {
		return fmt.Errorf("%w: concurrency=%d (want 1..8)", ErrBadSyncBounds, cfg.SyncConcurrency)
	}
	if cfg.SyncRetries < 0 || cfg.SyncRetries > 10 {
		return fmt.Errorf("%w: retries=%d (want 0..10)", ErrBadSyncBounds, cfg.SyncRetries)
	}
	if cfg.Coach.SleepTargetHours <= 0 || cfg.Coach.MinBaselineSamples < 1 {
		return ErrBadCoachConfig
	}
	return nil
}
