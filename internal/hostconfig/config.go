// Package hostconfig loads the YAML bootstrap configuration for a
// novarmi host process: which transport to listen on, broker pool
// sizing, DGC cadence, and which optional subsystems (metrics,
// tracing, audit) are enabled.
package hostconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportConfig selects and configures the listening transport.
type TransportConfig struct {
	Kind string `yaml:"kind"` // tcp, vsock
	TCP  struct {
		Addr        string        `yaml:"addr"`
		DialTimeout time.Duration `yaml:"dialTimeout,omitempty"`
		LowLatency  bool          `yaml:"lowLatency,omitempty"`
		SockBufSize int           `yaml:"sockBufSize,omitempty"`
	} `yaml:"tcp,omitempty"`
	VSock struct {
		ContextID  uint32 `yaml:"contextID,omitempty"`
		Port       uint32 `yaml:"port,omitempty"`
		ListenPort uint32 `yaml:"listenPort,omitempty"`
	} `yaml:"vsock,omitempty"`
}

// BrokerConfig controls invocation channel pooling.
type BrokerConfig struct {
	IdleTTL         time.Duration `yaml:"idleTTL,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty"`
	MaxChannels     int           `yaml:"maxChannels,omitempty"`
}

// DGCConfig controls the distributed-GC live-set exchange cadence and
// optional cross-restart version persistence.
type DGCConfig struct {
	Interval        time.Duration `yaml:"interval,omitempty"`
	RedisAddr       string        `yaml:"redisAddr,omitempty"`
	RedisPassword   string        `yaml:"redisPassword,omitempty"`
	RedisDB         int           `yaml:"redisDB,omitempty"`
}

// MetricsConfig controls the Prometheus collector surface.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"`
	Addr      string `yaml:"addr,omitempty"` // where to serve /metrics, if the host wants novarmi to own it
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter,omitempty"` // otlp-http, noop
	Endpoint    string  `yaml:"endpoint,omitempty"`
	ServiceName string  `yaml:"serviceName,omitempty"`
	SampleRate  float64 `yaml:"sampleRate,omitempty"`
}

// AuditConfig controls the optional durable invocation audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn,omitempty"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json
}

// Config is the complete host bootstrap configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Broker    BrokerConfig    `yaml:"broker,omitempty"`
	DGC       DGCConfig       `yaml:"dgc,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
	Audit     AuditConfig     `yaml:"audit,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// Default returns a Config with sensible defaults for a TCP-listening
// host with tracing, audit, and a Redis-backed DGC version store all
// disabled.
func Default() *Config {
	cfg := &Config{
		Transport: TransportConfig{Kind: "tcp"},
		Broker: BrokerConfig{
			IdleTTL:         60 * time.Second,
			CleanupInterval: 10 * time.Second,
		},
		DGC: DGCConfig{
			Interval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "novarmi",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "novarmi",
			SampleRate:  1.0,
		},
		Audit: AuditConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	cfg.Transport.TCP.Addr = "127.0.0.1:4567"
	return cfg
}

// LoadFromFile reads and parses a YAML config file, starting from
// Default() so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies NOVARMI_* environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NOVARMI_TRANSPORT_KIND"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv("NOVARMI_TCP_ADDR"); v != "" {
		cfg.Transport.TCP.Addr = v
	}
	if v := os.Getenv("NOVARMI_VSOCK_PORT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Transport.VSock.Port = uint32(n)
		}
	}
	if v := os.Getenv("NOVARMI_BROKER_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Broker.IdleTTL = d
		}
	}
	if v := os.Getenv("NOVARMI_BROKER_MAX_CHANNELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broker.MaxChannels = n
		}
	}
	if v := os.Getenv("NOVARMI_DGC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DGC.Interval = d
		}
	}
	if v := os.Getenv("NOVARMI_DGC_REDIS_ADDR"); v != "" {
		cfg.DGC.RedisAddr = v
	}
	if v := os.Getenv("NOVARMI_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("NOVARMI_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("NOVARMI_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("NOVARMI_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}
	if v := os.Getenv("NOVARMI_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("NOVARMI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOVARMI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
