package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WorkerConfig is the master configuration for the worker process.
// Loaded once at startup from an optional YAML file plus environment
// variables; components receive the values they need as plain parameters.
type WorkerConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogLevel       string `mapstructure:"log_level"`

	TemporalHost  string `mapstructure:"temporal_host"`
	BrainEndpoint string `mapstructure:"brain_endpoint"`
	RedisAddr     string `mapstructure:"redis_addr"`

	GRPCPort    int `mapstructure:"grpc_port"`
	MetricsPort int `mapstructure:"metrics_port"`

	TenantID     string `mapstructure:"tenant_id"`
	InstanceName string `mapstructure:"instance_name"`
	Tenants      string `mapstructure:"tenants"` // comma-separated tenant ids served by this instance

	Auth      AuthConfig      `mapstructure:"auth"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Retention RetentionConfig `mapstructure:"retention"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// AuthConfig controls token validation on the control plane.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// Enforcement is one of off|warn|enforce. In warn mode missing tokens
	// are logged but allowed; in enforce mode they are denied.
	Enforcement string        `mapstructure:"enforcement"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// PolicyConfig controls the OPA policy engine for sub-agent execution.
type PolicyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	Mode       string `mapstructure:"mode"` // off|warn|enforce
	FailClosed bool   `mapstructure:"fail_closed"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// RetentionConfig holds defaults for the episodic retention job.
type RetentionConfig struct {
	Days      int  `mapstructure:"days"`
	BatchSize int  `mapstructure:"batch_size"`
	Distill   bool `mapstructure:"distill"`
}

// DatabaseConfig holds the staging database connection parameters.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// TenantList splits the configured tenants string into ids.
func (c *WorkerConfig) TenantList() []string {
	if c.Tenants == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(c.Tenants, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func defaults(v *viper.Viper) {
	v.SetDefault("service_name", "contextworker")
	v.SetDefault("service_version", "0.1.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("temporal_host", "localhost:7233")
	v.SetDefault("brain_endpoint", "localhost:50051")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("grpc_port", 50052)
	v.SetDefault("metrics_port", 2112)
	v.SetDefault("tenant_id", "default")
	v.SetDefault("instance_name", "default")
	v.SetDefault("auth.enforcement", "warn")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("policy.mode", "off")
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.batch_size", 100)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "contextworker")
	v.SetDefault("database.database", "contextworker")
	v.SetDefault("database.sslmode", "disable")
}

// Load reads configuration from CONFIG_PATH (or ./worker.yaml if present)
// with environment variable overrides (e.g. TEMPORAL_HOST, AUTH_ENFORCEMENT).
// A missing config file is not an error; env and defaults still apply.
func Load() (*WorkerConfig, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("worker.yaml"); err == nil {
			cfgPath = "worker.yaml"
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
