package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       struct {
			Burst     float64 `yaml:"burst" default:"10" validate:"gte=1"`
			PerSecond float64 `yaml:"per_second" default:"2" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"dashboard.logs"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100" validate:"min=1"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Stream struct {
		URL              string        `yaml:"url" default:"ws://localhost:8000/ws" validate:"required,url"`
		HeartbeatPeriod  time.Duration `yaml:"heartbeat_interval" default:"5s" validate:"gt=0"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"10s" validate:"gt=0"`
		DispatchBuffer   int           `yaml:"dispatch_buffer" default:"256" validate:"min=1"`
		AutoOpen         bool          `yaml:"auto_open" default:"true"`
		Reconnect        struct {
			Delay      time.Duration `yaml:"delay" default:"3s" validate:"gt=0"`
			Multiplier float64       `yaml:"multiplier" default:"1" validate:"gte=1"`
			MaxDelay   time.Duration `yaml:"max_delay" default:"1m"`
			MaxRetries uint64        `yaml:"max_retries"` // 0 = unbounded
		} `yaml:"reconnect"`
	} `yaml:"stream"`
	API struct {
		BaseURL string        `yaml:"base_url" default:"http://localhost:8000" validate:"required,url"`
		Timeout time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	} `yaml:"api"`
	Market struct {
		Symbols         []string      `yaml:"symbols"`
		ActiveSymbol    string        `yaml:"active_symbol" default:"XU100" validate:"required"`
		HistoryCacheTTL time.Duration `yaml:"history_cache_ttl" default:"5m"`
	} `yaml:"market"`
	Cache struct {
		Type       string `yaml:"type" default:"memory" validate:"oneof=memory redis none"`
		Addr       string `yaml:"addr" default:"localhost:6379"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		Prefix     string `yaml:"prefix" default:"dashboard"`
		PoolSize   int    `yaml:"pool_size" default:"10" validate:"min=1"`
		MaxEntries int    `yaml:"max_entries" default:"512" validate:"min=1"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		AlertsTopic  string   `yaml:"alerts_topic" default:"dashboard.alerts"`
		StatusTopic  string   `yaml:"status_topic" default:"dashboard.status"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
			AutoCreate   bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Values missing from the
// file keep their struct defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies
// environment overrides. A missing YAML file falls back to defaults.
func LoadWithEnv(path string) (*Config, error) {
	// .env is optional; real environment wins over it
	_ = godotenv.Load()

	var (
		c   *Config
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DASHBOARD_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("DASHBOARD_STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("DASHBOARD_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := util.SplitCSV(os.Getenv("DASHBOARD_SYMBOLS")); len(v) > 0 {
		c.Market.Symbols = v
	}
	if v := os.Getenv("DASHBOARD_HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := util.SplitCSV(os.Getenv("KAFKA_BROKERS")); len(v) > 0 {
		c.Kafka.Brokers = v
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
		c.Cache.Type = "redis"
	}
}

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Stream.Reconnect.Multiplier > 1 && c.Stream.Reconnect.MaxDelay < c.Stream.Reconnect.Delay {
		return fmt.Errorf("stream.reconnect.max_delay must be >= stream.reconnect.delay")
	}
	return nil
}
