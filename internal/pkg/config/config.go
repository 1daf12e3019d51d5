// Package config loads the service configuration from a YAML file and lets environment
// variables override individual settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service   string          `yaml:"service"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	Seed      SeedConfig      `yaml:"seed"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig with an empty Addr disables the menu cache.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// KafkaConfig with no brokers selects the in-process event bus.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Environment string  `yaml:"environment"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SeedConfig names the outlet directory and the optional catalog loaded at startup.
type SeedConfig struct {
	Directory string `yaml:"directory"`
	Catalog   string `yaml:"catalog"`
}

// WorkerConfig tunes the recompute worker and the periodic opening-hours sweep.
type WorkerConfig struct {
	BusBuffer      int           `yaml:"bus_buffer"`
	TimeWindowTick time.Duration `yaml:"time_window_tick"`
}

func Default() Config {
	return Config{
		Service: "kitchen-admission",
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		GRPC:    GRPCConfig{Addr: ":9090"},
		Store:   StoreConfig{Path: "data/admission.db"},
		Kafka: KafkaConfig{
			Topic:        "stock-changed",
			GroupID:      "availability-worker",
			BatchTimeout: 10 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{Endpoint: "localhost:4317", Environment: "local", SampleRatio: 1},
		Log:       LogConfig{Level: "info"},
		Seed:      SeedConfig{Directory: "configs/directory.yaml"},
		Worker:    WorkerConfig{BusBuffer: 256, TimeWindowTick: time.Minute},
	}
}

// Load reads path over the defaults and then applies the environment. A missing file is
// not an error: defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OTEL_SERVICE_NAME", &c.Service)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("GRPC_ADDR", &c.GRPC.Addr)
	str("DB_PATH", &c.Store.Path)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_GROUP_ID", &c.Kafka.GroupID)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("DIRECTORY_FILE", &c.Seed.Directory)
	str("CATALOG_FILE", &c.Seed.Catalog)

	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup("OTEL_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: OTEL_ENABLED: %w", err)
		}
		c.Telemetry.Enabled = enabled
	}
	if v, ok := lookup("OTEL_TRACES_SAMPLER_ARG"); ok && v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		c.Telemetry.SampleRatio = ratio
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Seed.Directory == "" {
		errs = append(errs, errors.New("seed.directory is required"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be within [0, 1]"))
	}
	if c.Worker.TimeWindowTick < 0 {
		errs = append(errs, errors.New("worker.time_window_tick must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
