package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"posebridge/pkg/render"
)

const (
	DefaultConfigPath = "posed.toml"
	EnvPrefix         = "POSED_"
)

type Config struct {
	Receiver   ReceiverConfig `toml:"receiver" envPrefix:"RECEIVER_"`
	Consumer   ConsumerConfig `toml:"consumer" envPrefix:"CONSUMER_"`
	Foxglove   FoxgloveConfig `toml:"foxglove" envPrefix:"FOXGLOVE_"`
	Log        LogConfig      `toml:"log" envPrefix:"LOG_"`
	configPath string         `toml:"-"`
}

// ReceiverConfig holds the two listening addresses. The first client is
// accepted on PrimaryAddr, every client after a disconnect on
// FallbackAddr. Set both to the same address to serve a single port.
type ReceiverConfig struct {
	PrimaryAddr  string `toml:"primary_addr" env:"PRIMARY_ADDR"`
	FallbackAddr string `toml:"fallback_addr" env:"FALLBACK_ADDR"`
	ReadTimeout  string `toml:"read_timeout,omitempty" env:"READ_TIMEOUT"`
}

type ConsumerConfig struct {
	Tick  string       `toml:"tick" env:"TICK"`
	Scale render.Scale `toml:"scale" envPrefix:"SCALE_"`
}

type FoxgloveConfig struct {
	Enabled     bool    `toml:"enabled" env:"ENABLED"`
	WSAddr      string  `toml:"ws_addr" env:"WS_ADDR"`
	ParentFrame string  `toml:"parent_frame" env:"PARENT_FRAME"`
	FrameID     string  `toml:"frame_id" env:"FRAME_ID"`
	MarkerSize  float64 `toml:"marker_size" env:"MARKER_SIZE"`
}

type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
	JSONL string `toml:"jsonl,omitempty" env:"JSONL"`
}

func Default() Config {
	return Config{
		Receiver: ReceiverConfig{
			PrimaryAddr:  "0.0.0.0:9999",
			FallbackAddr: "0.0.0.0:10000",
		},
		Consumer: ConsumerConfig{
			Tick:  "16ms",
			Scale: render.UnitScale(),
		},
		Foxglove: FoxgloveConfig{
			WSAddr:      "127.0.0.1:8765",
			ParentFrame: "world",
			FrameID:     "tracked",
			MarkerSize:  0.3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path if it exists, falling back to defaults, and
// applies POSED_* environment overrides on top.
func LoadOrDefault(path string) (Config, bool, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (Config, bool, error) {
	cfg := Default()
	exists := true

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, true, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		exists = false
	default:
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, exists, fmt.Errorf("parse env: %w", err)
	}

	cfg.configPath = path
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, exists, err
	}
	return cfg, exists, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cfg.configPath = path
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

func (cfg *Config) Validate() error {
	if cfg.Receiver.PrimaryAddr == "" {
		return fmt.Errorf("receiver.primary_addr is empty")
	}
	if cfg.Receiver.FallbackAddr == "" {
		return fmt.Errorf("receiver.fallback_addr is empty")
	}
	if cfg.Receiver.ReadTimeout != "" {
		d, err := time.ParseDuration(cfg.Receiver.ReadTimeout)
		if err != nil {
			return fmt.Errorf("receiver.read_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("receiver.read_timeout must not be negative: %s", d)
		}
	}

	tick, err := time.ParseDuration(cfg.Consumer.Tick)
	if err != nil {
		return fmt.Errorf("consumer.tick: %w", err)
	}
	if tick <= 0 {
		return fmt.Errorf("consumer.tick must be positive: %s", tick)
	}
	for axis, v := range map[string]float64{"x": cfg.Consumer.Scale.X, "y": cfg.Consumer.Scale.Y, "z": cfg.Consumer.Scale.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("consumer.scale.%s is not finite", axis)
		}
	}

	if cfg.Foxglove.Enabled && cfg.Foxglove.WSAddr == "" {
		return fmt.Errorf("foxglove.ws_addr is empty")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// TickDuration returns the consumer tick. Call after Validate.
func (cfg *Config) TickDuration() time.Duration {
	d, err := time.ParseDuration(cfg.Consumer.Tick)
	if err != nil || d <= 0 {
		return render.DefaultTick
	}
	return d
}

// ReadTimeoutDuration returns zero when no read timeout is configured.
func (cfg *Config) ReadTimeoutDuration() time.Duration {
	if cfg.Receiver.ReadTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.Receiver.ReadTimeout)
	if err != nil {
		return 0
	}
	return d
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (cfg *Config) normalize() {
	def := Default()

	cfg.Receiver.PrimaryAddr = strings.TrimSpace(cfg.Receiver.PrimaryAddr)
	cfg.Receiver.FallbackAddr = strings.TrimSpace(cfg.Receiver.FallbackAddr)
	if cfg.Receiver.PrimaryAddr == "" {
		cfg.Receiver.PrimaryAddr = def.Receiver.PrimaryAddr
	}
	if cfg.Receiver.FallbackAddr == "" {
		cfg.Receiver.FallbackAddr = def.Receiver.FallbackAddr
	}

	if cfg.Consumer.Tick == "" {
		cfg.Consumer.Tick = def.Consumer.Tick
	}
	if cfg.Consumer.Scale == (render.Scale{}) {
		cfg.Consumer.Scale = def.Consumer.Scale
	}

	if cfg.Foxglove.WSAddr == "" {
		cfg.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if cfg.Foxglove.ParentFrame == "" {
		cfg.Foxglove.ParentFrame = def.Foxglove.ParentFrame
	}
	if cfg.Foxglove.FrameID == "" {
		cfg.Foxglove.FrameID = def.Foxglove.FrameID
	}
	if cfg.Foxglove.MarkerSize <= 0 {
		cfg.Foxglove.MarkerSize = def.Foxglove.MarkerSize
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}
