// Package config resolves the kmsflip settings from defaults, an
// optional config file, KMSFLIP_* environment variables and command
// line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/display"
	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/present"
)

const EnvPrefix = "KMSFLIP"

// Keys, also the long flag names.
const (
	KeyAll         = "all"
	KeyConnector   = "connector"
	KeyFrames      = "frames"
	KeyDrivers     = "drivers"
	KeyCard        = "card"
	KeyBuffers     = "buffers"
	KeyFlipTimeout = "flip-timeout"
	KeyLogLevel    = "log-level"
	KeyImage       = "image"
	KeyConfig      = "config"
)

// ProbeDrivers is the card value that selects the card by driver name.
const ProbeDrivers = -1

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	AllOutputs  bool          `mapstructure:"all"`
	Connector   uint32        `mapstructure:"connector"`
	Frames      int           `mapstructure:"frames"`
	Drivers     []string      `mapstructure:"drivers"`
	Card        int           `mapstructure:"card"`
	Buffers     int           `mapstructure:"buffers"`
	FlipTimeout time.Duration `mapstructure:"flip-timeout"`
	LogLevel    string        `mapstructure:"log-level"`
	Image       string        `mapstructure:"image"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAll, false)
	v.SetDefault(KeyConnector, 0)
	v.SetDefault(KeyFrames, 0)
	v.SetDefault(KeyDrivers, drm.DefaultDrivers)
	v.SetDefault(KeyCard, ProbeDrivers)
	v.SetDefault(KeyBuffers, buffer.MinBuffers)
	v.SetDefault(KeyFlipTimeout, present.DefaultFlipTimeout)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyImage, "")
}

// Load resolves the configuration. flags may be nil; a "config" flag
// names a config file to read.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Drivers = splitAndTrim(cfg.Drivers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Frames < 0 {
		return fmt.Errorf("%w: negative frame count %d", ErrInvalid, c.Frames)
	}
	if c.Buffers < buffer.MinBuffers {
		return fmt.Errorf("%w: at least %d buffers are needed, got %d",
			ErrInvalid, buffer.MinBuffers, c.Buffers)
	}
	if c.FlipTimeout <= 0 {
		return fmt.Errorf("%w: flip timeout must be positive", ErrInvalid)
	}
	if c.Card < ProbeDrivers {
		return fmt.Errorf("%w: card %d", ErrInvalid, c.Card)
	}
	if c.Card == ProbeDrivers && len(c.Drivers) == 0 {
		return fmt.Errorf("%w: no driver to probe", ErrInvalid)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c *Config) Display() display.Config {
	return display.Config{
		Connector:  c.Connector,
		AllOutputs: c.AllOutputs,
	}
}

func (c *Config) Present() present.Config {
	return present.Config{
		Frames:      uint64(c.Frames),
		FlipTimeout: c.FlipTimeout,
	}
}

// splitAndTrim accepts both list values and comma separated entries.
func splitAndTrim(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
