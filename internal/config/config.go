// ABOUTME: CLI settings loaded from file, environment and flags
// ABOUTME: Maps settings onto engine configuration and logging
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// FileName is the settings file looked up without --config
	FileName = "resonate-engine"

	// EnvPrefix prefixes environment overrides, e.g. RESONATE_LOG_LEVEL
	EnvPrefix = "RESONATE"
)

// ErrInvalidSettings wraps every validation failure
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the CLI configuration
type Settings struct {
	Backend string `mapstructure:"backend"`
	Device  string `mapstructure:"device"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`

	Engine struct {
		Headroom       int           `mapstructure:"headroom"`
		SoftwareVolume bool          `mapstructure:"software_volume"`
		ProbeCacheTTL  time.Duration `mapstructure:"probe_cache_ttl"`
		Buffer         time.Duration `mapstructure:"buffer"`
		Exclusive      bool          `mapstructure:"exclusive"`
	} `mapstructure:"engine"`
}

// New returns a viper instance with defaults and environment bindings
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("backend", "sim")
	v.SetDefault("device", "default")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("engine.headroom", 3)
	v.SetDefault("engine.software_volume", true)
	v.SetDefault("engine.probe_cache_ttl", 30*time.Second)
	v.SetDefault("engine.buffer", 100*time.Millisecond)
	v.SetDefault("engine.exclusive", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the settings file, if any, and decodes the result.
// An empty path searches the working directory and ~/.config/resonate-engine.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("Read config file")
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings against registered backends and engine limits
func (s *Settings) Validate() error {
	if !slices.Contains(device.Backends(), s.Backend) {
		return fmt.Errorf("%w: backend %q (available: %s)", ErrInvalidSettings, s.Backend, strings.Join(device.Backends(), ", "))
	}
	if _, err := logrus.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q (text or json)", ErrInvalidSettings, s.Log.Format)
	}
	if s.Engine.Headroom < 1 {
		return fmt.Errorf("%w: engine.headroom must be at least 1", ErrInvalidSettings)
	}
	if s.Engine.Buffer <= 0 {
		return fmt.Errorf("%w: engine.buffer must be positive", ErrInvalidSettings)
	}
	return nil
}

// ClientConfig maps engine settings onto a Manager configuration
func (s *Settings) ClientConfig(registry *prometheus.Registry) client.Config {
	return client.Config{
		HeadroomFragments: s.Engine.Headroom,
		SoftwareVolume:    s.Engine.SoftwareVolume,
		ProbeCacheTTL:     s.Engine.ProbeCacheTTL,
		Registry:          registry,
	}
}

// ShareMode returns the share mode streams are opened with
func (s *Settings) ShareMode() client.ShareMode {
	if s.Engine.Exclusive {
		return client.ShareModeExclusive
	}
	return client.ShareModeShared
}

// Opener returns the configured device backend
func (s *Settings) Opener() (device.Opener, error) {
	return device.Backend(s.Backend)
}

// LogOutput opens log.file for appending, or returns fallback when unset.
// The returned closer is never nil.
func (s *Settings) LogOutput(fallback io.Writer) (io.Writer, io.Closer, error) {
	if s.Log.File == "" {
		return fallback, io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(s.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	return f, f, nil
}

// ConfigureLogging applies log level and format to the standard logrus logger
func (s *Settings) ConfigureLogging(out io.Writer) error {
	level, err := logrus.ParseLevel(s.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(out)

	if s.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
