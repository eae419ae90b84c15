package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffyaml"
)

// EnvVarPrefix maps flags to environment variables, e.g. --basepath to
// DCR_BASEPATH.
const EnvVarPrefix = "DCR"

var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the dcr server. It is loaded once at
// startup and shared read-only afterwards.
type Config struct {
	// Server configuration
	Host string `ff:"long: host, default: 0.0.0.0, usage: HTTP server host"`
	Port int    `ff:"long: port, default: 28657, usage: HTTP server port"`

	// Endpoint configuration
	BasePath    string `ff:"long: basepath, default: /dcr, usage: path prefix of the diagnostic endpoints"`
	Stamp       string `ff:"long: stamp, nodefault, usage: suffix appended to the version string"`
	Healthcheck bool   `ff:"long: healthcheck, default: true, usage: initial health check state (true or false) and false starts KO since setting DCR_HEALTHCHECK alone no longer does"`
	Logger      bool   `ff:"long: logger, default: true, usage: enable the logger endpoint (true or false) and false disables it since setting DCR_LOGGER alone no longer does"`
	MaxBodySize int64  `ff:"long: max-body-size, default: 10485760, usage: largest accepted request body in bytes (0 for no limit)"`

	// Asset configuration, empty means the embedded defaults
	StaticDir   string `ff:"long: static-dir, nodefault, usage: directory served outside the base path"`
	TemplateDir string `ff:"long: template-dir, nodefault, usage: directory holding index.html"`

	// Transport configuration
	ReadTimeout     time.Duration `ff:"long: read-timeout, default: 30s, usage: maximum duration for reading a request"`
	WriteTimeout    time.Duration `ff:"long: write-timeout, default: 30s, usage: maximum duration for writing a response"`
	IdleTimeout     time.Duration `ff:"long: idle-timeout, default: 2m, usage: keep-alive idle timeout"`
	ShutdownTimeout time.Duration `ff:"long: shutdown-timeout, default: 10s, usage: grace period for in-flight requests"`

	ConfigFile string `ff:"long: config, nodefault, usage: YAML configuration file"`
}

// NewFlagSet registers cfg's fields on a new flag set.
func NewFlagSet(name string, cfg *Config) (*ff.FlagSet, error) {
	flags := ff.NewFlagSet(name)
	if err := flags.AddStruct(cfg); err != nil {
		return nil, err
	}
	return flags, nil
}

// Options makes flags fall back to DCR_* environment variables and to the
// YAML file named by --config.
func Options() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(EnvVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
	}
}

// Validate checks ranges and normalizes the base path: a trailing slash is
// dropped and "/" becomes the empty prefix.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("%w: base path %q must start with /", ErrInvalid, c.BasePath)
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")
	if c.MaxBodySize < 0 {
		return fmt.Errorf("%w: max body size %d is negative", ErrInvalid, c.MaxBodySize)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
