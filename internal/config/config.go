package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/cssclass"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/urlsync"
	"github.com/vango-dev/statekit/pkg/validate"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "statekit.yaml"

	// DefaultPort is the default server port.
	DefaultPort = 3000

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultShutdownTimeout bounds graceful server shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// fileNames are tried in order by Load.
var fileNames = []string{ConfigFileName, "statekit.yml", "statekit.json"}

// Config represents a complete statekit configuration file.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// URL contains the fragment encoding settings.
	URL URLConfig `json:"url" yaml:"url"`

	// StateCSS lists the state keys projected to CSS classes.
	StateCSS []string `json:"stateCss,omitempty" yaml:"stateCss,omitempty"`

	// Params maps state keys to their validation rules.
	Params map[string]ParamConfig `json:"params,omitempty" yaml:"params,omitempty"`

	// Server contains HTTP bridge settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// URLConfig contains the fragment encoding settings.
type URLConfig struct {
	// Base is the marker that starts the encoded state (default: "#").
	Base string `json:"base,omitempty" yaml:"base,omitempty"`

	// Delimiter joins sequence values (default: "|").
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	// NoURL disables URL writes. The URL is still read on load.
	NoURL bool `json:"noUrl,omitempty" yaml:"noUrl,omitempty"`
}

// ParamConfig contains the rules for one state key.
type ParamConfig struct {
	// Pattern is a regular expression the whole value must match.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// OneOf lists the allowed values.
	OneOf []string `json:"oneOf,omitempty" yaml:"oneOf,omitempty"`

	// Default is applied on load when the URL has no value for the key.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// ServerConfig contains HTTP bridge settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Metrics exposes /metrics when true.
	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "5s").
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Duration wraps time.Duration for YAML and JSON unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		URL: URLConfig{
			Base:      urlsync.DefaultBase,
			Delimiter: urlsync.DefaultDelimiter,
		},
		Params: map[string]ParamConfig{},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from dir, trying statekit.yaml, statekit.yml
// and statekit.json in that order.
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New(errors.CodeConfigNotFound).
		WithDetail("No statekit.yaml or statekit.json found in " + dir).
		WithSuggestion("Run 'statekit init' to create one")
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No config file at " + path)
		}
		return nil, errors.New(errors.CodeConfigParse).Wrap(err)
	}

	cfg, err := Parse(data, isJSON(path))
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Location != nil {
			e.WithLocation(path, e.Location.Line, 0)
		}
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Parse decodes a configuration document. When asJSON is false the data is
// read as YAML.
func Parse(data []byte, asJSON bool) (*Config, error) {
	cfg := New()

	var err error
	if asJSON {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		e := errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse config: " + err.Error())
		if line := errorLine(data, err); line > 0 {
			e.Location = &errors.Location{Line: line}
		}
		return nil, e
	}

	cfg.applyDefaults()
	return cfg, nil
}

func errorLine(data []byte, err error) int {
	if syn, ok := err.(*json.SyntaxError); ok {
		return 1 + strings.Count(string(data[:syn.Offset]), "\n")
	}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// SaveTo writes the configuration to path, as JSON or YAML by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.URL.Base == "" {
		c.URL.Base = urlsync.DefaultBase
	}
	if c.URL.Delimiter == "" {
		c.URL.Delimiter = urlsync.DefaultDelimiter
	}
	if c.Params == nil {
		c.Params = map[string]ParamConfig{}
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if strings.ContainsAny(c.URL.Delimiter, "&=") {
		errs = multierr.Append(errs, fmt.Errorf("url.delimiter %q must not contain '&' or '='", c.URL.Delimiter))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = multierr.Append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for _, key := range c.ParamKeys() {
		if p := c.Params[key].Pattern; p != "" {
			if _, err := validate.Pattern(p); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("params.%s.pattern: %w", key, err))
			}
		}
	}

	if errs != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(errs)
	}
	return nil
}

// ParamKeys returns the configured state keys in sorted order.
func (c *Config) ParamKeys() []string {
	keys := lo.Keys(c.Params)
	slices.Sort(keys)
	return keys
}

// Specs converts the params section into validation specs.
func (c *Config) Specs() map[string]validate.Spec {
	specs := make(map[string]validate.Spec, len(c.Params))
	for key, p := range c.Params {
		var spec validate.Spec
		if p.Pattern != "" {
			spec.Validators = append(spec.Validators, p.Pattern)
		}
		if len(p.OneOf) > 0 {
			allowed := make([]any, len(p.OneOf))
			for i, v := range p.OneOf {
				allowed[i] = v
			}
			spec.Validators = append(spec.Validators, allowed)
		}
		spec.Default = p.Default
		specs[key] = spec
	}
	return specs
}

// Codec returns the fragment codec described by the url section.
func (c *Config) Codec() urlsync.Codec {
	return urlsync.Codec{Base: c.URL.Base, Delimiter: c.URL.Delimiter}
}

// Apply pushes the runtime switches into cs with a single notification.
func (c *Config) Apply(cs *configstore.Store) {
	cs.SetAll(map[string]any{
		state.NoURLKey:     c.URL.NoURL,
		cssclass.ConfigKey: strings.Join(c.StateCSS, cssclass.Delimiter),
	})
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Logger builds a slog.Logger writing to w according to the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}
