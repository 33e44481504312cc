// Package config handles configuration loading and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"github.com/zorak1103/tcfleet/internal/fleet"
	"github.com/zorak1103/tcfleet/internal/sanitize"
)

// Runtime drivers
const (
	DriverDocker         = "docker"
	DriverTestcontainers = "testcontainers"
)

// Config represents the application configuration
type Config struct {
	Runtime      RuntimeConfig      `mapstructure:"runtime" yaml:"runtime"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`

	// Containers is decoded separately to keep key case and document order.
	Containers []ContainerConfig `mapstructure:"-" yaml:"-"`

	// ConfigFilePath stores the path to the loaded config file (not marshaled from YAML)
	ConfigFilePath string `mapstructure:"-" yaml:"-"`
}

// RuntimeConfig contains container runtime settings
type RuntimeConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	SocketPath     string        `mapstructure:"socket_path" yaml:"socket_path"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	StrictPorts    bool          `mapstructure:"strict_ports" yaml:"strict_ports"`
}

// OutputConfig contains settings for exporting connection information
type OutputConfig struct {
	ManifestFile string `mapstructure:"manifest_file" yaml:"manifest_file"`
	EnvFile      string `mapstructure:"env_file" yaml:"env_file"`
	EnvPrefix    string `mapstructure:"env_prefix" yaml:"env_prefix"`
}

// NotificationConfig contains notification settings
type NotificationConfig struct {
	ShoutrrURL string `mapstructure:"shoutrrr_url" yaml:"shoutrrr_url"` // Shoutrrr URL format
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// ContainerConfig is one entry of the containers section.
type ContainerConfig struct {
	Key   string            `mapstructure:"-" yaml:"-"`
	Image string            `mapstructure:"image" yaml:"image"`
	Tag   string            `mapstructure:"tag" yaml:"tag"`
	Ports []int             `mapstructure:"ports" yaml:"ports,omitempty"`
	Name  string            `mapstructure:"name" yaml:"name,omitempty"`
	Env   map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Wait  *WaitConfig       `mapstructure:"wait" yaml:"wait,omitempty"`
}

// WaitConfig is the untyped readiness condition of a container entry.
type WaitConfig struct {
	Type    string `mapstructure:"type" yaml:"type"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Text    string `mapstructure:"text" yaml:"text,omitempty"`
}

// autoDetectDockerSocket determines the Docker socket path based on environment and platform.
func autoDetectDockerSocket() string {
	if os.Getenv("DOCKER_HOST") != "" {
		return os.Getenv("DOCKER_HOST")
	}
	// Check for Unix socket
	if _, err := os.Stat("/var/run/docker.sock"); err == nil {
		return "unix:///var/run/docker.sock"
	}
	// Default to Windows named pipe if Unix socket not found
	return "npipe:////./pipe/docker_engine"
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tcfleet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tcfleet")
		v.AddConfigPath("/etc/tcfleet")
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			configFile := v.ConfigFileUsed()
			if configFile == "" {
				configFile = configPath
			}
			return nil, fmt.Errorf("error reading config file from %s: %w", configFile, err)
		}
		// Config file not found; using defaults and env vars
	}

	// Environment variable support
	v.SetEnvPrefix("TCFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config from %s: %w", describeSource(v.ConfigFileUsed()), err)
	}

	cfg.ConfigFilePath = v.ConfigFileUsed()

	containers, err := loadContainers(v, cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	cfg.Containers = containers

	if cfg.Runtime.SocketPath == "" {
		cfg.Runtime.SocketPath = autoDetectDockerSocket()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %s: %w", describeSource(cfg.ConfigFilePath), err)
	}

	return &cfg, nil
}

func describeSource(path string) string {
	if path == "" {
		return "(using defaults and environment variables)"
	}
	return path
}

func setDefaults(v *viper.Viper) {
	// Runtime defaults
	v.SetDefault("runtime.driver", DriverDocker)
	v.SetDefault("runtime.socket_path", "") // Required for AutomaticEnv to work
	v.SetDefault("runtime.startup_timeout", "60s")
	v.SetDefault("runtime.max_concurrency", 0)
	v.SetDefault("runtime.strict_ports", false)

	// Output defaults
	v.SetDefault("output.manifest_file", "")
	v.SetDefault("output.env_file", "")
	v.SetDefault("output.env_prefix", "TESTCONTAINERS")

	// Notification defaults
	v.SetDefault("notification.shoutrrr_url", "") // Required for AutomaticEnv to work
	v.SetDefault("notification.enabled", false)
}

// loadContainers decodes the containers section. YAML files are read directly
// so environment variable names keep their case and services keep their
// document order; other formats fall back to viper with sorted keys.
func loadContainers(v *viper.Viper, path string) ([]ContainerConfig, error) {
	if path == "" {
		return nil, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path) // #nosec G304 -- path is the config file chosen by the user
		if err != nil {
			return nil, fmt.Errorf("failed to read containers from %s: %w", path, err)
		}
		return decodeContainersYAML(data, path)
	default:
		var raw map[string]ContainerConfig
		rejectUnknown := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
		if err := v.UnmarshalKey("containers", &raw, rejectUnknown); err != nil {
			return nil, &apperrors.ConfigurationError{ConfigPath: path, Key: "containers", Err: err}
		}
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		containers := make([]ContainerConfig, 0, len(keys))
		for _, k := range keys {
			c := raw[k]
			c.Key = k
			containers = append(containers, c)
		}
		return containers, nil
	}
}

func decodeContainersYAML(data []byte, path string) ([]ContainerConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &apperrors.ConfigurationError{ConfigPath: path, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil
	}

	var section *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "containers" {
			section = root.Content[i+1]
			break
		}
	}
	if section == nil || section.Tag == "!!null" {
		return nil, nil
	}
	if section.Kind != yaml.MappingNode {
		return nil, &apperrors.ConfigurationError{
			ConfigPath: path,
			Key:        "containers",
			Err:        fmt.Errorf("expected a mapping of service names, got line %d", section.Line),
		}
	}

	containers := make([]ContainerConfig, 0, len(section.Content)/2)
	for i := 0; i+1 < len(section.Content); i += 2 {
		key := section.Content[i].Value
		var c ContainerConfig
		if err := decodeStrict(section.Content[i+1], &c); err != nil {
			return nil, &apperrors.ConfigurationError{
				ConfigPath: path,
				Key:        "containers." + key,
				Err:        fmt.Errorf("entry at line %d: %w", section.Content[i].Line, err),
			}
		}
		c.Key = key
		containers = append(containers, c)
	}
	return containers, nil
}

// decodeStrict decodes node into out, failing on fields out does not declare.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate ensures all required fields are set and values are within valid ranges.
func (c *Config) Validate() error {
	if err := c.validateRuntime(); err != nil {
		return err
	}
	_, err := c.Fleet()
	return err
}

func (c *Config) validateRuntime() error {
	switch c.Runtime.Driver {
	case DriverDocker, DriverTestcontainers:
	default:
		return c.configError("runtime.driver",
			fmt.Errorf("unknown driver %q (expected %q or %q)", c.Runtime.Driver, DriverDocker, DriverTestcontainers))
	}

	if c.Runtime.StartupTimeout <= 0 {
		return c.configError("runtime.startup_timeout",
			fmt.Errorf("must be positive, got %s", c.Runtime.StartupTimeout))
	}

	if c.Runtime.MaxConcurrency < 0 {
		return c.configError("runtime.max_concurrency",
			fmt.Errorf("must not be negative, got %d", c.Runtime.MaxConcurrency))
	}

	if c.Output.EnvPrefix == "" {
		return c.configError("output.env_prefix", errors.New("is required"))
	}
	return nil
}

// Fleet converts the containers section into a fleet configuration,
// validating every entry.
func (c *Config) Fleet() (fleet.FleetConfig, error) {
	out := make(fleet.FleetConfig, 0, len(c.Containers))
	seen := make(map[string]struct{}, len(c.Containers))
	envKeys := make(map[string]string, len(c.Containers))

	for _, cc := range c.Containers {
		prefix := "containers." + cc.Key

		if _, dup := seen[cc.Key]; dup {
			return nil, c.configError(prefix, errors.New("duplicate service key"))
		}
		seen[cc.Key] = struct{}{}

		envKey := sanitize.EnvKey(cc.Key)
		if other, clash := envKeys[envKey]; clash {
			return nil, c.configError(prefix,
				fmt.Errorf("service key collides with %q in exported variable names (%s)", other, envKey))
		}
		envKeys[envKey] = cc.Key

		if cc.Image == "" {
			return nil, c.configError(prefix+".image", errors.New("image is required"))
		}

		for i, p := range cc.Ports {
			if p < 1 || p > 65535 {
				return nil, c.configError(fmt.Sprintf("%s.ports[%d]", prefix, i),
					fmt.Errorf("port must be between 1 and 65535, got %d", p))
			}
		}

		var wait fleet.WaitSpec
		if cc.Wait != nil {
			w, err := fleet.ParseWaitSpec(cc.Wait.Type, cc.Wait.Timeout, cc.Wait.Text)
			if err != nil {
				var cfgErr *apperrors.ConfigurationError
				if errors.As(err, &cfgErr) {
					return nil, c.configError(prefix+"."+cfgErr.Key, cfgErr.Err)
				}
				return nil, c.configError(prefix+".wait", err)
			}
			wait = w
		}

		tag := cc.Tag
		if tag == "" {
			tag = "latest"
		}

		out = append(out, fleet.Service{
			Key: cc.Key,
			Spec: fleet.ContainerSpec{
				Image: cc.Image,
				Tag:   tag,
				Ports: cc.Ports,
				Name:  cc.Name,
				Env:   cc.Env,
				Wait:  wait,
			},
		})
	}
	return out, nil
}

func (c *Config) configError(key string, err error) error {
	source := c.ConfigFilePath
	if source == "" {
		source = "(defaults/environment)"
	}
	return &apperrors.ConfigurationError{ConfigPath: source, Key: key, Err: err}
}
