package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"github.com/zorak1103/tcfleet/internal/fleet"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, DriverDocker, cfg.Runtime.Driver)
	assert.Equal(t, 60*time.Second, cfg.Runtime.StartupTimeout)
	assert.Equal(t, 0, cfg.Runtime.MaxConcurrency)
	assert.False(t, cfg.Runtime.StrictPorts)
	assert.NotEmpty(t, cfg.Runtime.SocketPath)
	assert.Equal(t, "TESTCONTAINERS", cfg.Output.EnvPrefix)
	assert.Empty(t, cfg.Output.ManifestFile)
	assert.False(t, cfg.Notification.Enabled)
	assert.Empty(t, cfg.Containers)
}

func TestLoad_EnvVars(t *testing.T) {
	os.Setenv("TCFLEET_RUNTIME_DRIVER", "testcontainers")  // nolint:errcheck,gosec
	os.Setenv("TCFLEET_RUNTIME_STARTUP_TIMEOUT", "2m")     // nolint:errcheck,gosec
	os.Setenv("TCFLEET_OUTPUT_ENV_PREFIX", "IT")           // nolint:errcheck,gosec
	defer os.Unsetenv("TCFLEET_RUNTIME_DRIVER")            // nolint:errcheck
	defer os.Unsetenv("TCFLEET_RUNTIME_STARTUP_TIMEOUT")   // nolint:errcheck
	defer os.Unsetenv("TCFLEET_OUTPUT_ENV_PREFIX")         // nolint:errcheck

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, DriverTestcontainers, cfg.Runtime.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.StartupTimeout)
	assert.Equal(t, "IT", cfg.Output.EnvPrefix)
}

func TestLoad_DockerHostEnvVar(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://test-host:2375")

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "tcp://test-host:2375", cfg.Runtime.SocketPath)
}

func TestLoad_ConfigFile(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yaml", `runtime:
  driver: docker
  socket_path: unix:///test/docker.sock
  startup_timeout: 30s
  max_concurrency: 4
  strict_ports: true
output:
  manifest_file: /tmp/fleet.json
  env_file: /tmp/fleet.env
notification:
  enabled: true
  shoutrrr_url: generic://test
containers:
  db:
    image: postgres
    tag: "13"
    ports: [5432]
    env:
      POSTGRES_PASSWORD: secret
      POSTGRES_DB: app
    wait:
      type: ports
      timeout: 5
  cache:
    image: redis
    ports:
      - 6379
    name: fleet-cache
    wait:
      type: text
      text: Ready to accept connections
  api:
    image: ghcr.io/acme/api
    tag: v1.2.3
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, configPath, cfg.ConfigFilePath)
	assert.Equal(t, "unix:///test/docker.sock", cfg.Runtime.SocketPath)
	assert.Equal(t, 30*time.Second, cfg.Runtime.StartupTimeout)
	assert.Equal(t, 4, cfg.Runtime.MaxConcurrency)
	assert.True(t, cfg.Runtime.StrictPorts)
	assert.Equal(t, "/tmp/fleet.json", cfg.Output.ManifestFile)
	assert.Equal(t, "/tmp/fleet.env", cfg.Output.EnvFile)
	assert.True(t, cfg.Notification.Enabled)
	assert.Equal(t, "generic://test", cfg.Notification.ShoutrrURL)

	require.Len(t, cfg.Containers, 3)

	fc, err := cfg.Fleet()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "cache", "api"}, fc.Keys(), "document order must be preserved")

	assert.Equal(t, fleet.ContainerSpec{
		Image: "postgres",
		Tag:   "13",
		Ports: []int{5432},
		Env:   map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_DB": "app"},
		Wait:  fleet.PortsWait{TimeoutSeconds: 5},
	}, fc[0].Spec)

	assert.Equal(t, fleet.ContainerSpec{
		Image: "redis",
		Tag:   "latest",
		Ports: []int{6379},
		Name:  "fleet-cache",
		Wait:  fleet.LogTextWait{Text: "Ready to accept connections"},
	}, fc[1].Spec)

	assert.Equal(t, "ghcr.io/acme/api", fc[2].Spec.Image)
	assert.Equal(t, "v1.2.3", fc[2].Spec.Tag)
	assert.Nil(t, fc[2].Spec.Wait)
}

func TestLoad_EnvValuesKeepCaseAndStringify(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yml", `containers:
  MixedCase:
    image: mysql
    env:
      MYSQL_ROOT_PASSWORD: root
      MYSQL_PORT: 3306
      lower_key: "on"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Containers, 1)

	c := cfg.Containers[0]
	assert.Equal(t, "MixedCase", c.Key)
	assert.Equal(t, map[string]string{
		"MYSQL_ROOT_PASSWORD": "root",
		"MYSQL_PORT":          "3306",
		"lower_key":           "on",
	}, c.Env)
}

func TestLoad_UnknownWaitStrategy(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yaml", `containers:
  db:
    image: postgres
    wait:
      type: bogus
`)

	_, err := Load(configPath)
	require.Error(t, err)

	var cfgErr *apperrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "containers.db.wait.type", cfgErr.Key)
	assert.Equal(t, configPath, cfgErr.ConfigPath)
	assert.Contains(t, err.Error(), "bogus")
}

func TestLoad_WaitWithoutType(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yaml", `containers:
  db:
    image: postgres
    wait:
      timeout: 5
`)

	_, err := Load(configPath)

	var cfgErr *apperrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "containers.db.wait.type", cfgErr.Key)
	assert.Contains(t, err.Error(), "type is required")
}

func TestLoad_UnknownContainerField(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantKey string
		wantMsg string
	}{
		{
			name: "misspelled wait",
			file: "tcfleet.yaml",
			content: `containers:
  db:
    image: postgres
    wiat:
      type: ports
      timeout: 5
`,
			wantKey: "containers.db",
			wantMsg: "wiat",
		},
		{
			name: "misspelled field inside wait",
			file: "tcfleet.yaml",
			content: `containers:
  db:
    image: postgres
  cache:
    image: redis
    wait:
      type: ports
      timout: 5
`,
			wantKey: "containers.cache",
			wantMsg: "timout",
		},
		{
			name:    "json fallback",
			file:    "tcfleet.json",
			content: `{"containers": {"db": {"image": "postgres", "port": [5432]}}}`,
			wantKey: "containers",
			wantMsg: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.file, tt.content)

			_, err := Load(configPath)

			var cfgErr *apperrors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
			assert.Equal(t, configPath, cfgErr.ConfigPath)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/tcfleet.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yaml", `runtime:
  driver: docker
  invalid yaml content [[[
`)

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_ContainersNotAMapping(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.yaml", `containers:
  - image: postgres
`)

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "containers")
}

func TestLoad_JSONFallback(t *testing.T) {
	configPath := writeConfig(t, "tcfleet.json", `{
  "containers": {
    "zeta": {"image": "redis", "ports": [6379]},
    "alpha": {"image": "postgres", "tag": "13", "wait": {"type": "ports", "timeout": 10}}
  }
}`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	fc, err := cfg.Fleet()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, fc.Keys())
	assert.Equal(t, fleet.PortsWait{TimeoutSeconds: 10}, fc[0].Spec.Wait)
	assert.Equal(t, []int{6379}, fc[1].Spec.Ports)
}

func validConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Driver:         DriverDocker,
			SocketPath:     "unix:///var/run/docker.sock",
			StartupTimeout: time.Minute,
		},
		Output: OutputConfig{EnvPrefix: "TESTCONTAINERS"},
		Containers: []ContainerConfig{
			{Key: "db", Image: "postgres", Tag: "13", Ports: []int{5432}},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Runtime.Driver = "podman" },
			wantKey: "runtime.driver",
		},
		{
			name:    "zero startup timeout",
			mutate:  func(c *Config) { c.Runtime.StartupTimeout = 0 },
			wantKey: "runtime.startup_timeout",
		},
		{
			name:    "negative concurrency",
			mutate:  func(c *Config) { c.Runtime.MaxConcurrency = -1 },
			wantKey: "runtime.max_concurrency",
		},
		{
			name:    "empty env prefix",
			mutate:  func(c *Config) { c.Output.EnvPrefix = "" },
			wantKey: "output.env_prefix",
		},
		{
			name:    "missing image",
			mutate:  func(c *Config) { c.Containers[0].Image = "" },
			wantKey: "containers.db.image",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Containers[0].Ports = []int{5432, 70000} },
			wantKey: "containers.db.ports[1]",
		},
		{
			name:    "ports wait without timeout",
			mutate:  func(c *Config) { c.Containers[0].Wait = &WaitConfig{Type: "ports"} },
			wantKey: "containers.db.wait.timeout",
		},
		{
			name:    "text wait without text",
			mutate:  func(c *Config) { c.Containers[0].Wait = &WaitConfig{Type: "text"} },
			wantKey: "containers.db.wait.text",
		},
		{
			name:    "wait without type",
			mutate:  func(c *Config) { c.Containers[0].Wait = &WaitConfig{Timeout: 5} },
			wantKey: "containers.db.wait.type",
		},
		{
			name:    "wait with only text",
			mutate:  func(c *Config) { c.Containers[0].Wait = &WaitConfig{Text: "ready"} },
			wantKey: "containers.db.wait.type",
		},
		{
			name: "duplicate key",
			mutate: func(c *Config) {
				c.Containers = append(c.Containers, ContainerConfig{Key: "db", Image: "mysql"})
			},
			wantKey: "containers.db",
		},
		{
			name: "keys colliding in variable names",
			mutate: func(c *Config) {
				c.Containers = append(c.Containers, ContainerConfig{Key: "DB", Image: "mysql"})
			},
			wantKey: "containers.DB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *apperrors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
			assert.Equal(t, "(defaults/environment)", cfgErr.ConfigPath)
		})
	}
}

func TestFleet_DefaultsTagToLatest(t *testing.T) {
	cfg := validConfig()
	cfg.Containers[0].Tag = ""

	fc, err := cfg.Fleet()
	require.NoError(t, err)
	assert.Equal(t, "latest", fc[0].Spec.Tag)
}
