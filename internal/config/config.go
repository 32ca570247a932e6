package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/kvstore"
)

const (
	appName    = "ogctl"
	configFile = "config.yaml"

	// CurrentVersion is the config file format version.
	CurrentVersion = 1
)

// Mutex for file operations within this process
var fileMutex sync.Mutex

// Config is the application preferences file.
type Config struct {
	Version   int             `yaml:"version"`
	Storage   StorageConfig   `yaml:"storage"`
	Relay     RelayConfig     `yaml:"relay"`
	Client    ClientConfig    `yaml:"client"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	LogLevel  string          `yaml:"log_level,omitempty"`
}

// StorageConfig selects where the device list is kept.
type StorageConfig struct {
	Backend string `yaml:"backend"`        // file, sqlite or memory
	Path    string `yaml:"path,omitempty"` // defaults to the config dir
}

// RelayConfig overrides the OpenThings Cloud forwarding host.
type RelayConfig struct {
	Domain string `yaml:"domain"`
	Port   int    `yaml:"port"`
}

// ClientConfig tunes controller requests.
type ClientConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DiscoveryConfig tunes mDNS scans.
type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig points at the broker the controller publishes to. The password
// is stored in plain text; leave it empty to be prompted.
type MQTTConfig struct {
	Broker   string `yaml:"broker,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Topic    string `yaml:"topic,omitempty"` // defaults to the controller name
}

// BridgeConfig configures `ogctl serve`.
type BridgeConfig struct {
	Listen     string `yaml:"listen"`
	ReadOnly   bool   `yaml:"read_only"`
	RecordPath string `yaml:"record_path,omitempty"`
	CertPath   string `yaml:"cert_path,omitempty"`
	KeyPath    string `yaml:"key_path,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Storage: StorageConfig{Backend: kvstore.BackendFile},
		Relay:   RelayConfig{Domain: connection.DefaultRelayDomain, Port: 443},
		Client: ClientConfig{
			Timeout:      10 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{Timeout: 5 * time.Second},
		Bridge:    BridgeConfig{Listen: "127.0.0.1:8470"},
	}
}

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/ogctl or $HOME/.config/ogctl
//   - macOS: $HOME/.config/ogctl
//   - Windows: %LOCALAPPDATA%\ogctl
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// StoragePath returns the device store location, defaulting to a file next
// to the config file named after the backend.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	name := "devices.json"
	if strings.EqualFold(c.Storage.Backend, kvstore.BackendSQLite) {
		name = "devices.db"
	}
	return filepath.Join(dir, name), nil
}

// OpenStore opens the configured device store, creating its directory.
func (c *Config) OpenStore() (kvstore.Store, error) {
	path, err := c.StoragePath()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(c.Storage.Backend, kvstore.BackendMemory) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return kvstore.Open(c.Storage.Backend, path)
}

// RelayDefaults returns the relay used for OTC devices.
func (c *Config) RelayDefaults() connection.Relay {
	return connection.Relay{Domain: c.Relay.Domain, Port: c.Relay.Port}
}

// Load reads the config at path, or the default location when path is "".
// A missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case kvstore.BackendFile, kvstore.BackendSQLite, kvstore.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be file, sqlite or memory, got %q", c.Storage.Backend)
	}
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port out of range: %d", c.Relay.Port)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive")
	}
	if c.Client.PollInterval < time.Second {
		return fmt.Errorf("client.poll_interval must be at least 1s")
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("client.retries must not be negative")
	}
	return nil
}

// Save writes the config to path (or the default location) atomically.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# ogctl configuration
#
# Device keys are kept in the device store, not here.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Keys accepted by Set.
var settableKeys = []string{
	"storage.backend", "storage.path",
	"relay.domain", "relay.port",
	"client.timeout", "client.retries", "client.poll_interval",
	"discovery.timeout",
	"mqtt.broker", "mqtt.username", "mqtt.password", "mqtt.topic",
	"bridge.listen", "bridge.read_only", "bridge.record_path", "bridge.cert_path", "bridge.key_path",
	"log_level",
}

// SettableKeys lists the dotted keys accepted by Set.
func SettableKeys() []string {
	return append([]string(nil), settableKeys...)
}

// Set assigns a dotted key from its string form and re-validates.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "storage.backend":
		c.Storage.Backend = value
	case "storage.path":
		c.Storage.Path = value
	case "relay.domain":
		c.Relay.Domain = value
	case "relay.port":
		c.Relay.Port, err = strconv.Atoi(value)
	case "client.timeout":
		c.Client.Timeout, err = time.ParseDuration(value)
	case "client.retries":
		c.Client.Retries, err = strconv.Atoi(value)
	case "client.poll_interval":
		c.Client.PollInterval, err = time.ParseDuration(value)
	case "discovery.timeout":
		c.Discovery.Timeout, err = time.ParseDuration(value)
	case "mqtt.broker":
		c.MQTT.Broker = value
	case "mqtt.username":
		c.MQTT.Username = value
	case "mqtt.password":
		c.MQTT.Password = value
	case "mqtt.topic":
		c.MQTT.Topic = value
	case "bridge.listen":
		c.Bridge.Listen = value
	case "bridge.read_only":
		c.Bridge.ReadOnly, err = strconv.ParseBool(value)
	case "bridge.record_path":
		c.Bridge.RecordPath = value
	case "bridge.cert_path":
		c.Bridge.CertPath = value
	case "bridge.key_path":
		c.Bridge.KeyPath = value
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(settableKeys, ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return c.Validate()
}
