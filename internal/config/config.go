package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type RootConfig struct {
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Defaults      *Config            `mapstructure:"defaults,omitempty" yaml:"defaults,omitempty"`
	Profiles      map[string]*Config `mapstructure:"profiles" yaml:"profiles"`
}

type Config struct {
	Medium  MediumConfig  `mapstructure:"medium" yaml:"medium"`
	Acquire AcquireConfig `mapstructure:"acquire" yaml:"acquire"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Offload OffloadConfig `mapstructure:"offload" yaml:"offload"`

	// Profile is the name of the profile the config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
}

type MediumConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "local", "memory"
	Root    string `mapstructure:"root" yaml:"root"`       // card mount point for the local backend
}

type AcquireConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "csv", "synthetic"
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type OffloadConfig struct {
	Bucket            string `mapstructure:"bucket" yaml:"bucket"`
	Region            string `mapstructure:"region" yaml:"region"`
	Endpoint          string `mapstructure:"endpoint" yaml:"endpoint"`
	Prefix            string `mapstructure:"prefix" yaml:"prefix"`
	AccessKeyID       string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey   string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	DeviceID          string `mapstructure:"device_id" yaml:"device_id"`
	RemoveAfterUpload bool   `mapstructure:"remove_after_upload" yaml:"remove_after_upload"`
}

// Default returns the built-in configuration used when no file is present
func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		Medium: MediumConfig{
			Backend: "local",
			Root:    filepath.Join(os.Getenv("HOME"), ".local", "share", "recstore", "card"),
		},
		Acquire: AcquireConfig{
			Backend:    "csv",
			Channels:   3,
			SampleRate: 250,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Offload: OffloadConfig{
			Region:   "us-east-1",
			Prefix:   "recordings",
			DeviceID: hostname,
		},
		Profile: "default",
	}
}

// DefaultPath is the config file used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/recstore.yaml")
}

// Load reads configFile with its active profile. A missing file at the
// default path yields the built-in defaults.
func Load(configFile string) (*Config, error) {
	return LoadWithProfile(configFile, "")
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if configFile == DefaultPath() {
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if profile != "" && profile != "default" {
				return nil, fmt.Errorf("configuration profile '%s' not found", profile)
			}
			return cfg, nil
		}
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	profileName := profile
	if profileName == "" {
		profileName = rootConfig.ActiveProfile
	}
	if profileName == "" {
		profileName = "default"
	}

	base := mergeConfigs(Default(), rootConfig.Defaults)

	var selected *Config
	if profileName == "default" {
		selected = mergeConfigs(base, rootConfig.Profiles["default"])
	} else {
		p, exists := rootConfig.Profiles[profileName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
		}
		selected = mergeConfigs(base, p)
	}
	selected.Profile = profileName

	selected.Medium.Root = expandPath(selected.Medium.Root)

	if err := Validate(selected); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selected, nil
}

// ReadRootConfig reads the raw configuration file without resolving profiles
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("RECSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, p := range rootConfig.Profiles {
		if p == nil {
			return nil, fmt.Errorf("profile '%s' is empty", name)
		}
	}

	return &rootConfig, nil
}

// UpdateActiveProfile updates the active_profile field in the config file
func UpdateActiveProfile(configFile, newActiveProfile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_profile", newActiveProfile)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs overlays every non-zero field of profile onto a copy of base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
	}
	if profile == nil {
		return result
	}

	if profile.Medium.Backend != "" {
		result.Medium.Backend = profile.Medium.Backend
	}
	if profile.Medium.Root != "" {
		result.Medium.Root = profile.Medium.Root
	}

	if profile.Acquire.Backend != "" {
		result.Acquire.Backend = profile.Acquire.Backend
	}
	if profile.Acquire.Channels != 0 {
		result.Acquire.Channels = profile.Acquire.Channels
	}
	if profile.Acquire.SampleRate != 0 {
		result.Acquire.SampleRate = profile.Acquire.SampleRate
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}

	if profile.Offload.Bucket != "" {
		result.Offload.Bucket = profile.Offload.Bucket
	}
	if profile.Offload.Region != "" {
		result.Offload.Region = profile.Offload.Region
	}
	if profile.Offload.Endpoint != "" {
		result.Offload.Endpoint = profile.Offload.Endpoint
	}
	if profile.Offload.Prefix != "" {
		result.Offload.Prefix = profile.Offload.Prefix
	}
	if profile.Offload.AccessKeyID != "" {
		result.Offload.AccessKeyID = profile.Offload.AccessKeyID
	}
	if profile.Offload.SecretAccessKey != "" {
		result.Offload.SecretAccessKey = profile.Offload.SecretAccessKey
	}
	if profile.Offload.DeviceID != "" {
		result.Offload.DeviceID = profile.Offload.DeviceID
	}
	// a profile can only switch removal on
	if profile.Offload.RemoveAfterUpload {
		result.Offload.RemoveAfterUpload = true
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a resolved configuration
func Validate(cfg *Config) error {
	switch cfg.Medium.Backend {
	case "local":
		if cfg.Medium.Root == "" {
			return fmt.Errorf("medium: 'root' is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("medium: 'backend' must be 'local' or 'memory', got: %s", cfg.Medium.Backend)
	}

	if cfg.Acquire.Backend != "csv" && cfg.Acquire.Backend != "synthetic" {
		return fmt.Errorf("acquire: 'backend' must be 'csv' or 'synthetic', got: %s", cfg.Acquire.Backend)
	}
	// one record holds at most 255 values
	if cfg.Acquire.Channels < 1 || cfg.Acquire.Channels > 255 {
		return fmt.Errorf("acquire: 'channels' must be between 1 and 255, got: %d", cfg.Acquire.Channels)
	}
	if cfg.Acquire.SampleRate <= 0 {
		return fmt.Errorf("acquire: 'sample_rate' must be > 0, got: %d", cfg.Acquire.SampleRate)
	}

	if cfg.Server.Port == "" {
		return fmt.Errorf("server: 'port' is required")
	}

	if cfg.Offload.Bucket != "" && cfg.Offload.Region == "" {
		return fmt.Errorf("offload: 'region' is required when 'bucket' is set")
	}
	if (cfg.Offload.AccessKeyID == "") != (cfg.Offload.SecretAccessKey == "") {
		return fmt.Errorf("offload: 'access_key_id' and 'secret_access_key' must be set together")
	}

	return nil
}
