package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/studio/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// CurrentV is the config.toml schema version this build reads and writes.
	CurrentV = 0
)

// Configer reads and writes config.toml inside a resolved .studio/ directory.
// With no directory resolved, reads yield NewDefaultConfig and writes fail
// until EnsureTarget is called.
type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewConfiger resolves the .studio/ directory (override, then ./.studio, then
// ~/.studio) without creating anything.
func NewConfiger(override string) (*Configer, error) {
	c := &Configer{ddm: dotdir.NewManager()}

	dir, err := c.ddm.Target(override)
	if err != nil {
		return nil, err
	}
	if dir != "" {
		c.targetPath = filepath.Join(dir, configFile)
	}
	return c, nil
}

// ValidConfigKeys lists every settable key in config.toml section order.
func ValidConfigKeys() []string {
	return append([]string(nil), orderedKeys...)
}

// IsValidConfigKey reports whether key names a settable config key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// DefaultValue returns the string form of key in NewDefaultConfig, or "" for
// unknown keys.
func DefaultValue(key string) string {
	info, ok := configKeys[key]
	if !ok {
		return ""
	}
	return info.get(NewDefaultConfig())
}

// GetTarget returns the config.toml path, or "" when none was resolved.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// EnsureTarget falls back to ~/.studio/config.toml, creating ~/.studio/ if
// needed, when no directory was resolved.
func (c *Configer) EnsureTarget() error {
	if c.targetPath != "" {
		return nil
	}
	dir, err := c.ddm.EnsureHome()
	if err != nil {
		return err
	}
	c.targetPath = filepath.Join(dir, configFile)
	return nil
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig; keys
// absent from the file keep their defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// SaveConfig writes cfg to config.toml with owner-only permissions.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue parses value into key, validates the resulting config and
// saves it.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := info.set(cfg, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue returns the string form of key from the loaded config.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

// ParseConfigTOML decodes a config.toml document and fills every key it
// leaves out from NewDefaultConfig. Explicit zero values are kept.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	defaults := NewDefaultConfig()
	for key, info := range configKeys {
		if !md.IsDefined(strings.Split(key, ".")...) {
			_ = info.set(cfg, info.get(defaults))
		}
	}
	return cfg, nil
}

// Validate checks the cross-field and range rules that the per-key parsers
// cannot see on their own.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2, got %g", cfg.Chat.Temperature))
	}
	if cfg.Chat.TopP > 1 {
		errs = append(errs, fmt.Errorf("chat.top_p must be between 0 and 1, got %g", cfg.Chat.TopP))
	}
	if cfg.Image.MaxCount < 1 {
		errs = append(errs, errors.New("image.max_count must be at least 1"))
	}
	if cfg.Events.KafkaBrokers != "" && cfg.Events.KafkaTopic == "" {
		errs = append(errs, errors.New("events.kafka_topic is required when events.kafka_brokers is set"))
	}
	for _, u := range []struct{ key, value string }{
		{"chat.upstream", cfg.Chat.Upstream},
		{"image.upstream", cfg.Image.Upstream},
		{"client.target", cfg.Client.Target},
	} {
		if err := checkURL(u.key, u.value); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkURL(key, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, value)
	}
	return nil
}
