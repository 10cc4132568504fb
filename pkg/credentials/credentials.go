// Package credentials stores upstream API keys in credentials.toml inside the
// .studio/ directory, apart from config.toml so that the config can be shared
// without leaking keys.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/studio/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0

	// Groq is the chat completion provider.
	Groq = "groq"
)

// providerEnvVars maps provider names to the environment variable that
// overrides the stored key.
var providerEnvVars = map[string]string{
	Groq: "GROQ_API_KEY",
}

// Manager reads and writes credentials.toml.
type Manager struct {
	targetPath string
}

// NewManager resolves credentials.toml in override, the local .studio/ or
// ~/.studio/, creating ~/.studio/ when none exists.
func NewManager(override string) (*Manager, error) {
	path, err := dotdir.NewManager().File(override, credentialsFile)
	if err != nil {
		return nil, err
	}
	return &Manager{targetPath: path}, nil
}

// Load reads credentials.toml. A missing file yields empty credentials.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds.Version != currentVersion {
		return nil, fmt.Errorf("unsupported credentials version %d (expected %d)", creds.Version, currentVersion)
	}
	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes creds with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// SetKey stores key for provider.
func (m *Manager) SetKey(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}
	creds.Providers[provider] = ProviderCredential{APIKey: key}
	return m.Save(creds)
}

// GetKey returns the stored key for provider, or "" when none is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	return creds.Providers[provider].APIKey, nil
}

// RemoveKey deletes the stored key for provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	if _, ok := creds.Providers[provider]; !ok {
		return fmt.Errorf("no stored credentials for %q", provider)
	}
	delete(creds.Providers, provider)
	return m.Save(creds)
}

// ListProviders returns the providers with a stored key, sorted.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		providers = append(providers, name)
	}
	slices.Sort(providers)
	return providers, nil
}

// Resolve returns the key for provider: the environment variable wins over
// the stored key. source names where the key came from.
func (m *Manager) Resolve(provider string, getenv func(string) string) (key, source string, err error) {
	if envVar := EnvVarForProvider(provider); envVar != "" && getenv != nil {
		if v := strings.TrimSpace(getenv(envVar)); v != "" {
			return v, envVar, nil
		}
	}

	key, err = m.GetKey(provider)
	if err != nil || key == "" {
		return "", "", err
	}
	return key, m.targetPath, nil
}

// GetTarget returns the path of credentials.toml.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProvider returns the environment variable for provider, or "".
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// SupportedProviders lists the providers that take a key.
func SupportedProviders() []string {
	return []string{Groq}
}

// IsSupportedProvider reports whether provider takes a key.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
