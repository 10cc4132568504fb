package credentials

// Credentials is the content of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential is the stored key of one upstream provider.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}
