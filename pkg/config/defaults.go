package config

const (
	defaultListen          = ":3000"
	defaultUpstreamTimeout = 300

	defaultChatUpstream    = "https://api.groq.com/openai/v1"
	defaultChatModel       = "llama-3.3-70b-versatile"
	defaultChatTemperature = 0.7
	defaultChatMaxTokens   = 1024
	defaultChatTopP        = 1.0

	defaultImageUpstream = "https://image.pollinations.ai"
	defaultImageModel    = "flux"
	defaultImageSize     = 1024
	defaultImageMaxCount = 4

	defaultMaxMessages = 100
	defaultMaxImages   = 20

	defaultKafkaTopic = "studio.events"

	defaultClientTarget = "http://localhost:3000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:                 defaultListen,
			UpstreamTimeoutSeconds: defaultUpstreamTimeout,
		},
		Chat: ChatConfig{
			Upstream:    defaultChatUpstream,
			Model:       defaultChatModel,
			Temperature: defaultChatTemperature,
			MaxTokens:   defaultChatMaxTokens,
			TopP:        defaultChatTopP,
		},
		Image: ImageConfig{
			Upstream: defaultImageUpstream,
			Model:    defaultImageModel,
			Width:    defaultImageSize,
			Height:   defaultImageSize,
			MaxCount: defaultImageMaxCount,
		},
		History: HistoryConfig{
			MaxMessages: defaultMaxMessages,
			MaxImages:   defaultMaxImages,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
