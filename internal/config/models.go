package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// EnrichmentConfig represents the batch pipeline tuning knobs
type EnrichmentConfig struct {
	ChunkSize        int
	ChunkDelay       time.Duration
	ClassifyTimeout  time.Duration
	MaxContentLength int
}

// StoreConfig represents the durable store configuration
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetEnrichment returns the pipeline configuration. Malformed durations
// fall back to the defaults rather than failing startup.
func (c *Config) GetEnrichment() EnrichmentConfig {
	chunkDelay, err := c.GetDuration("enrichment.chunk_delay")
	if err != nil {
		chunkDelay = 2 * time.Second
	}
	classifyTimeout, err := c.GetDuration("enrichment.classify_timeout")
	if err != nil {
		classifyTimeout = 20 * time.Second
	}
	return EnrichmentConfig{
		ChunkSize:        c.GetInt("enrichment.chunk_size"),
		ChunkDelay:       chunkDelay,
		ClassifyTimeout:  classifyTimeout,
		MaxContentLength: c.GetInt("enrichment.max_content_length"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	shutdownTimeout, err := c.GetDuration("server.shutdown_timeout")
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	return ServerConfig{
		ListenAddress:   c.GetString("server.listen_address"),
		ShutdownTimeout: shutdownTimeout,
	}
}
