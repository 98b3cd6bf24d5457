// Package config provides YAML-based configuration for vivoassist.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. VIVOASSIST_CONFIG environment variable
//  3. ~/.vivoassist/config.yaml
//  4. ./vivoassist.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Corpus configures the manual corpus and retrieval parameters.
	Corpus CorpusConfig `yaml:"corpus"`

	// Matching configures the manual matcher's confidence bands.
	Matching MatchingConfig `yaml:"matching"`

	// ModelsCache configures the models cache batch job.
	ModelsCache ModelsCacheConfig `yaml:"models_cache"`

	// Session configures the per-scope retrieval session cache.
	Session SessionConfig `yaml:"session"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// CorpusConfig holds manual corpus and retrieval settings.
type CorpusConfig struct {
	// DataDir is the directory containing the PDF manuals.
	DataDir string `yaml:"data_dir"`
	// TopK is the number of fragments retrieved per question.
	TopK int `yaml:"top_k"`
	// BigChunkSize/BigChunkOverlap control the coarse ingestion chunk level.
	BigChunkSize    int `yaml:"big_chunk_size"`
	BigChunkOverlap int `yaml:"big_chunk_overlap"`
	// MidChunkSize/MidChunkOverlap control the middle ingestion chunk level.
	MidChunkSize    int `yaml:"mid_chunk_size"`
	MidChunkOverlap int `yaml:"mid_chunk_overlap"`
	// SmallChunkSize/SmallChunkOverlap control the fine ingestion chunk level.
	SmallChunkSize    int `yaml:"small_chunk_size"`
	SmallChunkOverlap int `yaml:"small_chunk_overlap"`
}

// MatchingConfig holds the manual matcher's tunable bands.
type MatchingConfig struct {
	// AutoLockThreshold is the silent scope-adoption confidence band.
	AutoLockThreshold float64 `yaml:"auto_lock_threshold"`
	// SuggestThreshold is the explicit-lock/hint confidence band.
	SuggestThreshold float64 `yaml:"suggest_threshold"`
	// Algorithm selects the matcher: blended (default) or tokens.
	Algorithm string `yaml:"algorithm"`
	// Debug logs scope decisions and guard violations with identifiers.
	Debug bool `yaml:"debug"`
}

// ModelsCacheConfig holds models cache batch job settings.
type ModelsCacheConfig struct {
	// DBPath is the SQLite database path for the cache.
	DBPath string `yaml:"db_path"`
	// MaxAttempts caps the retry loop per manual.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelaySeconds is the first retry delay.
	BaseDelaySeconds int `yaml:"base_delay_seconds"`
	// MaxDelaySeconds caps the exponential backoff.
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
}

// SessionConfig holds retrieval session cache settings.
type SessionConfig struct {
	// TTLMinutes is how long an idle session is kept. Zero keeps sessions
	// for the process lifetime.
	TTLMinutes int `yaml:"ttl_minutes"`
	// MaxEntries caps the number of cached sessions per conversation.
	MaxEntries int `yaml:"max_entries"`
	// MaxContextTokens is the history token budget per session.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var VIVOASSIST_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"CORPUS_DATA_DIR", func(c *Config) string { return c.Corpus.DataDir }},
	{"CORPUS_TOP_K", func(c *Config) string { return intStr(c.Corpus.TopK) }},
	{"CORPUS_BIG_CHUNK_SIZE", func(c *Config) string { return intStr(c.Corpus.BigChunkSize) }},
	{"CORPUS_BIG_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Corpus.BigChunkOverlap) }},
	{"CORPUS_MID_CHUNK_SIZE", func(c *Config) string { return intStr(c.Corpus.MidChunkSize) }},
	{"CORPUS_MID_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Corpus.MidChunkOverlap) }},
	{"CORPUS_SMALL_CHUNK_SIZE", func(c *Config) string { return intStr(c.Corpus.SmallChunkSize) }},
	{"CORPUS_SMALL_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Corpus.SmallChunkOverlap) }},
	{"MATCH_AUTO_LOCK_THRESHOLD", func(c *Config) string { return float64Str(c.Matching.AutoLockThreshold) }},
	{"MATCH_SUGGEST_THRESHOLD", func(c *Config) string { return float64Str(c.Matching.SuggestThreshold) }},
	{"MATCH_ALGORITHM", func(c *Config) string { return c.Matching.Algorithm }},
	{"MATCH_DEBUG", func(c *Config) string { return boolStr(c.Matching.Debug) }},
	{"MODELS_DB", func(c *Config) string { return c.ModelsCache.DBPath }},
	{"MODELS_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.ModelsCache.MaxAttempts) }},
	{"MODELS_BASE_DELAY_SECONDS", func(c *Config) string { return intStr(c.ModelsCache.BaseDelaySeconds) }},
	{"MODELS_MAX_DELAY_SECONDS", func(c *Config) string { return intStr(c.ModelsCache.MaxDelaySeconds) }},
	{"SESSION_TTL_MINUTES", func(c *Config) string { return intStr(c.Session.TTLMinutes) }},
	{"SESSION_MAX_ENTRIES", func(c *Config) string { return intStr(c.Session.MaxEntries) }},
	{"SESSION_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Session.MaxContextTokens) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"VIVOASSIST_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// Settings is the resolved, typed configuration constructed once at startup
// and passed down into the components that need it. There is no mutable
// global: every consumer receives its section explicitly.
type Settings struct {
	// DataDir is the manual corpus directory. Defaults to "./data".
	DataDir string
	// TopK is the retrieval depth per question. Defaults to 8.
	TopK int

	// Chunk sizes for the three ingestion levels, coarse to fine.
	BigChunkSize, BigChunkOverlap     int
	MidChunkSize, MidChunkOverlap     int
	SmallChunkSize, SmallChunkOverlap int

	// AutoLockThreshold / SuggestThreshold are the matcher's bands. Zero
	// means the matcher's defaults apply.
	AutoLockThreshold float64
	SuggestThreshold  float64
	// Algorithm selects the matcher scorer.
	Algorithm string
	// Debug enables scope decision and guard violation logging.
	Debug bool

	// ModelsDBPath is the SQLite models cache path. Empty means the
	// per-user default (~/.vivoassist/models.db).
	ModelsDBPath string
	// ModelsMaxAttempts / ModelsBaseDelay / ModelsMaxDelay bound the models
	// cache retry policy. Zero means the builder's defaults apply.
	ModelsMaxAttempts int
	ModelsBaseDelay   time.Duration
	ModelsMaxDelay    time.Duration

	// SessionTTL / SessionMaxEntries / SessionMaxContextTokens configure
	// the per-conversation session cache. Zero means defaults apply.
	SessionTTL              time.Duration
	SessionMaxEntries       int
	SessionMaxContextTokens int
}

// FromEnv reads the resolved environment (after Load has layered the YAML
// file) into a typed Settings value.
func FromEnv() Settings {
	return Settings{
		DataDir: envOr("CORPUS_DATA_DIR", "./data"),
		TopK:    envInt("CORPUS_TOP_K", 8),

		BigChunkSize:      envInt("CORPUS_BIG_CHUNK_SIZE", 0),
		BigChunkOverlap:   envInt("CORPUS_BIG_CHUNK_OVERLAP", 0),
		MidChunkSize:      envInt("CORPUS_MID_CHUNK_SIZE", 0),
		MidChunkOverlap:   envInt("CORPUS_MID_CHUNK_OVERLAP", 0),
		SmallChunkSize:    envInt("CORPUS_SMALL_CHUNK_SIZE", 0),
		SmallChunkOverlap: envInt("CORPUS_SMALL_CHUNK_OVERLAP", 0),

		AutoLockThreshold: envFloat("MATCH_AUTO_LOCK_THRESHOLD", 0),
		SuggestThreshold:  envFloat("MATCH_SUGGEST_THRESHOLD", 0),
		Algorithm:         os.Getenv("MATCH_ALGORITHM"),
		Debug:             os.Getenv("MATCH_DEBUG") == "true",

		ModelsDBPath:      os.Getenv("MODELS_DB"),
		ModelsMaxAttempts: envInt("MODELS_MAX_ATTEMPTS", 0),
		ModelsBaseDelay:   time.Duration(envInt("MODELS_BASE_DELAY_SECONDS", 0)) * time.Second,
		ModelsMaxDelay:    time.Duration(envInt("MODELS_MAX_DELAY_SECONDS", 0)) * time.Second,

		SessionTTL:              time.Duration(envInt("SESSION_TTL_MINUTES", 0)) * time.Minute,
		SessionMaxEntries:       envInt("SESSION_MAX_ENTRIES", 0),
		SessionMaxContextTokens: envInt("SESSION_MAX_CONTEXT_TOKENS", 0),
	}
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("VIVOASSIST_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".vivoassist", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("vivoassist.yaml"); err == nil {
		return "vivoassist.yaml"
	}

	return ""
}

// envOr returns the named env var, or fallback when unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named env var, or fallback when
// unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat returns the float value of the named env var, or fallback when
// unset, empty, or not parseable.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
