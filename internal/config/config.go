package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. Nested keys use a double underscore:
// ALFRED_SERVER__PORT -> server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: ALFRED_SESSION__TTL_SECONDS -> session.ttl_seconds.
	if err := k.Load(env.Provider("ALFRED_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "ALFRED_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validEmbeddingProviders is the set of recognized provider values.
var validEmbeddingProviders = map[EmbeddingProvider]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validIndexBackends is the set of recognized pattern index backends.
var validIndexBackends = map[IndexBackend]bool{
	IndexMemory:  true,
	IndexChromem: true,
}

// validSessionBackends is the set of recognized session store backends.
var validSessionBackends = map[SessionBackend]bool{
	SessionMemory: true,
	SessionRedis:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Knowledge.Path == "" {
		return fmt.Errorf("knowledge.path is required")
	}
	if !validIndexBackends[c.Knowledge.Backend] {
		return fmt.Errorf("invalid knowledge.backend %q: must be one of memory, chromem", c.Knowledge.Backend)
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Provider == ProviderOllama && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required for the ollama provider")
	}
	if c.Embedding.MaxAttempts < 0 {
		return fmt.Errorf("embedding.max_attempts must be non-negative")
	}

	if !validSessionBackends[c.Session.Backend] {
		return fmt.Errorf("invalid session.backend %q: must be one of memory, redis", c.Session.Backend)
	}
	if c.Session.Backend == SessionRedis && c.Session.RedisAddr == "" {
		return fmt.Errorf("session.redis_addr is required for the redis backend")
	}
	if c.Session.TTLSeconds <= 0 {
		return fmt.Errorf("session.ttl_seconds must be positive")
	}
	if c.Session.MaxHistory < 0 {
		return fmt.Errorf("session.max_history must be non-negative")
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when the decision log is enabled")
	}

	return nil
}
