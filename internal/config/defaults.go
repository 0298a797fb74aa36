package config

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Knowledge: KnowledgeConfig{
			Path:    "data/knowledge-base.json",
			Backend: IndexMemory,
		},
		Embedding: EmbeddingConfig{
			Provider:    ProviderOpenAI,
			Model:       "text-embedding-3-small",
			MaxAttempts: 3,
		},
		Session: SessionConfig{
			Backend:    SessionMemory,
			RedisAddr:  "localhost:6379",
			TTLSeconds: 3600,
			MaxHistory: 50,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "data/alfred.db",
		},
	}
}
