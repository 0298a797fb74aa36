package config

// EmbeddingProvider identifies an embedding backend.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderOllama EmbeddingProvider = "ollama"
)

// IndexBackend selects the pattern index implementation.
type IndexBackend string

const (
	IndexMemory  IndexBackend = "memory"
	IndexChromem IndexBackend = "chromem"
)

// SessionBackend selects the session store implementation.
type SessionBackend string

const (
	SessionMemory SessionBackend = "memory"
	SessionRedis  SessionBackend = "redis"
)

// Config is the top-level alfred configuration, corresponding to .alfred.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Knowledge KnowledgeConfig `yaml:"knowledge" koanf:"knowledge"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Session   SessionConfig   `yaml:"session" koanf:"session"`
	Audit     AuditConfig     `yaml:"audit" koanf:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all_origins" koanf:"allow_all_origins"` // allow all CORS origins (dev mode)
}

// KnowledgeConfig locates the knowledge base and selects the index backend.
type KnowledgeConfig struct {
	Path    string       `yaml:"path" koanf:"path"`
	Backend IndexBackend `yaml:"backend" koanf:"backend"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider    EmbeddingProvider `yaml:"provider" koanf:"provider"`
	Model       string            `yaml:"model" koanf:"model"`
	BaseURL     string            `yaml:"base_url" koanf:"base_url"`       // ollama only
	Dimensions  int               `yaml:"dimensions" koanf:"dimensions"`   // ollama only
	MaxAttempts int               `yaml:"max_attempts" koanf:"max_attempts"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Backend    SessionBackend `yaml:"backend" koanf:"backend"`
	RedisAddr  string         `yaml:"redis_addr" koanf:"redis_addr"`
	TTLSeconds int            `yaml:"ttl_seconds" koanf:"ttl_seconds"`
	MaxHistory int            `yaml:"max_history" koanf:"max_history"`
}

// AuditConfig controls the SQLite decision log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Path    string `yaml:"path" koanf:"path"`
}
