package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alfredlabs/alfred/internal/audit"
	"github.com/alfredlabs/alfred/internal/config"
	"github.com/alfredlabs/alfred/internal/db"
	"github.com/alfredlabs/alfred/internal/embeddings"
	"github.com/alfredlabs/alfred/internal/engine"
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/resolver"
	"github.com/alfredlabs/alfred/internal/server"
	"github.com/alfredlabs/alfred/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intent resolution server",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runServe())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	backend := knowledge.NewMemoryBackend()
	if cfg.Knowledge.Backend == config.IndexChromem {
		backend = knowledge.NewChromemBackend(embedder)
	}

	// A bad knowledge base is fatal: the process must not serve without
	// a good index.
	ctx := context.Background()
	index, err := knowledge.Load(ctx, cfg.Knowledge.Path, embedder, backend)
	if err != nil {
		return err
	}
	snap := index.Snapshot()
	log.Printf("knowledge base %s loaded: %d intents, default threshold %.2f",
		snap.Version(), len(snap.Intents()), snap.DefaultThreshold())

	sessions, cleanup, err := buildSessionStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var decisions *audit.Store
	if cfg.Audit.Enabled {
		database, err := db.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("opening decision log: %w", err)
		}
		defer database.Close()
		decisions = audit.NewStore(database)
	}

	eng := engine.New(index, sessions, resolver.New(embedder), decisions)

	srv := server.New(server.Config{
		Port:     cfg.Server.Port,
		AllowAll: cfg.Server.AllowAll,
	}, eng, decisions)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func buildEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	var inner embeddings.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		inner = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.Embedding.Model))
	case config.ProviderOllama:
		inner = embeddings.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.BaseURL)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embeddings.WithRetry(inner, cfg.Embedding.MaxAttempts), nil
}

func buildSessionStore(cfg *config.Config) (session.Store, func(), error) {
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second

	switch cfg.Session.Backend {
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		store := session.NewRedisStore(client, ttl, cfg.Session.MaxHistory)
		return store, func() { client.Close() }, nil
	default:
		store := session.NewMemoryStore(ttl, cfg.Session.MaxHistory)
		return store, store.Close, nil
	}
}
