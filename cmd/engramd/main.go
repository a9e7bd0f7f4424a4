// Command engramd runs the Engram memory engine as a long-lived process:
// it opens the configured storage backend, wires the LLM providers, and
// keeps the working-memory table purged until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/internal/storage/postgres"
	"github.com/engramdev/engram/internal/storage/sqlite"
)

var (
	configPath    = flag.String("config", "", "Path to YAML config file (optional, env vars apply on top)")
	dsn           = flag.String("dsn", "", "Storage DSN (overrides config)")
	purgeInterval = flag.Duration("purge-interval", 5*time.Minute, "Working-memory purge interval")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}

	store, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	defer store.Close()
	log.Printf("engramd: storage backend %q ready", cfg.Storage.Engine)

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to build LLM provider: %v", err)
	}
	if provider != nil {
		log.Printf("engramd: completion provider %s ready", provider.Model())
	} else {
		log.Printf("engramd: no completion provider configured (tiering and ontology degrade to fallbacks)")
	}

	embedder, err := llm.NewEmbedder(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to build embedding provider: %v", err)
	}
	log.Printf("engramd: embedding provider %s ready (dimension %d)", embedder.Model(), embedder.Dimension())

	svc := engine.NewMemoryService(store, embedder, provider, cfg.Recall)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, svc, store, *purgeInterval)
}

// run blocks until the context is cancelled, driving the daemon's
// maintenance loops. The memory service is the attachment point for any
// transport embedding this process.
func run(ctx context.Context, svc *engine.MemoryService, store storage.Backend, purgeEvery time.Duration) {
	go purgeLoop(ctx, store, purgeEvery)

	log.Printf("engramd: started (enrichment %v)", svc.Enrich)
	<-ctx.Done()
	log.Printf("engramd: shutting down")
}

// openBackend instantiates the storage backend named in the config.
func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.Open(cfg.Storage.DSN)
	default:
		return sqlite.Open(cfg.Storage.DSN)
	}
}

// purgeLoop evicts expired working-memory entries on a fixed interval.
func purgeLoop(ctx context.Context, store storage.Backend, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpiredWorkingMemory(ctx)
			if err != nil {
				log.Printf("engramd: working-memory purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("engramd: purged %d expired working-memory entries", n)
			}
		}
	}
}
