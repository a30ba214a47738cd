package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/persona-core/internal/cache"
	"github.com/danielpatrickdp/persona-core/internal/config"
	"github.com/danielpatrickdp/persona-core/internal/council"
	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/fuse"
	"github.com/danielpatrickdp/persona-core/internal/generate"
	"github.com/danielpatrickdp/persona-core/internal/memory"
	"github.com/danielpatrickdp/persona-core/internal/pattern"
	"github.com/danielpatrickdp/persona-core/internal/provenance"
	"github.com/danielpatrickdp/persona-core/internal/relationship"
	"github.com/danielpatrickdp/persona-core/internal/storage"
	"github.com/danielpatrickdp/persona-core/internal/theory"
	"github.com/danielpatrickdp/persona-core/internal/turn"
)

// #region main

func main() {
	configPath := flag.String("config", envOr("PERSONA_CONFIG", ""), "path to YAML config")
	persona := flag.String("persona", envOr("PERSONA_ID", "default"), "persona id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if v := os.Getenv("PERSONA_DB"); v != "" {
		cfg.DBPath = v
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	states, err := relationship.NewStore(db)
	if err != nil {
		logger.Fatal("state store", zap.Error(err))
	}
	memories, err := memory.NewStore(db)
	if err != nil {
		logger.Fatal("memory store", zap.Error(err))
	}
	patterns, err := pattern.NewEngine(db, memories, cfg.PatternConfig())
	if err != nil {
		logger.Fatal("pattern engine", zap.Error(err))
	}
	if err := provenance.Migrate(db); err != nil {
		logger.Fatal("provenance migrate", zap.Error(err))
	}

	var snapCache *cache.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		snapCache = cache.New(client, cache.Config{TTL: cfg.CacheTTL()})
	}

	llm := generate.NewClient(cfg.Generate.Endpoint, cfg.Generate.Model, cfg.Generate.EmbedModel)
	fuseCfg := cfg.FuseConfig()

	registry := theory.NewRegistry()
	if err := cfg.ApplyTheoryWeights(registry); err != nil {
		logger.Fatal("theory weights", zap.Error(err))
	}

	engine := turn.NewEngine(turn.Options{
		EmotionConfig:   emotion.DefaultConfig(),
		CouncilConfig:   council.DefaultConfig(),
		Registry:        registry,
		Fuser:           fuse.New(fuseCfg),
		Manager:         relationship.NewManager(cfg.RelationshipConfig()),
		States:          states,
		Memories:        memories,
		Patterns:        patterns,
		Generator:       llm,
		Embedder:        llm,
		Cache:           snapCache,
		DB:              db,
		Logger:          logger,
		ProducerTimeout: cfg.ProducerTimeout(),
		MinAlignment:    fuseCfg.MinAlignment,
	})

	fmt.Println("Persona core ready.")
	fmt.Printf("  DB: %s | Persona: %s\n", cfg.DBPath, *persona)
	fmt.Println("Type a message (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "quit" || message == "exit" {
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		res, err := engine.Process(ctx, turn.Request{
			PersonaID: *persona,
			Message:   message,
			Now:       time.Now().UTC(),
		})
		cancel()
		if err != nil {
			logger.Error("turn failed", zap.Error(err))
			continue
		}

		fmt.Printf("\n%s\n\n", res.Response)
		fmt.Printf("[v%d] emotion=%s intensity=%.2f stage=%s trust=%.2f stability=%.2f",
			res.State.Meta.Version, res.Dominant, res.Intensity,
			res.State.Relation.Stage, res.State.Relation.Trust, res.Metrics.Stability)
		if res.Metrics.Degraded {
			fmt.Print(" degraded")
		}
		fmt.Println()
	}
}

// #endregion main

// #region helpers

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
