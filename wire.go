package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/agents/specialist"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	llmx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/llm"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	toolx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/tool"
	configx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/config"
	openrouterx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/openrouter"
	qstashx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/qstash"
	vectorstorex "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/vectorstore"
	websearchx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/websearch"
)

const (
	backendMemory   = "memory"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendUpstash  = "upstash"
)

// StoreConfig is loaded with the STORE_ prefix.
type StoreConfig struct {
	Backend     string `envconfig:"BACKEND" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" split_words:"true" default:".kumak/threads.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" split_words:"true"`
}

type app struct {
	orchestrator *orchestratorx.Orchestrator
	closers      []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

func openStore(cfg StoreConfig) (statex.Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case backendMemory:
		return statex.NewMemoryStore(), func() error { return nil }, nil
	case backendSQLite, "":
		s, err := statex.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case backendPostgres:
		s, err := statex.OpenPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, s.Close, nil
	case backendUpstash:
		redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, nil, fmt.Errorf("load upstash config: %w", err)
		}
		s, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildCollaborators(models contractx.Registry) (toolx.Collaborators, []func() error, error) {
	collab := toolx.Collaborators{
		Extractor:  models.Extractor(),
		Consultant: models.Consultant(),
		Strategist: models.Strategist(),
	}
	var closers []func() error

	searchCfg, err := configx.New[websearchx.Config]("SEARCH")
	if err != nil {
		return collab, closers, fmt.Errorf("load search config: %w", err)
	}
	if searchCfg.Enabled() {
		client, err := websearchx.New(*searchCfg)
		if err != nil {
			return collab, closers, err
		}
		collab.Market = client
		log.Info().Str("provider", client.Provider()).Msg("market research enabled")
	} else {
		log.Info().Msg("market research disabled: SEARCH_API_KEY not set")
	}

	knowledgeCfg, err := configx.New[vectorstorex.Config]("KNOWLEDGE")
	if err != nil {
		return collab, closers, fmt.Errorf("load knowledge config: %w", err)
	}
	if knowledgeCfg.Enabled() {
		retriever, closeIndex, err := openRetriever(*knowledgeCfg)
		if err != nil {
			return collab, closers, err
		}
		closers = append(closers, closeIndex)
		collab.Knowledge = retriever
	} else {
		log.Info().Msg("knowledge search disabled: KNOWLEDGE_DSN or KNOWLEDGE_EMBEDDING_API_KEY not set")
	}
	return collab, closers, nil
}

func openRetriever(cfg vectorstorex.Config) (*vectorstorex.Retriever, func() error, error) {
	client, err := openrouterx.NewClient(openrouterx.Config{
		BaseURL: cfg.EmbeddingURL,
		APIKey:  cfg.EmbeddingAPIKey,
	})
	if err != nil {
		return nil, nil, err
	}
	embedder, err := vectorstorex.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, err
	}
	index, err := vectorstorex.OpenPgvectorIndex(cfg)
	if err != nil {
		return nil, nil, err
	}
	retriever, err := vectorstorex.NewRetriever(embedder, index)
	if err != nil {
		_ = index.Close()
		return nil, nil, err
	}
	return retriever, index.Close, nil
}

func buildNotifier() (contractx.TurnNotifier, error) {
	cfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load qstash config: %w", err)
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := qstashx.NewClient(*cfg)
	if err != nil {
		return nil, err
	}
	return qstashx.NewTurnNotifier(client, cfg.Destination)
}

func buildApp(ctx context.Context) (*app, error) {
	a := &app{}

	storeCfg, err := configx.New[StoreConfig]("STORE")
	if err != nil {
		return nil, fmt.Errorf("load store config: %w", err)
	}
	store, closeStore, err := openStore(*storeCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	models, err := specialistx.NewRegistry(ctx, *llmCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	collab, closers, err := buildCollaborators(models)
	a.closers = append(a.closers, closers...)
	if err != nil {
		a.Close()
		return nil, err
	}

	orchCfg, err := configx.New[orchestratorx.Config]("ORCHESTRATOR")
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	caps, err := toolx.BuildCatalog(collab, orchCfg.CapabilityTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := buildNotifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	o, err := orchestratorx.New(store, models.Planner(), caps, notifier, *orchCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orchestrator = o

	log.Info().
		Str("store", storeCfg.Backend).
		Strs("capabilities", caps.Names()).
		Int("max_iters", orchCfg.MaxIters).
		Bool("notifications", notifier != nil).
		Msg("orchestrator ready")
	return a, nil
}

// migrate creates the Postgres schemas used by the configured backends.
func migrate(ctx context.Context) error {
	storeCfg, err := configx.New[StoreConfig]("STORE")
	if err != nil {
		return fmt.Errorf("load store config: %w", err)
	}

	var ran bool
	switch strings.ToLower(strings.TrimSpace(storeCfg.Backend)) {
	case backendPostgres:
		s, err := statex.OpenPostgresStore(storeCfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.CreateSchema(ctx); err != nil {
			return fmt.Errorf("migrate thread store: %w", err)
		}
		ran = true
	case backendSQLite, "":
		s, err := statex.OpenSQLiteStore(storeCfg.SQLitePath)
		if err != nil {
			return err
		}
		ran = true
		_ = s.Close()
	}

	knowledgeCfg, err := configx.New[vectorstorex.Config]("KNOWLEDGE")
	if err != nil {
		return fmt.Errorf("load knowledge config: %w", err)
	}
	if strings.TrimSpace(knowledgeCfg.DSN) != "" {
		index, err := vectorstorex.OpenPgvectorIndex(*knowledgeCfg)
		if err != nil {
			return err
		}
		defer index.Close()
		if err := index.CreateSchema(ctx); err != nil {
			return fmt.Errorf("migrate knowledge index: %w", err)
		}
		ran = true
	}

	if !ran {
		return errors.New("nothing to migrate for the configured backends")
	}
	return nil
}
