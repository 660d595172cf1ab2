// Package app wires the configuration into a ready pipeline
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"agreegraph/internal/cache"
	"agreegraph/internal/config"
	"agreegraph/internal/core"
	"agreegraph/internal/fetch"
	"agreegraph/internal/graphdb"
	"agreegraph/internal/llm"
	"agreegraph/internal/logger"
	"agreegraph/internal/nodes"
	"agreegraph/internal/storage"
	"agreegraph/pkg"
)

// Dependencies replaces collaborators that would otherwise be built from
// the configuration. Zero fields are built.
type Dependencies struct {
	Completer llm.Completer
	Fetcher   fetch.Fetcher
	Writer    graphdb.Writer
	Sessions  storage.Store
	Redis     redis.UniversalClient
	Registry  *prometheus.Registry
}

type App struct {
	config   *config.Config
	runner   *core.Runner
	sessions storage.Store
	caches   *cache.Manager
	writer   graphdb.Writer
	registry *prometheus.Registry

	// closed by Close only when App created it
	ownedRedis *redis.Client
}

// New builds every collaborator once and assembles the four stages
func New(ctx context.Context, cfg *config.Config, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", core.ErrConfiguration)
	}

	a := &App{config: cfg, registry: deps.Registry}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	redisClient := deps.Redis
	needsRedis := (cfg.Cache.Enabled && cfg.Cache.Backend == string(cache.BackendRedis)) ||
		(deps.Sessions == nil && cfg.Session.Backend == "redis")
	if redisClient == nil && needsRedis {
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.ownedRedis = client
		redisClient = client
	}

	caches, err := cache.NewManager(cache.ManagerConfig{
		Enabled:    cfg.Cache.Enabled,
		Backend:    cache.Backend(cfg.Cache.Backend),
		Redis:      redisClient,
		Registerer: a.registry,
	})
	if err != nil {
		a.closeRedis()
		return nil, err
	}
	a.caches = caches

	a.sessions = deps.Sessions
	if a.sessions == nil {
		if cfg.Session.Backend == "redis" {
			a.sessions = storage.NewRedisStore(redisClient, cfg.Session.TTL)
		} else {
			a.sessions = storage.NewMemoryStore()
		}
	}

	completer := deps.Completer
	if completer == nil {
		chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
		if err != nil {
			a.closeRedis()
			return nil, err
		}
		cc, err := llm.NewChatCompleter(ctx, chatModel)
		if err != nil {
			a.closeRedis()
			return nil, err
		}
		completer = cc
	}

	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewClient(cfg.Fetch, &http.Client{Timeout: cfg.Pipeline.FetchTimeout})
	}

	a.writer = deps.Writer
	if a.writer == nil {
		a.writer = graphdb.NopWriter{}
		if cfg.Graph.Enabled {
			w, err := graphdb.NewNeo4jWriter(ctx, cfg.Graph.Neo4j)
			if err != nil {
				a.closeRedis()
				return nil, err
			}
			a.writer = w
		}
	}

	maxSize := cfg.Cache.MaxSize
	entityCache := caches.Store("entity", cfg.Cache.EntityTTL, maxSize)
	extractor := nodes.NewEntityAgent(completer, entityCache, a.entitySettings(), cfg.Pipeline.MaxEntities)

	a.runner, err = core.NewRunner(a.sessions,
		extractor,
		nodes.NewFetchAgent(fetcher, caches.Store("web_fetch", cfg.Cache.WebFetchTTL, maxSize), cfg.Pipeline.MaxNews, cfg.Pipeline.FetchTimeout),
		nodes.NewKnowledgeDBAgent(completer,
			caches.Store("knowledge_graph", cfg.Cache.KnowledgeGraphTTL, maxSize),
			nodes.ModelSettings{Model: cfg.Stages.KnowledgeGraphModel, Temperature: cfg.Stages.KnowledgeGraphTemperature},
			a.writer,
			&core.SubPipeline{Store: storage.NewMemoryStore(), AppName: cfg.AppName + "_entity_extraction"},
			extractor),
		nodes.NewJudgeAgent(completer,
			caches.Store("llm", cfg.Cache.LLMTTL, maxSize),
			nodes.ModelSettings{Model: cfg.Stages.JudgeModel, Temperature: cfg.Stages.JudgeTemperature}),
	)
	if err != nil {
		a.closeRedis()
		return nil, err
	}

	logger.Component("app").Info().
		Str("app_name", cfg.AppName).
		Str("session_backend", cfg.Session.Backend).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("graph_enabled", cfg.Graph.Enabled).
		Strs("stages", a.runner.StageNames()).
		Msg("Pipeline ready")

	return a, nil
}

func (a *App) entitySettings() nodes.ModelSettings {
	return nodes.ModelSettings{Model: a.config.Stages.EntityModel, Temperature: a.config.Stages.EntityTemperature}
}

// Key returns the session key of sessionID for the configured user
func (a *App) Key(sessionID string) storage.Key {
	return storage.Key{AppName: a.config.AppName, UserID: a.config.DefaultUserID, ID: sessionID}
}

func (a *App) initialState() storage.State {
	return storage.NewState(a.config.UserName)
}

// Ask runs the pipeline for one query, creating the session on first use
func (a *App) Ask(ctx context.Context, sessionID, query string, onEvent func(core.Event)) (*storage.State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: blank session id", core.ErrConfiguration)
	}
	key := a.Key(sessionID)

	if _, err := a.sessions.Get(ctx, key); errors.Is(err, storage.ErrSessionNotFound) {
		if _, err := a.sessions.Create(ctx, key, a.initialState()); err != nil && !errors.Is(err, storage.ErrDuplicateSession) {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return a.runner.Run(ctx, key, []string{query}, onEvent)
}

// State returns the current state of a session
func (a *App) State(ctx context.Context, sessionID string) (*storage.State, error) {
	session, err := a.sessions.Get(ctx, a.Key(sessionID))
	if err != nil {
		return nil, err
	}
	return &session.State, nil
}

// Reset restores a session to its initial state
func (a *App) Reset(ctx context.Context, sessionID string) error {
	return a.sessions.Reset(ctx, a.Key(sessionID), a.initialState())
}

// Stats returns a snapshot of every cache store
func (a *App) Stats() map[string]cache.Stats {
	return a.caches.AllStats()
}

// ClearCaches empties every cache store
func (a *App) ClearCaches(ctx context.Context) bool {
	return a.caches.ClearAll(ctx)
}

// Registry exposes the metrics registry for an HTTP handler
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Close releases the graph driver and any Redis client created by New
func (a *App) Close(ctx context.Context) error {
	err := a.writer.Close(ctx)
	if cerr := a.closeRedis(); err == nil {
		err = cerr
	}
	return err
}

func (a *App) closeRedis() error {
	if a.ownedRedis == nil {
		return nil
	}
	err := a.ownedRedis.Close()
	a.ownedRedis = nil
	return err
}

// Summary renders the outcome of a finished run for display
func Summary(state *storage.State) string {
	if state == nil {
		return ""
	}
	var b strings.Builder
	if state.JudgeResult != nil {
		fmt.Fprintf(&b, "Status: %s\n", state.JudgeResult.AgreementStatus)
		if state.JudgeResult.DirectAnswer != "" {
			fmt.Fprintf(&b, "Answer: %s\n", state.JudgeResult.DirectAnswer)
		}
	}
	if state.FinalSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", state.FinalSummary)
	}
	fmt.Fprintf(&b, "Entities: %d, sources: %d, graph: %d nodes / %d relationships",
		len(state.Entities), len(state.FetchedContext),
		len(state.KnowledgeGraph.Nodes), len(state.KnowledgeGraph.Relationships))
	if len(state.Entities) > 0 {
		fmt.Fprintf(&b, "\n%s", pkg.FormatEntities(state.Entities))
	}
	return b.String()
}
