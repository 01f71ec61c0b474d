package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/agentic-memory/aam-platform/internal/coref"
	"github.com/agentic-memory/aam-platform/internal/deletion"
	"github.com/agentic-memory/aam-platform/internal/memory"
	"github.com/agentic-memory/aam-platform/internal/rag"
	"github.com/agentic-memory/aam-platform/internal/retrieval"
	"github.com/agentic-memory/aam-platform/internal/review"
	"github.com/agentic-memory/aam-platform/internal/tasksvc"
)

// AgenticMemoryServer wraps the MCP server with the memory platform's
// storage, retrieval, RAG and task-management components.
type AgenticMemoryServer struct {
	server *mcp.Server
	config *ServerConfig

	aam       *memory.AAM
	retrieval *retrieval.Service
	rag       *rag.Engine
	coref     *coref.Resolver
	tasks     *tasksvc.Service
	review    *review.Job
	metrics   Metrics

	mu           sync.RWMutex
	isRunning    bool
	shutdownChan chan struct{}
	log          *logrus.Entry
}

// NewAgenticMemoryServer creates a new MCP server with memory capabilities,
// wiring storage adapters for the configured tiers (in-process backends
// unless a real provider is selected in config.Storage).
func NewAgenticMemoryServer(config *ServerConfig) (*AgenticMemoryServer, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    config.Server.Name,
		Version: config.Server.Version,
	}, nil)

	shortTerm, longTerm, graphStore, err := buildAdapters(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("build storage adapters: %w", err)
	}

	aam := memory.NewAAM(shortTerm, longTerm, graphStore)

	retrievalCfg := retrieval.DefaultConfig()
	if config.Retrieval.CacheTTL > 0 {
		retrievalCfg.CacheTTL = config.Retrieval.CacheTTL
	}
	if config.Retrieval.WorkerPool > 0 {
		retrievalCfg.PoolSize = config.Retrieval.WorkerPool
	}
	if config.Retrieval.PerTierTimeout > 0 {
		retrievalCfg.TierTimeout = config.Retrieval.PerTierTimeout
	}
	retrievalSvc, err := retrieval.New(aam, retrievalCfg)
	if err != nil {
		return nil, fmt.Errorf("build retrieval service: %w", err)
	}

	ragCfg := rag.DefaultConfig()
	if config.RAG.VectorWeight > 0 || config.RAG.GraphWeight > 0 {
		ragCfg.VectorWeight = config.RAG.VectorWeight
		ragCfg.GraphWeight = config.RAG.GraphWeight
	}
	ragEngine := rag.New(longTerm, graphStore, ragCfg)

	corefResolver := coref.New(aam, nil)

	taskSvc := tasksvc.New()

	reviewJob := review.New(reviewSource{longTerm}, review.Config{
		ArchiveAfterDays:   config.Review.ArchiveAfterDays,
		MaxAccessThreshold: int64(config.Review.MaxAccessThreshold),
		StaleCheckDays:     config.Review.StaleCheckDays,
	})

	ams := &AgenticMemoryServer{
		server:       server,
		config:       config,
		aam:          aam,
		retrieval:    retrievalSvc,
		rag:          ragEngine,
		coref:        corefResolver,
		tasks:        taskSvc,
		review:       reviewJob,
		shutdownChan: make(chan struct{}),
		log:          logrus.WithField("component", "mcpserver"),
	}
	ams.metrics = newLogMetrics(ams.log)
	server.AddReceivingMiddleware(ams.metricsMiddleware())

	if err := ams.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return ams, nil
}

// reviewSource adapts an in-memory VectorAdapter-shaped long-term store to
// review.Source; memory.InMemoryAdapter satisfies this directly, and a real
// QdrantVector deployment supplies the same methods via its own extension
// surface once ListUserIDs/ListActive/Stats are added there.
type reviewSource struct {
	memory.Adapter
}

func (r reviewSource) ListUserIDs(ctx context.Context) []string {
	if lister, ok := r.Adapter.(interface{ ListUserIDs(context.Context) []string }); ok {
		return lister.ListUserIDs(ctx)
	}
	return nil
}

func (r reviewSource) ListActive(ctx context.Context, userID string, limit int) []*memory.Record {
	if lister, ok := r.Adapter.(interface {
		ListActive(context.Context, string, int) []*memory.Record
	}); ok {
		return lister.ListActive(ctx, userID, limit)
	}
	return nil
}

func (r reviewSource) FindLowHotness(ctx context.Context, userID string, maxAccess int64, olderThanDays int) []*memory.Record {
	if v, ok := r.Adapter.(memory.VectorAdapter); ok {
		return v.FindLowHotness(ctx, userID, maxAccess, olderThanDays)
	}
	return nil
}

func (r reviewSource) Archive(ctx context.Context, id string) bool {
	if v, ok := r.Adapter.(memory.VectorAdapter); ok {
		return v.Archive(ctx, id)
	}
	return false
}

func (r reviewSource) MarkForReview(ctx context.Context, id, reason string) bool {
	if v, ok := r.Adapter.(memory.VectorAdapter); ok {
		return v.MarkForReview(ctx, id, reason)
	}
	return false
}

func (r reviewSource) Stats(ctx context.Context, userID string) map[string]any {
	if statter, ok := r.Adapter.(interface {
		Stats(context.Context, string) map[string]any
	}); ok {
		return statter.Stats(ctx, userID)
	}
	return map[string]any{}
}

func buildAdapters(cfg StorageConfig) (memory.Adapter, memory.VectorAdapter, memory.GraphAdapter, error) {
	var shortTerm memory.Adapter
	switch cfg.ShortTerm.Provider {
	case "redis":
		shortTerm = memory.NewRedisKV(memory.RedisKVConfig{Addr: cfg.ShortTerm.Addr, TTL: cfg.ShortTerm.TTL})
	default:
		shortTerm = memory.NewInMemoryAdapter()
	}

	var longTerm memory.VectorAdapter
	switch cfg.LongTerm.Provider {
	case "qdrant":
		naming := memory.CollectionPerUser
		if cfg.LongTerm.Naming == "file_based" {
			naming = memory.CollectionPerFile
		}
		qv, err := memory.NewQdrantVector(memory.QdrantVectorConfig{
			Host:       cfg.LongTerm.Host,
			Port:       cfg.LongTerm.Port,
			VectorSize: cfg.LongTerm.VectorSize,
			Naming:     naming,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		longTerm = qv
	default:
		longTerm = inMemoryVectorAdapter{memory.NewInMemoryAdapter()}
	}

	var graphStore memory.GraphAdapter
	switch cfg.Graph.Provider {
	case "mongo":
		mg, err := memory.NewMongoGraph(context.Background(), memory.MongoGraphConfig{
			URI:      cfg.Graph.URI,
			Database: cfg.Graph.Database,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		graphStore = mg
	default:
		graphStore = newInMemoryGraphAdapter(memory.NewInMemoryAdapter())
	}

	return shortTerm, longTerm, graphStore, nil
}

// Start starts the MCP server.
func (ams *AgenticMemoryServer) Start(ctx context.Context) error {
	ams.mu.Lock()
	defer ams.mu.Unlock()

	if ams.isRunning {
		return fmt.Errorf("server is already running")
	}

	ams.log.Info("starting agentic memory server")
	ams.shutdownChan = make(chan struct{})
	ams.isRunning = true
	return nil
}

// Stop stops the MCP server.
func (ams *AgenticMemoryServer) Stop(ctx context.Context) error {
	ams.mu.Lock()
	defer ams.mu.Unlock()

	if !ams.isRunning {
		return fmt.Errorf("server is not running")
	}

	ams.log.Info("stopping agentic memory server")
	close(ams.shutdownChan)
	ams.isRunning = false
	return nil
}

// IsRunning returns whether the server is currently running.
func (ams *AgenticMemoryServer) IsRunning() bool {
	ams.mu.RLock()
	defer ams.mu.RUnlock()
	return ams.isRunning
}

// Run starts the MCP server using the specified transport.
func (ams *AgenticMemoryServer) Run(ctx context.Context, transport mcp.Transport) error {
	if err := ams.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := ams.Stop(ctx); err != nil {
			ams.log.WithError(err).Warn("error stopping server")
		}
	}()
	return ams.server.Run(ctx, transport)
}

// RunHTTP starts the server as an HTTP handler, exposing the MCP endpoint
// plus /health and /ready for orchestrator liveness/readiness probes.
func (ams *AgenticMemoryServer) RunHTTP(addr string) error {
	ctx := context.Background()
	if err := ams.Start(ctx); err != nil {
		return err
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return ams.server
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", ams.handleHealth)
	mux.HandleFunc("/ready", ams.handleReady)
	mux.Handle("/", mcpHandler)

	ams.log.WithField("addr", addr).Info("starting http server")
	return http.ListenAndServe(addr, mux)
}

// handleHealth reports liveness: the process is up and serving requests.
func (ams *AgenticMemoryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReady reports readiness: the server has completed Start and is
// accepting traffic.
func (ams *AgenticMemoryServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !ams.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// GetServer returns the underlying MCP server for testing.
func (ams *AgenticMemoryServer) GetServer() *mcp.Server {
	return ams.server
}

// GetConfig returns the server configuration.
func (ams *AgenticMemoryServer) GetConfig() *ServerConfig {
	return ams.config
}

// RunReview triggers an out-of-band weekly review pass; production wiring
// calls this from a cron-style scheduler in cmd/server.
func (ams *AgenticMemoryServer) RunReview(ctx context.Context) []review.Report {
	return ams.review.RunWeeklyReview(ctx)
}

// RunDeletion builds a deletion manager for one task and returns the
// rollback-aware executor the memory_manage handler drives.
func (ams *AgenticMemoryServer) RunDeletion(taskID, userID string) *deletion.Manager {
	return deletion.New(taskID, userID)
}
