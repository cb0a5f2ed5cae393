package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/config"
	dbBadger "github.com/kailas-cloud/grantmatch/internal/db/badger"
	dbRedis "github.com/kailas-cloud/grantmatch/internal/db/redis"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	logpkg "github.com/kailas-cloud/grantmatch/internal/logger"
	"github.com/kailas-cloud/grantmatch/internal/metrics"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	documentrepo "github.com/kailas-cloud/grantmatch/internal/repository/document"
	"github.com/kailas-cloud/grantmatch/internal/repository/embcache"
	"github.com/kailas-cloud/grantmatch/internal/repository/vectorsearch"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
	chiTransport "github.com/kailas-cloud/grantmatch/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/grantmatch/internal/transport/openai"
	cataloguc "github.com/kailas-cloud/grantmatch/internal/usecase/catalog"
	embeddinguc "github.com/kailas-cloud/grantmatch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
	profileuc "github.com/kailas-cloud/grantmatch/internal/usecase/profile"
	"github.com/kailas-cloud/grantmatch/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting grantmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("documents_driver", cfg.Documents.Driver),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Registered explicitly (no init())
	metrics.Register()

	tracker := perf.New(perf.Config{
		DefaultThreshold: cfg.Matching.SlowStepThreshold,
		Logger:           logger,
		Duration:         metrics.OperationDuration,
		Slow:             metrics.SlowOperationsTotal,
	})

	var remote cache.RemoteTier
	if cfg.Cache.RemoteEnabled {
		remote = store
	}
	resultCache, err := cache.New(cache.Config{
		Capacity:     cfg.Cache.Capacity,
		Remote:       remote,
		RemotePrefix: cfg.Cache.RemotePrefix,
		Logger:       logger,
		Lookups:      metrics.CacheLookupsTotal,
		Evictions:    metrics.CacheEvictionsTotal,
	})
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}

	queue, err := taskqueue.New(taskqueue.Config{
		Workers:  cfg.Queue.Workers,
		Capacity: cfg.Queue.Capacity,
		Logger:   logger,
		Tasks:    metrics.TaskQueueTasksTotal,
		Depth:    metrics.TaskQueueDepth,
	})
	if err != nil {
		logger.Fatal("Failed to create task queue", zap.Error(err))
	}
	queue.Start()

	docs, documentsPinger, closeDocs := openDocuments(cfg, store, logger)
	defer closeDocs()

	provider := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	queryEmbedder := buildEmbedder(provider, resultCache, cfg, tracker, cfg.Embedding.QueryInstruction, logger)
	docEmbedder := buildEmbedder(provider, resultCache, cfg, tracker, cfg.Embedding.DocumentInstruction, logger)
	logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	index := vectorsearch.New(store, queryEmbedder, vectorsearch.Config{
		IndexName:       cfg.Index.Name,
		KeyPrefix:       cfg.Index.KeyPrefix,
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := index.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	// Nil interface, not a typed nil pointer, when no provider is configured.
	var conversation domain.Conversation
	if cfg.Conversation.Enabled() {
		conversation = openaiTransport.NewConversation(&openaiTransport.Config{
			APIKey:  cfg.Conversation.APIKey,
			BaseURL: cfg.Conversation.BaseURL,
			Model:   cfg.Conversation.Model,
			Logger:  logger,
		})
	}

	catalogSvc := cataloguc.New(cataloguc.Deps{
		Documents: docs,
		Index:     index,
		Embedder:  docEmbedder,
		Cache:     resultCache,
		Queue:     queue,
		Tracker:   tracker,
		Logger:    logger,
	}, cfg.Catalog.Retention)

	profileSvc := profileuc.New(profileuc.Deps{
		Store:        docs,
		Cache:        resultCache,
		Conversation: conversation,
		Logger:       logger,
	})

	matchingSvc, err := matchinguc.New(matchinguc.Config{
		Scoring:            cfg.Matching.Scoring,
		Eligibility:        cfg.Matching.Eligibility,
		Prefilter:          cfg.Matching.Prefilter(),
		CandidateFactor:    cfg.Matching.CandidateFactor,
		MinCandidates:      cfg.Matching.MinCandidates,
		MaxCandidates:      cfg.Matching.MaxCandidates,
		ScoringParallelism: cfg.Matching.ScoringParallelism,
		CacheOptions: cache.Options{
			Absolute: cfg.Matching.CacheAbsoluteTTL,
			Sliding:  cfg.Matching.CacheSlidingTTL,
		},
		SlowThreshold:     cfg.Matching.SlowSearchThreshold,
		SlowStepThreshold: cfg.Matching.SlowStepThreshold,
	}, matchinguc.Deps{
		Search:   index,
		Cache:    resultCache,
		Tracker:  tracker,
		Profiles: profileSvc,
		Grants:   catalogSvc,
		Queue:    queue,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Invalid matching configuration", zap.Error(err))
	}

	healthSvc := healthuc.New(healthuc.Deps{
		Database:  store,
		Documents: documentsPinger,
		Embedding: provider,
		Queue:     queue,
	})

	server := chiTransport.NewServer(chiTransport.Deps{
		Matcher:   matchingSvc,
		Catalog:   catalogSvc,
		Profiles:  profileSvc,
		Health:    healthSvc,
		Cache:     resultCache,
		Perf:      tracker,
		Queue:     queue,
		AdminKeys: cfg.Auth.AdminKeys,
		Logger:    logger,
	})

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go queue.Every(sweepCtx, cfg.Cache.SweepInterval, "cache.sweep", sweepTask(resultCache, logger))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	queueCtx, cancelQueue := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancelQueue()
	if err := queue.Shutdown(queueCtx); err != nil {
		logger.Error("Error draining task queue", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openDocuments selects the document store backend. The returned pinger is
// nil when documents share the database.
func openDocuments(
	cfg config.Config, store *dbRedis.Store, logger *zap.Logger,
) (*documentrepo.Repo, healthuc.DBPinger, func()) {
	if cfg.Documents.Driver != config.DocumentsBadger {
		return documentrepo.New(store), nil, func() {}
	}
	bdb, err := dbBadger.Open(dbBadger.Config{
		Path:     cfg.Documents.BadgerPath,
		InMemory: cfg.Documents.InMemory,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to open badger document store", zap.Error(err))
	}
	logger.Info("Opened badger document store",
		zap.String("path", cfg.Documents.BadgerPath),
		zap.Bool("in_memory", cfg.Documents.InMemory),
	)
	return documentrepo.New(bdb), bdb, func() {
		if err := bdb.Close(); err != nil {
			logger.Error("Error closing badger document store", zap.Error(err))
		}
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	provider domain.Embedder,
	resultCache *cache.Store,
	cfg config.Config,
	tracker *perf.Tracker,
	instruction string,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder = embcache.New(
		provider, resultCache, cfg.Embedding.CacheTTL, metrics.EmbeddingCacheTotal, logger,
	)

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, tracker, embeddinguc.OperationName, cfg.Matching.SlowStepThreshold, logger,
	)

	// Instruction prefix (outermost, so the cache key includes the instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// sweepTask drops expired local cache entries.
func sweepTask(c *cache.Store, logger *zap.Logger) taskqueue.Task {
	return func(context.Context) error {
		if n := c.Sweep(); n > 0 {
			logger.Debug("cache sweep", zap.Int("removed", n))
		}
		return nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", chi.RouteContext(r.Context()).RoutePattern()),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
