package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"

	"folio/features/chat"
	"folio/features/stats"
	"folio/internal/config"
	"folio/internal/ingest"
	"folio/internal/middleware"
	"folio/internal/prompt"
	"folio/internal/ratelimit"
	"folio/internal/retrieval"
	"folio/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Handler        http.Handler
	ChatService    *chat.Service
	IngestService  *ingest.Service
	IngestConsumer *worker.IngestConsumer

	cfg     *config.Config
	limiter *ratelimit.SlidingWindow
}

// New wires the HTTP surface and the ingestion worker over already
// connected dependencies.
func New(
	cfg *config.Config,
	db *sql.DB,
	store retrieval.Store,
	embedder retrieval.Embedder,
	generator chat.Generator,
	queryLogger *retrieval.QueryLogger,
) *App {
	index := retrieval.NewIndex(embedder, store, cfg.EmbeddingDim, queryLogger)

	// Feature: Chat
	builder := prompt.NewBuilder(index, prompt.Config{
		OwnerName:  cfg.OwnerName,
		OwnerEmail: cfg.OwnerEmail,
		TopK:       cfg.TopKResults,
		MaxHistory: cfg.MaxChatHistory,
	})
	limiter := ratelimit.New(cfg.RateLimitWindow(), cfg.RateLimitMaxRequests)
	chatService := chat.NewService(chat.NewPostgresRepo(db), builder, generator, limiter, chat.Config{
		MaxMessageLength: cfg.MaxMessageLength,
		MaxHistory:       cfg.MaxChatHistory,
		RateLimitMax:     cfg.RateLimitMaxRequests,
		RateLimitWindow:  cfg.RateLimitWindow(),
	})
	chatHandler := chat.NewHandler(chatService)

	// Feature: Stats
	statsHandler := stats.NewHandler(index, cfg.VectorBackend)

	// Ingestion
	ingestService := ingest.NewService(index, ingest.Config{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", chatHandler.Chat)
	mux.HandleFunc("GET /api/history", chatHandler.History)
	mux.HandleFunc("GET /stats", statsHandler.GetStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:        middleware.CORS(cfg.FrontendURL)(middleware.CorrelationID(mux)),
		ChatService:    chatService,
		IngestService:  ingestService,
		IngestConsumer: worker.NewIngestConsumer(ingestService),
		cfg:            cfg,
		limiter:        limiter,
	}
}

// Run serves HTTP until ctx is done, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	go a.limiter.Run(ctx)

	if a.cfg.EnableIngestWorker {
		consumer, err := a.startConsumer()
		if err != nil {
			return err
		}
		defer consumer.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort, "backend", a.cfg.VectorBackend)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) startConsumer() (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(config.TopicIngestCorpus, config.ChannelBackend, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IngestConsumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq connect error: %w", err)
	}
	slog.Info("ingest consumer connected", "topic", config.TopicIngestCorpus, "channel", config.ChannelBackend)
	return consumer, nil
}
