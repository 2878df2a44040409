package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories"
	chatRepo "github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/handler"
	"github.com/andrewdmason/undercurrent-sub000/internal/handler/sse"
	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
	"github.com/andrewdmason/undercurrent-sub000/internal/middleware"
	"github.com/andrewdmason/undercurrent-sub000/internal/repository/memory"
	"github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres"
	postgresChat "github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres/chat"
	chatService "github.com/andrewdmason/undercurrent-sub000/internal/service/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/service/responder"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-process memory otherwise
	var (
		chats     chatRepo.ChatRepository
		messages  chatRepo.MessageRepository
		txManager repositories.TransactionManager
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		logger.Info("database connected",
			"max_conns", 25,
			"min_conns", 5,
		)

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables, logger); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		chats = postgresChat.NewChatRepository(repoConfig)
		messages = postgresChat.NewMessageRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool, logger)
	} else {
		store := memory.NewStore()
		chats, messages, txManager = store, store, store
		logger.Warn("DATABASE_URL not set, chats are kept in memory only")
	}

	svc := chatService.NewService(chats, messages, txManager, cfg.DefaultModel, logger)
	resp := responder.NewScripted(responder.Config{
		WordDelay:   cfg.ResponderWordDelay,
		ToolLatency: 300 * time.Millisecond,
	})

	chatHandler := handler.NewChatHandler(svc, logger)
	completionHandler := handler.NewCompletionHandler(svc, resp,
		&sse.Config{KeepAliveInterval: cfg.SSEKeepAlive, WriteTimeout: cfg.SSEWriteTimeout}, nil, logger)

	logger.Info("services initialized")

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, chatHandler, completionHandler)

	// Build middleware chain
	// Order: CORS → Recovery → Owner → Routes
	var h http.Handler = mux
	defaultOwner := ""
	if cfg.Environment == "dev" {
		defaultOwner = cfg.OwnerID
	}
	h = middleware.OwnerMiddleware(defaultOwner, "/health")(h)
	h = middleware.Recovery(logger)(h)

	// CORS - outermost so OPTIONS pre-flight requests are answered first
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", httputil.HeaderOwnerID},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}
