package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres"
	postgresChat "github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/seed"
	chatService "github.com/andrewdmason/undercurrent-sub000/internal/service/chat"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop the chat tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up the schema, don't seed chats")
	clearData := flag.Bool("clear-data", false, "Delete all chats and messages (keep schema)")
	owner := flag.String("owner", "", "Owner of the demo chat (defaults to OWNER_ID)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg := config.Load()
	if *owner != "" {
		cfg.OwnerID = *owner
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required for seeding")
	}

	logger := config.NewLogger(cfg, os.Stdout)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping chat tables...")
		if err := postgres.DropSchema(ctx, pool, tables, logger); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := postgres.EnsureSchema(ctx, pool, tables, logger); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	if *clearData {
		n, err := postgres.ClearData(ctx, pool, tables, logger)
		if err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Printf("✅ Cleared %d chats", n)
		return
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	svc := chatService.NewService(
		postgresChat.NewChatRepository(repoConfig),
		postgresChat.NewMessageRepository(repoConfig),
		postgres.NewTransactionManager(pool, logger),
		cfg.DefaultModel,
		logger,
	)

	c, err := seed.NewChatSeeder(svc, logger).SeedDemoChat(ctx, cfg.OwnerID, "")
	if err != nil {
		log.Fatalf("Failed to seed demo chat: %v", err)
	}
	log.Printf("🎉 Seeded demo chat %s for owner %s", c.ID, cfg.OwnerID)
}
