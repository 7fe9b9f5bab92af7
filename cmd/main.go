package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/engine"
	"EduQuest/server/internal/generators"
	"EduQuest/server/internal/storage"
	"EduQuest/server/internal/web"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage connections
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL: %v", err)
		mysqlStore = nil
	} else {
		defer mysqlStore.Close()
		log.Println("MySQL connected successfully")
	}

	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		redisStore = nil
	} else {
		defer redisStore.Close()
		log.Println("Redis connected successfully")
	}

	store := storage.NewStore(redisStore, mysqlStore)

	// Initialize AI components
	if cfg.AI.Chat.APIKey == "" {
		log.Println("Warning: No chat API key provided. Generation will not work.")
	}
	chatClient := engine.NewChatClient(cfg.AI.Chat)

	var imageClient *generators.ImageClient
	if cfg.AI.Image.APIKey != "" {
		imageClient = generators.NewImageClient(cfg.AI.Image)
	} else {
		log.Println("Warning: No image API key provided. Illustration phase will be skipped.")
	}

	// Progress hub for streaming level-generation status
	hub := web.NewProgressHub()
	go hub.Run()

	// Assemble the workflow
	deps := engine.WorkflowDeps{
		Model:        chatClient,
		Requirements: store,
		Stories:      store,
		Notifier:     hub,
		Config:       cfg.Workflow,
		ChatTimeout:  cfg.AI.Chat.Timeout,
		ImageTimeout: cfg.AI.Image.Timeout,
	}
	if imageClient != nil {
		deps.Image = imageClient
	}
	workflow := engine.NewWorkflow(deps)
	log.Println("Workflow initialized successfully")

	// Create router
	r := web.NewRouter(cfg, workflow, store, hub)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
