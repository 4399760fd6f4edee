package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smart-attendance-backend/config"
	"smart-attendance-backend/internal/api"
	"smart-attendance-backend/internal/capture"
	"smart-attendance-backend/internal/db"
	"smart-attendance-backend/internal/engine"
	"smart-attendance-backend/internal/facedetect"
	"smart-attendance-backend/internal/notification"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "attendance-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, cfg.Recognition.MinTemplates)
	logger.Println("data store initialized")

	// Load the registered face templates into memory.
	index := recognize.NewIndex()
	if err := index.Reload(ctx, appStore); err != nil {
		logger.Fatalf("failed to load face templates: %v", err)
	}
	logger.Printf("face template index loaded for %d students", index.Size())

	matcher := recognize.NewMatcher(index, cfg.Recognition.MatchThreshold)
	detector := facedetect.New(
		cfg.Capture.Detector.URL,
		cfg.Capture.Detector.Skip,
		time.Duration(cfg.Capture.Detector.TimeoutSeconds)*time.Second,
		cfg.Capture.Detector.MinFaceSize,
	)
	recognizer := recognize.NewRecognizer(detector, matcher)
	frames := capture.NewDirSource(cfg.Capture.SourceDir, cfg.Capture.FrameInterval)

	// Web push is optional; without VAPID keys the sessions run but no
	// notifications are sent.
	var webpushOptions *webpush.Options
	var sink engine.Sink
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		sink = notification.NewSinkAdapter(pool)
	} else {
		logger.Println("VAPID keys are not configured; push notifications disabled")
	}

	eng := engine.New(appStore, appStore, recognizer, frames, sink, cfg.Recognition.Cooldown)

	// Initialize router
	router := api.NewRouter(cfg, appStore, eng, index, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	// End any running capture session before exiting; an in-flight mark
	// finishes first.
	eng.Stop()

	logger.Println("Server gracefully stopped")
}
