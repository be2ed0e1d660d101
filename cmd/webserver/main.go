package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizforge"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

func main() {
	cfg, err := quizforge.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := quizforge.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	quizforge.SetLogger(log)
	quizforge.SetVerbose(cfg.LogMode != "prod")

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}
	verifier, err := quizforge.NewTokenVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := quizforge.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalw("Failed to open database", "error", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalw("Failed to create tables", "error", err)
	}

	var knowledge quizforge.ObjectStore
	if cfg.BucketName != "" {
		gcs, err := quizforge.NewGCSStore(ctx, cfg.BucketName, cfg.BucketRegion)
		if err != nil {
			log.Fatalw("Failed to open bucket", "bucket", cfg.BucketName, "error", err)
		}
		defer gcs.Close()
		knowledge = gcs
	} else {
		fsStore, err := quizforge.NewFileStore(cfg.KnowledgeDir)
		if err != nil {
			log.Fatalw("Failed to open knowledge directory", "dir", cfg.KnowledgeDir, "error", err)
		}
		knowledge = fsStore
	}

	var hub quizforge.ProgressHub
	if cfg.RedisAddr != "" {
		hub, err = quizforge.NewRedisHub(ctx, cfg.RedisAddr, cfg.RedisChannelPrefix)
		if err != nil {
			log.Fatalw("Failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
	} else {
		hub = quizforge.NewMemoryHub()
	}
	defer hub.Close()

	progress := quizforge.NewProgressPublisher(db, hub)

	retention, err := quizforge.StartRetention(db, cfg.ProgressRetention)
	if err != nil {
		log.Fatalw("Failed to schedule progress retention", "error", err)
	}
	defer retention.Stop()

	generator := quizforge.NewQuizGenerator(
		quizforge.NewKnowledgeExtractor(knowledge),
		quizforge.NewQuizSynthesizer(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		quizforge.NewPersistenceGateway(db),
		progress,
	)
	if cfg.LLMLogDir != "" {
		generator.SetLLMLogDir(cfg.LLMLogDir)
	}

	// Initialize session store
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		log.Warn("SESSION_SECRET not set, sessions will not survive a restart")
		secret = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(attemptTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	server := NewServer(db, generator, progress, knowledge, verifier, store)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Shutdown did not complete", "error", err)
		}
	}()

	log.Infow("Starting server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("Server failed", "error", err)
	}
}
