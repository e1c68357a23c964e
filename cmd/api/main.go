package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ptedit/api/internal/app"
	"ptedit/api/internal/archive"
	"ptedit/api/internal/config"
	"ptedit/api/internal/gitrepo"
	"ptedit/api/internal/relay"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/search"
	"ptedit/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	sch := schema.Default()
	if strings.TrimSpace(cfg.SchemaPath) != "" {
		loaded, err := schema.Load(cfg.SchemaPath)
		if err != nil {
			log.Fatalf("schema load failed: %v", err)
		}
		sch = loaded
	}
	types := sch.Types()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db, types)
	gitService := gitrepo.New(cfg.ReposDir, types)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	deps := app.Deps{
		Store:  dataStore,
		Git:    gitService,
		Search: searchService,
		Schema: sch,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis patch feed")
		feed, err := relay.New(cfg.RedisURL, types)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer feed.Close()
		deps.Feed = feed
	} else {
		log.Printf("Using in-process patch feed")
	}

	snapshots, err := archive.New(ctx, archive.Config{
		Endpoint:  cfg.ArchiveEndpoint,
		AccessKey: cfg.ArchiveAccessKey,
		SecretKey: cfg.ArchiveSecretKey,
		Bucket:    cfg.ArchiveBucket,
		UseSSL:    cfg.ArchiveUseSSL,
	}, types)
	switch {
	case err == nil:
		deps.Archive = snapshots
	case errors.Is(err, archive.ErrNotConfigured):
		log.Printf("Session archive disabled")
	default:
		log.Printf("WARNING: session archive unavailable: %v", err)
	}

	service := app.New(cfg, deps)
	go searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ptedit API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	service.Shutdown(shutdownCtx)
}
