package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vts/internal/application/transcode"
	"vts/internal/config"
	"vts/internal/infrastructure/ffmpeg"
	"vts/internal/infrastructure/jobdb"
	"vts/internal/infrastructure/storage"
	"vts/internal/observability"
	httptransport "vts/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := log.Default()

	files := storage.NewManager(cfg.UploadDir, cfg.OutputDir, cfg.StorageQuotaBytes, cfg.Retention, logger)
	if err := files.EnsureDirs(); err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	engine := ffmpeg.NewEngine(cfg.FFmpegPath)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := engine.Check(startupCtx); err != nil {
		log.Fatalf("transcoder unavailable: %v", err)
	}
	cancelStartup()

	var archive transcode.RecordArchive
	if cfg.JobsDBPath != "" {
		store, err := jobdb.Open(cfg.JobsDBPath)
		if err != nil {
			log.Fatalf("job archive init failed: %v", err)
		}
		archive = store
	}

	records := transcode.NewRecordStore(archive, logger)
	if err := records.Restore(); err != nil {
		log.Fatalf("job archive restore failed: %v", err)
	}

	metrics := observability.New()
	supervisor := transcode.NewSupervisor(engine, files, cfg.JobTimeout, logger)
	scheduler := transcode.NewScheduler(cfg.WorkerCount, cfg.QueueCapacity, records, supervisor, files, metrics, logger)
	service := transcode.NewService(records, scheduler, files, engine, cfg.Retention, metrics, logger)

	handler := httptransport.NewHandler(service, files, cfg.MaxUploadBytes, logger)
	router := httptransport.NewRouter(handler, metrics.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go service.RunSweeper(ctx, cfg.SweepInterval)

	server := &http.Server{Addr: cfg.ServerAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server started on %s", cfg.ServerAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}

	scheduler.Wait()
	log.Printf("Server stopped")
}
