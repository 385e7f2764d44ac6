package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-ingest/internal/filesystem"
	"hls-ingest/internal/handlers"
	"hls-ingest/internal/identity"
	"hls-ingest/internal/jobs"
	"hls-ingest/internal/logging"
	"hls-ingest/internal/metrics"
	"hls-ingest/internal/middleware"
	"hls-ingest/internal/pipeline"
	"hls-ingest/internal/startup"
	"hls-ingest/internal/transcoder"
	"hls-ingest/internal/upload"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsCollectInterval = time.Minute
	readHeaderTimeout      = 15 * time.Second
	idleTimeout            = 60 * time.Second
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	if err := startup.EnsureRoots(config); err != nil {
		startup.LogFatal("Directory setup failed: %v", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(config.Volumes()))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	ledgerStart := time.Now()
	ledger, err := jobs.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to open job ledger: %v", err)
	}
	interrupted, err := ledger.MarkInterrupted(context.Background())
	if err != nil {
		logging.Warn("Failed to mark interrupted jobs: %v", err)
	}
	startup.LogLedgerInit(time.Since(ledgerStart), interrupted)

	if err := startup.CheckEngine(config); err != nil {
		logging.Warn("Media engine unavailable: %v", err)
	}

	trans := transcoder.New(config.TranscoderConfig(), transcoder.NewExecRunner())
	ns := identity.NewNamespace(config.Roots(), config.NameStrategy)
	p := pipeline.New(pipeline.Options{
		Namespace:     ns,
		Receiver:      upload.NewReceiver(ns, config.MaxUploadBytes),
		Engine:        trans,
		Store:         ledger,
		Policy:        config.ThumbnailPolicy,
		MaxConcurrent: config.MaxConcurrentJobs,
	})

	h := handlers.New(handlers.Options{
		Pipeline:      p,
		Jobs:          ledger,
		Engine:        trans,
		VideosDir:     config.VideosDir,
		ThumbnailsDir: config.ThumbnailsDir,
	})

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	handler, err := wrapHandler(router, config)
	if err != nil {
		startup.LogFatal("Middleware setup failed: %v", err)
	}

	// No read or write timeout: uploads and transcodes can run for minutes
	// and are bounded by the engine's stage timeout instead.
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

		collector = metrics.NewCollector(ledger, config.Volumes(), metricsCollectInterval)
		collector.Start()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsMux.HandleFunc("/healthz", h.LivenessCheck)
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go handleShutdown(done, srv, metricsSrv, collector, trans, ledger)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/", h.Root).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)

	// Health check and version routes
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)

	// Generated artifacts
	r.PathPrefix("/videos/").Handler(http.StripPrefix("/videos/", h.ServeVideos()))
	r.PathPrefix("/thumbnails/").Handler(http.StripPrefix("/thumbnails/", h.ServeThumbnails()))

	return r
}

// wrapHandler applies CORS, compression and access logging around the router.
// CORS runs inside logging so that rejected preflights are still logged.
func wrapHandler(router http.Handler, config *startup.Config) (http.Handler, error) {
	cors, err := middleware.CORS(middleware.CORSConfig{Origins: config.FrontendOrigins})
	if err != nil {
		return nil, err
	}

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	handler := cors(router)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	return middleware.Logger(loggingConfig)(handler), nil
}

type closer interface {
	Close() error
}

func handleShutdown(done chan<- struct{}, srv, metricsSrv *http.Server, collector *metrics.Collector, trans *transcoder.Transcoder, ledger closer) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// In-flight uploads finish (bounded by the timeout) before engine
	// processes are killed.
	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping engine processes")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Engine processes stopped")

	if collector != nil {
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing job ledger")
	if err := ledger.Close(); err != nil {
		logging.Warn("Job ledger close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Job ledger closed")
	}

	startup.LogShutdownComplete()
}
