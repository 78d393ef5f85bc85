package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devp3102/IDS568-MLOps/config"
	"github.com/devp3102/IDS568-MLOps/db"
	apihttp "github.com/devp3102/IDS568-MLOps/http"
	"github.com/devp3102/IDS568-MLOps/logging"
	"github.com/devp3102/IDS568-MLOps/ml"
	"github.com/devp3102/IDS568-MLOps/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// A missing config file is fine: defaults plus env overrides apply.
	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetricsCollector()

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Warn("prediction history disabled",
			zap.String("path", cfg.Database.Path), zap.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	// The model is loaded exactly once. If the artifact is missing or
	// invalid the service stays up degraded: /health reports it and
	// /predict answers 503 until a restart with a good artifact.
	var classifier ml.Classifier
	if model, err := ml.LoadModel(cfg.Model.Path); err != nil {
		logger.Error("failed to load model, serving degraded",
			zap.String("path", cfg.Model.Path), zap.Error(err))
	} else {
		classifier = model
		info := model.Info()
		logger.Info("model loaded",
			zap.String("path", cfg.Model.Path),
			zap.String("type", info.ModelType),
			zap.Int("trees", info.NumTrees),
			zap.Float64("accuracy", info.Accuracy))
	}

	hub := monitoring.NewWebSocketHub(logger)
	go hub.Start()
	defer hub.Stop()

	watcher, err := monitoring.NewArtifactWatcher(cfg.Model.Path, logger, func() {
		hub.SendModelStatus(monitoring.ModelStatusEvent{
			Loaded: classifier != nil,
			Stale:  true,
			Path:   cfg.Model.Path,
		})
	})
	if err != nil {
		logger.Warn("artifact watcher unavailable", zap.Error(err))
		watcher = nil
	} else {
		go watcher.Start()
		defer watcher.Stop()
	}

	handler := apihttp.NewHandler(apihttp.HandlerConfig{
		Model:     classifier,
		ModelPath: cfg.Model.Path,
		Store:     store,
		Metrics:   metrics,
		Hub:       hub,
		Watcher:   watcher,
		CacheSize: cfg.Model.CacheSize,
		Logger:    logger,
	})

	server := apihttp.NewServer(apihttp.ServerConfig{
		Port:           cfg.Server.Port,
		Timeout:        time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		MaxConnections: cfg.Server.MaxConnections,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, handler, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	go func() {
		for range heartbeat.C {
			hub.SendHeartbeat()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
