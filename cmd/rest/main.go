package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deep-research-agent/internal/bootstrap"
	"deep-research-agent/internal/config"
	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/internal/server"
	"deep-research-agent/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	defer sysLogger.Sync()

	// 2. Tracer
	shutdownTracer := tracer.InitTracer(cfg.App, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg, sysLogger)
	if err != nil {
		sysLogger.Error(constant.LogModuleBoot, "Failed to build container", map[string]interface{}{
			"error": err.Error(),
		})
		log.Fatalf("[FATAL] %v", err)
	}
	defer container.Close()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		if err := srv.Run(); err != nil {
			sysLogger.Error(constant.LogModuleHTTP, "Server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sysLogger.Warn(constant.LogModuleHTTP, "Shutdown did not finish cleanly", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
