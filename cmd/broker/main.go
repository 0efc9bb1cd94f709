package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/remoteview/broker/internal/broker"
	"github.com/remoteview/broker/internal/broker/history"
	"github.com/remoteview/broker/internal/broker/session"
	"github.com/remoteview/broker/internal/common/config"
	"github.com/remoteview/broker/pkg/logger"
	"github.com/remoteview/broker/pkg/metrics"
	"github.com/remoteview/broker/pkg/trace"
	"github.com/remoteview/broker/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of broker",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("broker version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "broker",
		Short: "Real-time session broker",
		Long:  `Session broker connecting agents and controllers over websockets`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "broker.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", cfgPath, err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		_ = lg.Sync()
	}()

	lg.Info("starting broker",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath),
		zap.Int("port", cfg.Port))

	ctx := context.Background()
	if cfg.Tracing.Enabled {
		shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			lg.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				lg.Error("failed to shutdown tracing", zap.Error(err))
			}
		}()
	}

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions := session.NewMemoryStore(lg)
	hist := history.NewBuffer(cfg.History.Capacity)
	m := metrics.New(cfg.Metrics)

	srv := broker.NewServer(lg, cfg.Port, sessions, hist, m)

	go func() {
		if err := srv.Start(); err != nil {
			lg.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down broker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("failed to shutdown server", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
