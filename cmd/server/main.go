package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/network/netpoll"
	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/agent"
	"github.com/lvyanru/hitl-chat/internal/config"
	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/handler"
	"github.com/lvyanru/hitl-chat/internal/infrastructure/a2a"
	"github.com/lvyanru/hitl-chat/internal/infrastructure/checkpoint"
	"github.com/lvyanru/hitl-chat/internal/router"
	"github.com/lvyanru/hitl-chat/internal/usecase"
	"github.com/lvyanru/hitl-chat/pkg/logger"
)

var (
	cfgFile string
	version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "hitl-server",
	Short: "Human-in-the-loop chat streaming server",
	Long: `hitl-server streams agent runs to chat clients over SSE.
Runs that call a tool requiring approval are suspended and checkpointed
until the user approves or rejects the call in a follow-up request.`,
	Version: version,
	RunE:    runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default: ./configs/config.yaml when present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("hitl-server starting",
		"version", version,
		"config", cfgFile,
		"provider", cfg.Agent.Provider,
		"checkpoint", cfg.Checkpoint.Driver,
	)

	hlog.SetLogger(logger.NewHertzSlogAdapter(appLogger))
	if cfg.Server.Mode == "debug" {
		hlog.SetLevel(hlog.LevelDebug)
	} else {
		hlog.SetLevel(hlog.LevelInfo)
	}

	ctx := context.Background()

	store, err := checkpoint.New(ctx, cfg.Checkpoint, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error("failed to close checkpoint store", "error", err)
		}
	}()

	runner, err := newRunner(ctx, cfg.Agent, store, appLogger)
	if err != nil {
		return err
	}

	driver := usecase.NewExecutionDriver(store, runner, appLogger)
	chatUsecase := usecase.NewChatUsecase(driver, store, usecase.ChatOptions{
		StallTimeout: cfg.Stream.StallTimeout,
	}, appLogger)

	chatHandler := handler.NewChatHandler(chatUsecase, appLogger)
	healthHandler := handler.NewHealthHandler(store)

	h := server.Default(
		server.WithHostPorts(cfg.GetServerAddr()),
		server.WithReadTimeout(cfg.GetReadTimeout()),
		server.WithWriteTimeout(cfg.GetWriteTimeout()),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodySize*1024*1024),
		server.WithTransport(netpoll.NewTransporter),
		// cancels the request context on disconnect, which aborts the SSE relay
		server.WithSenseClientDisconnection(true),
		server.WithExitWaitTime(5*time.Second),
	)

	router.Setup(h.Engine, router.Options{
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     appLogger,
	}, chatHandler, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("server listening",
			"address", cfg.GetServerAddr(),
			"mode", cfg.Server.Mode,
		)
		errCh <- h.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server run failed: %w", err)
		}
		return nil
	case <-quit:
	}

	appLogger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	appLogger.Info("server stopped gracefully")
	return nil
}

// newRunner builds the agent collaborator selected by cfg.Provider.
func newRunner(ctx context.Context, cfg config.AgentConfig, store domain.CheckpointStore, logger *slog.Logger) (domain.AgentRunner, error) {
	if cfg.Provider == "a2a" {
		runner, err := a2a.NewRunner(cfg.A2A.BaseURL, cfg.A2A.Timeout, store, logger)
		if err != nil {
			return nil, err
		}
		return runner, nil
	}

	chatModel, err := agent.NewChatModel(ctx, agent.ModelConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	tools, err := agent.DefaultTools()
	if err != nil {
		return nil, err
	}

	runner, err := agent.NewRunner(ctx, chatModel, tools, store, agent.Options{
		SystemPrompt:  cfg.SystemPrompt,
		MaxIterations: cfg.MaxIterations,
		ApprovalTools: cfg.ApprovalTools,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runner: %w", err)
	}

	logger.Info("agent runner ready",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"approval_tools", cfg.ApprovalTools,
	)
	return runner, nil
}
