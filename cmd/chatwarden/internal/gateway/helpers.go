package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal"
	"github.com/chatwarden/chatwarden/pkg/abuse"
	"github.com/chatwarden/chatwarden/pkg/bus"
	"github.com/chatwarden/chatwarden/pkg/challenge"
	"github.com/chatwarden/chatwarden/pkg/config"
	"github.com/chatwarden/chatwarden/pkg/dispatch"
	"github.com/chatwarden/chatwarden/pkg/engine"
	"github.com/chatwarden/chatwarden/pkg/filter"
	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/platform"
	"github.com/chatwarden/chatwarden/pkg/platform/telegram"
	"github.com/chatwarden/chatwarden/pkg/store"
)

func gatewayCmd(configPath string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	if configPath == "" {
		configPath = internal.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dbPath := cfg.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(internal.GetDataDir(), dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("error opening state store: %w", err)
	}
	defer st.Close()

	adapter, err := telegram.New(cfg.BotToken)
	if err != nil {
		return err
	}

	detector := abuse.NewDetector(st)
	challenges := challenge.NewEngine(st, challenge.WithTimeout(cfg.CaptchaTimeout()))
	pipeline := filter.NewPipeline(st, detector)
	auditor := platform.NewAuditor(adapter, cfg.AdminChannelID)

	eng := engine.New(st, challenges, detector, pipeline, adapter, auditor)
	defer eng.Stop()

	dispatcher := dispatch.NewDispatcher(st, adapter,
		dispatch.WithInterval(cfg.DispatchInterval()))

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go eng.Run(ctx, eventBus)
	go dispatcher.Run(ctx)

	logger.InfoC("gateway", "Gateway started")
	err = adapter.Listen(ctx, eventBus)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("update listener failed: %w", err)
	}

	logger.InfoC("gateway", "Gateway stopped")
	return nil
}
