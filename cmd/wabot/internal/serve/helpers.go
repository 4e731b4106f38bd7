package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/cmd/wabot/internal"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/backend"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/config"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/control"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/gateway"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/pipeline"
	anthropicprovider "github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/providers/anthropic"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/registry"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/resolver"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/wa"
)

func serveCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
	})
	if err != nil {
		return fmt.Errorf("error creating backend client: %w", err)
	}

	replier, err := createReplier(cfg, backendClient)
	if err != nil {
		return fmt.Errorf("error creating reply provider: %w", err)
	}

	creds, err := wa.NewCredentialStore(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("error opening credential store: %w", err)
	}
	defer creds.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msgBus := bus.NewMessageBus()
	reg := registry.New()
	hub := control.NewHub()

	mgr := session.NewManager(ctx, session.Options{
		Registry:       reg,
		Dialer:         wa.NewDialer(creds),
		Credentials:    creds,
		Bus:            msgBus,
		Listener:       hub,
		ReconnectDelay: cfg.ReconnectDelay(),
	})

	pipe := pipeline.New(pipeline.Options{
		Bus:           msgBus,
		Resolver:      resolver.New(mgr),
		Store:         backendClient,
		Policy:        backendClient,
		Replier:       replier,
		StoreTimeout:  cfg.StoreTimeout(),
		PolicyTimeout: cfg.PolicyTimeout(),
		ReplyTimeout:  cfg.ReplyTimeout(),
	})

	gw := gateway.New(reg)
	dispatcher := gateway.NewDispatcher(gw, msgBus, backendClient)

	go pipe.Run(ctx)
	go dispatcher.Run(ctx)

	// Resume every tenant with stored credentials before opening the
	// control plane, so restarts are invisible to authenticated tenants.
	mgr.StartPersisted()

	srv := control.NewServer(cfg.Server.Host, cfg.Server.Port, mgr, gw, hub)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("control", "Control server error", map[string]any{"error": err.Error()})
		}
	}()

	fmt.Printf("wabot serving on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WarnCF("control", "Control server shutdown error", map[string]any{"error": err.Error()})
	}
	mgr.Shutdown()
	msgBus.Close()
	fmt.Println("wabot stopped")

	return nil
}

// createReplier picks where generated replies come from. The backend is
// the default; "anthropic" calls the model API from this process.
func createReplier(cfg *config.Config, backendClient *backend.Client) (pipeline.Replier, error) {
	switch cfg.Reply.Provider {
	case "", "backend":
		return backendClient, nil
	case "anthropic":
		if cfg.Reply.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("reply.anthropic.api_key is required for the anthropic provider")
		}
		return anthropicprovider.NewProvider(
			cfg.Reply.Anthropic.APIKey,
			cfg.Reply.Anthropic.APIBase,
			cfg.Reply.Anthropic.Model,
			cfg.Reply.Anthropic.SystemPrompt,
		), nil
	default:
		return nil, fmt.Errorf("unknown reply provider: %s", cfg.Reply.Provider)
	}
}
