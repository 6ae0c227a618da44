package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
	"github.com/nextlevelbuilder/joinbridge/internal/channels"
	discordchannel "github.com/nextlevelbuilder/joinbridge/internal/channels/discord"
	"github.com/nextlevelbuilder/joinbridge/internal/commands"
	"github.com/nextlevelbuilder/joinbridge/internal/config"
	"github.com/nextlevelbuilder/joinbridge/internal/discord"
	httpapi "github.com/nextlevelbuilder/joinbridge/internal/http"
	"github.com/nextlevelbuilder/joinbridge/internal/joiner"
	"github.com/nextlevelbuilder/joinbridge/internal/oauth"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
	"github.com/nextlevelbuilder/joinbridge/internal/store/file"
	"github.com/nextlevelbuilder/joinbridge/internal/tracing"
)

// callbackBurst is the per-IP burst allowed on /callback when rate limiting is on.
const callbackBurst = 5

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the OAuth2 callback server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracing := initTracing(ctx, cfg)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := file.NewFileStores(storeConfig(cfg))
	if err != nil {
		return fmt.Errorf("open bindings: %w", err)
	}

	api := discord.NewClient(discord.ClientConfig{
		APIBase:  cfg.Discord.APIBase,
		BotToken: cfg.Discord.BotToken,
	})
	j := joiner.New(api, joinOptions(cfg))
	exchanger := oauth.NewExchanger(oauth.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		APIBase:      cfg.Discord.APIBase,
	})

	msgBus := bus.New()
	dc, err := discordchannel.New(discordchannel.Config{Token: cfg.Discord.BotToken}, msgBus)
	if err != nil {
		return err
	}
	mgr := channels.NewManager(msgBus)
	mgr.Register(dc)
	dispatcher := commands.NewDispatcher(stores, j, exchanger)

	if watcher, err := config.NewWatcher(cfgPath, cfg); err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			j.SetOptions(joinOptions(next))
			slog.Info("join options updated",
				"auto_role", next.Join.AutoRoleID != "", "webhook", next.Join.WebhookURL != "")
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config hot reload unavailable", "path", cfgPath, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	limiter := httpapi.NewRateLimiter(ctx, cfg.Gateway.RateLimitRPM, callbackBurst)
	server := httpapi.NewServer(
		httpapi.ServerConfig{Host: cfg.Gateway.Host, Port: cfg.Gateway.Port},
		httpapi.NewCallbackHandler(exchanger, stores, j),
		limiter,
	)

	if err := mgr.StartAll(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() { dispatcher.Serve(ctx, msgBus) })
	wg.Go(func() { mgr.DispatchOutbound(ctx) })

	slog.Info("joinbridge started",
		"version", Version,
		"bound_users", stores.Bindings.Count(),
		"callback", cfg.OAuth.RedirectURI,
	)

	serveErr := server.Start(ctx)
	if serveErr != nil {
		slog.Error("callback server failed", "error", serveErr)
		stop()
	}

	mgr.StopAll(context.Background())
	wg.Wait()
	slog.Info("joinbridge stopped")
	return serveErr
}

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		BindingsPath:    cfg.Store.Path,
		EncryptionKey:   cfg.Store.EncryptionKey,
		PendingCapacity: cfg.Pending.Capacity,
	}
}

func joinOptions(cfg *config.Config) joiner.Options {
	return joiner.Options{
		AutoRoleID: cfg.Join.AutoRoleID,
		WebhookURL: cfg.Join.WebhookURL,
	}
}

// initTracing wires the OTLP exporter when an endpoint is configured.
// Failures only disable tracing.
func initTracing(ctx context.Context, cfg *config.Config) func(context.Context) error {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Headers:     cfg.Telemetry.Headers,
	}, Version)
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}
