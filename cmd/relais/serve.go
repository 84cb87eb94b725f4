package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/relais/pkg/agent/mcpagent"
	"github.com/rhuss/relais/pkg/auth"
	"github.com/rhuss/relais/pkg/auth/apikey"
	jwtauth "github.com/rhuss/relais/pkg/auth/jwt"
	"github.com/rhuss/relais/pkg/config"
	"github.com/rhuss/relais/pkg/credential"
	"github.com/rhuss/relais/pkg/observability"
	"github.com/rhuss/relais/pkg/transport"
	"github.com/rhuss/relais/pkg/upstream"
	"github.com/rhuss/relais/pkg/usage"
	usagememory "github.com/rhuss/relais/pkg/usage/memory"
	usagepostgres "github.com/rhuss/relais/pkg/usage/postgres"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	// Authorization agent subprocess.
	agentClient := mcpagent.New(mcpagent.Config{
		Command: cfg.Agent.Command,
		Args:    cfg.Agent.Args,
	})
	if cfg.Agent.Command != "" {
		if err := agentClient.Connect(ctx); err != nil {
			return fmt.Errorf("connecting authorization agent: %w", err)
		}
		defer agentClient.Close()
	}

	// Credential lifecycle.
	store := credential.NewStore()
	exchanger := credential.NewTokenExchanger(
		cfg.Upstream.TokenURL,
		credential.StaticTokenSource(cfg.Credential.OAuthToken),
		cfg.Upstream.ExchangeTimeout,
	)
	manager := credential.NewManager(store, agentClient, exchanger, credential.ManagerConfig{
		RenewInterval: cfg.Credential.RenewInterval,
		RenewAhead:    cfg.Credential.RenewAhead,
	})
	go manager.Run(ctx)

	// Upstream streaming client.
	client := upstream.NewClient(manager, cfg.Upstream.ConnectTimeout)
	defer client.Close()

	// Usage ledger.
	usageStore, err := newUsageStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer usageStore.Close()

	// Inbound authentication.
	chain, limiter, err := newAuthChain(cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler := transport.NewHandler(client, transport.WithUsageStore(usageStore))
	handler.Register(mux)
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	var h http.Handler = mux
	h = auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)(h)
	if cfg.Observability.Metrics.Enabled {
		h = observability.MetricsMiddleware(h)
	}
	h = transport.Logging(slog.Default())(h)
	h = transport.Recovery(h)
	h = transport.RequestID(h)

	srv := transport.NewServer(cfg.Server.Port, h,
		transport.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)

	slog.Info("bridge starting",
		"port", cfg.Server.Port,
		"token_url", cfg.Upstream.TokenURL,
		"auth", cfg.Auth.Type,
		"usage", cfg.Usage.Type,
	)
	return srv.Run(ctx)
}

func newUsageStore(ctx context.Context, cfg *config.Config) (usage.Store, error) {
	switch cfg.Usage.Type {
	case "postgres":
		store, err := usagepostgres.New(ctx, usagepostgres.Config{
			DSN:            cfg.Usage.Postgres.DSN,
			MaxConns:       cfg.Usage.Postgres.MaxConns,
			MigrateOnStart: cfg.Usage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting usage store: %w", err)
		}
		return store, nil
	default:
		return usagememory.New(cfg.Usage.MaxSize), nil
	}
}

func newAuthChain(cfg *config.Config) (*auth.Chain, auth.RateLimiter, error) {
	var limiter auth.RateLimiter
	if cfg.Auth.RateLimitRPM > 0 {
		limiter = auth.NewInProcessLimiter(cfg.Auth.RateLimitRPM)
	}

	switch cfg.Auth.Type {
	case "", "none":
		return auth.NewChain(auth.Allow), limiter, nil
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.Entry{
				Key:     k.Key,
				Subject: k.Subject,
				Scopes:  k.Scopes,
			})
		}
		return auth.NewChain(auth.Deny, apikey.New(entries)), limiter, nil
	case "jwt":
		voter := jwtauth.New(jwtauth.Config{
			Issuer:   cfg.Auth.JWT.Issuer,
			Audience: cfg.Auth.JWT.Audience,
			JWKSURL:  cfg.Auth.JWT.JWKSURL,
		})
		return auth.NewChain(auth.Deny, voter), limiter, nil
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
}
