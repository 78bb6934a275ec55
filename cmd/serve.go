package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/darmiel/warrant/internal/api"
	"github.com/darmiel/warrant/internal/audit"
	"github.com/darmiel/warrant/internal/buildinfo"
	"github.com/darmiel/warrant/internal/config"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/credential"
	"github.com/darmiel/warrant/internal/engine"
	"github.com/darmiel/warrant/internal/issuers"
	"github.com/darmiel/warrant/internal/jwks"
	"github.com/darmiel/warrant/internal/metrics"
	"github.com/darmiel/warrant/internal/policy"
	"github.com/darmiel/warrant/internal/service"
	"github.com/darmiel/warrant/internal/source"
	"github.com/darmiel/warrant/internal/store"
	"github.com/darmiel/warrant/internal/tasks"
)

const (
	policyReloadTask  = "policy-reload"
	jwksRefreshPrefix = "jwks-refresh:"

	watchDebounce  = 500 * time.Millisecond
	expiryGC       = time.Minute
	shutdownPeriod = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the warrant server",
	Long: `Starts the credential broker. Signing keys of all trusted issuers are fetched
and roles are loaded before the server accepts requests. Roles are reloaded
when policy files change (policy.watch) or periodically (policy.interval).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.close()

		server := &http.Server{
			Addr:              addr,
			Handler:           app.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server crashed: %w", err)
			}
			return nil
		})
		if cfg.Policy.Watch {
			g.Go(func() error {
				log.Info().Str("path", cfg.Policy.Path).Msg("Watching policy files for changes")
				return source.Watch(gctx, cfg.Policy.Path, watchDebounce, func() {
					if err := app.tasks.Trigger(policyReloadTask); err != nil {
						log.Warn().Err(err).Msg("failed to trigger policy reload")
					}
				})
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	},
}

type app struct {
	handler http.Handler
	tasks   *tasks.Manager
	keys    *jwks.Cache
	auditor core.Auditor
}

func (a *app) close() {
	a.tasks.Stop()
	a.keys.Wait()
	if err := a.auditor.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close audit sink")
	}
}

// buildApp wires all components of the broker from the configuration and
// runs the initial key fetch and policy load.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	log.Info().Msg("Initializing issuers...")
	issRegistry, sources, err := issuers.BuildRegistry(cfg.Issuers, &http.Client{Timeout: cfg.JWKS.FetchTimeout})
	if err != nil {
		return nil, fmt.Errorf("building issuer registry: %w", err)
	}
	keys := jwks.New(sources, jwks.Options{
		TTL:          cfg.JWKS.TTL,
		FetchTimeout: cfg.JWKS.FetchTimeout,
		MissInterval: cfg.JWKS.MissInterval,
		OnRefresh:    collector.ObserveRefresh,
	})
	verifier := issuers.NewVerifier(issRegistry, keys, issuers.VerifierOptions{
		Algorithms: cfg.Broker.AllowedAlgorithms,
		Leeway:     cfg.Broker.Leeway,
	})

	var guardrail *core.PermissionPolicy
	if cfg.Policy.Guardrail != "" {
		if guardrail, err = source.LoadPermissionPolicy(cfg.Policy.Guardrail); err != nil {
			return nil, fmt.Errorf("loading guardrail: %w", err)
		}
	}
	eng := engine.New(engine.NewCatalog(cfg.Catalog.Actions, cfg.Catalog.Resources), guardrail)

	secret, err := cfg.Broker.SigningSecret()
	if err != nil {
		return nil, err
	}
	revocations := store.NewRevocations(nil)
	revocations.Start(ctx, expiryGC)
	creds, err := credential.NewIssuer(credential.Options{
		Issuer:             cfg.Broker.CredentialIssuer,
		SigningKey:         secret,
		MaxSessionDuration: cfg.Broker.MaxSessionDuration,
		Revocations:        revocations,
	})
	if err != nil {
		return nil, fmt.Errorf("creating credential issuer: %w", err)
	}

	log.Info().Str("type", cfg.Audit.Type).Msg("Initializing audit sink...")
	auditor, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("creating audit sink: %w", err)
	}

	sessions := store.NewInMemorySessionStore(nil)
	sessions.Start(ctx, expiryGC)

	roles := policy.NewStore(nil)
	broker, err := service.NewBroker(service.Components{
		Issuers:     issRegistry,
		Verifier:    verifier,
		Roles:       roles,
		Engine:      eng,
		Credentials: creds,
		Auditor:     auditor,
		Sessions:    sessions,
		Revocations: revocations,
	}, service.Options{
		ExchangeTimeout: cfg.Broker.ExchangeTimeout,
		Metrics:         collector,
	})
	if err != nil {
		_ = auditor.Close()
		return nil, err
	}

	manager := tasks.NewManager(tasks.Options{})
	manager.Register(policyReloadTask, cfg.Policy.Interval,
		source.ReloadTask(source.DirFetcher{Path: cfg.Policy.Path}, roles, broker.KnownIssuers()))
	for _, iss := range keys.Issuers() {
		manager.Register(jwksRefreshPrefix+iss, cfg.JWKS.RefreshInterval, keys.RefreshTask(iss))
	}

	a := &app{tasks: manager, keys: keys, auditor: auditor}

	// roles are required to serve, keys are fetched again on demand
	if err := manager.RunNow(ctx, policyReloadTask); err != nil {
		a.close()
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	for _, iss := range keys.Issuers() {
		if err := manager.RunNow(ctx, jwksRefreshPrefix+iss); err != nil {
			log.Warn().Err(err).Str("issuer", iss).Msg("initial key fetch failed")
		}
	}

	adminKey := []byte(cfg.Broker.AdminKey)
	if len(adminKey) == 0 {
		log.Warn().Msg("broker.admin_key is empty, the admin API is disabled")
	}
	a.handler = api.NewServer(broker, manager, registry).Routes(adminKey)

	info := buildinfo.GetBuildInfo()
	log.Info().
		Str("version", info.Version).
		Int("issuers", len(issRegistry.List())).
		Uint64("revision", roles.Snapshot().Revision).
		Msg("Broker initialized")
	return a, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
}
