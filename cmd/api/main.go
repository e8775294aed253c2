// Package main is the entrypoint for the mintdesk API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mintdesk/mintdesk/internal/auth"
	"github.com/mintdesk/mintdesk/internal/cache"
	"github.com/mintdesk/mintdesk/internal/config"
	"github.com/mintdesk/mintdesk/internal/contract"
	"github.com/mintdesk/mintdesk/internal/handler"
	"github.com/mintdesk/mintdesk/internal/metadata"
	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/middleware"
	"github.com/mintdesk/mintdesk/internal/mint"
	"github.com/mintdesk/mintdesk/internal/model"
	"github.com/mintdesk/mintdesk/internal/ownership"
	"github.com/mintdesk/mintdesk/internal/repository"
	"github.com/mintdesk/mintdesk/internal/server"
	"github.com/mintdesk/mintdesk/internal/service"
	"github.com/mintdesk/mintdesk/internal/wallet"
	"github.com/mintdesk/mintdesk/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "invalid configuration", "error", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metricsRecorder := metrics.NewInMemory()

	registry, err := contract.NewRegistry(cfg.DeployedContracts)
	if err != nil {
		fatal(logger, "invalid DEPLOYED_CONTRACTS", "error", err)
	}
	contractAddr, err := registry.Lookup(cfg.ContractName)
	if err != nil {
		fatal(logger, "contract not deployed",
			"contract", cfg.ContractName,
			"deployed", registry.Names(),
			"error", err,
		)
	}

	rpc, err := contract.Dial(ctx, cfg.RPCURL)
	if err != nil {
		fatal(logger, "rpc dial",
			"error", sanitizeError(err, cfg.RPCURL),
			"rpc_url", redactURL(cfg.RPCURL),
		)
	}
	logger.Info("connected to rpc", "rpc_url", redactURL(cfg.RPCURL))

	nftOpts := []contract.Option{}
	var signer *contract.Signer
	if cfg.MintEnabled() {
		signer, err = contract.NewSigner(cfg.SignerPrivateKey, cfg.ChainID)
		if err != nil {
			fatal(logger, "invalid SIGNER_PRIVATE_KEY", "error", err)
		}
		nftOpts = append(nftOpts, contract.WithSigner(signer.Opts))
		if cfg.MintWaitMined {
			nftOpts = append(nftOpts, contract.WithReceiptWait(rpc))
		}
		logger.Info("minting enabled", "signer", signer.Address.Hex())
	} else {
		logger.Warn("SIGNER_PRIVATE_KEY not set; minting disabled")
	}

	nft, err := contract.NewNFT(contractAddr, rpc, rpc, nftOpts...)
	if err != nil {
		fatal(logger, "bind contract", "error", err)
	}

	// The ledger and the cache are both optional.
	var (
		repo    *repository.Repository
		journal mint.Journal
		history handler.MintHistory
		dbCheck handler.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		repo, err = repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "database connect",
				"error", sanitizeError(err, cfg.DatabaseURL),
				"database_url", redactURL(cfg.DatabaseURL),
			)
		}
		ledger := service.NewMintLedger(repo)
		journal, history, dbCheck = ledger, ledger, repo
		logger.Info("mint ledger enabled", "database_url", redactURL(cfg.DatabaseURL))
	}

	var (
		cacheClient *cache.Cache
		tokenCache  service.TokenCache
		limiter     middleware.MintLimiter
		cacheCheck  handler.HealthChecker
	)
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connect",
				"error", sanitizeError(err, cfg.RedisURL),
				"redis_url", redactURL(cfg.RedisURL),
			)
		}
		tokenCache, limiter, cacheCheck = cacheClient, cacheClient, cacheClient
		logger.Info("token cache enabled", "redis_url", redactURL(cfg.RedisURL))
	}

	initialAccount := cfg.ConnectedAccount
	if initialAccount == "" && signer != nil {
		initialAccount = signer.Address.Hex()
	}
	session, err := wallet.NewSession(initialAccount)
	if err != nil {
		fatal(logger, "invalid CONNECTED_ACCOUNT", "error", err)
	}

	tokenReader := service.NewTokenReader(nft, tokenCache, service.TokenReaderConfig{
		Contract:       strings.ToLower(contractAddr.Hex()),
		TokenURITTL:    cfg.TokenURICacheTTL,
		OwnedTokensTTL: cfg.OwnedTokensCacheTTL,
	}, logger, metricsRecorder)
	decoder := metadata.NewDecoder(logger, metricsRecorder)
	view := ownership.NewView(tokenReader, session, decoder, cfg.MetadataConcurrency, logger, metricsRecorder)

	var writer contract.Writer
	if nft.CanMint() {
		writer = nft
	}
	controller := mint.NewController(writer, journal, mint.Config{
		ContractName: cfg.ContractName,
		Timeout:      cfg.MintTimeout,
	}, logger, metricsRecorder)

	controller.OnSuccess(func(ctx context.Context, req model.MintRequest, _ string) {
		owners := []model.Address{req.Recipient}
		if account, ok := session.Account(); ok {
			owners = append(owners, account)
		}
		if !cfg.MintWaitMined {
			tokenReader.Bypass(cfg.MintSettleDelay, owners...)
			time.AfterFunc(cfg.MintSettleDelay, view.RequestRefresh)
		}
		if err := tokenReader.InvalidateOwner(ctx, owners...); err != nil {
			logger.Warn("failed to invalidate owned tokens cache", "error", err)
		}
		view.RequestRefresh()
	})

	var notifier *webhook.Notifier
	if cfg.MintWebhookURL != "" {
		if err := webhook.ValidateTargetURL(cfg.MintWebhookURL, cfg.IsDevelopment()); err != nil {
			fatal(logger, "invalid MINT_WEBHOOK_URL", "error", err)
		}
		notifier = webhook.NewNotifier(webhook.Config{
			TargetURL:       cfg.MintWebhookURL,
			Secret:          cfg.MintWebhookSecret,
			Contract:        cfg.ContractName,
			ContractAddress: contractAddr.Hex(),
			AllowLocal:      cfg.IsDevelopment(),
		}, nil, logger, metricsRecorder)
		controller.OnSuccess(notifier.MintSucceeded)
		logger.Info("mint webhook enabled", "host", webhook.ExtractHost(cfg.MintWebhookURL))
	}

	var verifier middleware.KeyVerifier
	if cfg.MintAPIKeyHash != "" {
		kv, err := auth.NewKeyVerifier(cfg.MintAPIKeyHash)
		if err != nil {
			fatal(logger, "invalid MINT_API_KEY_HASH", "error", err)
		}
		verifier = kv
	}

	info := handler.ServiceInfo{
		Contract:        cfg.ContractName,
		ContractAddress: contractAddr.Hex(),
		ChainID:         cfg.ChainID,
		RenderMode:      cfg.RenderMode,
	}

	page := handler.NewPageHandler(handler.PageConfig{
		Info:       info,
		RenderMode: cfg.RenderMode,
		MintForm:   verifier == nil && controller.Enabled(),
	}, view, controller, session, logger)

	handlers := routeHandlers{
		root:    handler.New(info),
		health:  handler.NewHealthHandler(dbCheck, cacheCheck, rpc),
		metrics: handler.NewMetricsHandler(metricsRecorder),
		account: handler.NewAccountHandler(session, logger),
		mint:    handler.NewMintHandler(controller, session, history, logger),
		tokens:  handler.NewTokenHandler(view, cfg.RenderMode, logger),
		page:    page,
	}

	r := setupRouter(handlers, verifier, limiter, cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Hooks run in reverse: redis, database, then rpc.
	srv.OnShutdown("rpc", func(context.Context) error {
		rpc.Close()
		return nil
	})
	if repo != nil {
		srv.OnShutdown("database", func(context.Context) error {
			repo.Close()
			return nil
		})
	}
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}

	srv.Go("ownership_view", func(ctx context.Context) error {
		view.Run(ctx)
		return nil
	})
	if notifier != nil {
		srv.Go("mint_webhook", notifier.Run)
	}

	logger.Info("mintdesk starting",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"contract", cfg.ContractName,
		"contract_address", contractAddr.Hex(),
		"chain_id", cfg.ChainID,
		"render_mode", cfg.RenderMode,
	)

	if err := srv.Run(ctx); err != nil {
		fatal(logger, "server stopped", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// newLogger writes to stdout; format is "json" or "text".
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == config.LogFormatText {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// parseLogLevel falls back to info for anything unrecognised.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

type routeHandlers struct {
	root    *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	account *handler.AccountHandler
	mint    *handler.MintHandler
	tokens  *handler.TokenHandler
	page    *handler.PageHandler
}

// setupRouter wires middleware and routes. Mint submissions pass the rate
// limit before the key check so a bad key still spends budget.
func setupRouter(
	h routeHandlers,
	verifier middleware.KeyVerifier,
	limiter middleware.MintLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)

	r.Get("/", h.root.Hello)

	requireKey := middleware.RequireMintKey(middleware.AuthConfig{
		Logger:   logger,
		Verifier: verifier,
	})
	limitMint := middleware.RateLimitMint(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitMintEnabled,
		RPS:     cfg.RateLimitMintRPS,
		Burst:   cfg.RateLimitMintBurst,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/account", func(r chi.Router) {
			r.Get("/", h.account.Get)
			r.Put("/", h.account.Put)
			r.Delete("/", h.account.Delete)
		})

		r.Route("/mint", func(r chi.Router) {
			r.Get("/", h.mint.Get)
			r.With(limitMint, requireKey).Post("/", h.mint.Submit)
		})
		r.Get("/mints", h.mint.List)

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", h.tokens.List)
			r.Post("/refresh", h.tokens.Refresh)
			r.Get("/{id}", h.tokens.Get)
		})
	})

	// Browser surface
	r.Get("/tokens/{id}/image", h.tokens.Image)
	r.Get("/nft", h.page.NFT)
	r.With(limitMint).Post("/nft/mint", h.page.Mint)

	r.NotFound(h.root.NotFound)
	r.MethodNotAllowed(h.root.MethodNotAllowed)

	return r
}
