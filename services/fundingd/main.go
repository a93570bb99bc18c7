package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fundingbridge/observability/logging"
	telemetry "fundingbridge/observability/otel"
	"fundingbridge/services/fundingd/config"
	"fundingbridge/services/fundingd/intents"
	"fundingbridge/services/fundingd/ledger"
	"fundingbridge/services/fundingd/reconciler"
	"fundingbridge/services/fundingd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/fundingd/config.yaml", "path to fundingd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FUNDINGD_ENV"))
	logger := logging.Setup("fundingd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "fundingd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("fundingd: load config: %v", err)
	}

	signer, err := ledger.NewSigner(cfg.Oracle.AccountID, cfg.Oracle.SigningKey)
	if err != nil {
		log.Fatalf("fundingd: oracle signer: %v", err)
	}
	oracleClient, err := ledger.NewClient(cfg.Ledger.RPCEndpoint, cfg.Ledger.ContractID, signer)
	if err != nil {
		log.Fatalf("fundingd: ledger client: %v", err)
	}
	quoteClient := intents.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey,
		intents.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Provider.RateLimit), cfg.Provider.RateBurst)),
	)

	rec, err := reconciler.New(reconciler.Config{
		PollInterval:   cfg.Reconciler.PollInterval.Duration,
		TickFloor:      cfg.Reconciler.TickFloor.Duration,
		PageSize:       cfg.Reconciler.PageSize,
		RotationBuffer: cfg.Reconciler.RotationBuffer.Duration,
	}, quoteClient, oracleClient, reconciler.WithLogger(logger))
	if err != nil {
		log.Fatalf("fundingd: reconciler: %v", err)
	}

	auth, err := server.NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		log.Fatalf("fundingd: admin auth: %v", err)
	}
	srv, err := server.New(server.Config{ListenAddress: cfg.Admin.ListenAddress}, rec, auth, logger)
	if err != nil {
		log.Fatalf("fundingd: http server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return rec.Run(groupCtx) })
	group.Go(func() error { return srv.Run(groupCtx) })

	logger.Info("fundingd started",
		slog.String("network", cfg.Ledger.NetworkID),
		slog.String("ledger", cfg.Ledger.RPCEndpoint),
		slog.String("contract", cfg.Ledger.ContractID),
		slog.String("oracle_account", cfg.Oracle.AccountID),
		logging.MaskField("api_key", cfg.Provider.APIKey),
		slog.String("listen", cfg.Admin.ListenAddress))

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("fundingd: %v", err)
	}
	logger.Info("fundingd stopped")
}
