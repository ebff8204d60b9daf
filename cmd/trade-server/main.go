// Package main runs the trading backend: it keeps the trade store current,
// serves the HTTP API and submits loops for the configured wallet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/archon-research/stl-trade/db/migrator"
	httpadapter "github.com/archon-research/stl-trade/internal/adapters/inbound/http"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/lendingprogram"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/metadata"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/postgres"
	redisadapter "github.com/archon-research/stl-trade/internal/adapters/outbound/redis"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/rpcnode"
	s3adapter "github.com/archon-research/stl-trade/internal/adapters/outbound/s3"
	snsadapter "github.com/archon-research/stl-trade/internal/adapters/outbound/sns"
	sqsadapter "github.com/archon-research/stl-trade/internal/adapters/outbound/sqs"
	"github.com/archon-research/stl-trade/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/pkg/env"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
	"github.com/archon-research/stl-trade/internal/services/action_validator"
	"github.com/archon-research/stl-trade/internal/services/simulation"
	"github.com/archon-research/stl-trade/internal/services/store_refresher"
	"github.com/archon-research/stl-trade/internal/services/trade_executor"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
	"github.com/archon-research/stl-trade/internal/services/trading"
)

const serviceName = "stl-trade"

const (
	defaultProgramID = "MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA"
	defaultQuoteMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	addr      string
	rpcURL    string
	wallet    entity.Address
	programID entity.Address
	quoteMint entity.Address

	priorityFee   uint64
	broadcastType string

	refreshSchedule string
	queueURL        string
	topicARN        string

	dbURL         string
	migrationsDir string

	redisAddr      string
	metadataBucket string
	metadataPrefix string

	otlpEndpoint string
	environment  string
	logFormat    string
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("trade-server", flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address")
	rpcURL := fs.String("rpc", "", "JSON-RPC endpoint")
	wallet := fs.String("wallet", "", "wallet address (base58)")
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		addr:            firstNonEmpty(*addr, env.Get("HTTP_ADDR", ":8080")),
		rpcURL:          firstNonEmpty(*rpcURL, env.Get("RPC_URL", "")),
		dbURL:           firstNonEmpty(*dbURL, env.Get("DATABASE_URL", "")),
		broadcastType:   env.Get("BROADCAST_TYPE", "RPC"),
		refreshSchedule: env.Get("REFRESH_SCHEDULE", store_refresher.ConfigDefaults().Schedule),
		queueURL:        env.Get("AWS_SQS_QUEUE_URL", ""),
		topicARN:        env.Get("AWS_SNS_TOPIC_ARN", ""),
		migrationsDir:   env.Get("MIGRATIONS_DIR", "./db/migrations"),
		redisAddr:       env.Get("REDIS_ADDR", ""),
		metadataBucket:  env.Get("METADATA_BUCKET", ""),
		metadataPrefix:  env.Get("METADATA_PREFIX", ""),
		otlpEndpoint:    env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		environment:     env.Get("ENVIRONMENT", "development"),
		logFormat:       env.Get("LOG_FORMAT", "text"),
	}

	if cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC URL not provided (use -rpc flag or RPC_URL env var)")
	}

	rawWallet := firstNonEmpty(*wallet, env.Get("WALLET", ""))
	if rawWallet == "" {
		return cliConfig{}, fmt.Errorf("wallet not provided (use -wallet flag or WALLET env var)")
	}
	var err error
	if cfg.wallet, err = entity.ParseAddress(rawWallet); err != nil {
		return cliConfig{}, fmt.Errorf("invalid wallet: %w", err)
	}
	if cfg.programID, err = entity.ParseAddress(env.Get("PROGRAM_ID", defaultProgramID)); err != nil {
		return cliConfig{}, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	if cfg.quoteMint, err = entity.ParseAddress(env.Get("QUOTE_MINT", defaultQuoteMint)); err != nil {
		return cliConfig{}, fmt.Errorf("invalid QUOTE_MINT: %w", err)
	}

	fee := env.GetInt("PRIORITY_FEE_MICRO_LAMPORTS", 0)
	if fee < 0 {
		return cliConfig{}, fmt.Errorf("PRIORITY_FEE_MICRO_LAMPORTS must be non-negative, got %d", fee)
	}
	cfg.priorityFee = uint64(fee)

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLogger(format string) *slog.Logger {
	level := env.ParseLogLevel(slog.LevelInfo)
	if format == "pretty" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.logFormat)
	slog.SetDefault(logger)
	logger.Info("starting trade server",
		"wallet", cfg.wallet.String(),
		"program", cfg.programID.String(),
		"addr", cfg.addr)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  serviceName,
		Environment:  cfg.environment,
		OTLPEndpoint: cfg.otlpEndpoint,
		Stdout:       env.GetBool("OTEL_TRACES_STDOUT", false),
		SampleRate:   telemetry.TracerConfigDefaults().SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer", shutdownTracer)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  serviceName,
		Environment:  cfg.environment,
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer shutdownWithTimeout(logger, "metrics", shutdownMetrics)

	metrics, err := telemetry.NewMetrics(serviceName)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	var awsCfg aws.Config
	if cfg.metadataBucket != "" || cfg.queueURL != "" || cfg.topicARN != "" {
		awsCfg, err = loadAWSConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
	}

	node, err := rpcnode.NewNode(ctx, rpcnode.Config{
		URL:           cfg.rpcURL,
		Commitment:    env.Get("RPC_COMMITMENT", ""),
		SkipPreflight: env.GetBool("RPC_SKIP_PREFLIGHT", false),
	}, logger)
	if err != nil {
		return fmt.Errorf("creating RPC node: %w", err)
	}
	defer node.Close()

	metadataSource, closeMetadata, err := newMetadataSource(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer closeMetadata()

	history, closeHistory, err := newHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	var events outbound.EventSink
	if cfg.topicARN != "" {
		var snsOptFns []func(*sns.Options)
		if endpoint := env.Get("AWS_SNS_ENDPOINT", env.Get(awsEndpointEnv, "")); endpoint != "" {
			snsOptFns = append(snsOptFns, func(o *sns.Options) { o.BaseEndpoint = aws.String(endpoint) })
		}
		sink, err := snsadapter.NewEventSink(sns.NewFromConfig(awsCfg, snsOptFns...), snsadapter.Config{
			TopicARN: cfg.topicARN,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("creating SNS event sink: %w", err)
		}
		defer sink.Close()
		events = sink
	}

	store, err := trade_store.New(trade_store.Config{
		ProgramID: cfg.programID,
		QuoteMint: cfg.quoteMint,
		Logger:    logger,
	}, trade_store.Dependencies{
		Metadata: metadataSource,
		Clients:  lendingprogram.NewFactory(logger),
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Dispose()

	executor := trade_executor.NewExecutor(trade_executor.Config{
		PriorityFeeMicroLamports: cfg.priorityFee,
		BroadcastType:            cfg.broadcastType,
		Logger:                   logger,
		Metrics:                  metrics,
	}, trade_executor.Dependencies{
		History:   history,
		Events:    events,
		Refresher: store,
	})

	service, err := trading.NewService(trading.Config{
		Wallet: cfg.wallet,
		Conn:   node,
		Logger: logger,
	}, trading.Dependencies{
		Store:     store,
		Validator: action_validator.NewValidator(logger, metrics),
		Engine:    simulation.NewEngine(simulation.Config{Logger: logger, Metrics: metrics}),
		Executor:  executor,
		History:   history,
	})
	if err != nil {
		return fmt.Errorf("creating trading service: %w", err)
	}

	api := httpadapter.NewHandler(service, logger)
	api.SetStreamConfig(httpadapter.StreamConfig{
		PollInterval: env.GetDuration("STREAM_POLL_INTERVAL", httpadapter.StreamConfigDefaults().PollInterval),
	})

	var shuttingDown atomic.Bool
	server := httpadapter.NewServer(httpadapter.ServerConfig{Addr: cfg.addr, Logger: logger},
		store, &shuttingDown, api.Router())
	server.Start()

	// The first fetch is retried by the refresher when it fails; the server
	// reports not ready until one succeeds.
	if err := store.Init(ctx, node, cfg.wallet); err != nil {
		logger.Warn("initial fetch failed", "error", err)
	}

	var consumer outbound.SQSConsumer
	if cfg.queueURL != "" {
		var sqsOptFns []func(*sqs.Options)
		if endpoint := env.Get("AWS_SQS_ENDPOINT", env.Get(awsEndpointEnv, "")); endpoint != "" {
			sqsOptFns = append(sqsOptFns, func(o *sqs.Options) { o.BaseEndpoint = aws.String(endpoint) })
		}
		c, err := sqsadapter.NewConsumer(awsCfg, sqsadapter.Config{QueueURL: cfg.queueURL}, logger, sqsOptFns...)
		if err != nil {
			return fmt.Errorf("creating SQS consumer: %w", err)
		}
		defer c.Close()
		consumer = c
	}

	refresher, err := store_refresher.NewService(store_refresher.Config{
		Schedule: cfg.refreshSchedule,
		Logger:   logger,
	}, &initializingRefresher{store: store, conn: node, wallet: cfg.wallet}, consumer)
	if err != nil {
		return fmt.Errorf("creating refresher: %w", err)
	}
	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("starting refresher: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	shuttingDown.Store(true)

	if err := refresher.Stop(); err != nil {
		logger.Error("error stopping refresher", "error", err)
	}
	if err := server.Shutdown(25 * time.Second); err != nil {
		logger.Error("error stopping http server", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// initializingRefresher runs Init until the store has completed a fetch
// and Refresh afterwards.
type initializingRefresher struct {
	store  *trade_store.Store
	conn   outbound.Node
	wallet entity.Address
}

func (r *initializingRefresher) Refresh(ctx context.Context) error {
	err := r.store.Refresh(ctx)
	if errors.Is(err, trade_store.ErrNotInitialized) {
		return r.store.Init(ctx, r.conn, r.wallet)
	}
	return err
}

// awsEndpointEnv points every AWS client at a local emulator such as LocalStack.
const awsEndpointEnv = "AWS_ENDPOINT_URL"

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
	}
	if env.Get(awsEndpointEnv, "") != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func newMetadataSource(ctx context.Context, cfg cliConfig, awsCfg aws.Config, logger *slog.Logger) (outbound.MetadataSource, func(), error) {
	var fetcher outbound.DocumentFetcher
	if cfg.metadataBucket != "" {
		var s3OptFns []func(*s3.Options)
		if endpoint := env.Get(awsEndpointEnv, ""); endpoint != "" {
			s3OptFns = append(s3OptFns, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			})
		}
		f, err := s3adapter.NewFetcher(awsCfg, s3adapter.Config{
			Bucket: cfg.metadataBucket,
			Prefix: cfg.metadataPrefix,
			Gzip:   env.GetBool("METADATA_GZIP", false),
		}, logger, s3OptFns...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating S3 metadata fetcher: %w", err)
		}
		fetcher = f
	} else {
		fetcher = metadata.NewHTTPFetcher(metadata.HTTPFetcherConfig{
			TradeGroupsURL:   env.Get("TRADE_GROUPS_URL", ""),
			TokenMetadataURL: env.Get("TOKEN_METADATA_URL", ""),
			BankMetadataURL:  env.Get("BANK_METADATA_URL", ""),
			Logger:           logger,
		})
	}

	var cache outbound.MetadataCache
	closeCache := func() {}
	if cfg.redisAddr != "" {
		rc, err := redisadapter.NewMetadataCache(redisadapter.Config{
			Addr:     cfg.redisAddr,
			Password: env.Get("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			TTL:      env.GetDuration("METADATA_CACHE_TTL", redisadapter.ConfigDefaults().TTL),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		cache = rc
		closeCache = func() { rc.Close() }
	} else {
		cache = memory.NewMetadataCache(env.GetDuration("METADATA_CACHE_TTL", 5*time.Minute))
	}

	loader, err := metadata.NewLoader(metadata.LoaderConfig{Fetcher: fetcher, Cache: cache, Logger: logger})
	if err != nil {
		closeCache()
		return nil, nil, fmt.Errorf("creating metadata loader: %w", err)
	}
	return loader, closeCache, nil
}

func newHistory(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.TxHistoryRepository, func(), error) {
	if cfg.dbURL == "" {
		logger.Warn("DATABASE_URL not set, transaction history is kept in memory")
		return memory.NewTxHistoryRepository(), func() {}, nil
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrator.New(pool, cfg.migrationsDir, logger).ApplyAll(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("applying migrations: %w", err)
	}
	repo, err := postgres.NewTxHistoryRepository(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating history repository: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return repo, pool.Close, nil
}

func shutdownWithTimeout(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "component", name, "error", err)
	}
}
