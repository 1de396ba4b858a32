package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cryptoscout/scout/internal/ai"
	"github.com/cryptoscout/scout/internal/config"
	httpapi "github.com/cryptoscout/scout/internal/interfaces/http"
	"github.com/cryptoscout/scout/internal/net/circuit"
	"github.com/cryptoscout/scout/internal/net/httpclient"
	"github.com/cryptoscout/scout/internal/net/usage"
	"github.com/cryptoscout/scout/internal/persistence"
	"github.com/cryptoscout/scout/internal/persistence/memory"
	"github.com/cryptoscout/scout/internal/persistence/postgres"
	"github.com/cryptoscout/scout/internal/providers/coingecko"
	"github.com/cryptoscout/scout/internal/providers/sentiment"
	"github.com/cryptoscout/scout/internal/ranking"
	"github.com/cryptoscout/scout/internal/scan"
	"github.com/cryptoscout/scout/internal/scheduler"
	"github.com/cryptoscout/scout/internal/ws"
)

const (
	appName = "scout"
	version = "v1.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Crypto scan-and-score service",
		Version: version,
		Long: `Scout periodically scans market data for trending crypto assets,
scores each with a multi-factor model plus optional AI enrichment,
emits score-jump alerts, and serves ranked views over HTTP.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background scan loop",
		RunE:  runServe,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and exit",
		RunE:  runScanOnce,
	}

	rootCmd.AddCommand(serveCmd, scanCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// pipeline bundles everything main wires together.
type pipeline struct {
	cfg          config.Config
	store        persistence.Store
	orchestrator *scan.Orchestrator
	status       *scan.Status
	hub          *ws.Hub
	market       *coingecko.Client
	marketUsage  *usage.Tracker
	marketCirc   *circuit.Breaker
	rankings     *ranking.Engine
	db           *sqlx.DB
	rdb          *redis.Client
}

func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.Logging)

	p := &pipeline{cfg: cfg, status: scan.NewStatus(), hub: ws.NewHub()}

	if cfg.Database.Enabled {
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		p.db = db
		p.store = postgres.NewStore(db, cfg.Database.QueryTimeout)
		log.Info().Msg("using postgres persistence")
	} else {
		p.store = memory.NewStore()
		log.Info().Msg("using in-memory persistence")
	}

	if cfg.Redis.Enabled {
		p.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := p.rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, rankings cache falls back to in-process")
			p.rdb = nil
		}
	}

	marketHTTP := httpclient.New(httpclient.Config{
		RequestTimeout: cfg.Market.RequestTimeout,
		MaxRetries:     cfg.Market.MaxRetries,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
	})
	p.marketCirc = circuit.NewBreaker(circuit.Config{
		Name:             "coingecko",
		FailureThreshold: cfg.Market.FailureThreshold,
		RecoveryTimeout:  cfg.Market.RecoveryTimeout,
	})
	p.marketUsage = usage.NewTracker(0)
	var marketOpts []coingecko.Option
	if cfg.Market.APIKey != "" {
		marketOpts = append(marketOpts, coingecko.WithAPIKey(cfg.Market.APIKey))
	}
	p.market = coingecko.NewClient(marketHTTP, p.marketCirc, p.marketUsage, marketOpts...)

	sentimentHTTP := httpclient.New(httpclient.DefaultConfig())
	var sources []sentiment.Source
	if cfg.Sentiment.NewsAPIKey != "" {
		sources = append(sources, sentiment.NewNewsSource(cfg.Sentiment.NewsAPIKey,
			sentimentHTTP, circuit.NewBreaker(circuit.DefaultConfig("news")), usage.NewTracker(0)))
	}
	if cfg.Sentiment.RedditEnabled {
		sources = append(sources, sentiment.NewRedditSource(cfg.Sentiment.Subreddit,
			sentimentHTTP, circuit.NewBreaker(circuit.DefaultConfig("reddit")), usage.NewTracker(0)))
	}
	sentiments := sentiment.NewEngine(sources...)

	var completions ai.CompletionClient
	if cfg.AI.APIKey != "" {
		completions = ai.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.Model,
			httpclient.New(httpclient.DefaultConfig()), usage.NewTracker(0))
	} else {
		log.Warn().Msg("no AI credential configured, running on deterministic fallback")
	}
	analyzer := ai.NewAnalyzer(completions)

	p.orchestrator = scan.NewOrchestrator(cfg.Scan, p.market, sentiments, analyzer,
		p.store, p.hub, p.status)
	p.rankings = ranking.NewEngine(p.store.Assets, p.rdb)
	return p, nil
}

func (p *pipeline) close() {
	if p.db != nil {
		p.db.Close()
	}
	if p.rdb != nil {
		p.rdb.Close()
	}
}

func (p *pipeline) providerHealth() map[string]httpapi.ProviderHealth {
	circ, use := p.market.Health()
	return map[string]httpapi.ProviderHealth{
		"coingecko": {Circuit: circ, Usage: use},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	runScan := func(ctx context.Context) (scan.Summary, error) {
		return p.orchestrator.Run(ctx)
	}
	handlers := httpapi.NewHandlers(p.rankings, p.store, p.status, runScan,
		p.providerHealth, p.hub)
	server := httpapi.NewServer(httpapi.Config{
		Addr:           p.cfg.Server.Addr,
		ReadTimeout:    p.cfg.Server.ReadTimeout,
		WriteTimeout:   p.cfg.Server.WriteTimeout,
		RequestTimeout: p.cfg.Server.RequestTimeout,
		IdleTimeout:    60 * time.Second,
	}, handlers)

	var sched *scheduler.Scheduler
	if p.cfg.Scheduler.Enabled {
		sched = scheduler.New(p.cfg.Scheduler.Interval, func(ctx context.Context) error {
			_, err := p.orchestrator.Run(ctx)
			return err
		})
		sched.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runScanOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	sum, err := p.orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("processed", sum.Processed).Int("ai_analyzed", sum.AIAnalyzed).
		Int("alerts", sum.Alerts).Bool("degraded", sum.Degraded).
		Msg("scan finished")
	return nil
}

func applyLogLevel(cfg config.LoggingConfig) {
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
