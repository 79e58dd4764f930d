package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oliveyoung-crawler/internal/checkpoint"
	"oliveyoung-crawler/internal/config"
	"oliveyoung-crawler/internal/crawl"
	"oliveyoung-crawler/internal/fetcher/headless"
	"oliveyoung-crawler/internal/fetcher/probe"
	"oliveyoung-crawler/internal/logging"
	"oliveyoung-crawler/internal/progress"
	"oliveyoung-crawler/internal/progress/sinks"
	"oliveyoung-crawler/internal/results"
	"oliveyoung-crawler/internal/source"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs an availability check over the spreadsheet's products",
		Long: `Loads product identifiers from the configured spreadsheet, fetches each
product detail page with a bounded worker pool, classifies availability, and
writes the aggregated result document. Interrupting the run flushes the
checkpoint so a later --resume invocation continues where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), resume)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the saved checkpoint")
	return cmd
}

func runCrawl(parent context.Context, resume bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := source.LoadExcelIDs(source.ExcelConfig{
		Path:     cfg.Source.ExcelPath,
		IDColumn: cfg.Source.IDColumn,
		IDPrefix: cfg.Source.IDPrefix,
	})
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	logger.Info("identifiers loaded",
		zap.String("path", cfg.Source.ExcelPath),
		zap.Int("count", len(ids)),
	)

	pageFetcher, closeFetcher, err := buildFetcher(cfg)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}
	defer closeFetcher()

	store, closeStore, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	defer closeStore()

	writer, err := results.NewWriter(cfg.Output.File)
	if err != nil {
		return fmt.Errorf("init result writer: %w", err)
	}

	hub, stopMetrics, err := buildProgressHub(cfg, logger)
	if err != nil {
		return fmt.Errorf("init progress hub: %w", err)
	}
	defer stopMetrics()
	defer hub.Close(context.Background()) //nolint:errcheck // drains on close

	throttle, err := crawl.NewThrottle(crawl.ThrottleConfig{
		MaxConcurrent: cfg.Crawler.MaxConcurrent,
		DelayMin:      secondsToDuration(cfg.Crawler.DelayMinSeconds),
		DelayMax:      secondsToDuration(cfg.Crawler.DelayMaxSeconds),
		GlobalRPS:     cfg.Crawler.GlobalRPS,
	})
	if err != nil {
		return fmt.Errorf("init throttle: %w", err)
	}

	orch := crawl.NewOrchestrator(
		pageFetcher,
		throttle,
		store,
		writer,
		hub,
		crawl.SystemClock{},
		logger,
		crawl.Options{
			MaxConcurrent:       cfg.Crawler.MaxConcurrent,
			BaseURL:             cfg.Crawler.BaseURL,
			IDMarker:            cfg.Crawler.IDMarker,
			Resume:              resume,
			RetryFailedOnResume: cfg.Crawler.RetryFailedOnResume,
			CheckpointEvery:     cfg.Crawler.CheckpointEvery,
		},
	)

	stats, err := orch.Run(ctx, ids)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	logger.Info("crawl command finished",
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

func buildFetcher(cfg config.Config) (crawl.Fetcher, func(), error) {
	switch cfg.Fetcher.Mode {
	case config.FetcherModeHeadless:
		f, err := headless.New(headless.Config{
			UserAgents:        cfg.Fetcher.UserAgents,
			NavigationTimeout: cfg.NavTimeout(),
			ChallengeTimeout:  cfg.ChallengeTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.FetcherModeProbe:
		f := probe.New(probe.Config{
			UserAgents: cfg.Fetcher.UserAgents,
			Timeout:    cfg.NavTimeout(),
		})
		return f, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetcher mode %q", cfg.Fetcher.Mode)
	}
}

func buildCheckpointStore(ctx context.Context, cfg config.Config) (crawl.CheckpointStore, func(), error) {
	switch cfg.Checkpoint.Provider {
	case config.CheckpointProviderFile:
		store, err := checkpoint.NewFileStore(cfg.Checkpoint.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.CheckpointProviderPostgres:
		store, err := checkpoint.NewPostgresStore(ctx, checkpoint.PostgresStoreConfig{
			DSN: cfg.Checkpoint.PostgresDSN,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint provider %q", cfg.Checkpoint.Provider)
	}
}

// buildProgressHub assembles the progress sinks: logs always, Prometheus when
// metrics are enabled. The returned stop function shuts the metrics listener
// down.
func buildProgressHub(cfg config.Config, logger *zap.Logger) (*progress.Hub, func(), error) {
	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	stop := func() {}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		promSink, err := sinks.NewPrometheusSink(registry)
		if err != nil {
			return nil, nil, err
		}
		hubSinks = append(hubSinks, promSink)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server error", zap.Error(err))
			}
		}()
		stop = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", zap.Error(err))
			}
		}
	}

	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, hubSinks...)
	return hub, stop, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
