package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corpustools/jira-harvest/internal/config"
	"github.com/corpustools/jira-harvest/pkg/cache"
	"github.com/corpustools/jira-harvest/pkg/checkpoint"
	"github.com/corpustools/jira-harvest/pkg/client"
	"github.com/corpustools/jira-harvest/pkg/corpus"
	"github.com/corpustools/jira-harvest/pkg/harvest"
	"github.com/corpustools/jira-harvest/pkg/logging"
	"github.com/corpustools/jira-harvest/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "jira-harvest",
	Short: "Scrape public Jira projects into a JSONL training corpus",
	Long: `A fault-tolerant, resumable scraper for public Jira REST APIs.
Issues are paginated per project, normalized into LLM training records with
derived auxiliary tasks, and appended to a JSONL file. A checkpoint written
after every emitted issue makes interrupted runs resumable.`,
	RunE:          runHarvest,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")

	rootCmd.Flags().StringSlice("projects", nil, "Jira project keys to scrape (required)")
	rootCmd.Flags().String("output", "", "Output JSONL file path (required)")
	rootCmd.Flags().String("checkpoint", "", "Checkpoint file path (default: <output>.checkpoint.json; .db selects SQLite)")
	rootCmd.Flags().Int("max-issues", 0, "Maximum issues to emit across all projects (0 = unlimited)")
	rootCmd.Flags().Int("page-size", 100, "Listing page size (max 100)")
	rootCmd.Flags().String("base-url", client.DefaultBaseURL, "Jira REST API base URL")
	rootCmd.Flags().String("user-agent", "jira-harvest/0.1.0", "User-Agent header")
	rootCmd.Flags().Int("retries", 5, "Maximum attempts per HTTP call")
	rootCmd.Flags().Int("retry-backoff-ms", 1000, "Initial retry backoff in milliseconds")
	rootCmd.Flags().String("redis-url", "", "Redis address for the response cache (empty disables caching)")
	rootCmd.Flags().String("metrics-addr", "", "Expose Prometheus /metrics on this address (empty disables)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().Bool("log-pretty", false, "Human-readable console log output")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Checkpoint loads first: a corrupt checkpoint aborts the run before
	// any network call is made.
	store, err := checkpoint.Open(cfg.Checkpoint, cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer store.Close()

	var cacheManager *cache.Manager
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisURL, err)
		}
		defer redisClient.Close()
		cacheManager = cache.NewManager(redisClient, cache.DefaultTTL)
		logger.Info().Str("redis_url", cfg.RedisURL).Msg("Response cache enabled")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.StartServer(cfg.MetricsAddr); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Cache = cacheManager
	clientCfg.Retry.MaxAttempts = cfg.Retries
	clientCfg.Retry.InitialBackoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond

	jiraClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create Jira client: %w", err)
	}

	writer, err := corpus.NewWriter(cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer writer.Close()

	logger.Info().
		Strs("projects", cfg.Projects).
		Str("output", cfg.Output).
		Str("checkpoint", cfg.Checkpoint).
		Int("max_issues", cfg.MaxIssues).
		Msg("Starting harvest")

	orchestrator := harvest.New(jiraClient, store, writer, harvest.Config{
		Projects:  cfg.Projects,
		PageSize:  cfg.PageSize,
		MaxIssues: cfg.MaxIssues,
	})

	summaries, err := orchestrator.Run(ctx)
	for _, s := range summaries {
		logger.Info().
			Str("project", s.Project).
			Str("state", string(s.State)).
			Int("emitted", s.Emitted).
			Int("skipped", s.Skipped).
			Int("failed", s.Failed).
			Msg("Project summary")
	}
	if err != nil {
		return fmt.Errorf("harvest aborted: %w", err)
	}

	if harvest.AnyFailed(summaries) {
		return fmt.Errorf("one or more projects failed")
	}

	logger.Info().Msg("Harvest complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
