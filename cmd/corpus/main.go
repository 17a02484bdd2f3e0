package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/remask/remask/internal/config"
	"github.com/remask/remask/internal/corpus"
	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
	"github.com/remask/remask/internal/sessions"
	"github.com/remask/remask/internal/store"
)

func main() {
	var (
		configPath    = flag.String("config", "configs/default.yaml", "Configuration file path")
		inputFile     = flag.String("input", "", "Labeled dataset file (CSV, Parquet, or JSON)")
		batchSize     = flag.Int("batch-size", 1000, "Batch size for processing")
		workers       = flag.Int("workers", 4, "Number of worker goroutines")
		validateOnly  = flag.Bool("validate-only", false, "Only validate records, don't run detection")
		categories    = flag.String("categories", "", "Comma-separated categories to evaluate (default: configured set)")
		missSamples   = flag.Int("miss-samples", 5, "Missed texts kept per category in the report")
		showStats     = flag.Bool("stats", false, "Show pattern store and session statistics and exit")
		purgeSessions = flag.Bool("purge-sessions", false, "Delete all stored restore sessions and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats && !*purgeSessions {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input samples.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input samples.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input samples.ndjson --categories cloud-keys,api-tokens\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --purge-sessions\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting remask corpus tool", zap.String("config", *configPath))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	// Handle different operations
	switch {
	case *showStats:
		if err := showServiceStats(ctx, cfg, log); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *purgeSessions:
		if err := purgeStoredSessions(ctx, cfg, log); err != nil {
			log.Fatal("Failed to purge sessions", zap.Error(err))
		}
	default:
		evalConfig := &corpus.Config{
			BatchSize:      *batchSize,
			WorkerCount:    *workers,
			ValidateOnly:   *validateOnly,
			ProgressReport: 1000,
			MissSamples:    *missSamples,
		}

		if err := evaluateDataset(ctx, cfg, evalConfig, *inputFile, *categories, log); err != nil {
			log.Fatal("Evaluation failed", zap.Error(err))
		}
	}

	log.Info("Corpus run completed")
}

// evaluateDataset runs detection coverage over the input file and prints
// the report.
func evaluateDataset(ctx context.Context, cfg *config.Config, evalConfig *corpus.Config, inputFile, categories string, log *logger.Logger) error {
	// Check if file exists
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	engineCfg, err := buildEngineConfig(cfg, categories)
	if err != nil {
		return err
	}

	pipeline := corpus.NewPipeline(evalConfig, engineCfg, log)
	report, err := pipeline.ProcessFile(ctx, inputFile)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	printReport(inputFile, report)
	return nil
}

// buildEngineConfig assembles the detection set the evaluation runs with:
// the configured masking section plus rulepack rules, optionally narrowed
// to an explicit category list. Database-managed rules stay out of the
// offline run; they belong to the server.
func buildEngineConfig(cfg *config.Config, categories string) (masking.Config, error) {
	engineCfg := cfg.Masking.ToEngineConfig()

	if len(cfg.Patterns.Rulepacks) > 0 {
		registry := masking.NewRegistry()
		specs, err := config.LoadRulepacks(cfg.Patterns.Rulepacks)
		if err != nil {
			return masking.Config{}, err
		}
		for _, spec := range specs {
			if _, err := registry.Register(spec); err != nil {
				return masking.Config{}, fmt.Errorf("rulepack rule %q: %w", spec.Name, err)
			}
		}
		engineCfg.CustomPatterns = registry.Enabled()
	}

	if categories != "" {
		// An explicit list switches every other category off.
		selected := make(map[masking.Category]bool, len(masking.Categories()))
		for _, cat := range masking.Categories() {
			selected[cat] = false
		}
		for _, name := range strings.Split(categories, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cat := masking.Category(name)
			if !cat.Valid() {
				return masking.Config{}, fmt.Errorf("unknown category: %s", name)
			}
			selected[cat] = true
		}
		engineCfg.Categories = selected
	}

	return engineCfg, nil
}

// printReport writes the coverage report to stdout.
func printReport(inputFile string, report *corpus.CoverageReport) {
	fmt.Printf("\n=== Detection Coverage Report ===\n")
	fmt.Printf("Dataset:            %s\n", inputFile)
	fmt.Printf("Total Records:      %d\n", report.TotalRecords)
	fmt.Printf("Valid Records:      %d\n", report.ValidRecords)
	fmt.Printf("Invalid Records:    %d\n", report.InvalidRecords)
	fmt.Printf("Clean Records:      %d\n", report.CleanRecords)
	fmt.Printf("False Positives:    %d\n", report.FalsePositives)
	fmt.Printf("Precision:          %.1f%%\n", report.Precision*100)
	fmt.Printf("Duration:           %v\n", report.Duration)
	fmt.Printf("Rate:               %.0f records/s\n", report.RatePerSecond)

	if len(report.Categories) == 0 {
		return
	}

	names := make([]string, 0, len(report.Categories))
	for name := range report.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n=== Per-Category Recall ===\n")
	for _, name := range names {
		c := report.Categories[name]
		fmt.Printf("%-16s %5d expected, %5d hits, %5d misses (recall %.1f%%)\n",
			name, c.Expected, c.Hits, c.Misses, c.Recall*100)
		for _, sample := range c.MissSamples {
			fmt.Printf("  miss: %s\n", sample)
		}
	}
}

// showServiceStats displays pattern store and session store statistics.
func showServiceStats(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	printed := false

	if cfg.Patterns.Database.Enabled {
		st, err := store.NewStore(&store.Config{
			DatabaseURL:     cfg.Patterns.Database.URL,
			MaxOpenConns:    cfg.Patterns.Database.MaxConnections,
			MaxIdleConns:    cfg.Patterns.Database.MaxIdle,
			ConnMaxLifetime: cfg.Patterns.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to open pattern store: %w", err)
		}
		defer st.Close()

		stats, err := st.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get pattern stats: %w", err)
		}

		fmt.Printf("\n=== Pattern Store Statistics ===\n")
		fmt.Printf("Total Patterns:     %d\n", stats.TotalPatterns)
		fmt.Printf("Enabled Patterns:   %d\n", stats.EnabledPatterns)
		fmt.Printf("Total Usage:        %d\n", stats.TotalUsage)
		printed = true
	}

	if cfg.Sessions.Enabled {
		ss, err := sessions.NewSessionStore(&sessions.Config{
			RedisURL:  cfg.Sessions.RedisURL,
			TTL:       cfg.Sessions.TTL,
			KeyPrefix: cfg.Sessions.KeyPrefix,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect session store: %w", err)
		}
		defer ss.Close()

		stats, err := ss.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get session stats: %w", err)
		}

		fmt.Printf("\n=== Session Store Statistics ===\n")
		fmt.Printf("Stored Keys:        %d\n", stats.TotalKeys)
		fmt.Printf("Hits:               %d\n", stats.Hits)
		fmt.Printf("Misses:             %d\n", stats.Misses)
		fmt.Printf("Hit Rate:           %.1f%%\n", stats.HitRate)
		fmt.Printf("Memory Usage:       %.2f MB\n", float64(stats.MemoryUsage)/1024/1024)
		printed = true
	}

	if !printed {
		fmt.Println("Neither the pattern database nor session storage is enabled.")
	}
	return nil
}

// purgeStoredSessions deletes every stored restore session.
func purgeStoredSessions(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Sessions.Enabled {
		return fmt.Errorf("session storage is not enabled")
	}

	ss, err := sessions.NewSessionStore(&sessions.Config{
		RedisURL:  cfg.Sessions.RedisURL,
		TTL:       cfg.Sessions.TTL,
		KeyPrefix: cfg.Sessions.KeyPrefix,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect session store: %w", err)
	}
	defer ss.Close()

	deleted, err := ss.Purge(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge sessions: %w", err)
	}

	fmt.Printf("Purged %d sessions\n", deleted)
	return nil
}
