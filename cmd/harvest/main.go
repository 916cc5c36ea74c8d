package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/config"
	"github.com/pevans/harvest/discovery"
	"github.com/pevans/harvest/events"
	"github.com/pevans/harvest/seen"
	"github.com/pevans/harvest/store"
)

// cliFlags holds the raw command-line values. Only flags the user actually
// set override the loaded configuration.
type cliFlags struct {
	configPath   string
	listingURL   string
	storeType    string
	storeDSN     string
	seenType     string
	seenDSN      string
	engine       string
	kafkaBrokers string
	kafkaTopic   string
	dryRun       bool
	verbose      bool
	headless     bool
	runTimeout   time.Duration
	navTimeout   time.Duration
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to config file (default ~/.harvest/config.yaml)")
	fs.StringVar(&f.listingURL, "listing-url", "", "Listing page to harvest (HARVEST_LISTING_URL)")
	fs.StringVar(&f.storeType, "store", "", "Article store: ledger, sqlite or postgres (HARVEST_STORE)")
	fs.StringVar(&f.storeDSN, "store-dsn", "", "Ledger path, SQLite path or Postgres URL (HARVEST_STORE_DSN)")
	fs.StringVar(&f.seenType, "seen", "", "Seen set: file, redis or none (HARVEST_SEEN)")
	fs.StringVar(&f.seenDSN, "seen-dsn", "", "Seen set directory or Redis address (HARVEST_SEEN_DSN)")
	fs.StringVar(&f.engine, "engine", "", "Page engine: chromedp or http (HARVEST_ENGINE)")
	fs.StringVar(&f.kafkaBrokers, "kafka-brokers", "", "Comma separated Kafka brokers; empty disables events (HARVEST_KAFKA_BROKERS)")
	fs.StringVar(&f.kafkaTopic, "kafka-topic", "", "Kafka topic for article events (HARVEST_KAFKA_TOPIC)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Discover and extract without writing anything (HARVEST_DRY_RUN)")
	fs.BoolVar(&f.verbose, "verbose", false, "Log every item (HARVEST_VERBOSE)")
	fs.BoolVar(&f.headless, "headless", true, "Run the browser headless (HARVEST_HEADLESS)")
	fs.DurationVar(&f.runTimeout, "run-timeout", 0, "Upper bound on the whole run, 0 for none (HARVEST_MAX_RUN_DURATION)")
	fs.DurationVar(&f.navTimeout, "nav-timeout", 0, "Timeout per page navigation (HARVEST_NAVIGATION_TIMEOUT)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply copies every flag set on fs into cfg.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listing-url":
			cfg.ListingURL = f.listingURL
		case "store":
			cfg.Storage.Articles.Type = f.storeType
		case "store-dsn":
			cfg.Storage.Articles.DSN = f.storeDSN
		case "seen":
			cfg.Storage.Seen.Type = f.seenType
		case "seen-dsn":
			cfg.Storage.Seen.DSN = f.seenDSN
		case "engine":
			cfg.Engine = f.engine
		case "kafka-brokers":
			cfg.Kafka.Brokers = config.SplitList(f.kafkaBrokers)
		case "kafka-topic":
			cfg.Kafka.Topic = f.kafkaTopic
		case "dry-run":
			cfg.DryRun = f.dryRun
		case "verbose":
			cfg.Verbose = f.verbose
		case "headless":
			cfg.Headless = f.headless
		case "run-timeout":
			cfg.MaxRunDuration = f.runTimeout
		case "nav-timeout":
			cfg.NavigationTimeout = f.navTimeout
		}
	})
}

func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	flags, err := parseFlags(fs, args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	flags.apply(fs, cfg)

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// SIGINT/SIGTERM stop extraction; what was accepted so far is flushed
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg)
	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) (*discovery.Summary, error) {
	engine, err := browser.New(cfg.Engine, browser.Options{
		Headless:          cfg.Headless,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return nil, err
	}

	var articles store.Store
	if cfg.DryRun {
		// Dry runs never write, so they also never take the ledger lock.
		articles = discardStore{}
	} else {
		log.Printf("INFO: Opening %s store: %s", cfg.Storage.Articles.Type, cfg.Storage.Articles.DSN)
		articles, err = store.Open(ctx, cfg.Storage.Articles.Type, cfg.Storage.Articles.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open article store: %w", err)
		}
		defer closeQuietly("article store", articles)
	}

	repo, err := seen.Open(cfg.Storage.Seen.Type, cfg.Storage.Seen.DSN)
	if err != nil {
		return nil, err
	}
	if c, ok := repo.(io.Closer); ok {
		defer closeQuietly("seen repository", c)
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 && !cfg.DryRun {
		log.Printf("INFO: Publishing article events to %s on %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer closeQuietly("publisher", publisher)
	}

	harvester := discovery.NewHarvester(
		engine,
		discovery.NewFrontier(cfg.Scraper.Listing, repo),
		discovery.NewExtractor(cfg.Scraper.Article),
		articles,
		publisher,
		&discovery.HarvestConfig{
			ListingURL:     cfg.ListingURL,
			DryRun:         cfg.DryRun,
			MaxRunDuration: cfg.MaxRunDuration,
			Verbose:        cfg.Verbose,
		},
	)

	return harvester.Run(ctx)
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("WARN: Failed to close %s: %v", name, err)
	}
}

// discardStore stands in for the article store during dry runs.
type discardStore struct{}

func (discardStore) Accept(context.Context, store.Article) (store.Outcome, error) {
	return store.Accepted, nil
}

func (discardStore) Flush(context.Context) error { return nil }

func (discardStore) Close() error { return nil }
