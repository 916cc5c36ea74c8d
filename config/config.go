// Package config resolves harvest settings from defaults, a YAML file, a
// .env file, HARVEST_* environment variables and command-line flags, in
// increasing order of precedence. Flags are applied by the commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pevans/harvest/browser"
	"github.com/pevans/harvest/scraper"
	"github.com/pevans/harvest/seen"
	"github.com/pevans/harvest/store"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults.
const (
	DefaultListingURL        = "https://unread.today/category/7"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultMaxRunDuration    = 15 * time.Minute
	DefaultLedgerPath        = "json/articles.json"
	DefaultSQLitePath        = "harvest.db"
	DefaultSeenDir           = "json"
	DefaultRedisAddr         = "localhost:6379"
	DefaultKafkaTopic        = "harvest.articles"
	DefaultAPIAddr           = ":8080"
)

// Backend selects a storage implementation and its connection string.
type Backend struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// StorageConfig holds the article store and the seen set backends.
type StorageConfig struct {
	Articles Backend `yaml:"articles"`
	Seen     Backend `yaml:"seen"`
}

// KafkaConfig enables article events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full harvest configuration.
type Config struct {
	ListingURL        string        `yaml:"listing_url"`
	Engine            string        `yaml:"engine"`
	Headless          bool          `yaml:"headless"`
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	MaxRunDuration    time.Duration `yaml:"max_run_duration"`
	DryRun            bool          `yaml:"dry_run"`
	Verbose           bool          `yaml:"verbose"`

	Storage StorageConfig         `yaml:"storage"`
	Kafka   KafkaConfig           `yaml:"kafka"`
	API     APIConfig             `yaml:"api"`
	Scraper scraper.ScraperConfig `yaml:"scraper"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ListingURL:        DefaultListingURL,
		Engine:            browser.EngineChrome,
		Headless:          true,
		NavigationTimeout: DefaultNavigationTimeout,
		MaxRunDuration:    DefaultMaxRunDuration,
		Storage: StorageConfig{
			Articles: Backend{Type: store.TypeLedger},
		},
		Kafka:   KafkaConfig{Topic: DefaultKafkaTopic},
		API:     APIConfig{Addr: DefaultAPIAddr},
		Scraper: scraper.NewScraperConfig(),
	}
}

// Load builds a configuration from defaults, the YAML file at path (or the
// default location when path is empty), ./.env and the environment. The
// result is not yet validated so that flags can still be applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFile(path, explicit); err != nil {
		return nil, err
	}

	// godotenv never overrides variables that are already set, so the real
	// environment keeps precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HARVEST_* variables looked up with getenv.
// Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"HARVEST_LISTING_URL": &c.ListingURL,
		"HARVEST_ENGINE":      &c.Engine,
		"HARVEST_USER_AGENT":  &c.UserAgent,
		"HARVEST_STORE":       &c.Storage.Articles.Type,
		"HARVEST_STORE_DSN":   &c.Storage.Articles.DSN,
		"HARVEST_SEEN":        &c.Storage.Seen.Type,
		"HARVEST_SEEN_DSN":    &c.Storage.Seen.DSN,
		"HARVEST_KAFKA_TOPIC": &c.Kafka.Topic,
		"HARVEST_API_ADDR":    &c.API.Addr,
	}
	for key, field := range strs {
		if v := getenv(key); v != "" {
			*field = v
		}
	}

	bools := map[string]*bool{
		"HARVEST_HEADLESS": &c.Headless,
		"HARVEST_DRY_RUN":  &c.DryRun,
		"HARVEST_VERBOSE":  &c.Verbose,
	}
	for key, field := range bools {
		v := getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		*field = b
	}

	durations := map[string]*time.Duration{
		"HARVEST_NAVIGATION_TIMEOUT": &c.NavigationTimeout,
		"HARVEST_MAX_RUN_DURATION":   &c.MaxRunDuration,
	}
	for key, field := range durations {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		*field = d
	}

	if v := getenv("HARVEST_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = SplitList(v)
	}
	return nil
}

// Resolve fills in backend defaults that depend on other settings: the
// seen set follows the article store unless set explicitly, and each
// backend gets its default DSN.
func (c *Config) Resolve() {
	c.Scraper.ApplyDefaults()

	articles := &c.Storage.Articles
	if articles.DSN == "" {
		switch articles.Type {
		case store.TypeLedger:
			articles.DSN = DefaultLedgerPath
		case store.TypeSQLite:
			articles.DSN = DefaultSQLitePath
		}
	}

	s := &c.Storage.Seen
	if s.Type == "" {
		s.Type = seen.TypeFile
		if store.IsConstraintType(articles.Type) {
			s.Type = seen.TypeNone
		}
	}
	if s.DSN == "" {
		switch s.Type {
		case seen.TypeFile:
			s.DSN = DefaultSeenDir
		case seen.TypeRedis:
			s.DSN = DefaultRedisAddr
		}
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ListingURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: listing_url must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.ListingURL)
	}

	switch c.Engine {
	case browser.EngineChrome, browser.EngineHTTP:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, browser.ErrUnknownEngine, c.Engine)
	}

	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("%w: navigation_timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRunDuration < 0 {
		return fmt.Errorf("%w: max_run_duration must not be negative", ErrInvalidConfig)
	}

	switch c.Storage.Articles.Type {
	case store.TypeLedger, store.TypeSQLite, store.TypePostgres:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, store.ErrUnknownType, c.Storage.Articles.Type)
	}
	if c.Storage.Articles.DSN == "" {
		return fmt.Errorf("%w: storage.articles.dsn is required for %s", ErrInvalidConfig, c.Storage.Articles.Type)
	}

	switch c.Storage.Seen.Type {
	case seen.TypeFile, seen.TypeRedis, seen.TypeNone:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, seen.ErrUnknownType, c.Storage.Seen.Type)
	}
	if c.Storage.Articles.Type == store.TypeLedger && c.Storage.Seen.Type == seen.TypeNone {
		return fmt.Errorf("%w: the ledger store needs a seen set", ErrInvalidConfig)
	}

	return nil
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
