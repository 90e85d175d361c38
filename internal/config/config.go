// Package config assembles the immutable configuration struct both
// processes start from: environment variables (loaded via godotenv)
// layered under docopt-parsed CLI flags, plus an optional YAML overlay
// for the Fetcher's browser-profile table. The struct is assembled once at
// startup; there is no live-reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RotationStrategy selects how the Proxy Pool draws its next proxy.
type RotationStrategy string

const (
	RotationRoundRobin RotationStrategy = "round_robin"
	RotationRandom     RotationStrategy = "random"
	RotationFallback   RotationStrategy = "fallback"
)

// Config is the full set of knobs read at process startup. Both the
// scraper and the notifier share one Config type; each binary only reads
// the fields it needs.
type Config struct {
	DatabaseDSN string

	BotToken string
	AdminIDs []int64

	ScanInterval         time.Duration
	NotificationInterval time.Duration

	MaxPerUserPerDay int
	BatchSize        int
	RetryAttempts    int

	HTTPTimeout   time.Duration
	MaxConcurrent int

	UseProxies       bool
	ProxyList        []string
	ProxyRotation    RotationStrategy
	ProxyProviderURL string

	Sources       []string
	Cities        []string
	SkipCities    []string
	SkipQueryURLs []int64
	MaxResults    int
	Once          bool

	HealthPort int
}

// env reads an environment variable or falls back to def.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func envStringList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// scraperUsage is the docopt usage string for the scraper CLI.
const scraperUsage = `huisjacht-scraper

Usage:
  huisjacht-scraper [options]
  huisjacht-scraper --list-sources
  huisjacht-scraper --add-query-url=<source:url> [--query-method=<m>] [--query-description=<text>] [--query-body=<body>] [--query-headers=<headers>]
  huisjacht-scraper --list-query-urls
  huisjacht-scraper --toggle-query-url=<id>
  huisjacht-scraper --delete-query-url=<id>
  huisjacht-scraper (-h | --help)

Options:
  --sources=<list>          Comma-separated source names to scan.
  --cities=<list>           Comma-separated cities to scan.
  --skip-cities=<list>      Comma-separated cities to exclude.
  --skip-query-urls=<list>  Comma-separated query URL ids to exclude.
  --interval=<duration>     Scan cadence, e.g. 15m (default from SCAN_INTERVAL).
  --max-results=<n>         Cap on results kept per page.
  --max-concurrent=<n>      Fetcher concurrency cap (default from MAX_CONCURRENT).
  --once                    Run a single scan cycle and exit.
  --use-proxies             Enable the proxy pool.
  --proxy-list=<list>       Comma-separated proxy URLs.
  --proxy-rotation=<mode>   round_robin, random, or fallback (default from PROXY_ROTATION).
  --list-sources            Print registered adapter names and exit.
  --add-query-url=<s>       Add a query URL as source:url.
  --query-method=<m>        HTTP method for --add-query-url (default GET).
  --query-description=<t>   Operator note stored with --add-query-url.
  --query-body=<body>       Optional request body for --add-query-url.
  --query-headers=<hdrs>    Optional k=v;k=v request headers for --add-query-url.
  --list-query-urls         List stored query URLs and exit.
  --toggle-query-url=<id>   Flip a query URL's enabled flag.
  --delete-query-url=<id>   Delete a query URL by id.
  -h --help                 Show this help.
`

// ScraperCLI holds the parsed docopt flags relevant to one invocation of the
// scraper binary, separate from the long-lived Config so query-URL CRUD
// commands (which exit immediately) don't need a full Config.
type ScraperCLI struct {
	ListSources    bool
	AddQueryURL    string
	QueryMethod    string
	QueryDesc      string
	QueryBody      string
	QueryHeaders   string
	ListQueryURLs  bool
	ToggleQueryURL int64
	DeleteQueryURL int64
	HasToggle      bool
	HasDelete      bool
}

// ParseScraperArgs parses os.Args (minus argv[0]) with docopt and returns
// both the long-lived Config overrides and the one-shot CLI command, if any.
func ParseScraperArgs(argv []string) (*Config, *ScraperCLI, error) {
	opts, err := docopt.ParseArgs(scraperUsage, argv, "huisjacht-scraper")
	if err != nil {
		return nil, nil, err
	}

	cli := &ScraperCLI{}
	if v, _ := opts.Bool("--list-sources"); v {
		cli.ListSources = true
	}
	if v, _ := opts.String("--add-query-url"); v != "" {
		cli.AddQueryURL = v
	}
	if v, _ := opts.String("--query-method"); v != "" {
		cli.QueryMethod = v
	}
	if v, _ := opts.String("--query-description"); v != "" {
		cli.QueryDesc = v
	}
	if v, _ := opts.String("--query-body"); v != "" {
		cli.QueryBody = v
	}
	if v, _ := opts.String("--query-headers"); v != "" {
		cli.QueryHeaders = v
	}
	if v, _ := opts.Bool("--list-query-urls"); v {
		cli.ListQueryURLs = true
	}
	if v, _ := opts.String("--toggle-query-url"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cli.ToggleQueryURL = n
			cli.HasToggle = true
		}
	}
	if v, _ := opts.String("--delete-query-url"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cli.DeleteQueryURL = n
			cli.HasDelete = true
		}
	}

	cfg := Load()

	if v, _ := opts.String("--sources"); v != "" {
		cfg.Sources = strings.Split(v, ",")
	}
	if v, _ := opts.String("--cities"); v != "" {
		cfg.Cities = strings.Split(v, ",")
	}
	if v, _ := opts.String("--skip-cities"); v != "" {
		cfg.SkipCities = strings.Split(v, ",")
	}
	if v, _ := opts.String("--skip-query-urls"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				cfg.SkipQueryURLs = append(cfg.SkipQueryURLs, n)
			}
		}
	}
	if v, _ := opts.String("--interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ScanInterval = d
		}
	}
	if v, _ := opts.Int("--max-results"); v > 0 {
		cfg.MaxResults = v
	}
	if v, _ := opts.Int("--max-concurrent"); v > 0 {
		cfg.MaxConcurrent = v
	}
	if v, _ := opts.Bool("--once"); v {
		cfg.Once = true
	}
	if v, _ := opts.Bool("--use-proxies"); v {
		cfg.UseProxies = true
	}
	if v, _ := opts.String("--proxy-list"); v != "" {
		cfg.ProxyList = strings.Split(v, ",")
	}
	if v, _ := opts.String("--proxy-rotation"); v != "" {
		cfg.ProxyRotation = RotationStrategy(v)
	}

	return cfg, cli, nil
}

// notifierUsage is the docopt usage string for the notifier CLI,
// including the one-shot user admin commands.
const notifierUsage = `huisjacht-notifier

Usage:
  huisjacht-notifier [options]
  huisjacht-notifier --list-users
  huisjacht-notifier --set-admin=<id> --admin=<bool>
  huisjacht-notifier --deactivate-user=<id>
  huisjacht-notifier (-h | --help)

Options:
  --interval=<duration>  Delivery poll cadence, e.g. 30s (default from NOTIFICATION_INTERVAL).
  --batch-size=<n>       Notifications claimed per poll (default from NOTIFICATION_BATCH_SIZE).
  --list-users           Print registered Telegram users and exit.
  --set-admin=<id>       Telegram user id to flip admin status for.
  --admin=<bool>         true or false, paired with --set-admin.
  --deactivate-user=<id> Telegram user id to deactivate.
  -h --help              Show this help.
`

// NotifierCLI holds the parsed one-shot admin commands for one invocation
// of the notifier binary, mirroring ScraperCLI's shape.
type NotifierCLI struct {
	ListUsers      bool
	SetAdminID     int64
	SetAdminValue  bool
	HasSetAdmin    bool
	DeactivateUser int64
	HasDeactivate  bool
}

// ParseNotifierArgs parses os.Args (minus argv[0]) with docopt and returns
// both the long-lived Config overrides and the one-shot admin command, if
// any.
func ParseNotifierArgs(argv []string) (*Config, *NotifierCLI, error) {
	opts, err := docopt.ParseArgs(notifierUsage, argv, "huisjacht-notifier")
	if err != nil {
		return nil, nil, err
	}

	cli := &NotifierCLI{}
	if v, _ := opts.Bool("--list-users"); v {
		cli.ListUsers = true
	}
	if v, _ := opts.String("--set-admin"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cli.SetAdminID = n
			cli.HasSetAdmin = true
			if b, _ := opts.String("--admin"); b != "" {
				cli.SetAdminValue = b == "true"
			}
		}
	}
	if v, _ := opts.String("--deactivate-user"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cli.DeactivateUser = n
			cli.HasDeactivate = true
		}
	}

	cfg := Load()
	if v, _ := opts.String("--interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NotificationInterval = d
		}
	}
	if v, _ := opts.Int("--batch-size"); v > 0 {
		cfg.BatchSize = v
	}

	return cfg, cli, nil
}

// Load assembles Config from environment variables, after loading .env
// via godotenv. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseDSN:          os.Getenv("DATABASE_URL"),
		BotToken:             os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminIDs:             envInt64List("ADMIN_USER_IDS"),
		ScanInterval:         envDuration("SCAN_INTERVAL", 15*time.Minute),
		NotificationInterval: envDuration("NOTIFICATION_INTERVAL", 30*time.Second),
		MaxPerUserPerDay:     envInt("MAX_PER_USER_PER_DAY", 20),
		BatchSize:            envInt("NOTIFICATION_BATCH_SIZE", 25),
		RetryAttempts:        envInt("RETRY_ATTEMPTS", 3),
		HTTPTimeout:          envDuration("HTTP_TIMEOUT", 30*time.Second),
		MaxConcurrent:        envInt("MAX_CONCURRENT", 4),
		UseProxies:           os.Getenv("USE_PROXIES") == "1",
		ProxyList:            envStringList("PROXY_LIST"),
		ProxyRotation:        RotationStrategy(env("PROXY_ROTATION", string(RotationRoundRobin))),
		ProxyProviderURL:     os.Getenv("PROXY_API_ENDPOINT"),
		Sources:              envStringList("SOURCES"),
		Cities:               envStringList("CITIES"),
		HealthPort:           envInt("HEALTH_PORT", 8090),
	}
}

// Validate checks the fields required for process startup to proceed;
// a missing required field is fatal and exits the process non-zero.
func (c *Config) Validate(requireBotToken bool) error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if requireBotToken && c.BotToken == "" {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// EvasionOverrides is the optional YAML-loaded overlay for the Fetcher's
// browser-profile table. The scraper applies each profile's user_agent and
// accept_language; anti_bot_patterns and client_hints are parsed but not
// applied, and the Fetcher keeps its built-in anti-bot marker table.
type EvasionOverrides struct {
	AntiBotPatterns []string      `yaml:"anti_bot_patterns"`
	Profiles        []ProfileSpec `yaml:"profiles"`
}

// ProfileSpec is the YAML shape of one browser profile entry.
type ProfileSpec struct {
	UserAgent      string            `yaml:"user_agent"`
	AcceptLanguage string            `yaml:"accept_language"`
	ClientHints    map[string]string `yaml:"client_hints"`
}

// LoadEvasionOverrides reads path if it exists; a missing file is not an
// error (the Fetcher falls back to its built-in table).
func LoadEvasionOverrides(path string) (*EvasionOverrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read evasion overrides: %w", err)
	}
	var out EvasionOverrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config: parse evasion overrides: %w", err)
	}
	return &out, nil
}
