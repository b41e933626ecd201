// Package main provides the CLI entrypoint for lrsdash.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/lrsdash/internal/cache"
	"github.com/verte-zerg/lrsdash/internal/config"
	"github.com/verte-zerg/lrsdash/internal/dataset"
	"github.com/verte-zerg/lrsdash/internal/logging"
	"github.com/verte-zerg/lrsdash/internal/lrs"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 2
	defaultAddr    = ":8080"
)

// settings is the merged result of flags, the config file and the environment.
type settings struct {
	configPath string

	baseURL      string
	username     string
	password     string
	activityBase string
	timeout      time.Duration
	retries      int
	maxPages     int
	maxDuration  time.Duration
	concurrency  int
	dedup        string

	cacheBackend string
	cacheSize    int
	cacheTTL     time.Duration
	cachePath    string
	cacheURL     string

	logLevel  string
	logFormat string

	dataset string
	lang    string
	typ     string
	since   string
	until   string
	mode    string

	addr        string
	corsOrigins []string
}

var opts settings

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lrsdash",
		Short:         "Dashboards for xAPI learning-record store data",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runDashCmd,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "config file path")
	pf.StringVar(&opts.baseURL, "base-url", "", "LRS statements endpoint")
	pf.StringVar(&opts.username, "username", "", "LRS basic auth username")
	pf.StringVar(&opts.password, "password", "", "LRS basic auth password")
	pf.StringVar(&opts.activityBase, "activity-base", lrs.DefaultActivityBase, "activity id base")
	pf.DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-request timeout")
	pf.IntVar(&opts.retries, "retries", defaultRetries, "retries for 429/5xx and network errors")
	pf.IntVar(&opts.maxPages, "max-pages", lrs.DefaultMaxPages, "maximum pages per paged query")
	pf.DurationVar(&opts.maxDuration, "max-duration", lrs.DefaultMaxDuration, "deadline for one paged query")
	pf.IntVar(&opts.concurrency, "concurrency", lrs.DefaultConcurrency, "parallel per-actor queries")
	pf.StringVar(&opts.dedup, "dedup", "none", "statement dedup policy (none or statement-id)")
	pf.StringVar(&opts.cacheBackend, "cache", "memory", "cache backend (none, memory, sqlite, redis)")
	pf.IntVar(&opts.cacheSize, "cache-size", cache.DefaultSize, "maximum cached queries")
	pf.DurationVar(&opts.cacheTTL, "cache-ttl", cache.DefaultTTL, "cache entry lifetime")
	pf.StringVar(&opts.cachePath, "cache-path", config.DefaultCachePath(), "sqlite cache file")
	pf.StringVar(&opts.cacheURL, "cache-url", "", "redis URL")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format (text or json)")

	addQueryFlags(rootCmd, true)

	rootCmd.AddCommand(newReportCmd(model.DatasetScores, "Show assessment scores"))
	rootCmd.AddCommand(newReportCmd(model.DatasetItems, "Show assessment item responses"))
	rootCmd.AddCommand(newReportCmd(model.DatasetSurvey, "Show survey responses"))
	rootCmd.AddCommand(newActorsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDashCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addQueryFlags(cmd *cobra.Command, withDataset bool) {
	f := cmd.Flags()
	if withDataset {
		f.StringVar(&opts.dataset, "dataset", string(model.DatasetItems), "dataset (scores, items, survey)")
	}
	f.StringVar(&opts.lang, "lang", "english", "language")
	f.StringVar(&opts.typ, "type", "letter-sound", "activity type")
	f.StringVar(&opts.since, "since", "", "first day (YYYY-MM-DD, default 30 days ago)")
	f.StringVar(&opts.until, "until", "", "last day (YYYY-MM-DD, default today)")
	f.StringVar(&opts.mode, "mode", "", "fetch mode for items and survey (range or actors)")
}

// resolveSettings merges .env files, the config file and the environment into
// opts. Flags set on the command line win.
func resolveSettings(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(".env", config.DefaultEnvPath()); err != nil {
		return err
	}
	fileCfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(&fileCfg)

	applyStringConfig(cmd, "base-url", &opts.baseURL, fileCfg.LRS.BaseURL)
	applyStringConfig(cmd, "username", &opts.username, fileCfg.LRS.Username)
	applyStringConfig(cmd, "password", &opts.password, fileCfg.LRS.Password)
	applyStringConfig(cmd, "activity-base", &opts.activityBase, fileCfg.LRS.ActivityBase)
	applyDurationConfig(cmd, "timeout", &opts.timeout, fileCfg.LRS.Timeout)
	applyIntConfig(cmd, "retries", &opts.retries, fileCfg.LRS.Retries)
	applyIntConfig(cmd, "max-pages", &opts.maxPages, fileCfg.LRS.MaxPages)
	applyDurationConfig(cmd, "max-duration", &opts.maxDuration, fileCfg.LRS.MaxDuration)
	applyIntConfig(cmd, "concurrency", &opts.concurrency, fileCfg.LRS.Concurrency)
	applyStringConfig(cmd, "dedup", &opts.dedup, fileCfg.LRS.Dedup)

	applyStringConfig(cmd, "lang", &opts.lang, fileCfg.Query.Lang)
	applyStringConfig(cmd, "type", &opts.typ, fileCfg.Query.Type)
	applyStringConfig(cmd, "mode", &opts.mode, fileCfg.Query.Mode)

	applyStringConfig(cmd, "cache", &opts.cacheBackend, fileCfg.Cache.Backend)
	applyIntConfig(cmd, "cache-size", &opts.cacheSize, fileCfg.Cache.Size)
	applyDurationConfig(cmd, "cache-ttl", &opts.cacheTTL, fileCfg.Cache.TTL)
	applyStringConfig(cmd, "cache-path", &opts.cachePath, fileCfg.Cache.Path)
	applyStringConfig(cmd, "cache-url", &opts.cacheURL, fileCfg.Cache.URL)

	applyStringConfig(cmd, "log-level", &opts.logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &opts.logFormat, fileCfg.Log.Format)

	applyStringConfig(cmd, "addr", &opts.addr, fileCfg.Server.Addr)
	if len(fileCfg.Server.CORSOrigins) > 0 && !flagChanged(cmd, "cors-origin") {
		opts.corsOrigins = fileCfg.Server.CORSOrigins
	}
	return nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = value.Duration
}

// app holds the components shared by every command.
type app struct {
	logger logging.Logger
	cache  cache.Cache
	loader *dataset.Loader
}

func (a *app) Close() {
	if a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		logErrf("failed to close cache: %v\n", err)
	}
}

// newApp builds the logger, cache and loader from opts. A nil logger
// selects one writing to stderr.
func newApp(logger logging.Logger) (*app, error) {
	if logger == nil {
		l, err := logging.New(os.Stderr, logging.Options{Level: opts.logLevel, Format: opts.logFormat})
		if err != nil {
			return nil, err
		}
		logger = l
	}
	if opts.baseURL == "" {
		return nil, fmt.Errorf("LRS base url is not set (use --base-url, %s or `lrsdash config`)", config.EnvBaseURL)
	}
	client, err := lrs.NewClient(lrs.ClientConfig{
		BaseURL:  opts.baseURL,
		Username: opts.username,
		Password: opts.password,
		Timeout:  opts.timeout,
		Retries:  opts.retries,
	})
	if err != nil {
		return nil, err
	}
	dedup, err := normalize.PolicyByName(opts.dedup)
	if err != nil {
		return nil, err
	}
	c, err := cache.Open(cache.Config{
		Backend: opts.cacheBackend,
		Size:    opts.cacheSize,
		TTL:     opts.cacheTTL,
		Path:    opts.cachePath,
		URL:     opts.cacheURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	loader := dataset.NewLoader(client, dataset.Options{
		ActivityBase: opts.activityBase,
		MaxPages:     opts.maxPages,
		MaxDuration:  opts.maxDuration,
		Concurrency:  opts.concurrency,
		Dedup:        dedup,
		Cache:        c,
		Logger:       logger,
	})
	return &app{logger: logger, cache: c, loader: loader}, nil
}

// buildQuery parses the query flags for d. An empty d uses --dataset.
func buildQuery(d model.Dataset) (model.Query, error) {
	name := string(d)
	if name == "" {
		name = opts.dataset
	}
	return dataset.ParseQuery(dataset.Params{
		Dataset: name,
		Lang:    opts.lang,
		Type:    opts.typ,
		Since:   opts.since,
		Until:   opts.until,
		Mode:    opts.mode,
	}, time.Now())
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := opts.configPath
	if err := writeConfigTemplate(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// writeConfigTemplate creates the config file unless it already exists.
func writeConfigTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
