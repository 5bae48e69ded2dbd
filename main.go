package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"saleharvest/internal/app"
	"saleharvest/internal/config"
	"saleharvest/internal/formatter"
	"saleharvest/internal/logger"
	"saleharvest/internal/scheduler"
	_ "saleharvest/internal/sites/rakuten"
	"saleharvest/internal/store"
)

var version = "dev"

var (
	configFile   string
	showUI       bool
	outputFormat string
	outputFile   string
)

// harvestFlags maps flag names to the config keys they override.
var harvestFlags = map[string]string{
	"site":      "target.site",
	"max-items": "harvest.max_items",
	"interval":  "schedule.interval",
	"rounds":    "schedule.rounds",
	"store":     "store.path",
	"proxy":     "fetch.proxy",
	"timeout":   "fetch.page_timeout",
	"static":    "fetch.static",
	"ocr":       "enrich.ocr.enabled",
	"log-level": "log.level",
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "saleharvest [URL]",
		Short:   "Incrementally harvest sale products and banners into a deduplicated corpus",
		Version: version,
		Long: `saleharvest loads a campaign page in a headless browser, extracts product
cards and promotional banners, translates them, and appends only items it has
not seen before to a JSON corpus. It can run once or on an interval.`,
		Example: `  # Harvest the default campaign page once
  saleharvest

  # Check every 5 minutes, 12 times, keeping at most 30 products per round
  saleharvest --interval 5m --rounds 12 -n 30

  # Harvest a server-rendered page without a browser
  saleharvest --static https://event.rakuten.co.jp/campaign/supersale/

  # Serve the HTTP API
  saleharvest serve --addr 127.0.0.1:8000

  # Print the corpus as markdown
  saleharvest show -f markdown`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./config.yaml or ./config/config.yaml)")
	pf.StringP("store", "o", "", "Corpus file path")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	f := rootCmd.Flags()
	f.String("site", "", "Site extractor to use")
	f.IntP("max-items", "n", 0, "Maximum products per round (0 for no cap)")
	f.String("interval", "", "Monitoring interval, e.g. 60 (seconds) or 5m; 0 runs once")
	f.Int("rounds", 0, "Rounds to run when monitoring (0 for no limit)")
	f.BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	f.StringP("proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890)")
	f.DurationP("timeout", "t", 0, "Page load timeout")
	f.Bool("static", false, "Fetch plain HTML instead of driving a browser")
	f.Bool("ocr", false, "Recognize banner text with the OCR server")

	rootCmd.AddCommand(serveCommand(), showCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// load reads configuration with cmd's flags bound on top.
func load(cmd *cobra.Command, keys map[string]string) (*config.Config, logger.Logger, error) {
	loader := config.NewLoader()
	bound := map[string]string{}
	for name, key := range keys {
		if cmd.Flags().Lookup(name) != nil {
			bound[name] = key
		}
	}
	if err := loader.BindFlags(cmd.Flags(), bound); err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, log, err := load(cmd, harvestFlags)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if len(args) == 1 {
		cfg.Target.URL = normalizeURL(args[0])
	}
	if showUI {
		cfg.Fetch.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(cfg, log, app.Deps{})
	if err != nil {
		return err
	}
	opts, err := a.ScheduleOptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopOnSignal(a.Scheduler, cancel, log)

	if opts.Interval == 0 {
		sum, err := a.Scheduler.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, formatter.SummaryTable(sum))
		return nil
	}

	report, err := a.Scheduler.Monitor(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, formatter.ReportTable(report))
	if report.Rounds > 0 {
		fmt.Fprintln(os.Stderr, formatter.SummaryTable(report.Last))
	}
	return nil
}

// stopOnSignal asks the scheduler to stop at the next round boundary on the
// first SIGINT or SIGTERM and cancels ctx on the second, or on the first when
// no monitor is running.
func stopOnSignal(s *scheduler.Scheduler, cancel context.CancelFunc, log logger.Logger) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if s.Stop() {
			log.Info("Stopping after the current round, signal again to abort",
				logger.String("signal", sig.String()))
			sig = <-sigCh
		}
		log.Info("Aborting", logger.String("signal", sig.String()))
		cancel()
	}()
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the harvest HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys := map[string]string{"addr": "server.address", "static": "fetch.static"}
			for k, v := range harvestFlags {
				keys[k] = v
			}
			cfg, log, err := load(cmd, keys)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := app.New(cfg, log, app.Deps{})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = a.Server(ctx).Run(ctx)
			a.Scheduler.Stop()
			return err
		},
		SilenceUsage: true,
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8000)")
	cmd.Flags().Bool("static", false, "Fetch plain HTML instead of driving a browser")
	return cmd
}

func showCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Render the stored corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd, harvestFlags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return show(cfg.Store.Path, log)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format ("+strings.Join(formatter.Formats, ", ")+")")
	cmd.Flags().StringVar(&outputFile, "out", "", "Output file path (format inferred from extension if -f not specified)")
	return cmd
}

func show(path string, log logger.Logger) error {
	if outputFile != "" && outputFormat == "text" {
		if inferred := inferFormatFromExtension(outputFile); inferred != "" {
			outputFormat = inferred
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no corpus at %s", path)
	}
	corpus := store.NewFileStore(path, log).Load()
	out, err := formatter.Format(formatter.NewCorpusContent(path, corpus), outputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputFile)
		return nil
	}
	fmt.Println(out)
	return nil
}

// inferFormatFromExtension infers output format from file extension
func inferFormatFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	case ".txt":
		return "text"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}

// normalizeURL adds https:// when the URL has no scheme.
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}
