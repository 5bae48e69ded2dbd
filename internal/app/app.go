// Package app wires configuration into a ready-to-run harvester.
package app

import (
	"context"
	"fmt"

	"saleharvest/internal/browser"
	"saleharvest/internal/clock"
	"saleharvest/internal/config"
	"saleharvest/internal/enrich"
	"saleharvest/internal/extractor"
	"saleharvest/internal/fetcher"
	"saleharvest/internal/harvest"
	"saleharvest/internal/logger"
	"saleharvest/internal/metrics"
	"saleharvest/internal/ocr"
	"saleharvest/internal/page"
	"saleharvest/internal/scheduler"
	"saleharvest/internal/server"
	"saleharvest/internal/sites/rakuten"
	"saleharvest/internal/store"
	"saleharvest/internal/translate"
)

// App holds the long-lived components of one process.
type App struct {
	Config    *config.Config
	Log       logger.Logger
	Store     *store.FileStore
	Index     *store.Index
	Cycle     *harvest.Cycle
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Recorder
}

// Deps lets callers replace the page source and clock. Zero values select
// the configured fetcher and the wall clock.
type Deps struct {
	Fetch harvest.FetchSession
	Clock clock.Clock
}

// New builds every component from cfg. The index is rehydrated from the
// corpus file so a restarted process does not re-accept stored items.
func New(cfg *config.Config, log logger.Logger, deps Deps) (*App, error) {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	ex, err := siteExtractor(cfg)
	if err != nil {
		return nil, err
	}

	st := store.NewFileStore(cfg.Store.Path, log)
	index := store.NewIndex()
	index.Rehydrate(st.Load())
	log.Info("Identity index rehydrated",
		logger.String("store", cfg.Store.Path),
		logger.Int("keys", index.Len()),
	)

	fetch := deps.Fetch
	if fetch == nil {
		fetch = newFetchSession(cfg, clk, log)
	}

	memo, err := enrich.NewMemoTranslator(translate.New(translate.Config{
		BaseURL: cfg.Enrich.Translate.BaseURL,
		Source:  cfg.Enrich.Translate.Source,
		Target:  cfg.Enrich.Translate.Target,
		Timeout: cfg.Enrich.Translate.Timeout,
		Retries: cfg.Enrich.Translate.Retries,
	}), cfg.Enrich.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create translation cache: %w", err)
	}

	var images enrich.ImageReader
	if cfg.Enrich.OCR.Enabled {
		images = ocr.New(ocr.Config{
			ServerURL:        cfg.Enrich.OCR.ServerURL,
			Languages:        cfg.Enrich.OCR.Languages,
			ImageTimeout:     cfg.Enrich.OCR.ImageTimeout,
			ImageRetries:     cfg.Enrich.OCR.ImageRetries,
			RecognizeTimeout: cfg.Enrich.OCR.RecognizeTimeout,
			MinWidth:         cfg.Enrich.OCR.MinWidth,
			MinHeight:        cfg.Enrich.OCR.MinHeight,
		})
	}
	pool := enrich.NewPool(memo, images, cfg.Enrich.Workers, clk, log)

	cycle := harvest.NewCycle(harvest.Config{
		Target:      cfg.Target.URL,
		MaxItems:    cfg.Harvest.MaxItems,
		MaxAttempts: cfg.Harvest.MaxAttempts,
		RetryDelay:  cfg.Harvest.RetryDelay,
	}, fetch, ex, pool, index, st, clk, log)

	rec := metrics.New()
	return &App{
		Config:    cfg,
		Log:       log,
		Store:     st,
		Index:     index,
		Cycle:     cycle,
		Scheduler: scheduler.New(cycle, clk, log, rec),
		Metrics:   rec,
	}, nil
}

func siteExtractor(cfg *config.Config) (extractor.Extractor, error) {
	ex, ok := extractor.Get(cfg.Target.Site)
	if !ok {
		return nil, fmt.Errorf("%w: unknown site %q (available: %v)", config.ErrInvalid, cfg.Target.Site, extractor.Names())
	}
	if rk, ok := ex.(*rakuten.Extractor); ok {
		cp := *rk
		cp.MaxBanners = cfg.Harvest.MaxBanners
		ex = &cp
	}
	return ex, nil
}

func newFetchSession(cfg *config.Config, clk clock.Clock, log logger.Logger) harvest.FetchSession {
	if cfg.Fetch.Static {
		return fetcher.NewStatic(cfg.Fetch.PageTimeout, cfg.Fetch.Proxy)
	}
	return fetcher.New(fetcher.Config{
		Browser: browser.Config{
			Headless:     cfg.Fetch.Headless,
			ProxyURL:     cfg.Fetch.Proxy,
			BlockedHosts: cfg.Fetch.BlockedHosts,
			UserAgent:    cfg.Fetch.UserAgent,
		},
		PageTimeout:  cfg.Fetch.PageTimeout,
		ReadyTimeout: cfg.Fetch.ReadyTimeout,
		Settle: page.SettleOptions{
			Step:       cfg.Fetch.ScrollStep,
			Pause:      cfg.Fetch.ScrollPause,
			MaxScrolls: cfg.Fetch.MaxScrolls,
		},
	}, clk, log)
}

// ScheduleOptions converts the schedule section into monitoring options.
func (a *App) ScheduleOptions() (scheduler.Options, error) {
	interval, err := a.Config.Schedule.IntervalDuration()
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		Interval:              interval,
		MaxRounds:             a.Config.Schedule.Rounds,
		FailureAlertThreshold: a.Config.Schedule.FailureAlertThreshold,
	}, nil
}

// RunnerFor returns the cycle capped at maxItems.
func (a *App) RunnerFor(maxItems int) scheduler.Runner {
	return a.Cycle.WithMaxItems(maxItems)
}

// Server builds the HTTP surface. Monitoring started over HTTP runs on ctx.
func (a *App) Server(ctx context.Context) *server.Server {
	h := server.NewHandler(ctx, a.Scheduler, a.Store, a.RunnerFor,
		a.Config.Schedule.FailureAlertThreshold, a.Metrics.Handler(), a.Log)
	return server.New(server.Config{
		Address:      a.Config.Server.Address,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		Debug:        a.Config.Log.Development,
	}, h, a.Log)
}
