package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"saleharvest/internal/config"
	"saleharvest/internal/harvest"
	"saleharvest/internal/item"
	"saleharvest/internal/logger"
	"saleharvest/internal/scheduler"
)

// Scheduler is the part of scheduler.Scheduler the handlers drive.
type Scheduler interface {
	RunOnceWith(ctx context.Context, r scheduler.Runner) (harvest.Summary, error)
	StartMonitor(ctx context.Context, opts scheduler.Options) (<-chan scheduler.Report, error)
	Stop() bool
	Running() bool
	Last() (harvest.Summary, bool)
}

// Corpus reads the persisted corpus.
type Corpus interface {
	Load() item.Corpus
}

// RunnerFactory returns a runner capped at maxItems.
type RunnerFactory func(maxItems int) scheduler.Runner

// Handler serves the harvest endpoints. Monitoring started over HTTP runs
// on the handler's base context, not on the request that started it.
type Handler struct {
	base      context.Context
	scheduler Scheduler
	corpus    Corpus
	runnerFor RunnerFactory
	threshold int
	metrics   http.Handler
	log       logger.Logger
}

// NewHandler creates a Handler. runnerFor and metrics may be nil.
func NewHandler(base context.Context, sched Scheduler, corpus Corpus, runnerFor RunnerFactory,
	alertThreshold int, metrics http.Handler, log logger.Logger) *Handler {
	return &Handler{
		base:      base,
		scheduler: sched,
		corpus:    corpus,
		runnerFor: runnerFor,
		threshold: alertThreshold,
		metrics:   metrics,
		log:       log,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.index)
	r.GET("/health", h.health)
	r.GET("/scrape", h.scrape)
	r.POST("/scrape/stop", h.stop)
	r.GET("/data", h.data)
	r.GET("/status", h.status)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

func (h *Handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "saleharvest",
		"message": "Use /scrape to harvest, /data to read the corpus",
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type scrapeParams struct {
	interval time.Duration
	rounds   int
	maxItems int
	capped   bool
}

func parseScrape(c *gin.Context) (scrapeParams, error) {
	var p scrapeParams
	var err error
	if p.interval, err = config.ParseInterval(c.DefaultQuery("interval", "0")); err != nil {
		return p, err
	}
	if p.rounds, err = nonNegative(c.DefaultQuery("rounds", "0"), "rounds"); err != nil {
		return p, err
	}
	if raw, ok := c.GetQuery("max_items"); ok {
		if p.maxItems, err = nonNegative(raw, "max_items"); err != nil {
			return p, err
		}
		p.capped = true
	}
	return p, nil
}

func nonNegative(raw, name string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// scrape runs one cycle synchronously when interval is 0, otherwise starts
// monitoring in the background.
func (h *Handler) scrape(c *gin.Context) {
	p, err := parseScrape(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var runner scheduler.Runner
	if p.capped && h.runnerFor != nil {
		runner = h.runnerFor(p.maxItems)
	}

	if p.interval == 0 {
		sum, err := h.scheduler.RunOnceWith(c.Request.Context(), runner)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "completed", "summary": sum})
		return
	}

	_, err = h.scheduler.StartMonitor(h.base, scheduler.Options{
		Interval:              p.interval,
		MaxRounds:             p.rounds,
		FailureAlertThreshold: h.threshold,
		Runner:                runner,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("Monitoring started over HTTP",
		logger.Duration("interval", p.interval),
		logger.Int("rounds", p.rounds),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "monitoring",
		"interval": p.interval.String(),
		"rounds":   p.rounds,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrInvalidOptions):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) stop(c *gin.Context) {
	if !h.scheduler.Stop() {
		c.JSON(http.StatusOK, gin.H{"status": "idle"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

func (h *Handler) data(c *gin.Context) {
	corpus := h.corpus.Load()
	if corpus.Products == nil {
		corpus.Products = []item.Product{}
	}
	if corpus.Banners == nil {
		corpus.Banners = []item.Banner{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    corpus.Len(),
		"products": corpus.Products,
		"banners":  corpus.Banners,
	})
}

func (h *Handler) status(c *gin.Context) {
	resp := gin.H{"running": h.scheduler.Running()}
	if last, ok := h.scheduler.Last(); ok {
		resp["last"] = last
	}
	c.JSON(http.StatusOK, resp)
}
