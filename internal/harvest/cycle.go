// Package harvest runs one fetch, extract, enrich, filter and persist cycle
// with bounded retry of transient fetch failures.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saleharvest/internal/clock"
	"saleharvest/internal/extractor"
	"saleharvest/internal/item"
	"saleharvest/internal/logger"
	"saleharvest/internal/page"
	"saleharvest/internal/store"
)

// Defaults for the retry policy.
const (
	DefaultMaxAttempts = 2
	DefaultRetryDelay  = 5 * time.Second
)

// FetchSession opens a ready, settled page.
type FetchSession interface {
	Open(ctx context.Context, target, readySelector string) (page.Page, error)
}

// Enricher maps raw candidates to enriched items, one per input.
type Enricher interface {
	Enrich(ctx context.Context, raws []item.Raw) []item.Enriched
}

// Persister merges accepted records into durable storage.
type Persister interface {
	MergeAndSave(products []item.Product, banners []item.Banner) (store.MergeResult, error)
}

// Config is the per-cycle policy.
type Config struct {
	Target string
	// MaxItems caps product candidates per cycle; 0 means no cap.
	MaxItems    int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Cycle runs harvest cycles against one target. The index is shared across
// cycles and is only touched from the goroutine calling Run.
type Cycle struct {
	cfg       Config
	fetch     FetchSession
	extractor extractor.Extractor
	enricher  Enricher
	index     *store.Index
	store     Persister
	clock     clock.Clock
	log       logger.Logger
}

// NewCycle creates a Cycle.
func NewCycle(cfg Config, fetch FetchSession, ex extractor.Extractor, enricher Enricher,
	index *store.Index, st Persister, clk clock.Clock, log logger.Logger) *Cycle {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Cycle{
		cfg:       cfg,
		fetch:     fetch,
		extractor: ex,
		enricher:  enricher,
		index:     index,
		store:     st,
		clock:     clk,
		log:       log,
	}
}

// WithMaxItems returns a copy of c with a different cap. The copy shares
// the index and store.
func (c *Cycle) WithMaxItems(n int) *Cycle {
	cp := *c
	cp.cfg.MaxItems = n
	return &cp
}

// Retryable reports whether err is a transient fetch failure.
func Retryable(err error) bool {
	return errors.Is(err, page.ErrTimeout) || errors.Is(err, page.ErrContentNotFound)
}

// Run executes one cycle. Failures never escape as errors: they end the
// cycle in StateFailed and are reported through the summary.
func (c *Cycle) Run(ctx context.Context, round int) Summary {
	s := Summary{RoundID: uuid.NewString(), Round: round, StartedAt: c.clock.Now()}
	log := c.log.With(logger.String("round_id", s.RoundID), logger.Int("round", round))
	m := newMachine()

	finish := func(err error) Summary {
		if err != nil {
			if terr := m.to(StateFailed); terr != nil {
				err = errors.Join(err, terr)
			}
			s.Outcome = OutcomeFailed
			s.Err = err
			s.Error = err.Error()
		} else if s.Accepted > 0 {
			s.Outcome = OutcomeNewItems
		} else {
			s.Outcome = OutcomeNoNewItems
		}
		s.State = m.state
		s.Duration = Duration(c.clock.Now().Sub(s.StartedAt))
		return s
	}

	extraction, err := c.fetchAndExtract(ctx, m, &s, log)
	if err != nil {
		return finish(err)
	}
	s.Found = len(extraction.Items)
	s.Available = extraction.Available
	s.Failed = len(extraction.Skipped)
	for _, sk := range extraction.Skipped {
		if s.SkippedByKind == nil {
			s.SkippedByKind = map[item.Kind]int{}
		}
		s.SkippedByKind[sk.Kind]++
	}

	if err := m.to(StateEnriching); err != nil {
		return finish(err)
	}
	enriched := c.enricher.Enrich(ctx, extraction.Items)
	for _, e := range enriched {
		if e.Status() == item.StatusDegraded {
			s.Degraded++
		}
		for _, d := range e.Defects {
			if s.DefectsByStage == nil {
				s.DefectsByStage = map[item.Stage]int{}
			}
			s.DefectsByStage[d.Stage]++
		}
	}

	if err := m.to(StateFiltering); err != nil {
		return finish(err)
	}
	fresh := c.filter(enriched, &s)
	if len(fresh) == 0 {
		if err := m.to(StateDone); err != nil {
			return finish(err)
		}
		return finish(nil)
	}

	if err := m.to(StatePersisting); err != nil {
		return finish(err)
	}
	if err := c.persist(fresh, &s); err != nil {
		return finish(err)
	}
	if err := m.to(StateDone); err != nil {
		return finish(err)
	}
	return finish(nil)
}

func (c *Cycle) fetchAndExtract(ctx context.Context, m *machine, s *Summary, log logger.Logger) (item.Extraction, error) {
	for attempt := 1; ; attempt++ {
		if err := m.to(StateFetching); err != nil {
			return item.Extraction{}, err
		}
		s.Attempts = attempt

		ext, err := c.attempt(ctx, m)
		if err == nil {
			return ext, nil
		}
		if !Retryable(err) || ctx.Err() != nil {
			return item.Extraction{}, err
		}
		if attempt >= c.cfg.MaxAttempts {
			return item.Extraction{}, fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		log.Warn("Fetch attempt failed, retrying",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.cfg.MaxAttempts),
			logger.Duration("delay", c.cfg.RetryDelay),
			logger.Error(err),
		)
		if err := m.to(StateRetryWait); err != nil {
			return item.Extraction{}, err
		}
		if err := c.clock.Sleep(ctx, c.cfg.RetryDelay); err != nil {
			return item.Extraction{}, err
		}
	}
}

func (c *Cycle) attempt(ctx context.Context, m *machine) (item.Extraction, error) {
	p, err := c.fetch.Open(ctx, c.cfg.Target, c.extractor.ReadySelector())
	if err != nil {
		return item.Extraction{}, err
	}
	defer p.Close()

	if err := m.to(StateExtracting); err != nil {
		return item.Extraction{}, err
	}
	return c.extractor.Extract(ctx, p, c.cfg.MaxItems)
}

// filter drops items already in the index or repeated earlier in the batch.
func (c *Cycle) filter(enriched []item.Enriched, s *Summary) []item.Enriched {
	seen := make(map[item.Key]struct{}, len(enriched))
	fresh := make([]item.Enriched, 0, len(enriched))
	for _, e := range enriched {
		k := e.Key()
		_, repeated := seen[k]
		if repeated || c.index.Contains(k) {
			s.countDuplicate(k.Kind, 1)
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}

// persist writes fresh items and records every key the store now holds in
// the index. The index is left untouched when the write fails.
func (c *Cycle) persist(fresh []item.Enriched, s *Summary) error {
	products, banners := item.Split(fresh)
	res, err := c.store.MergeAndSave(products, banners)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	for _, k := range res.Added {
		c.index.Add(k)
	}
	for _, k := range res.AlreadyPresent {
		c.index.Add(k)
		s.countDuplicate(k.Kind, 1)
	}
	s.AcceptedProducts = res.AddedProducts
	s.AcceptedBanners = res.AddedBanners
	s.Accepted = res.AddedProducts + res.AddedBanners
	return nil
}

func (s *Summary) countDuplicate(k item.Kind, n int) {
	switch k {
	case item.KindProduct:
		s.DuplicateProducts += n
	case item.KindBanner:
		s.DuplicateBanners += n
	}
}
