package harvest

import (
	"time"

	"saleharvest/internal/item"
	"saleharvest/internal/logger"
)

// Outcome classifies a finished cycle.
type Outcome string

const (
	OutcomeNewItems   Outcome = "new_items"
	OutcomeNoNewItems Outcome = "no_new_items"
	OutcomeFailed     Outcome = "failed"
)

// Summary is the observable result of one cycle.
type Summary struct {
	RoundID   string    `json:"round_id"`
	Round     int       `json:"round"`
	Outcome   Outcome   `json:"outcome"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Duration  Duration  `json:"duration"`
	Attempts  int       `json:"attempts"`

	// Found is the number of candidates extracted after capping.
	Found int `json:"found"`
	// Available is the number of product cards on the page before capping.
	Available         int `json:"available"`
	Accepted          int `json:"accepted"`
	AcceptedProducts  int `json:"accepted_products"`
	AcceptedBanners   int `json:"accepted_banners"`
	DuplicateProducts int `json:"duplicate_products"`
	DuplicateBanners  int `json:"duplicate_banners"`
	// Failed counts candidates skipped as malformed.
	Failed int `json:"failed"`
	// Degraded counts items accepted with at least one enrichment defect.
	Degraded       int                `json:"degraded"`
	DefectsByStage map[item.Stage]int `json:"defects_by_stage,omitempty"`
	SkippedByKind  map[item.Kind]int  `json:"skipped_by_kind,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Duplicates is the total of duplicate products and banners.
func (s Summary) Duplicates() int {
	return s.DuplicateProducts + s.DuplicateBanners
}

// Fields renders the summary for a log entry.
func (s Summary) Fields() []logger.Field {
	fields := []logger.Field{
		logger.String("round_id", s.RoundID),
		logger.Int("round", s.Round),
		logger.String("outcome", string(s.Outcome)),
		logger.Int("attempts", s.Attempts),
		logger.Int("found", s.Found),
		logger.Int("available", s.Available),
		logger.Int("accepted_products", s.AcceptedProducts),
		logger.Int("accepted_banners", s.AcceptedBanners),
		logger.Int("duplicate_products", s.DuplicateProducts),
		logger.Int("duplicate_banners", s.DuplicateBanners),
		logger.Int("failed", s.Failed),
		logger.Int("degraded", s.Degraded),
		logger.Duration("duration", time.Duration(s.Duration)),
	}
	if s.Err != nil {
		fields = append(fields, logger.Error(s.Err))
	}
	return fields
}

// Duration marshals as a human-readable string such as "1.5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
