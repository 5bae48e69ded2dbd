package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleharvest/internal/harvest"
	"saleharvest/internal/item"
)

func TestObserveRound(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveRound(harvest.Summary{
		Outcome:           harvest.OutcomeNewItems,
		Attempts:          2,
		Duration:          harvest.Duration(3 * time.Second),
		AcceptedProducts:  3,
		AcceptedBanners:   1,
		DuplicateProducts: 10,
		SkippedByKind:     map[item.Kind]int{item.KindBanner: 2},
		DefectsByStage:    map[item.Stage]int{item.StageOCR: 1},
	})

	assert.InDelta(t, 1, testutil.ToFloat64(r.Rounds.WithLabelValues("new_items")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.FetchAttempts), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(r.Accepted.WithLabelValues("product")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Accepted.WithLabelValues("banner")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(r.Duplicates.WithLabelValues("product")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.Skipped.WithLabelValues("banner")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Defects.WithLabelValues("ocr")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.RoundDuration))
}

func TestFailureStreakGauge(t *testing.T) {
	t.Parallel()

	r := New()
	failed := harvest.Summary{Outcome: harvest.OutcomeFailed, Attempts: 2}
	r.ObserveRound(failed)
	r.ObserveRound(failed)
	assert.InDelta(t, 2, testutil.ToFloat64(r.FailureStreak), 0)

	r.ObserveRound(failed)
	r.ObserveSustainedFailure(3)
	assert.InDelta(t, 3, testutil.ToFloat64(r.FailureStreak), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.SustainedFailure), 0)

	r.ObserveRound(harvest.Summary{Outcome: harvest.OutcomeNoNewItems, Attempts: 1})
	assert.InDelta(t, 0, testutil.ToFloat64(r.FailureStreak), 0)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveRound(harvest.Summary{Outcome: harvest.OutcomeNoNewItems, Attempts: 1})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `harvest_rounds_total{outcome="no_new_items"} 1`)
	assert.Contains(t, string(body), "harvest_round_duration_seconds_bucket")
}
