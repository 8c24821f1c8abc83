// internal/notify/analytics/recorder.go
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/common/metrics"
	"pulss-notifications/internal/models"
)

// EventSink appends audit rows.
type EventSink interface {
	Append(ctx context.Context, ev *models.DeliveryEvent) error
}

// StatSink maintains the daily aggregates.
type StatSink interface {
	Increment(ctx context.Context, tenantID string, channel models.Channel, typeCode, day string, outcome models.Outcome) error
}

// Deduper is the Redis slice used for idempotency keys.
type Deduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Indexer mirrors events into the audit search index.
type Indexer interface {
	Index(ctx context.Context, index, docID string, body []byte) error
}

// Recorder is the single write path for delivery outcomes. Record is
// idempotent per (job, outcome): provider callbacks and dispatcher retries
// can both report the same outcome without double counting.
type Recorder struct {
	events    EventSink
	stats     StatSink
	dedupe    Deduper
	dedupeTTL time.Duration

	indexer Indexer // optional
	index   string

	log logger.Logger
}

func NewRecorder(events EventSink, stats StatSink, dedupe Deduper, dedupeTTL time.Duration, log logger.Logger) *Recorder {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &Recorder{
		events:    events,
		stats:     stats,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
		log:       log,
	}
}

// WithIndexer enables Elasticsearch mirroring for the admin audit search.
func (r *Recorder) WithIndexer(indexer Indexer, index string) *Recorder {
	r.indexer = indexer
	r.index = index
	return r
}

// Record persists one delivery outcome. Duplicate (job, outcome) pairs inside
// the dedupe window are dropped silently.
func (r *Recorder) Record(ctx context.Context, ev *models.DeliveryEvent) error {
	if !ev.Outcome.Valid() {
		return commonerrors.NewInvalidRequestError(fmt.Sprintf("unknown outcome %q", ev.Outcome))
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	key := dedupeKey(ev.JobID, ev.Outcome)
	fresh, err := r.dedupe.SetNX(ctx, key, 1, r.dedupeTTL)
	if err != nil {
		// Redis down must not lose the event; worst case is a double count
		// that the nightly reconciliation corrects.
		r.log.Warn("dedupe check unavailable", map[string]interface{}{
			"job_id": ev.JobID, "error": err.Error(),
		})
	} else if !fresh {
		r.log.Debug("duplicate outcome dropped", map[string]interface{}{
			"job_id": ev.JobID, "outcome": string(ev.Outcome),
		})
		return nil
	}

	if err := r.events.Append(ctx, ev); err != nil {
		return err
	}

	day := ev.OccurredAt.UTC().Format("2006-01-02")
	if err := r.stats.Increment(ctx, ev.TenantID, ev.Channel, ev.TypeCode, day, ev.Outcome); err != nil {
		// The audit row landed; aggregates catch up at reconciliation.
		r.log.Error("stats increment failed", map[string]interface{}{
			"job_id": ev.JobID, "error": err.Error(),
		})
	}

	metrics.EventsRecorded.WithLabelValues(string(ev.Channel), string(ev.Outcome)).Inc()
	r.indexEvent(ctx, ev)
	return nil
}

func (r *Recorder) indexEvent(ctx context.Context, ev *models.DeliveryEvent) {
	if r.indexer == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	docID := fmt.Sprintf("%s-%s", ev.JobID, ev.Outcome)
	if err := r.indexer.Index(ctx, r.index, docID, body); err != nil {
		r.log.Warn("audit index write failed", map[string]interface{}{
			"job_id": ev.JobID, "error": err.Error(),
		})
	}
}

func dedupeKey(jobID string, outcome models.Outcome) string {
	return fmt.Sprintf("notif:dedupe:%s:%s", jobID, outcome)
}
