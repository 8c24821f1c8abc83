// internal/notify/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"time"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/common/metrics"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/provider"
)

// JobRepo is the slice of the job store the dispatcher needs.
type JobRepo interface {
	ClaimDue(ctx context.Context, workerID string, limit int, now time.Time) ([]*models.NotificationJob, error)
	Release(ctx context.Context, jobID string, nextAttemptAt time.Time) error
	Retry(ctx context.Context, jobID string, nextAttemptAt time.Time, lastError string) error
	MarkDelivered(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, lastError string) error
	ReapStuck(ctx context.Context, claimTTL time.Duration, now time.Time) (int64, error)
}

// Routing resolves the provider adapter for a send.
type Routing interface {
	Route(ctx context.Context, tenantID string, channel models.Channel) (provider.NotificationProvider, *models.ProviderConfig, error)
}

// PreferenceChecker re-checks quiet hours at dispatch time; settings may have
// changed since enqueue.
type PreferenceChecker interface {
	Check(ctx context.Context, tenantID, recipientID string, channel models.Channel, typeCode string, at time.Time) preference.Decision
}

// Recorder receives one DeliveryEvent per attempt outcome.
type Recorder interface {
	Record(ctx context.Context, ev *models.DeliveryEvent) error
}

// DeliveryObserver mirrors attempt outcomes into the OTel meter.
type DeliveryObserver interface {
	RecordDelivery(ctx context.Context, channel, outcome string, duration time.Duration)
}

// Options tune one dispatcher instance.
type Options struct {
	WorkerID     string
	PollInterval time.Duration
	BatchSize    int
	MaxInFlight  int
	SendTimeout  time.Duration
	ClaimTTL     time.Duration
}

// Dispatcher claims due jobs and drives each through one delivery attempt.
// At-most-one attempt per job is guaranteed by the claim's status guard, not
// by anything in process memory.
type Dispatcher struct {
	jobs     JobRepo
	router   Routing
	prefs    PreferenceChecker
	recorder Recorder
	backoff  *Backoff
	opts     Options
	log      logger.Logger

	obs DeliveryObserver // optional

	sem chan struct{}
	wg  sync.WaitGroup
	now func() time.Time
}

func New(jobs JobRepo, router Routing, prefs PreferenceChecker, recorder Recorder, backoff *Backoff, opts Options, log logger.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		jobs:     jobs,
		router:   router,
		prefs:    prefs,
		recorder: recorder,
		backoff:  backoff,
		opts:     opts,
		log:      log,
		sem:      make(chan struct{}, opts.MaxInFlight),
		now:      time.Now,
	}
}

// WithObserver enables OTel delivery metrics.
func (d *Dispatcher) WithObserver(obs DeliveryObserver) *Dispatcher {
	d.obs = obs
	return d
}

// Run polls for due jobs until ctx is cancelled, then waits for in-flight
// attempts to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started", map[string]interface{}{
		"worker_id":     d.opts.WorkerID,
		"poll_interval": d.opts.PollInterval.String(),
		"batch_size":    d.opts.BatchSize,
		"max_in_flight": d.opts.MaxInFlight,
	})

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.log.Info("dispatcher stopped", map[string]interface{}{"worker_id": d.opts.WorkerID})
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	jobs, err := d.jobs.ClaimDue(ctx, d.opts.WorkerID, d.opts.BatchSize, d.now())
	if err != nil {
		d.log.Error("claim failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, job := range jobs {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			// Shutdown mid-batch: unprocessed claims go back via the reaper.
			return
		}
		d.wg.Add(1)
		metrics.JobsInFlight.Inc()

		go func(job *models.NotificationJob) {
			defer func() {
				<-d.sem
				metrics.JobsInFlight.Dec()
				d.wg.Done()
			}()
			d.Process(ctx, job)
		}(job)
	}
}

// Process runs one delivery attempt for a claimed job.
func (d *Dispatcher) Process(ctx context.Context, job *models.NotificationJob) {
	now := d.now()

	// Preferences may have changed since enqueue; a quiet-hours hit here
	// defers without consuming the attempt.
	decision := d.prefs.Check(ctx, job.TenantID, job.RecipientID, job.Channel, job.TypeCode, now)
	if !decision.Allowed && decision.Reason == models.ReasonQuietHours {
		if err := d.jobs.Release(ctx, job.ID, decision.ResumeAt); err != nil {
			d.log.Error("release for quiet hours failed", map[string]interface{}{
				"job_id": job.ID, "error": err.Error(),
			})
		}
		return
	}

	adapter, cfg, err := d.router.Route(ctx, job.TenantID, job.Channel)
	if err != nil {
		d.conclude(ctx, job, "", "", err, time.Duration(0))
		return
	}

	payload := provider.Payload{
		JobID:       job.ID,
		TenantID:    job.TenantID,
		RecipientID: job.RecipientID,
		To:          job.RecipientAddr,
		TypeCode:    job.TypeCode,
		Channel:     job.Channel,
		Subject:     job.RenderedSubject,
		Body:        job.RenderedBody,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	start := d.now()
	messageID, err := adapter.Send(sendCtx, payload, cfg)
	cancel()

	d.conclude(ctx, job, adapter.Name(), messageID, err, d.now().Sub(start))
}

// conclude applies the state machine outcome of one attempt and records it.
func (d *Dispatcher) conclude(ctx context.Context, job *models.NotificationJob, providerName, messageID string, sendErr error, took time.Duration) {
	if providerName != "" {
		metrics.DeliveryDuration.WithLabelValues(string(job.Channel), providerName).Observe(took.Seconds())
	}
	if d.obs != nil {
		outcome := string(models.OutcomeSent)
		if sendErr != nil {
			outcome = string(models.OutcomeFailed)
		}
		d.obs.RecordDelivery(ctx, string(job.Channel), outcome, took)
	}

	if sendErr == nil {
		if err := d.jobs.MarkDelivered(ctx, job.ID); err != nil {
			d.log.Error("mark delivered failed", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
			return
		}
		metrics.JobsDelivered.WithLabelValues(job.TenantID, string(job.Channel)).Inc()
		metrics.DeliveryAttempts.WithLabelValues(string(job.Channel), providerName, string(models.OutcomeSent)).Inc()
		d.record(ctx, job, models.OutcomeSent, providerName, messageID, "")
		d.log.Info("job delivered", map[string]interface{}{
			"job_id":   job.ID,
			"tenant_id": job.TenantID,
			"channel":  string(job.Channel),
			"provider": providerName,
			"attempt":  job.AttemptCount,
		})
		return
	}

	code := commonerrors.CodeOf(sendErr)
	retryable := commonerrors.IsRetryable(sendErr) && job.AttemptCount < job.MaxAttempts

	if retryable {
		delay := d.backoff.Delay(job.AttemptCount)
		next := d.now().Add(delay)
		if err := d.jobs.Retry(ctx, job.ID, next, sendErr.Error()); err != nil {
			d.log.Error("schedule retry failed", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
			return
		}
		metrics.DeliveryAttempts.WithLabelValues(string(job.Channel), providerName, string(models.OutcomeFailed)).Inc()
		d.record(ctx, job, models.OutcomeFailed, providerName, messageID, sendErr.Error())
		d.log.Warn("attempt failed, retry scheduled", map[string]interface{}{
			"job_id":  job.ID,
			"attempt": job.AttemptCount,
			"max":     job.MaxAttempts,
			"next_at": next.Format(time.RFC3339),
			"error":   sendErr.Error(),
		})
		return
	}

	if err := d.jobs.MarkFailed(ctx, job.ID, sendErr.Error()); err != nil {
		d.log.Error("mark failed failed", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
		return
	}
	metrics.JobsFailed.WithLabelValues(job.TenantID, string(job.Channel), string(code)).Inc()
	metrics.DeliveryAttempts.WithLabelValues(string(job.Channel), providerName, string(models.OutcomeFailed)).Inc()
	d.record(ctx, job, models.OutcomeFailed, providerName, messageID, sendErr.Error())

	fields := map[string]interface{}{
		"job_id":    job.ID,
		"tenant_id": job.TenantID,
		"channel":   string(job.Channel),
		"attempt":   job.AttemptCount,
		"code":      string(code),
		"error":     sendErr.Error(),
	}
	if commonerrors.IsConfigError(sendErr) {
		// Surfaced to tenant admins through the audit view.
		d.log.Error("job failed on configuration error", fields)
	} else {
		d.log.Warn("job failed permanently", fields)
	}
}

func (d *Dispatcher) record(ctx context.Context, job *models.NotificationJob, outcome models.Outcome, providerName, messageID, detail string) {
	ev := &models.DeliveryEvent{
		JobID:             job.ID,
		TenantID:          job.TenantID,
		Channel:           job.Channel,
		TypeCode:          job.TypeCode,
		Outcome:           outcome,
		Provider:          providerName,
		ProviderMessageID: messageID,
		ProviderResponse:  detail,
		OccurredAt:        d.now(),
	}
	if err := d.recorder.Record(ctx, ev); err != nil {
		d.log.Error("record delivery event failed", map[string]interface{}{
			"job_id": job.ID, "outcome": string(outcome), "error": err.Error(),
		})
	}
}

// Reap requeues jobs whose claim expired (crashed worker).
func (d *Dispatcher) Reap(ctx context.Context) {
	n, err := d.jobs.ReapStuck(ctx, d.opts.ClaimTTL, d.now())
	if err != nil {
		d.log.Error("reap failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		d.log.Warn("requeued stuck jobs", map[string]interface{}{"count": n})
	}
}
