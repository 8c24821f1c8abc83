// internal/notify/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/provider"
)

type fakeJobs struct {
	mu        sync.Mutex
	delivered []string
	failed    map[string]string
	retried   map[string]time.Time
	released  map[string]time.Time
	reaped    int64
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		failed:   map[string]string{},
		retried:  map[string]time.Time{},
		released: map[string]time.Time{},
	}
}

func (f *fakeJobs) ClaimDue(ctx context.Context, workerID string, limit int, now time.Time) ([]*models.NotificationJob, error) {
	return nil, nil
}

func (f *fakeJobs) Release(ctx context.Context, jobID string, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[jobID] = next
	return nil
}

func (f *fakeJobs) Retry(ctx context.Context, jobID string, next time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried[jobID] = next
	return nil
}

func (f *fakeJobs) MarkDelivered(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, jobID)
	return nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, jobID string, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = lastError
	return nil
}

func (f *fakeJobs) ReapStuck(ctx context.Context, ttl time.Duration, now time.Time) (int64, error) {
	return f.reaped, nil
}

type fakeAdapter struct {
	name      string
	channel   models.Channel
	messageID string
	err       error
}

func (f *fakeAdapter) Send(ctx context.Context, payload provider.Payload, cfg *models.ProviderConfig) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.messageID, nil
}
func (f *fakeAdapter) Channel() models.Channel { return f.channel }
func (f *fakeAdapter) Name() string            { return f.name }

type fakeRouting struct {
	adapter provider.NotificationProvider
	err     error
}

func (f *fakeRouting) Route(ctx context.Context, tenantID string, channel models.Channel) (provider.NotificationProvider, *models.ProviderConfig, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.adapter, &models.ProviderConfig{Provider: f.adapter.Name()}, nil
}

type fakePrefs struct {
	decision preference.Decision
}

func (f *fakePrefs) Check(ctx context.Context, tenantID, recipientID string, channel models.Channel, typeCode string, at time.Time) preference.Decision {
	return f.decision
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*models.DeliveryEvent
}

func (f *fakeRecorder) Record(ctx context.Context, ev *models.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func testJob(attempt int) *models.NotificationJob {
	return &models.NotificationJob{
		ID:            "job-1",
		TenantID:      "tenant-a",
		RecipientID:   "user-1",
		RecipientAddr: "ada@example.com",
		TypeCode:      "order_confirmed",
		Channel:       models.ChannelEmail,
		Status:        models.StatusSending,
		AttemptCount:  attempt,
		MaxAttempts:   4, // first attempt plus three retries
	}
}

func newDispatcher(jobs JobRepo, routing Routing, prefs PreferenceChecker, rec Recorder) *Dispatcher {
	return New(jobs, routing, prefs, rec,
		NewBackoff([]int{60000, 300000}, 0),
		Options{WorkerID: "worker-test", SendTimeout: time.Second, ClaimTTL: time.Minute},
		logger.NewNoOpLogger())
}

func TestProcess_Success(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	d := newDispatcher(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail, messageID: "msg-1"}},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec)

	d.Process(context.Background(), testJob(1))

	assert.Equal(t, []string{"job-1"}, jobs.delivered)
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.OutcomeSent, rec.events[0].Outcome)
	assert.Equal(t, "msg-1", rec.events[0].ProviderMessageID)
}

func TestProcess_TransientFailureSchedulesRetry(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	transient := commonerrors.NewTransientProviderError("ses_email", errors.New("throttled"))
	d := newDispatcher(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail, err: transient}},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec)

	before := time.Now()
	d.Process(context.Background(), testJob(1))

	next, ok := jobs.retried["job-1"]
	require.True(t, ok, "expected a retry to be scheduled")
	assert.WithinDuration(t, before.Add(time.Minute), next, 2*time.Second)
	assert.Empty(t, jobs.failed)
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.OutcomeFailed, rec.events[0].Outcome)
}

func TestProcess_TransientFailureAtMaxAttemptsFails(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	transient := commonerrors.NewTransientProviderError("ses_email", errors.New("throttled"))
	d := newDispatcher(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail, err: transient}},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec)

	d.Process(context.Background(), testJob(4)) // attempt 4 of 4, retries exhausted

	assert.Empty(t, jobs.retried)
	assert.Contains(t, jobs.failed, "job-1")
}

func TestProcess_RetryBudgetRunsFullBackoffLadder(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	transient := commonerrors.NewTransientProviderError("ses_email", errors.New("throttled"))
	d := New(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail, err: transient}},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec,
		NewBackoff([]int{60000, 300000, 1800000}, 0),
		Options{WorkerID: "worker-test", SendTimeout: time.Second},
		logger.NewNoOpLogger())
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	// With three retries configured the job survives failures 1-3, each
	// rescheduled one backoff step out, and only the 4th failure is terminal.
	var delays []time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		d.Process(context.Background(), testJob(attempt))
		if next, ok := jobs.retried["job-1"]; ok {
			delays = append(delays, next.Sub(fixed))
			delete(jobs.retried, "job-1")
		}
	}

	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}, delays)
	assert.Contains(t, jobs.failed, "job-1")
}

func TestProcess_PermanentFailureFailsImmediately(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	permanent := commonerrors.NewPermanentProviderError("ses_email", errors.New("address suppressed"))
	d := newDispatcher(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail, err: permanent}},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec)

	d.Process(context.Background(), testJob(1)) // first attempt, still fails for good

	assert.Empty(t, jobs.retried)
	assert.Contains(t, jobs.failed, "job-1")
}

func TestProcess_NoProviderConfiguredFails(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	d := newDispatcher(jobs,
		&fakeRouting{err: commonerrors.NewNoProviderConfiguredError("tenant-a", "email")},
		&fakePrefs{decision: preference.Decision{Allowed: true}}, rec)

	d.Process(context.Background(), testJob(1))

	assert.Empty(t, jobs.retried)
	assert.Contains(t, jobs.failed, "job-1")
}

// memQueue enforces the pending -> sending claim guard the way the SQL claim
// does, so concurrent pollers race over real claim semantics.
type memQueue struct {
	fakeJobs
	qmu     sync.Mutex
	pending []*models.NotificationJob
}

func (q *memQueue) ClaimDue(ctx context.Context, workerID string, limit int, now time.Time) ([]*models.NotificationJob, error) {
	q.qmu.Lock()
	defer q.qmu.Unlock()
	var out []*models.NotificationJob
	for _, job := range q.pending {
		if len(out) == limit {
			break
		}
		if job.Status != models.StatusPending {
			continue
		}
		job.Status = models.StatusSending
		job.AttemptCount++
		job.ClaimedBy = workerID
		out = append(out, job)
	}
	return out, nil
}

type countingAdapter struct {
	sends int32
}

func (c *countingAdapter) Send(ctx context.Context, payload provider.Payload, cfg *models.ProviderConfig) (string, error) {
	atomic.AddInt32(&c.sends, 1)
	return "msg-1", nil
}
func (c *countingAdapter) Channel() models.Channel { return models.ChannelEmail }
func (c *countingAdapter) Name() string            { return "ses_email" }

func TestPoll_ConcurrentClaimersSingleWinner(t *testing.T) {
	job := testJob(0)
	job.Status = models.StatusPending
	queue := &memQueue{
		fakeJobs: fakeJobs{
			failed:   map[string]string{},
			retried:  map[string]time.Time{},
			released: map[string]time.Time{},
		},
		pending: []*models.NotificationJob{job},
	}
	adapter := &countingAdapter{}
	rec := &fakeRecorder{}

	const claimers = 8
	dispatchers := make([]*Dispatcher, claimers)
	for i := range dispatchers {
		dispatchers[i] = New(queue,
			&fakeRouting{adapter: adapter},
			&fakePrefs{decision: preference.Decision{Allowed: true}}, rec,
			NewBackoff([]int{60000}, 0),
			Options{WorkerID: fmt.Sprintf("worker-%d", i), SendTimeout: time.Second},
			logger.NewNoOpLogger())
	}

	start := make(chan struct{})
	var polls sync.WaitGroup
	for _, d := range dispatchers {
		polls.Add(1)
		go func(d *Dispatcher) {
			defer polls.Done()
			<-start
			d.poll(context.Background())
		}(d)
	}
	close(start)
	polls.Wait()
	for _, d := range dispatchers {
		d.wg.Wait()
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&adapter.sends), "exactly one claimer may win the job")
	assert.Equal(t, []string{"job-1"}, queue.delivered)
	require.Len(t, rec.events, 1)
	assert.Equal(t, 1, job.AttemptCount)
}

func TestProcess_QuietHoursReleasesWithoutEvent(t *testing.T) {
	jobs := newFakeJobs()
	rec := &fakeRecorder{}
	resume := time.Now().Add(6 * time.Hour)
	d := newDispatcher(jobs,
		&fakeRouting{adapter: &fakeAdapter{name: "ses_email", channel: models.ChannelEmail}},
		&fakePrefs{decision: preference.Decision{Reason: models.ReasonQuietHours, ResumeAt: resume}}, rec)

	d.Process(context.Background(), testJob(1))

	got, ok := jobs.released["job-1"]
	require.True(t, ok, "expected quiet-hours release")
	assert.Equal(t, resume.Unix(), got.Unix())
	assert.Empty(t, jobs.delivered)
	assert.Empty(t, jobs.failed)
	assert.Empty(t, rec.events, "deferred attempt must not produce an event")
}
