// internal/notify/enqueue/enqueue.go
package enqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/common/metrics"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/render"
)

// requestSchema validates the trigger payload before anything is persisted.
const requestSchema = `{
	"type": "object",
	"required": ["recipient_id", "recipient_type", "type_code"],
	"properties": {
		"recipient_id":   {"type": "string", "minLength": 1},
		"recipient_type": {"type": "string", "enum": ["customer", "admin"]},
		"type_code":      {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_]+$"},
		"channel":        {"type": "string", "enum": ["email", "sms", "push", "webhook", ""]},
		"variables": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

// Request is one notification trigger.
type Request struct {
	TenantID      string            `json:"-"`
	RecipientID   string            `json:"recipient_id"`
	RecipientType string            `json:"recipient_type"`
	TypeCode      string            `json:"type_code"`
	Channel       models.Channel    `json:"channel,omitempty"` // optional override
	Variables     map[string]string `json:"variables,omitempty"`
}

// Result reports what the pipeline decided. Delivery itself is asynchronous;
// a cancelled or failed status here means the job will never be attempted.
type Result struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// JobWriter persists new jobs.
type JobWriter interface {
	Insert(ctx context.Context, job *models.NotificationJob) error
}

// Renderer produces the channel payload.
type Renderer interface {
	Render(ctx context.Context, tenantID, typeCode string, channel models.Channel, vars map[string]string) (*render.Rendered, error)
}

// Options tune the pipeline.
type Options struct {
	MaxAttempts  int
	TypeChannels map[string]string // type_code -> default channel
}

// Pipeline validates, filters, renders and persists one notification per
// request. It never calls a provider; the dispatcher picks the job up
// asynchronously.
type Pipeline struct {
	jobs     JobWriter
	prefs    *preference.Filter
	renderer Renderer
	schema   *gojsonschema.Schema
	opts     Options
	log      logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewPipeline(jobs JobWriter, prefs *preference.Filter, renderer Renderer, opts Options, log logger.Logger) (*Pipeline, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4 // first attempt plus three retries
	}
	return &Pipeline{
		jobs:     jobs,
		prefs:    prefs,
		renderer: renderer,
		schema:   schema,
		opts:     opts,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// Enqueue runs the pipeline and returns the job id immediately.
func (p *Pipeline) Enqueue(ctx context.Context, req Request) (*Result, error) {
	if req.TenantID == "" {
		return nil, commonerrors.NewInvalidRequestError("tenant id required")
	}
	if err := p.validate(req); err != nil {
		return nil, err
	}

	channel := p.resolveChannel(req)
	now := p.now().UTC()

	job := &models.NotificationJob{
		ID:            p.newID(),
		TenantID:      req.TenantID,
		RecipientID:   req.RecipientID,
		RecipientType: req.RecipientType,
		RecipientAddr: resolveAddress(channel, req),
		TypeCode:      req.TypeCode,
		Channel:       channel,
		Status:        models.StatusPending,
		MaxAttempts:   p.opts.MaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	decision := p.prefs.Check(ctx, req.TenantID, req.RecipientID, channel, req.TypeCode, now)
	switch {
	case decision.Allowed:
	case decision.Reason == models.ReasonQuietHours:
		// Deferred, not dropped: delivery resumes when the window ends.
		job.NextAttemptAt = decision.ResumeAt
	default:
		job.Status = models.StatusCancelled
		job.CancelReason = decision.Reason
		if err := p.jobs.Insert(ctx, job); err != nil {
			return nil, err
		}
		metrics.JobsCancelled.WithLabelValues(req.TenantID, string(channel), decision.Reason).Inc()
		p.log.Info("notification denied by preferences", map[string]interface{}{
			"job_id":       job.ID,
			"tenant_id":    req.TenantID,
			"recipient_id": req.RecipientID,
			"channel":      string(channel),
			"reason":       decision.Reason,
		})
		return &Result{JobID: job.ID, Status: job.Status, Reason: decision.Reason}, nil
	}

	rendered, err := p.renderer.Render(ctx, req.TenantID, req.TypeCode, channel, req.Variables)
	if err != nil {
		if commonerrors.CodeOf(err) == commonerrors.ErrCodeTemplateMissing {
			// Configuration error: persist as failed so tenant admins see it
			// in the audit view, never retried.
			job.Status = models.StatusFailed
			job.LastError = err.Error()
			if insertErr := p.jobs.Insert(ctx, job); insertErr != nil {
				return nil, insertErr
			}
			metrics.JobsFailed.WithLabelValues(req.TenantID, string(channel), string(commonerrors.ErrCodeTemplateMissing)).Inc()
			p.log.Error("template missing", map[string]interface{}{
				"job_id":    job.ID,
				"tenant_id": req.TenantID,
				"type_code": req.TypeCode,
				"channel":   string(channel),
			})
			return &Result{JobID: job.ID, Status: job.Status, Reason: string(commonerrors.ErrCodeTemplateMissing)}, nil
		}
		return nil, err
	}

	job.RenderedSubject = rendered.Subject
	job.RenderedBody = rendered.Body

	if err := p.jobs.Insert(ctx, job); err != nil {
		return nil, err
	}
	metrics.JobsEnqueued.WithLabelValues(req.TenantID, string(channel), req.TypeCode).Inc()
	p.log.Info("notification enqueued", map[string]interface{}{
		"job_id":       job.ID,
		"tenant_id":    req.TenantID,
		"recipient_id": req.RecipientID,
		"type_code":    req.TypeCode,
		"channel":      string(channel),
		"next_at":      job.NextAttemptAt.Format(time.RFC3339),
	})
	return &Result{JobID: job.ID, Status: job.Status}, nil
}

func (p *Pipeline) validate(req Request) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return commonerrors.NewInvalidRequestError(err.Error())
	}
	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return commonerrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid() {
		return commonerrors.NewInvalidRequestError(fmt.Sprintf("%v", result.Errors()))
	}
	return nil
}

func (p *Pipeline) resolveChannel(req Request) models.Channel {
	if req.Channel != "" {
		return req.Channel
	}
	if c, ok := p.opts.TypeChannels[req.TypeCode]; ok {
		return models.Channel(c)
	}
	return models.ChannelEmail
}

// resolveAddress picks the channel address from well-known variables, falling
// back to the recipient id for deployments that key addresses by user id.
func resolveAddress(channel models.Channel, req Request) string {
	var keys []string
	switch channel {
	case models.ChannelEmail:
		keys = []string{"email"}
	case models.ChannelSMS:
		keys = []string{"phone"}
	case models.ChannelPush:
		keys = []string{"device_arn"}
	case models.ChannelWebhook:
		keys = []string{"webhook_url"}
	}
	for _, k := range keys {
		if v := req.Variables[k]; v != "" {
			return v
		}
	}
	return req.RecipientID
}
