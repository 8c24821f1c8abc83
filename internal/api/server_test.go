// internal/api/server_test.go
package api

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/analytics"
	"pulss-notifications/internal/notify/enqueue"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/render"
	"pulss-notifications/internal/store"
)

type memJobWriter struct{ jobs []*models.NotificationJob }

func (m *memJobWriter) Insert(ctx context.Context, job *models.NotificationJob) error {
	m.jobs = append(m.jobs, job)
	return nil
}

type noPrefs struct{}

func (noPrefs) Get(ctx context.Context, tenantID, recipientID string) (*models.RecipientPreference, error) {
	return nil, sql.ErrNoRows
}

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, tenantID, typeCode string, channel models.Channel, vars map[string]string) (*render.Rendered, error) {
	return &render.Rendered{Subject: "s", Body: "b"}, nil
}

type memStatSource struct{ rows []*models.StatRow }

func (m *memStatSource) Query(ctx context.Context, q models.StatsQuery) ([]*models.StatRow, error) {
	return m.rows, nil
}

type memSink struct{ events []*models.DeliveryEvent }

func (m *memSink) Append(ctx context.Context, ev *models.DeliveryEvent) error {
	m.events = append(m.events, ev)
	return nil
}

type memStatSink struct{ n int }

func (m *memStatSink) Increment(ctx context.Context, tenantID string, channel models.Channel, typeCode, day string, outcome models.Outcome) error {
	m.n++
	return nil
}

type memDedupe struct{ seen map[string]bool }

func (m *memDedupe) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func newTestServer(t *testing.T, db *sql.DB) (*Server, *memJobWriter, *memSink) {
	t.Helper()

	writer := &memJobWriter{}
	filter := preference.NewFilter(noPrefs{}, []string{"payment_failed"}, logger.NewNoOpLogger())
	pipeline, err := enqueue.NewPipeline(writer, filter, stubRenderer{}, enqueue.Options{MaxAttempts: 3}, logger.NewNoOpLogger())
	require.NoError(t, err)

	sink := &memSink{}
	recorder := analytics.NewRecorder(sink, &memStatSink{}, &memDedupe{}, time.Hour, logger.NewNoOpLogger())

	srv := NewServer(Deps{
		Pipeline: pipeline,
		Jobs:     store.NewJobStore(db),
		Events:   store.NewEventStore(db),
		Exporter: analytics.NewExporter(&memStatSource{rows: []*models.StatRow{
			{TenantID: "tenant-a", Channel: models.ChannelEmail, TypeCode: "order_confirmed", Day: "2026-08-25", Outcome: models.OutcomeSent, Count: 7},
		}}),
		Recorder:   recorder,
		Templates:  store.NewTemplateStore(db),
		Providers:  store.NewProviderStore(db),
		Prefs:      store.NewPreferenceStore(db),
		Log:        logger.NewNoOpLogger(),
		AdminToken: "platform-secret",
	})
	return srv, writer, sink
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

var tenantHeaders = map[string]string{"X-Tenant-ID": "tenant-a"}

func TestAPI_TenantHeaderRequired(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	srv, _, _ := newTestServer(t, db)

	w := doRequest(srv, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_EnqueueNotification(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	srv, writer, _ := newTestServer(t, db)

	body := `{"recipient_id":"user-1","recipient_type":"customer","type_code":"order_confirmed","channel":"email","variables":{"email":"ada@example.com"}}`
	w := doRequest(srv, http.MethodPost, "/api/v1/notifications", body, tenantHeaders)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, writer.jobs, 1)
	assert.Equal(t, "tenant-a", writer.jobs[0].TenantID)
	assert.Contains(t, w.Body.String(), `"job_id"`)
}

func TestAPI_EnqueueRejectsBadPayload(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	srv, writer, _ := newTestServer(t, db)

	w := doRequest(srv, http.MethodPost, "/api/v1/notifications",
		`{"recipient_type":"customer","type_code":"order_confirmed"}`, tenantHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, writer.jobs)
}

func TestAPI_CancelConflictWhenNotPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	srv, _, _ := newTestServer(t, db)

	// Cancel matches no rows, then the lookup shows the job already delivered.
	mock.ExpectExec(`UPDATE notification_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT[\s\S]*FROM notification_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "recipient_id", "recipient_type", "recipient_addr", "type_code", "channel",
			"rendered_subject", "rendered_body", "status", "attempt_count", "max_attempts",
			"next_attempt_at", "claimed_by", "claimed_at", "last_error", "cancel_reason",
			"created_at", "updated_at",
		}).AddRow("job-1", "tenant-a", "user-1", "customer", "ada@example.com", "order_confirmed", "email",
			"s", "b", "delivered", 1, 3, time.Now(), nil, nil, nil, nil, time.Now(), time.Now()))

	w := doRequest(srv, http.MethodDelete, "/api/v1/notifications/job-1", "", tenantHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_CallbackRecordsEvent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	srv, _, sink := newTestServer(t, db)

	mock.ExpectQuery(`SELECT[\s\S]*FROM notification_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "recipient_id", "recipient_type", "recipient_addr", "type_code", "channel",
			"rendered_subject", "rendered_body", "status", "attempt_count", "max_attempts",
			"next_attempt_at", "claimed_by", "claimed_at", "last_error", "cancel_reason",
			"created_at", "updated_at",
		}).AddRow("job-1", "tenant-a", "user-1", "customer", "ada@example.com", "order_confirmed", "email",
			"s", "b", "delivered", 1, 3, time.Now(), nil, nil, nil, nil, time.Now(), time.Now()))

	body := `{"job_id":"job-1","outcome":"opened","provider_message_id":"msg-9"}`
	w := doRequest(srv, http.MethodPost, "/api/v1/callbacks/ses", body, tenantHeaders)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, models.OutcomeOpened, sink.events[0].Outcome)
	assert.Equal(t, "ses", sink.events[0].Provider)
}

func TestAPI_CallbackRejectsUnknownOutcome(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	srv, _, sink := newTestServer(t, db)

	w := doRequest(srv, http.MethodPost, "/api/v1/callbacks/ses",
		`{"job_id":"job-1","outcome":"vanished"}`, tenantHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sink.events)
}

func TestAPI_AnalyticsExportCSV(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	srv, _, _ := newTestServer(t, db)

	w := doRequest(srv, http.MethodGet, "/api/v1/analytics/export?format=csv", "", tenantHeaders)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "day,channel,type_code,outcome,count")
	assert.Contains(t, w.Body.String(), "2026-08-25,email,order_confirmed,sent,7")
}

func TestAPI_PlatformRoutesNeedToken(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	srv, _, _ := newTestServer(t, db)

	body := `{"subject":"s","body":"b"}`
	w := doRequest(srv, http.MethodPut, "/api/v1/platform/templates/order_confirmed/email", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	mock.ExpectExec(`INSERT INTO notification_templates`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	w = doRequest(srv, http.MethodPut, "/api/v1/platform/templates/order_confirmed/email", body,
		map[string]string{"Authorization": "Bearer platform-secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}
