package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RezaEskandarii/quirrel/client"
	"github.com/RezaEskandarii/quirrel/internal/store/memory"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDeliverer struct{}

func (nopDeliverer) Deliver(context.Context, types.HTTPAction) error { return nil }

func newTestHandler(t *testing.T, passphrases ...string) (http.Handler, *memory.MemoryEnqueuedJobStore) {
	t.Helper()
	jobStore := memory.NewMemoryEnqueuedJobStore()
	cronStore := memory.NewMemoryCronJobStore(nopDeliverer{}, zerolog.Nop())
	t.Cleanup(func() { _ = cronStore.Close() })

	registry := client.NewRegistry(cronStore, jobStore, nopDeliverer{}, "admin-test", "")
	manager := client.NewJobManager(registry, "http://app", nil, zerolog.Nop())
	return NewRouteHandler(manager, jobStore, passphrases, ":0", zerolog.Nop()).Handler(), jobStore
}

func do(t *testing.T, h http.Handler, method, target, body string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if len(auth) > 0 {
		req.Header.Set("Authorization", "Bearer "+auth[0])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, "secret")
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	h, _ := newTestHandler(t, "one", "two")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/stats", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/stats", "", "two").Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.SetBasicAuth("ignored", "one")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnqueueGetInvokeDelete(t *testing.T) {
	h, jobStore := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/queues/email", `{"body":{"to":"x"},"id":"a","delay":"1h"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job types.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "a", job.ID)
	assert.Equal(t, "/email", job.Route)
	assert.Equal(t, "http://app/email", job.Endpoint)

	rec = do(t, h, http.MethodGet, "/queues/email/a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/queues/email", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page["totalItems"])
	assert.Nil(t, page["cron"])

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/queues/email/a", "").Code)
	stored, err := jobStore.FindByName(context.Background(), types.JobName("/email", "a"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.RunAt.After(job.RunAt))

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/queues/email/a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/queues/email/a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/queues/email/a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/queues/email/a", "").Code)
}

func TestEnqueueCronAndDeleteAll(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/queues/reports", `{"body":1,"repeat":{"cron":"0 * * * *"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/queues/reports/@cron", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/queues/reports", `{"body":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodDelete, "/queues", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":2}`, rec.Body.String())
}

func TestEnqueueValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/queues/email", `{"id":"no-body"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/queues/email", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/queues/email", `{"body":1,"delay":"1s","runAt":"2999-01-01T00:00:00Z"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/queues/email", `{"body":1,"retry":["1s"],"repeat":{"every":"1m"}}`).Code)
}
