package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/pkg/jobs"
)

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func newUpdateRouter(queue *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/updates", NewUpdateHandler(queue).Receive)
	return router
}

func postUpdate(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/updates", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReceiveQueuesCallbackUpdate(t *testing.T) {
	queue := &fakeQueue{}
	router := newUpdateRouter(queue)

	rec := postUpdate(router, `{"operator_id": 100, "chat_id": 555, "message_id": 7, "callback": "attendance"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "update", queue.jobs[0].Type)

	upd, ok := queue.jobs[0].Payload.(dto.Update)
	require.True(t, ok)
	assert.Equal(t, int64(100), upd.OperatorID)
	assert.Equal(t, int64(555), upd.ChatID)
	assert.Equal(t, "attendance", upd.Callback)
}

func TestReceiveQueuesTextUpdate(t *testing.T) {
	queue := &fakeQueue{}
	router := newUpdateRouter(queue)

	rec := postUpdate(router, `{"operator_id": 100, "chat_id": 555, "text": "/start"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
}

func TestReceiveRejectsMalformedJSON(t *testing.T) {
	queue := &fakeQueue{}
	router := newUpdateRouter(queue)

	rec := postUpdate(router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestReceiveRejectsEmptyUpdate(t *testing.T) {
	queue := &fakeQueue{}
	router := newUpdateRouter(queue)

	rec := postUpdate(router, `{"operator_id": 100, "chat_id": 555}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "neither text nor callback")
	assert.Empty(t, queue.jobs)
}

func TestReceiveReportsQueueSaturation(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue full")}
	router := newUpdateRouter(queue)

	rec := postUpdate(router, `{"operator_id": 100, "chat_id": 555, "text": "/start"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
