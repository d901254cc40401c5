package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
)

func newTestRouter(t *testing.T) (*gin.Engine, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogrusLogger(logger.NewDefaultConfig())
	log.SetOutput(io.Discard)

	reg := registry.New(log, time.Minute)
	require.NoError(t, reg.Start(context.Background()))
	t.Cleanup(func() {
		reg.Stop(context.Background())
	})

	h := NewDeliveryHandler(reg, log)

	router := gin.New()
	router.POST("/api/v1/users/:userId/notifications", h.SendNotification)
	router.POST("/api/v1/users/:userId/uploads/:uploadId/progress", h.SendUploadProgress)
	router.POST("/api/v1/broadcast", h.Broadcast)

	return router, reg
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendNotification_NoLiveConnection(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/u2/notifications", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["delivered"])
	assert.Equal(t, "u2", resp["userId"])
}

func TestSendNotification_InvalidPayload(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/u1/notifications", `not-json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendUploadProgress_NoLiveConnection(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost,
		"/api/v1/users/u1/uploads/up-1/progress", `{"percent":50}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["delivered"])
	assert.Equal(t, "up-1", resp["uploadId"])
}

func TestBroadcast(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/broadcast",
		`{"channel":"system","message":{"text":"maintenance"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "broadcasted", resp["status"])
	assert.Equal(t, "system", resp["channel"])
}

func TestBroadcast_MissingChannel(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/broadcast", `{"message":{"text":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
