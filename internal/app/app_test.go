package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/alert-server/internal/config"
	"skywatch/alert-server/internal/hub"
	"skywatch/alert-server/internal/ingest"
	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/observability"
	"skywatch/alert-server/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "skywatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.InitSchema(context.Background()))

	metrics := observability.NewMetricsForTesting()
	h := hub.New(logger, metrics, nil)
	t.Cleanup(h.Close)

	cfg := config.Config{AllowOrigins: []string{"http://localhost:5173"}}

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		hub:      h,
		metrics:  metrics,
		pipeline: ingest.NewPipeline(st, h, metrics, logger),
	}
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitAlert(t *testing.T) {
	a := newTestApp(t)

	body := `{"lat": 48.85, "lng": 2.35, "type": "sos", "msg": "need help"}`
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var stored model.StoredAlert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "SOS", stored.Type)
	assert.Equal(t, "need help", stored.Message)
	assert.False(t, stored.Timestamp.IsZero())
}

func TestSubmitAlertInvalidCoordinates(t *testing.T) {
	a := newTestApp(t)

	body := `{"lat": "abc", "lng": 2.0}`
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid coordinates"}`, rec.Body.String())
}

func TestSubmitAlertMalformedBody(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader("{broken")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAlertMethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alert", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecentAlerts(t *testing.T) {
	a := newTestApp(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := a.store.InsertAlert(context.Background(), model.Alert{
			Type: model.TypeSOS, Message: "m", Latitude: 1, Longitude: 2,
			City: "Paris", Intensity: 1, Source: model.SourceStation,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var alerts []model.StoredAlert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, base.Add(2*time.Minute), alerts[0].Timestamp)
	assert.Equal(t, base.Add(time.Minute), alerts[1].Timestamp)
}

func TestRecentAlertsEmpty(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/alert", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
