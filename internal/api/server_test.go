package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/auth"
	"iot-monitor/internal/cache"
	"iot-monitor/internal/config"
	"iot-monitor/internal/models"
	"iot-monitor/internal/websocket"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sensorIDs = []string{"LAB-PC-01", "LAB-PC-02", "LAB-PC-03"}
	fixedNow  = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
)

type testServer struct {
	*Server
	store *cache.MemoryStore
	token string
}

// brokenThresholds fails every threshold write.
type brokenThresholds struct {
	*cache.MemoryStore
}

func (brokenThresholds) SetThreshold(context.Context, string, models.Threshold) error {
	return errors.New("store unavailable")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, thresholds analytics.ThresholdStore) *testServer {
	t.Helper()
	store := cache.NewMemoryStore()
	if thresholds == nil {
		thresholds = store
	}
	monitor := analytics.NewMonitor(store, thresholds, sensorIDs,
		models.Threshold{Current: 11.0, Power: 2420.0},
		analytics.WithClock(func() time.Time { return fixedNow }),
		analytics.WithLogger(discard()))

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: 5,
		Users:         []config.User{{Username: "admin", Password: "admin123"}},
	})
	require.NoError(t, err)
	token, err := manager.GenerateToken("admin")
	require.NoError(t, err)

	s := NewServer(monitor, manager, websocket.NewHub(discard()), Options{}, discard())
	return &testServer{Server: s, store: store, token: token}
}

func (ts *testServer) record(t *testing.T, id, timestamp string, current float64, state string) {
	t.Helper()
	require.NoError(t, ts.store.Record(context.Background(), id, models.Reading{
		Current:   current,
		Power:     current * 220,
		Timestamp: timestamp,
	}, state))
}

func (ts *testServer) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, serviceName, body["service"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	login := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := login(url.Values{"username": {"admin"}, "password": {"admin123"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])

	rec = login(url.Values{"username": {"admin"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = login(url.Values{"username": {"admin"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDataRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/data/current", "/api/data/alerts", "/api/data/statistics"} {
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCurrent(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.record(t, "LAB-PC-01", "2025-01-15T10:29:00", 12.0, models.StateOverload)
	ts.record(t, "LAB-PC-02", "2025-01-15T10:29:00", 0.5, models.StateNormal)

	rec := ts.do(http.MethodGet, "/api/data/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.SystemSnapshot
	decode(t, rec, &snapshot)
	assert.True(t, snapshot.Connected)
	require.Len(t, snapshot.Sensors, 3)
	assert.Equal(t, "LAB-PC-01", snapshot.Sensors[0].ID)
	assert.True(t, snapshot.Sensors[0].IsOverload)
	assert.Equal(t, "OVERLOAD", snapshot.Sensors[0].Device.Type)
	assert.Equal(t, "Phone charger", snapshot.Sensors[1].Device.Type)
	assert.Equal(t, 0.0, snapshot.Sensors[2].Current)
	assert.InDelta(t, 12.5*220, snapshot.TotalConsumption, 1e-9)
	assert.Equal(t, 11.0, snapshot.Sensors[2].Threshold.Current)
}

func TestCurrentEmptyStore(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/data/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.SystemSnapshot
	decode(t, rec, &snapshot)
	assert.False(t, snapshot.Connected)
	assert.Equal(t, "No devices connected", snapshot.Message)
	assert.Len(t, snapshot.Sensors, 3)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	for i, stamp := range []string{"2025-01-15T10:00:00", "2025-01-15T10:05:00", "2025-01-15T10:10:00"} {
		ts.record(t, "LAB-PC-01", stamp, float64(i)+1, models.StateNormal)
	}

	type response struct {
		SensorID string                 `json:"sensor_id"`
		Data     []models.HistoryRecord `json:"data"`
		Count    int                    `json:"count"`
	}

	rec := ts.do(http.MethodGet, "/api/data/history/LAB-PC-01?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body response
	decode(t, rec, &body)
	assert.Equal(t, "LAB-PC-01", body.SensorID)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "2025-01-15T10:05:00", body.Data[0].Timestamp)

	rec = ts.do(http.MethodGet, "/api/data/history/LAB-PC-01?limit=1&start_date=2025-01-15T10:00:00&end_date=2025-01-15T10:05:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = response{}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count, "a full range ignores limit")

	rec = ts.do(http.MethodGet, "/api/data/history/LAB-PC-01", nil)
	body = response{}
	decode(t, rec, &body)
	assert.Equal(t, 3, body.Count)

	rec = ts.do(http.MethodGet, "/api/data/history/LAB-PC-01?limit=many", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(http.MethodGet, "/api/data/history/NOPE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sensor_id":"NOPE","data":[],"count":0}`, rec.Body.String())
}

func TestAlerts(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.record(t, "LAB-PC-01", "2025-01-15T10:00:00", 12.0, models.StateOverload)
	ts.record(t, "LAB-PC-02", "2025-01-15T10:05:00", 11.5, models.StateOverload)
	ts.record(t, "LAB-PC-03", "2025-01-15T10:10:00", 1.0, models.StateNormal)

	rec := ts.do(http.MethodGet, "/api/data/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []models.AlertRecord `json:"data"`
		Count int                  `json:"count"`
	}
	decode(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "LAB-PC-02", body.Data[0].SensorID)
	assert.Equal(t, "LAB-PC-01", body.Data[1].SensorID)
	assert.Equal(t, 11.0, body.Data[0].Threshold.Current)

	rec = ts.do(http.MethodGet, "/api/data/alerts?start_date=2025-01-15T10:01:00", nil)
	body.Data = nil
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count)
}

func TestConnection(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/data/connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true,"message":"System operational"}`, rec.Body.String())
}

func TestThresholdUpdate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.record(t, "LAB-PC-02", "2025-01-15T10:29:00", 9.0, models.StateNormal)
	before := testutil.ToFloat64(thresholdUpdates.WithLabelValues("ok"))

	rec := ts.do(http.MethodPut, "/api/data/threshold/LAB-PC-02", strings.NewReader(`{"current": 8.5, "power": 1870}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Threshold updated for LAB-PC-02","threshold":{"current":8.5,"power":1870}}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(thresholdUpdates.WithLabelValues("ok")))

	rec = ts.do(http.MethodGet, "/api/data/current", nil)
	var snapshot models.SystemSnapshot
	decode(t, rec, &snapshot)
	assert.True(t, snapshot.Sensors[1].IsOverload, "9.0 A is above the new 8.5 A threshold")
	assert.Equal(t, 8.5, snapshot.Sensors[1].Threshold.Current)
}

func TestThresholdUpdateValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, body := range []string{`{"current": 8.5}`, `{"power": 100}`, `not json`, `{"current": "high", "power": 1}`} {
		rec := ts.do(http.MethodPut, "/api/data/threshold/LAB-PC-01", strings.NewReader(body))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
}

func TestThresholdUpdateStoreFailure(t *testing.T) {
	ts := newTestServer(t, brokenThresholds{cache.NewMemoryStore()})
	before := testutil.ToFloat64(storeErrors.WithLabelValues("threshold"))

	rec := ts.do(http.MethodPut, "/api/data/threshold/LAB-PC-01", strings.NewReader(`{"current": 8.5, "power": 1870}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"detail":"Error updating threshold"}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(storeErrors.WithLabelValues("threshold")))
}

func TestStatistics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.record(t, "LAB-PC-01", "2025-01-15T10:29:00", 12.0, models.StateOverload)
	ts.record(t, "LAB-PC-02", "2025-01-15T10:29:00", 0.5, models.StateNormal)

	rec := ts.do(http.MethodGet, "/api/data/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Statistics
	decode(t, rec, &stats)
	assert.Equal(t, 3, stats.TotalSensors)
	assert.Equal(t, 2, stats.ActiveSensors)
	assert.Equal(t, 1, stats.OverloadCount)
	assert.Equal(t, 1, stats.DeviceDistribution["OVERLOAD"])
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/data/export/csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.record(t, "LAB-PC-01", "2025-01-15T10:00:00", 12.0, models.StateOverload)
	ts.record(t, "LAB-PC-02", "2025-01-15T10:00:00", 0.5, models.StateNormal)

	rec = ts.do(http.MethodGet, "/api/data/export/csv?sensor_id=LAB-PC-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "iot_export_LAB-PC-01.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "LAB-PC-01,2025-01-15T10:00:00,12.000,2640.00,OVERLOAD,Overload", lines[1])

	rec = ts.do(http.MethodGet, "/api/data/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "iot_export_all.csv")
	assert.Len(t, strings.Split(strings.TrimSpace(rec.Body.String()), "\n"), 3)
}

func TestExportExcel(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/data/export/excel?sensor_id=LAB-PC-03", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.record(t, "LAB-PC-03", "2025-01-15T10:00:00", 3.0, models.StateNormal)
	rec = ts.do(http.MethodGet, "/api/data/export/excel?sensor_id=LAB-PC-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "iot_export_LAB-PC-03.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestPrometheusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodGet, "/api/data/current", nil)

	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{endpoint="/api/data/current",method="GET",status="200"}`)
	assert.Contains(t, rec.Body.String(), "total_consumption_watts")
}

func TestRequestsCountedByStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	notFound := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/data/export/csv", "404")
	before := testutil.ToFloat64(notFound)

	rec := ts.do(http.MethodGet, "/api/data/export/csv", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(notFound))
}

func TestQueryTokenOnlyOpensLiveFeed(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/data/current", "/api/data/history/LAB-PC-01", "/api/data/export/csv"} {
		rec := httptest.NewRecorder()
		ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path+"?token="+ts.token, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}
