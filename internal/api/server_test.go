package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/event"
	"github.com/salio-edge/gateway/internal/health"
	"github.com/salio-edge/gateway/internal/session"
	"github.com/salio-edge/gateway/internal/timeutil"
)

type nopPublisher struct{}

func (nopPublisher) Publish(event.Event) {}

// newSessionServer wires the handlers to a real session manager over fake
// devices.
func newSessionServer(t *testing.T, lidarOK, rfidOK bool) (*Server, *device.Fake, *device.Fake) {
	t.Helper()
	lidar, rfid := device.NewFake(lidarOK), device.NewFake(rfidOK)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	m := session.NewManager(session.Config{Clock: clock},
		session.NewDeviceHandle(device.Rangefinder, "/dev/lidar", lidar),
		session.NewDeviceHandle(device.TagReader, "/dev/rfid", rfid),
		nopPublisher{})
	return NewServer(m, nil, "/api"), lidar, rfid
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusBeforeConnect(t *testing.T) {
	s, _, _ := newSessionServer(t, true, true)
	rec := do(t, s.ServeMux(), http.MethodGet, "/api/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"running":false,"lidarConnected":false,"rfidConnected":false,"tagCount":0,"lastUpdated":1700000000}`, rec.Body.String())
}

func TestConnectPartialSuccess(t *testing.T) {
	s, _, _ := newSessionServer(t, false, true)
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/connect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"lidar":false,"rfid":true}`, rec.Body.String())

	rec = do(t, mux, http.MethodGet, "/api/status")
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, true, st["running"])
	assert.Equal(t, false, st["lidarConnected"])
	assert.Equal(t, true, st["rfidConnected"])
}

func TestConnectBothFail(t *testing.T) {
	s, _, _ := newSessionServer(t, false, false)
	rec := do(t, s.ServeMux(), http.MethodPost, "/api/connect")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"lidar":false,"rfid":false}`, rec.Body.String())
}

func TestDisconnect(t *testing.T) {
	s, lidar, rfid := newSessionServer(t, true, true)
	mux := s.ServeMux()
	do(t, mux, http.MethodPost, "/api/connect")

	for i := 0; i < 2; i++ {
		rec := do(t, mux, http.MethodPost, "/api/disconnect")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	}
	assert.False(t, lidar.Connected())
	assert.False(t, rfid.Connected())
}

func TestStartScan(t *testing.T) {
	for _, path := range []string{"/api/escaneo", "/api/scan"} {
		t.Run(path, func(t *testing.T) {
			s, lidar, _ := newSessionServer(t, true, true)
			mux := s.ServeMux()

			rec := do(t, mux, http.MethodPost, path)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"success":false,"error":"not connected"}`, rec.Body.String())

			do(t, mux, http.MethodPost, "/api/connect")
			rec = do(t, mux, http.MethodPost, path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"success":true}`, rec.Body.String())
			assert.Equal(t, 1, lidar.Scans())
		})
	}
}

func TestStartScanDeviceFaultIs500(t *testing.T) {
	s, lidar, _ := newSessionServer(t, true, false)
	mux := s.ServeMux()
	do(t, mux, http.MethodPost, "/api/connect")
	lidar.SetScanError(errors.New("motor stalled"))

	rec := do(t, mux, http.MethodPost, "/api/escaneo")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"start lidar scan: motor stalled"}`, rec.Body.String())
}

// faultyController fails every operation with an unexpected error.
type faultyController struct{}

func (faultyController) Status() session.State { return session.State{} }
func (faultyController) Connect(context.Context) (session.ConnectResult, error) {
	return session.ConnectResult{}, errors.New("boom")
}
func (faultyController) Disconnect() error { return errors.New("boom") }
func (faultyController) StartScan() error  { return session.ErrClosed }

func TestInternalFaults(t *testing.T) {
	mux := NewServer(faultyController{}, nil, "api/").ServeMux()
	for _, path := range []string{"/api/connect", "/api/disconnect", "/api/escaneo"} {
		rec := do(t, mux, http.MethodPost, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"], path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newSessionServer(t, true, true)
	mux := s.ServeMux()

	tests := []struct {
		method, path, allow string
	}{
		{http.MethodPost, "/api/status", "GET"},
		{http.MethodGet, "/api/connect", "POST"},
		{http.MethodGet, "/api/disconnect", "POST"},
		{http.MethodGet, "/api/escaneo", "POST"},
		{http.MethodDelete, "/api/version", "GET"},
	}
	for _, tt := range tests {
		rec := do(t, mux, tt.method, tt.path)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, tt.path)
		assert.Equal(t, tt.allow, rec.Header().Get("Allow"), tt.path)
		assert.JSONEq(t, `{"success":false,"error":"method not allowed"}`, rec.Body.String())
	}
}

func TestCustomEndpoint(t *testing.T) {
	s := NewServer(faultyController{}, nil, "/v2/gateway/")
	assert.Equal(t, "/v2/gateway", s.Endpoint())
	rec := do(t, s.ServeMux(), http.MethodGet, "/v2/gateway/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "/api", NewServer(faultyController{}, nil, "").Endpoint())
}

func TestVersionAndHealth(t *testing.T) {
	withHealth := NewServer(faultyController{}, health.NewChecker(health.Probes{}, nil), "/api")
	mux := withHealth.ServeMux()

	rec := do(t, mux, http.MethodGet, "/api/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":`)

	rec = do(t, mux, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	noHealth := NewServer(faultyController{}, nil, "/api").ServeMux()
	assert.Equal(t, http.StatusNotFound, do(t, noHealth, http.MethodGet, "/api/health").Code)
}
