package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/models"
	"github.com/lymanepp/ha-calibration/internal/services"
	"github.com/lymanepp/ha-calibration/internal/state"
)

type fakeRegistry struct {
	sensors []*calibration.Sensor
	removed []string
}

func (r *fakeRegistry) Sensors() []*calibration.Sensor { return r.sensors }

func (r *fakeRegistry) RemoveSensor(uniqueID string) error {
	for i, s := range r.sensors {
		if s.UniqueID() == uniqueID {
			r.sensors = append(r.sensors[:i], r.sensors[i+1:]...)
			r.removed = append(r.removed, uniqueID)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", services.ErrSensorNotFound, uniqueID)
}

type apiFixture struct {
	registry *fakeRegistry
	store    *state.Store
	hub      *Hub
	server   *Server
}

func newAPIFixture(connected func() bool) *apiFixture {
	logger, _ := test.NewNullLogger()
	store := state.NewStore()
	hub := NewHub(8, logger)

	sensor := calibration.NewSensor(calibration.SensorConfig{
		UniqueID:   "fixed_temp",
		Name:       "Fixed Temp",
		Source:     "sensor.raw",
		Attribute:  "voltage",
		Precision:  1,
		Polynomial: calibration.NewPolynomial(2, 1),
	}, state.Fanout{store, hub}, logger)
	sensor.HandleEvent(&models.StateChangedEvent{
		EntityID: "sensor.raw",
		NewState: &models.State{State: "on", Attributes: map[string]interface{}{"voltage": 1.5}},
	})

	registry := &fakeRegistry{sensors: []*calibration.Sensor{sensor}}
	return &apiFixture{
		registry: registry,
		store:    store,
		hub:      hub,
		server:   NewServer(registry, store, hub, connected, logger),
	}
}

func (f *apiFixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.server.Routes().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(func() bool { return true })
	w := f.do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["sensors"])
	assert.Equal(t, true, body["mqtt_connected"])

	f = newAPIFixture(func() bool { return false })
	w = f.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetSensors(t *testing.T) {
	f := newAPIFixture(nil)

	w := f.do(http.MethodGet, "/api/sensors")
	require.Equal(t, http.StatusOK, w.Code)
	var states []models.EntityState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, "fixed_temp", states[0].UniqueID)
	require.NotNil(t, states[0].State)
	assert.Equal(t, 4.0, *states[0].State)

	w = f.do(http.MethodGet, "/api/sensors/fixed_temp")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source_attribute": "voltage"`)

	w = f.do(http.MethodGet, "/api/sensors/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSensor(t *testing.T) {
	f := newAPIFixture(nil)

	w := f.do(http.MethodDelete, "/api/sensors/fixed_temp")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"fixed_temp"}, f.registry.removed)

	w = f.do(http.MethodDelete, "/api/sensors/fixed_temp")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCalibrations(t *testing.T) {
	f := newAPIFixture(nil)

	w := f.do(http.MethodGet, "/api/calibrations")
	require.Equal(t, http.StatusOK, w.Code)

	var infos []CalibrationInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, CalibrationInfo{
		UniqueID:        "fixed_temp",
		Name:            "Fixed Temp",
		Source:          "sensor.raw",
		SourceAttribute: "voltage",
		Degree:          1,
		Coefficients:    []float64{2, 1},
		Precision:       1,
	}, infos[0])
}

func TestWebSocketStreamsStates(t *testing.T) {
	f := newAPIFixture(nil)
	srv := httptest.NewServer(f.server.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// current states first
	var initial models.EntityState
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "fixed_temp", initial.UniqueID)

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	value := 7.5
	f.hub.WriteState(&models.EntityState{UniqueID: "fixed_temp", State: &value})

	var update models.EntityState
	require.NoError(t, conn.ReadJSON(&update))
	require.NotNil(t, update.State)
	assert.Equal(t, 7.5, *update.State)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
