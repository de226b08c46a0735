package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/models"
	"github.com/lymanepp/ha-calibration/internal/services"
)

// SensorRegistry lists and removes the tracked calibrated sensors
type SensorRegistry interface {
	Sensors() []*calibration.Sensor
	RemoveSensor(uniqueID string) error
}

// StateReader gives access to the latest published states
type StateReader interface {
	Get(uniqueID string) (*models.EntityState, bool)
	List() []*models.EntityState
}

// CalibrationInfo describes a tracked sensor's fitted calibration
type CalibrationInfo struct {
	UniqueID        string    `json:"unique_id"`
	Name            string    `json:"name"`
	Source          string    `json:"source"`
	SourceAttribute string    `json:"source_attribute,omitempty"`
	Degree          int       `json:"degree"`
	Coefficients    []float64 `json:"coefficients"`
	Precision       int       `json:"precision"`
}

// Server exposes the calibrated sensors over HTTP
type Server struct {
	registry  SensorRegistry
	states    StateReader
	hub       *Hub
	connected func() bool // optional upstream health
	logger    logrus.FieldLogger
}

// NewServer creates an API server. connected may be nil.
func NewServer(registry SensorRegistry, states StateReader, hub *Hub, connected func() bool, logger logrus.FieldLogger) *Server {
	return &Server{
		registry:  registry,
		states:    states,
		hub:       hub,
		connected: connected,
		logger:    logger,
	}
}

// Routes builds the gin router
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(s.logger))

	router.GET("/healthz", s.getHealth)
	router.GET("/api/sensors", s.listSensors)
	router.GET("/api/sensors/:id", s.getSensor)
	router.DELETE("/api/sensors/:id", s.deleteSensor)
	router.GET("/api/calibrations", s.listCalibrations)
	router.GET("/ws", s.streamStates)

	return router
}

// Run serves on addr until the context is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP API: Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve HTTP API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API: %w", err)
	}
	s.logger.Info("HTTP API: Shutdown complete")
	return nil
}

func (s *Server) getHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"sensors": len(s.registry.Sensors()),
	}
	if s.hub != nil {
		body["websocket_clients"] = s.hub.ClientCount()
	}

	status := http.StatusOK
	if s.connected != nil {
		connected := s.connected()
		body["mqtt_connected"] = connected
		if !connected {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	c.IndentedJSON(status, body)
}

func (s *Server) listSensors(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.states.List())
}

func (s *Server) getSensor(c *gin.Context) {
	id := c.Param("id")
	state, ok := s.states.Get(id)
	if !ok {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("sensor %s not found", id)})
		return
	}
	c.IndentedJSON(http.StatusOK, state)
}

func (s *Server) deleteSensor(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.RemoveSensor(id); err != nil {
		if errors.Is(err, services.ErrSensorNotFound) {
			c.IndentedJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		_ = c.Error(err)
		return
	}

	s.logger.WithField("unique_id", id).Info("Removed sensor through API")
	c.Status(http.StatusNoContent)
}

func (s *Server) listCalibrations(c *gin.Context) {
	sensors := s.registry.Sensors()
	infos := make([]CalibrationInfo, 0, len(sensors))
	for _, sensor := range sensors {
		poly := sensor.Polynomial()
		infos = append(infos, CalibrationInfo{
			UniqueID:        sensor.UniqueID(),
			Name:            sensor.Name(),
			Source:          sensor.Source(),
			SourceAttribute: sensor.SourceAttribute(),
			Degree:          poly.Degree(),
			Coefficients:    poly.Coefficients(),
			Precision:       sensor.Precision(),
		})
	}
	c.IndentedJSON(http.StatusOK, infos)
}

func (s *Server) streamStates(c *gin.Context) {
	if s.hub == nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "websocket stream disabled"})
		return
	}
	s.hub.ServeWS(c.Writer, c.Request, s.states.List())
}
