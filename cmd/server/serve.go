package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lymanepp/ha-calibration/internal/api"
	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/database"
	"github.com/lymanepp/ha-calibration/internal/events"
	"github.com/lymanepp/ha-calibration/internal/models"
	"github.com/lymanepp/ha-calibration/internal/mqtt"
	"github.com/lymanepp/ha-calibration/internal/services"
	"github.com/lymanepp/ha-calibration/internal/state"
	"github.com/lymanepp/ha-calibration/pkg/config"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the calibration service (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	logger := logrus.StandardLogger()
	logger.Info("Starting calibration service...")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	specs, err := config.LoadCalibrations(cfg.CalibrationFile)
	if err != nil {
		return err
	}
	calibrations := calibration.Setup(specs, logger)
	logger.WithField("calibrations", len(calibrations)).Info("Calibrations fitted")

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	start := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	// === State sinks ===
	store := state.NewStore()
	writers := state.Fanout{store}

	if cfg.ClickHouseEnabled {
		db, err := database.NewClickHouseDB(
			cfg.ClickHouseAddr,
			cfg.ClickHouseDB,
			cfg.ClickHouseUser,
			cfg.ClickHousePass,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize ClickHouse: %w", err)
		}
		defer db.Close()

		restoreStates(db, store, calibrations, logger)
		for _, cal := range calibrations {
			if err := db.UpsertCalibration(cal); err != nil {
				logger.WithField("calibration", cal.Name).WithError(err).Warn("Failed to register calibration")
			}
		}

		recorder := services.NewStateRecorder(db, services.DefaultStateRecorderConfig(), logger)
		start(recorder.Start)
		writers = append(writers, recorder)
	}

	// === MQTT ===
	logger.Info("Connecting to MQTT broker...")
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:            cfg.MQTTBroker,
		ClientID:          cfg.MQTTClientID,
		Username:          cfg.MQTTUsername,
		Password:          cfg.MQTTPassword,
		AvailabilityTopic: cfg.MQTTTopicAvailability,
	}, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
		StateTopic:        cfg.MQTTTopicCalibrated,
		DiscoveryPrefix:   cfg.DiscoveryPrefix,
		DiscoveryEnabled:  cfg.DiscoveryEnabled,
		AvailabilityTopic: cfg.MQTTTopicAvailability,
		DeviceName:        cfg.DeviceName,
		Retain:            cfg.MQTTRetain,
		QoS:               byte(cfg.MQTTQoS),
	}, logger)
	start(publisher.Start)
	writers = append(writers, publisher)

	var hub *api.Hub
	if cfg.HTTPEnabled {
		hub = api.NewHub(64, logger)
		writers = append(writers, hub)
	}

	// Upstream events: MQTT subscriber -> calibration service
	eventChan := make(chan *models.StateChangedEvent, services.DefaultCalibrationServiceConfig().EventChannelSize)
	subscriber := mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
		StateTopic: cfg.MQTTTopicState,
		QoS:        byte(cfg.MQTTQoS),
	}, eventChan, logger)
	mqttClient.OnConnect(subscriber.Resubscribe)

	// === Calibration service ===
	service := services.NewCalibrationService(
		events.NewDispatcher(),
		subscriber,
		publisher,
		writers,
		logger,
		services.DefaultCalibrationServiceConfig(),
	)
	service.EventChan = eventChan

	added := service.LoadCalibrations(calibrations)
	start(service.Start)

	// === HTTP API ===
	if cfg.HTTPEnabled {
		server := api.NewServer(service, store, hub, mqttClient.IsConnected, logger)
		start(func(ctx context.Context) {
			if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
				logger.WithError(err).Error("HTTP API stopped")
			}
		})
	}

	logger.WithFields(logrus.Fields{
		"sensors":           added,
		"state_topic":       cfg.MQTTTopicState,
		"calibrated_topic":  cfg.MQTTTopicCalibrated,
		"discovery_enabled": cfg.DiscoveryEnabled,
		"clickhouse":        cfg.ClickHouseEnabled,
	}).Info("Calibration service is running")

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping services...")
	wg.Wait()

	logger.Info("Shutdown complete")
	return nil
}

// stateSource reads persisted calibrated states; removed sensors are not returned
type stateSource interface {
	GetEntityStates() ([]*models.EntityState, error)
}

// restoreStates seeds the store with the persisted states of sensors that are still
// configured and returns how many were restored. A read failure only logs.
func restoreStates(db stateSource, store *state.Store, calibrations map[string]*calibration.Calibration, logger logrus.FieldLogger) int {
	configured := make(map[string]struct{}, len(calibrations))
	for _, cal := range calibrations {
		configured[cal.UniqueID()] = struct{}{}
	}

	states, err := db.GetEntityStates()
	if err != nil {
		logger.WithError(err).Warn("Failed to restore calibrated states")
		return 0
	}

	restored := 0
	for _, st := range states {
		if _, ok := configured[st.UniqueID]; ok {
			store.WriteState(st)
			restored++
		}
	}
	logger.WithField("states", restored).Info("Restored calibrated states")
	return restored
}
