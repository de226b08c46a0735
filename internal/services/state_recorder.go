package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// StateRepository persists the latest state of each calibrated sensor
type StateRepository interface {
	SaveEntityState(state *models.EntityState) error
	DeleteEntityState(uniqueID string) error
}

// StateRecorderConfig holds configuration for the state recorder
type StateRecorderConfig struct {
	ChannelSize int
}

// DefaultStateRecorderConfig returns default configuration
func DefaultStateRecorderConfig() StateRecorderConfig {
	return StateRecorderConfig{
		ChannelSize: 100,
	}
}

type recordOp struct {
	state    *models.EntityState
	uniqueID string // set for deletes
}

// StateRecorder writes published states to a repository off the event path
type StateRecorder struct {
	repo   StateRepository
	logger logrus.FieldLogger

	// written by WriteState and DeleteState
	ops chan recordOp
}

// NewStateRecorder creates a new state recorder
func NewStateRecorder(repo StateRepository, config StateRecorderConfig, logger logrus.FieldLogger) *StateRecorder {
	return &StateRecorder{
		repo:   repo,
		logger: logger,
		ops:    make(chan recordOp, config.ChannelSize),
	}
}

// WriteState queues state for persisting; it never blocks the caller
func (r *StateRecorder) WriteState(state *models.EntityState) {
	if state == nil {
		return
	}
	r.enqueue(recordOp{state: state}, state.UniqueID)
}

// DeleteState queues a removal of a sensor's persisted state
func (r *StateRecorder) DeleteState(uniqueID string) {
	r.enqueue(recordOp{uniqueID: uniqueID}, uniqueID)
}

func (r *StateRecorder) enqueue(op recordOp, uniqueID string) {
	select {
	case r.ops <- op:
	default:
		r.logger.WithField("unique_id", uniqueID).Warn("StateRecorder: Channel full, dropping state")
	}
}

// Start persists queued states until the context is cancelled
func (r *StateRecorder) Start(ctx context.Context) {
	r.logger.Info("StateRecorder: Starting...")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("StateRecorder: Shutting down...")
			return
		case op, ok := <-r.ops:
			if !ok {
				return
			}
			r.process(op)
		}
	}
}

func (r *StateRecorder) process(op recordOp) {
	if op.state == nil {
		if err := r.repo.DeleteEntityState(op.uniqueID); err != nil {
			r.logger.WithField("unique_id", op.uniqueID).WithError(err).Error("Error deleting calibrated state")
		}
		return
	}

	if err := r.repo.SaveEntityState(op.state); err != nil {
		r.logger.WithField("unique_id", op.state.UniqueID).WithError(err).Error("Error saving calibrated state")
		return
	}
	r.logger.WithField("unique_id", op.state.UniqueID).Debug("Saved calibrated state")
}
