package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/models"
)

type ClickHouseDB struct {
	conn   driver.Conn
	logger logrus.FieldLogger
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string, logger logrus.FieldLogger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithField("addr", addr).Info("Connected to ClickHouse")

	db := &ClickHouseDB{conn: conn, logger: logger}

	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema() error {
	ctx := context.Background()

	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("Database schema initialized successfully")
	return nil
}

// SaveEntityState records the latest published state of a calibrated sensor
func (db *ClickHouseDB) SaveEntityState(state *models.EntityState) error {
	ctx := context.Background()

	attributes, err := json.Marshal(state.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO calibrated_states (unique_id, name, state, unit_of_measurement, device_class, attributes, updated_at, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = db.conn.Exec(ctx, query,
		state.UniqueID,
		state.Name,
		state.State,
		state.Unit,
		state.DeviceClass,
		string(attributes),
		updatedAt,
		false,
	)

	if err != nil {
		return fmt.Errorf("failed to insert calibrated state: %w", err)
	}

	return nil
}

// DeleteEntityState writes a tombstone row for a removed sensor
func (db *ClickHouseDB) DeleteEntityState(uniqueID string) error {
	ctx := context.Background()

	query := `
		INSERT INTO calibrated_states (unique_id, name, state, unit_of_measurement, device_class, attributes, updated_at, removed)
		VALUES (?, '', NULL, '', '', '{}', ?, ?)
	`

	if err := db.conn.Exec(ctx, query, uniqueID, time.Now(), true); err != nil {
		return fmt.Errorf("failed to insert state tombstone: %w", err)
	}

	return nil
}

// GetEntityStates returns the latest state of every sensor that was not removed
func (db *ClickHouseDB) GetEntityStates() ([]*models.EntityState, error) {
	ctx := context.Background()

	query := `
		SELECT unique_id, name, state, unit_of_measurement, device_class, attributes, updated_at
		FROM calibrated_states FINAL
		WHERE NOT removed
		ORDER BY unique_id
	`

	rows, err := db.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrated states: %w", err)
	}
	defer rows.Close()

	var states []*models.EntityState
	for rows.Next() {
		var (
			state      models.EntityState
			attributes string
		)
		if err := rows.Scan(
			&state.UniqueID,
			&state.Name,
			&state.State,
			&state.Unit,
			&state.DeviceClass,
			&attributes,
			&state.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan calibrated state: %w", err)
		}
		if err := json.Unmarshal([]byte(attributes), &state.Attributes); err != nil {
			db.logger.WithField("unique_id", state.UniqueID).WithError(err).Warn("Discarding unreadable state attributes")
		}
		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calibrated states: %w", err)
	}
	return states, nil
}

// UpsertCalibration inserts or updates a fitted calibration in the registry
func (db *ClickHouseDB) UpsertCalibration(cal *calibration.Calibration) error {
	ctx := context.Background()

	query := `
		INSERT INTO calibration_registry (name, unique_id, source, attribute, degree, coefficients, precision, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		cal.Name,
		cal.UniqueID(),
		cal.Spec.Source,
		cal.Spec.Attribute,
		uint8(cal.Polynomial.Degree()),
		cal.Polynomial.Coefficients(),
		uint8(cal.Spec.Precision),
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert calibration %s: %w", cal.Name, err)
	}

	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
