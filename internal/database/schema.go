package database

// SQL schemas for all ClickHouse tables

const (
	// CalibratedStatesTableSQL creates the calibrated_states table.
	// One row per sensor survives merges; removed sensors keep a tombstone row.
	CalibratedStatesTableSQL = `
		CREATE TABLE IF NOT EXISTS calibrated_states (
			unique_id String,
			name String,
			state Nullable(Float64),
			unit_of_measurement String,
			device_class String,
			attributes String,
			updated_at DateTime64(3),
			removed Bool
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY unique_id
	`

	// CalibrationRegistryTableSQL creates the calibration_registry table
	CalibrationRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS calibration_registry (
			name String,
			unique_id String,
			source String,
			attribute String,
			degree UInt8,
			coefficients Array(Float64),
			precision UInt8,
			registered_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(registered_at)
		ORDER BY name
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		CalibratedStatesTableSQL,
		CalibrationRegistryTableSQL,
	}
}
