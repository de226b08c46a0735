package models

// Point is one (x, y) calibration sample: x is the raw source reading, y the true value
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CalibrationSpec describes one source-to-calibrated-output mapping.
// Optional string fields are empty when not configured.
type CalibrationSpec struct {
	Source       string  `json:"source"`
	Attribute    string  `json:"attribute,omitempty"`
	Degree       int     `json:"degree"`
	Points       []Point `json:"data_points"`
	Precision    int     `json:"precision"`
	Unit         string  `json:"unit_of_measurement,omitempty"`
	DeviceClass  string  `json:"device_class,omitempty"`
	FriendlyName string  `json:"friendly_name,omitempty"`
	UniqueID     string  `json:"unique_id,omitempty"`
}
