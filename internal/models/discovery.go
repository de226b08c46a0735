package models

// DiscoveryDevice groups discovered entities under one device in the host UI
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// DiscoveryConfig is the MQTT discovery payload announcing a calibrated sensor
type DiscoveryConfig struct {
	UniqueID               string          `json:"unique_id"`
	Name                   string          `json:"name"`
	StateTopic             string          `json:"state_topic"`
	ValueTemplate          string          `json:"value_template"`
	JSONAttributesTopic    string          `json:"json_attributes_topic"`
	JSONAttributesTemplate string          `json:"json_attributes_template"`
	UnitOfMeasurement      string          `json:"unit_of_measurement,omitempty"`
	DeviceClass            string          `json:"device_class,omitempty"`
	StateClass             string          `json:"state_class,omitempty"`
	AvailabilityTopic      string          `json:"availability_topic,omitempty"`
	Device                 DiscoveryDevice `json:"device"`
}
