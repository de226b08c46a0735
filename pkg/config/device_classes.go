package config

// sensorDeviceClasses are the device classes a host accepts for numeric sensors
var sensorDeviceClasses = map[string]struct{}{
	"apparent_power":             {},
	"aqi":                        {},
	"atmospheric_pressure":       {},
	"battery":                    {},
	"carbon_dioxide":             {},
	"carbon_monoxide":            {},
	"current":                    {},
	"data_rate":                  {},
	"data_size":                  {},
	"distance":                   {},
	"duration":                   {},
	"energy":                     {},
	"frequency":                  {},
	"gas":                        {},
	"humidity":                   {},
	"illuminance":                {},
	"irradiance":                 {},
	"moisture":                   {},
	"monetary":                   {},
	"nitrogen_dioxide":           {},
	"nitrogen_monoxide":          {},
	"nitrous_oxide":              {},
	"ozone":                      {},
	"pm1":                        {},
	"pm10":                       {},
	"pm25":                       {},
	"power":                      {},
	"power_factor":               {},
	"precipitation":              {},
	"precipitation_intensity":    {},
	"pressure":                   {},
	"reactive_power":             {},
	"signal_strength":            {},
	"sound_pressure":             {},
	"speed":                      {},
	"sulphur_dioxide":            {},
	"temperature":                {},
	"volatile_organic_compounds": {},
	"voltage":                    {},
	"volume":                     {},
	"water":                      {},
	"weight":                     {},
	"wind_speed":                 {},
}

// IsSensorDeviceClass reports whether class is a known sensor device class
func IsSensorDeviceClass(class string) bool {
	_, ok := sensorDeviceClasses[class]
	return ok
}
