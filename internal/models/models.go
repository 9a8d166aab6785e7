package models

// State labels recorded with every history entry.
const (
	StateNormal   = "Normal"
	StateOverload = "Overload"
)

// TimestampLayout is the ISO-8601 form used for reading timestamps and history keys.
const TimestampLayout = "2006-01-02T15:04:05"

type Reading struct {
	Current   float64 `json:"irms"`
	Power     float64 `json:"power"`
	Timestamp string  `json:"timestamp"`
}

// RawRecord is a history entry as it sits in the store, keyed by its timestamp.
type RawRecord struct {
	Timestamp string  `json:"timestamp"`
	Current   float64 `json:"irms"`
	Power     float64 `json:"power"`
	State     string  `json:"state"`
}

type Threshold struct {
	Current   float64 `json:"current"`
	Power     float64 `json:"power"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

type DeviceClassification struct {
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type SensorStatus struct {
	ID         string               `json:"id"`
	Current    float64              `json:"irms"`
	Power      float64              `json:"power"`
	Timestamp  string               `json:"timestamp"`
	IsOverload bool                 `json:"is_overload"`
	Device     DeviceClassification `json:"device"`
	Threshold  Threshold            `json:"threshold"`
}

type SystemSnapshot struct {
	Sensors          []SensorStatus `json:"sensors"`
	Connected        bool           `json:"connected"`
	Message          string         `json:"message"`
	Timestamp        string         `json:"timestamp"`
	TotalConsumption float64        `json:"total_consumption"`
}

type HistoryRecord struct {
	Timestamp string               `json:"timestamp"`
	Current   float64              `json:"irms"`
	Power     float64              `json:"power"`
	State     string               `json:"state"`
	Device    DeviceClassification `json:"device"`
}

type AlertRecord struct {
	SensorID string `json:"sensor_id"`
	HistoryRecord
	Threshold Threshold `json:"threshold"`
}

type Statistics struct {
	TotalSensors       int            `json:"total_sensors"`
	ActiveSensors      int            `json:"active_sensors"`
	OverloadCount      int            `json:"overload_count"`
	TotalConsumption   float64        `json:"total_consumption"`
	DeviceDistribution map[string]int `json:"device_distribution"`
	Timestamp          string         `json:"timestamp"`
}
