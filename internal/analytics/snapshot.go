package analytics

import (
	"fmt"
	"time"

	"iot-monitor/internal/models"
)

const (
	MessageConnected    = "System active"
	MessageDisconnected = "No devices connected"
)

// Aggregate builds a system snapshot for the fixed, ordered sensor set. Sensors missing from readings are
// reported with zero values; only present sensors count towards the total and the connected flag.
func Aggregate(ids []string, readings map[string]models.Reading, thresholds map[string]models.Threshold, now time.Time) models.SystemSnapshot {
	snapshot := models.SystemSnapshot{
		Sensors:   make([]models.SensorStatus, 0, len(ids)),
		Timestamp: now.Format(models.TimestampLayout),
	}

	for _, id := range ids {
		threshold := thresholds[id]
		reading, ok := readings[id]
		if !ok {
			snapshot.Sensors = append(snapshot.Sensors, zeroStatus(id, threshold))
			continue
		}

		snapshot.Sensors = append(snapshot.Sensors, models.SensorStatus{
			ID:         id,
			Current:    reading.Current,
			Power:      reading.Power,
			Timestamp:  reading.Timestamp,
			IsOverload: IsOverload(reading.Current, threshold),
			Device:     Classify(reading.Current, threshold.Current),
			Threshold:  threshold,
		})
		snapshot.TotalConsumption += reading.Power
		snapshot.Connected = true
	}

	if snapshot.Connected {
		snapshot.Message = MessageConnected
	} else {
		snapshot.Message = MessageDisconnected
	}
	return snapshot
}

// Degraded is the snapshot served when the reading source cannot be reached at all.
func Degraded(ids []string, thresholds map[string]models.Threshold, cause error, now time.Time) models.SystemSnapshot {
	snapshot := models.SystemSnapshot{
		Sensors:   make([]models.SensorStatus, 0, len(ids)),
		Message:   fmt.Sprintf("Connection error: %v", cause),
		Timestamp: now.Format(models.TimestampLayout),
	}
	for _, id := range ids {
		snapshot.Sensors = append(snapshot.Sensors, zeroStatus(id, thresholds[id]))
	}
	return snapshot
}

func zeroStatus(id string, threshold models.Threshold) models.SensorStatus {
	return models.SensorStatus{
		ID:         id,
		IsOverload: IsOverload(0, threshold),
		Device:     Classify(0, threshold.Current),
		Threshold:  threshold,
	}
}

// Summarize derives dashboard counters from a snapshot.
func Summarize(snapshot models.SystemSnapshot) models.Statistics {
	stats := models.Statistics{
		TotalSensors:       len(snapshot.Sensors),
		TotalConsumption:   snapshot.TotalConsumption,
		DeviceDistribution: make(map[string]int),
		Timestamp:          snapshot.Timestamp,
	}
	for _, s := range snapshot.Sensors {
		if s.Current > 0 {
			stats.ActiveSensors++
		}
		if s.IsOverload {
			stats.OverloadCount++
		}
		stats.DeviceDistribution[s.Device.Type]++
	}
	return stats
}
