package analytics

import (
	"slices"
	"strings"

	"iot-monitor/internal/models"
)

// InRange reports whether key falls within the inclusive [start, end] window. An empty bound is open.
// Keys compare lexicographically, which matches chronological order for ISO-8601 timestamps.
func InRange(key, start, end string) bool {
	if start != "" && key < start {
		return false
	}
	if end != "" && key > end {
		return false
	}
	return true
}

// FilterRange keeps the records whose timestamp lies in [start, end], preserving order.
func FilterRange(records []models.RawRecord, start, end string) []models.RawRecord {
	out := make([]models.RawRecord, 0, len(records))
	for _, r := range records {
		if InRange(r.Timestamp, start, end) {
			out = append(out, r)
		}
	}
	return out
}

// Reclassify turns raw records into history records classified against threshold.
func Reclassify(records []models.RawRecord, threshold models.Threshold) []models.HistoryRecord {
	out := make([]models.HistoryRecord, 0, len(records))
	for _, r := range records {
		out = append(out, models.HistoryRecord{
			Timestamp: r.Timestamp,
			Current:   r.Current,
			Power:     r.Power,
			State:     r.State,
			Device:    Classify(r.Current, threshold.Current),
		})
	}
	return out
}

// SortAlerts orders alerts most recent first. Ties keep their incoming order.
func SortAlerts(alerts []models.AlertRecord) {
	slices.SortStableFunc(alerts, func(a, b models.AlertRecord) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
}
