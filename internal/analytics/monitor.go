package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"iot-monitor/internal/models"
)

// ReadingSource is the read side of the sensor data store.
type ReadingSource interface {
	// Current returns the latest reading of every listed sensor that has one.
	Current(ctx context.Context, ids []string) (map[string]models.Reading, error)
	// Range returns the history entries keyed within [startKey, endKey], ascending.
	Range(ctx context.Context, id, startKey, endKey string) ([]models.RawRecord, error)
	// LastN returns the n most recent history entries, ascending.
	LastN(ctx context.Context, id string, n int) ([]models.RawRecord, error)
	// ByState returns the history entries recorded with the given state label, ascending.
	ByState(ctx context.Context, id, state string) ([]models.RawRecord, error)
	Ping(ctx context.Context) error
}

type ThresholdStore interface {
	Threshold(ctx context.Context, id string) (models.Threshold, bool, error)
	SetThreshold(ctx context.Context, id string, t models.Threshold) error
}

// Store is what a single backend provides.
type Store interface {
	ReadingSource
	ThresholdStore
}

type Monitor struct {
	readings   ReadingSource
	thresholds ThresholdStore
	sensorIDs  []string
	defaults   models.Threshold
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Monitor)

// WithClock overrides the time source used for snapshot and threshold timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

func NewMonitor(readings ReadingSource, thresholds ThresholdStore, sensorIDs []string, defaults models.Threshold, opts ...Option) *Monitor {
	m := &Monitor{
		readings:   readings,
		thresholds: thresholds,
		sensorIDs:  append([]string(nil), sensorIDs...),
		defaults:   defaults,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the stored threshold for id. A configured sensor without an entry gets the default
// written back; any other id gets the default and the store is left untouched. A failing store yields the
// default together with the error.
func (m *Monitor) Threshold(ctx context.Context, id string) (models.Threshold, error) {
	t, ok, err := m.thresholds.Threshold(ctx, id)
	if err != nil {
		return m.defaults, fmt.Errorf("read threshold for %s: %w", id, err)
	}
	if ok {
		return t, nil
	}
	if !slices.Contains(m.sensorIDs, id) {
		return m.defaults, nil
	}

	t = m.defaults
	t.UpdatedAt = m.now().Format(models.TimestampLayout)
	if err := m.thresholds.SetThreshold(ctx, id, t); err != nil {
		m.log.Warn("failed to persist default threshold", "sensor", id, "error", err)
	}
	return t, nil
}

func (m *Monitor) allThresholds(ctx context.Context) map[string]models.Threshold {
	out := make(map[string]models.Threshold, len(m.sensorIDs))
	for _, id := range m.sensorIDs {
		t, err := m.Threshold(ctx, id)
		if err != nil {
			m.log.Warn("using default threshold", "sensor", id, "error", err)
		}
		out[id] = t
	}
	return out
}

// Snapshot assembles the current view of all sensors. When the reading source fails, the returned
// snapshot is the degraded one and the error is returned alongside it.
func (m *Monitor) Snapshot(ctx context.Context) (models.SystemSnapshot, error) {
	readings, err := m.readings.Current(ctx, m.sensorIDs)
	thresholds := m.allThresholds(ctx)
	if err != nil {
		err = fmt.Errorf("read current data: %w", err)
		return Degraded(m.sensorIDs, thresholds, err, m.now()), err
	}
	return Aggregate(m.sensorIDs, readings, thresholds, m.now()), nil
}

// History returns a sensor's readings classified against its present threshold. With both dates set it
// returns every entry in the inclusive range and ignores limit; otherwise the last limit entries.
func (m *Monitor) History(ctx context.Context, id string, limit int, start, end string) ([]models.HistoryRecord, error) {
	records, _, err := m.history(ctx, id, limit, start, end)
	return records, err
}

// history is History plus the threshold the records were classified against.
func (m *Monitor) history(ctx context.Context, id string, limit int, start, end string) ([]models.HistoryRecord, models.Threshold, error) {
	var (
		raw []models.RawRecord
		err error
	)
	switch {
	case start != "" && end != "":
		if start > end {
			return []models.HistoryRecord{}, m.defaults, nil
		}
		raw, err = m.readings.Range(ctx, id, start, end)
	case limit <= 0:
		return []models.HistoryRecord{}, m.defaults, nil
	default:
		raw, err = m.readings.LastN(ctx, id, limit)
	}
	if err != nil {
		return nil, m.defaults, fmt.Errorf("read history for %s: %w", id, err)
	}
	if len(raw) == 0 {
		return []models.HistoryRecord{}, m.defaults, nil
	}

	threshold, err := m.Threshold(ctx, id)
	if err != nil {
		m.log.Warn("classifying history with default threshold", "sensor", id, "error", err)
	}
	return Reclassify(raw, threshold), threshold, nil
}

// Alerts collects the overload entries of every sensor within the optional window, most recent first.
// A sensor whose query fails is skipped and its error joined into the result error.
func (m *Monitor) Alerts(ctx context.Context, start, end string) ([]models.AlertRecord, error) {
	var (
		alerts []models.AlertRecord
		errs   []error
	)
	for _, id := range m.sensorIDs {
		raw, err := m.readings.ByState(ctx, id, models.StateOverload)
		if err != nil {
			errs = append(errs, fmt.Errorf("read alerts for %s: %w", id, err))
			continue
		}

		threshold, err := m.Threshold(ctx, id)
		if err != nil {
			m.log.Warn("classifying alerts with default threshold", "sensor", id, "error", err)
		}
		for _, h := range Reclassify(FilterRange(raw, start, end), threshold) {
			alerts = append(alerts, models.AlertRecord{SensorID: id, HistoryRecord: h, Threshold: threshold})
		}
	}

	if len(errs) == len(m.sensorIDs) && len(errs) > 0 {
		return []models.AlertRecord{}, errors.Join(errs...)
	}
	SortAlerts(alerts)
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	return alerts, errors.Join(errs...)
}

// SetThreshold overwrites a sensor's threshold. Values are stored as given.
func (m *Monitor) SetThreshold(ctx context.Context, id string, current, power float64) bool {
	t := models.Threshold{
		Current:   current,
		Power:     power,
		UpdatedAt: m.now().Format(models.TimestampLayout),
	}
	if err := m.thresholds.SetThreshold(ctx, id, t); err != nil {
		m.log.Error("failed to update threshold", "sensor", id, "error", err)
		return false
	}
	m.log.Info("threshold updated", "sensor", id, "current", current, "power", power)
	return true
}

// Export gathers classified history rows for one sensor, or every sensor when id is empty.
func (m *Monitor) Export(ctx context.Context, id string, limit int, start, end string) ([]models.AlertRecord, error) {
	ids := m.sensorIDs
	if id != "" {
		ids = []string{id}
	}

	var (
		rows []models.AlertRecord
		errs []error
	)
	for _, sensorID := range ids {
		records, threshold, err := m.history(ctx, sensorID, limit, start, end)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, r := range records {
			rows = append(rows, models.AlertRecord{SensorID: sensorID, HistoryRecord: r, Threshold: threshold})
		}
	}
	return rows, errors.Join(errs...)
}

func (m *Monitor) Ping(ctx context.Context) error {
	return m.readings.Ping(ctx)
}
