// Package simulator writes synthetic sensor readings to the store so the dashboard can be exercised
// without hardware. It cycles through four scenarios: all normal, first sensor overloaded, the other
// sensors overloaded, and all low.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"iot-monitor/internal/models"
)

const scenarios = 4

type Recorder interface {
	Record(ctx context.Context, id string, reading models.Reading, state string) error
}

type Config struct {
	SensorIDs        []string
	Interval         time.Duration
	ScenarioDuration time.Duration
	Voltage          float64
	Seed             uint64 // 0 picks a random seed
}

type Simulator struct {
	rec Recorder
	cfg Config
	rng *rand.Rand
	log *slog.Logger
	now func() time.Time
}

func New(rec Recorder, cfg Config, log *slog.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		rec: rec,
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log: log,
		now: time.Now,
	}
}

// Draw returns a current and state label for one sensor under scenario (1-4). index is the sensor's
// position in the configured list; the first sensor plays the lead role in scenarios 2 and 3.
func (s *Simulator) Draw(index, scenario int) (float64, string) {
	uniform := func(lo, hi float64) float64 { return lo + s.rng.Float64()*(hi-lo) }
	first := index == 0

	switch scenario {
	case 1:
		return uniform(0.5, 2.5), models.StateNormal
	case 2:
		if first {
			return uniform(12.0, 14.5), models.StateOverload
		}
		return uniform(0.5, 1.5), models.StateNormal
	case 3:
		if first {
			return uniform(0.1, 0.5), models.StateNormal
		}
		return uniform(11.5, 13.0), models.StateOverload
	default:
		return uniform(0.1, 0.8), models.StateNormal
	}
}

// Tick writes one reading per sensor for the given scenario.
func (s *Simulator) Tick(ctx context.Context, scenario int) error {
	timestamp := s.now().Format(models.TimestampLayout)
	for i, id := range s.cfg.SensorIDs {
		current, state := s.Draw(i, scenario)
		reading := models.Reading{
			Current:   current,
			Power:     current * s.cfg.Voltage,
			Timestamp: timestamp,
		}
		if err := s.rec.Record(ctx, id, reading, state); err != nil {
			return err
		}
		s.log.Info("reading written",
			"sensor", id,
			"state", state,
			"irms", reading.Current,
			"power", reading.Power)
	}
	return nil
}

// Run writes readings every interval until ctx is cancelled, moving to the next scenario every
// scenario duration.
func (s *Simulator) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("simulator interval must be positive, got %s", s.cfg.Interval)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	scenario := 1
	scenarioStart := s.now()
	s.log.Info("simulator started", "sensors", len(s.cfg.SensorIDs), "scenario_duration", s.cfg.ScenarioDuration)

	for {
		if s.now().Sub(scenarioStart) > s.cfg.ScenarioDuration {
			scenario = scenario%scenarios + 1
			scenarioStart = s.now()
			s.log.Info("switching scenario", "scenario", scenario)
		}
		if err := s.Tick(ctx, scenario); err != nil {
			s.log.Error("failed to write readings", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("simulator stopped")
			return nil
		case <-ticker.C:
		}
	}
}
