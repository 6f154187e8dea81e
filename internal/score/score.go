package score

import (
	"fmt"
	"log/slog"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// Predicate names one weak-device check.
type Predicate string

const (
	OldPlatform   Predicate = "old_platform"
	LowMemory     Predicate = "low_memory"
	FewProcessors Predicate = "few_processors"
	LowStorage    Predicate = "low_storage"
	BatteryLow    Predicate = "battery_low"
	Discharging   Predicate = "discharging"
	LowPowerMode  Predicate = "low_power_mode"
)

// AllPredicates lists every known predicate in evaluation order.
var AllPredicates = []Predicate{
	OldPlatform, LowMemory, FewProcessors, LowStorage,
	BatteryLow, Discharging, LowPowerMode,
}

// Thresholds at or below which a reading counts as weak.
const (
	LowMemoryBytes    = 1_000_000_000
	LowStorageBytes   = 16_000_000_000
	FewProcessorCount = 2
	BatteryLowPercent = 10
)

// ParsePredicate validates a predicate name from configuration.
func ParsePredicate(s string) (Predicate, error) {
	for _, p := range AllPredicates {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown predicate %q", s)
}

// FailurePolicy decides what a failed sub-read does to a heuristic.
type FailurePolicy int

const (
	// Absorb evaluates the predicate against the reading's sentinel.
	Absorb FailurePolicy = iota
	// Propagate aborts the heuristic with the first error.
	Propagate
)

func (f FailurePolicy) String() string {
	if f == Propagate {
		return "propagate"
	}
	return "absorb"
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "absorb", "":
		return Absorb, nil
	case "propagate":
		return Propagate, nil
	}
	return Absorb, fmt.Errorf("unknown failure policy %q", s)
}

// Version is a kernel major.minor pair.
type Version struct {
	Major, Minor int
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Policy selects the predicates each heuristic counts.
type Policy struct {
	Eco             []Predicate
	LowEnd          []Predicate
	LowEndThreshold int
	MinKernel       Version
	Failure         FailurePolicy
}

// DefaultPolicy scores eco on the four hardware predicates and flags a
// low-end device when five of all seven hold.
func DefaultPolicy() Policy {
	return Policy{
		Eco:             []Predicate{OldPlatform, LowMemory, FewProcessors, LowStorage},
		LowEnd:          append([]Predicate(nil), AllPredicates...),
		LowEndThreshold: 5,
		MinKernel:       Version{Major: 5, Minor: 4},
		Failure:         Absorb,
	}
}

// Sampler supplies the readings the predicates look at.
type Sampler interface {
	KernelVersion() (Version, error)
	TotalMemory() (int64, error)
	ProcessorCount() (int, error)
	TotalStorage() (int64, error)
	BatteryLevel() (float64, error)
	BatteryState() (telemetry.BatteryState, error)
	LowPowerMode() (bool, error)
}

// Scorer evaluates the eco and low-end heuristics against live readings.
// It keeps no state between calls.
type Scorer struct {
	policy  Policy
	sampler Sampler
	log     *slog.Logger
}

func New(policy Policy, sampler Sampler, logger *slog.Logger) *Scorer {
	return &Scorer{policy: policy, sampler: sampler, log: logger}
}

func (s *Scorer) Policy() Policy {
	return s.policy
}

// EcoScore starts at the number of eco predicates, loses one point per
// predicate that holds and returns the remainder as a fraction. An empty
// predicate set scores 1.
func (s *Scorer) EcoScore() (float64, error) {
	n := len(s.policy.Eco)
	if n == 0 {
		return 1, nil
	}
	hits, err := s.count(s.policy.Eco)
	if err != nil {
		return 0, err
	}
	return float64(n-hits) / float64(n), nil
}

// IsLowEnd reports whether at least LowEndThreshold low-end predicates hold.
func (s *Scorer) IsLowEnd() (bool, error) {
	hits, err := s.count(s.policy.LowEnd)
	if err != nil {
		return false, err
	}
	return hits >= s.policy.LowEndThreshold, nil
}

// Evaluate reports the value of every predicate, for diagnostics.
func (s *Scorer) Evaluate() (map[Predicate]bool, error) {
	out := make(map[Predicate]bool, len(AllPredicates))
	for _, p := range AllPredicates {
		ok, err := s.Holds(p)
		if err != nil {
			return nil, err
		}
		out[p] = ok
	}
	return out, nil
}

func (s *Scorer) count(preds []Predicate) (int, error) {
	hits := 0
	for _, p := range preds {
		ok, err := s.Holds(p)
		if err != nil {
			return 0, err
		}
		if ok {
			hits++
		}
	}
	return hits, nil
}

// Holds evaluates a single predicate under the failure policy. An absorbed
// failure evaluates the predicate against the sentinel reading: zero for
// figures, Unknown for the battery state and false for low-power mode.
func (s *Scorer) Holds(p Predicate) (bool, error) {
	weak, err := s.evaluate(p)
	if err == nil {
		return weak, nil
	}
	if s.policy.Failure == Propagate {
		return false, fmt.Errorf("%s: %w", p, err)
	}
	s.log.Debug("predicate read failed, using sentinel", "predicate", string(p), "err", err)
	return s.sentinel(p), nil
}

func (s *Scorer) evaluate(p Predicate) (bool, error) {
	switch p {
	case OldPlatform:
		v, err := s.sampler.KernelVersion()
		return v.Less(s.policy.MinKernel), err
	case LowMemory:
		total, err := s.sampler.TotalMemory()
		return total <= LowMemoryBytes, err
	case FewProcessors:
		n, err := s.sampler.ProcessorCount()
		return n <= FewProcessorCount, err
	case LowStorage:
		total, err := s.sampler.TotalStorage()
		return total <= LowStorageBytes, err
	case BatteryLow:
		level, err := s.sampler.BatteryLevel()
		return level <= BatteryLowPercent, err
	case Discharging:
		state, err := s.sampler.BatteryState()
		return state == telemetry.BatteryDischarging, err
	case LowPowerMode:
		return s.sampler.LowPowerMode()
	}
	return false, fmt.Errorf("unknown predicate %q", p)
}

func (s *Scorer) sentinel(p Predicate) bool {
	switch p {
	case OldPlatform:
		return Version{}.Less(s.policy.MinKernel)
	case LowMemory, FewProcessors, LowStorage, BatteryLow:
		return true
	}
	return false
}
