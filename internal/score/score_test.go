package score

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

type fakeSampler struct {
	kernel     Version
	memory     int64
	processors int
	storage    int64
	level      float64
	state      telemetry.BatteryState
	lowPower   bool

	// failing makes the named reading return err.
	failing map[Predicate]bool
	err     error
}

func (f *fakeSampler) fail(p Predicate) error {
	if f.failing[p] {
		return f.err
	}
	return nil
}

func (f *fakeSampler) KernelVersion() (Version, error) { return f.kernel, f.fail(OldPlatform) }

func (f *fakeSampler) TotalMemory() (int64, error) { return f.memory, f.fail(LowMemory) }

func (f *fakeSampler) ProcessorCount() (int, error) { return f.processors, f.fail(FewProcessors) }

func (f *fakeSampler) TotalStorage() (int64, error) { return f.storage, f.fail(LowStorage) }

func (f *fakeSampler) BatteryLevel() (float64, error) { return f.level, f.fail(BatteryLow) }

func (f *fakeSampler) BatteryState() (telemetry.BatteryState, error) {
	return f.state, f.fail(Discharging)
}

func (f *fakeSampler) LowPowerMode() (bool, error) { return f.lowPower, f.fail(LowPowerMode) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// strong returns readings for which no predicate holds.
func strong() *fakeSampler {
	return &fakeSampler{
		kernel:     Version{6, 8},
		memory:     16_000_000_000,
		processors: 8,
		storage:    512_000_000_000,
		level:      80,
		state:      telemetry.BatteryCharging,
	}
}

func TestEcoScore(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*fakeSampler)
		want   float64
	}{
		{"none weak", func(*fakeSampler) {}, 1.0},
		{"two weak", func(f *fakeSampler) {
			f.memory = 1_000_000_000
			f.processors = 2
		}, 0.5},
		{"all weak", func(f *fakeSampler) {
			f.kernel = Version{4, 19}
			f.memory = 512_000_000
			f.processors = 1
			f.storage = 16_000_000_000
		}, 0.0},
		{"battery ignored", func(f *fakeSampler) {
			f.level = 5
			f.state = telemetry.BatteryDischarging
			f.lowPower = true
		}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := strong()
			tt.modify(f)
			got, err := New(DefaultPolicy(), f, testLogger()).EcoScore()
			if err != nil {
				t.Fatalf("EcoScore() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("EcoScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEcoScore_EmptyPredicateSet(t *testing.T) {
	p := DefaultPolicy()
	p.Eco = nil
	f := strong()
	f.memory = 0
	got, err := New(p, f, testLogger()).EcoScore()
	if err != nil || got != 1.0 {
		t.Fatalf("EcoScore() = %v, %v, want 1.0", got, err)
	}
}

func TestIsLowEnd_Threshold(t *testing.T) {
	f := strong()
	f.memory = 900_000_000
	f.processors = 2
	f.storage = 8_000_000_000
	f.level = 10

	s := New(DefaultPolicy(), f, testLogger())
	if got, _ := s.IsLowEnd(); got {
		t.Fatal("IsLowEnd() = true with 4 of 7 predicates, want false")
	}

	f.state = telemetry.BatteryDischarging
	if got, _ := s.IsLowEnd(); !got {
		t.Fatal("IsLowEnd() = false with 5 of 7 predicates, want true")
	}
}

func TestIsLowEnd_ConfiguredPolicy(t *testing.T) {
	p := Policy{
		LowEnd:          []Predicate{BatteryLow, Discharging, LowPowerMode, LowMemory},
		LowEndThreshold: 1,
		MinKernel:       Version{5, 4},
	}
	f := strong()
	f.lowPower = true
	if got, err := New(p, f, testLogger()).IsLowEnd(); err != nil || !got {
		t.Fatalf("IsLowEnd() = %v, %v, want true", got, err)
	}
}

func TestFailurePolicy(t *testing.T) {
	boom := errors.New("statfs failed")
	f := strong()
	f.failing = map[Predicate]bool{LowStorage: true, Discharging: true, LowPowerMode: true}
	f.err = boom
	f.state = telemetry.BatteryDischarging
	f.lowPower = true

	absorb := New(DefaultPolicy(), f, testLogger())
	if got, err := absorb.EcoScore(); err != nil || got != 0.75 {
		t.Fatalf("EcoScore(absorb) = %v, %v, want 0.75", got, err)
	}
	preds, err := absorb.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate(absorb) error = %v", err)
	}
	if !preds[LowStorage] || preds[Discharging] || preds[LowPowerMode] {
		t.Fatalf("Evaluate(absorb) = %v, want sentinel values", preds)
	}

	p := DefaultPolicy()
	p.Failure = Propagate
	propagate := New(p, f, testLogger())
	if _, err := propagate.EcoScore(); !errors.Is(err, boom) {
		t.Fatalf("EcoScore(propagate) error = %v, want %v", err, boom)
	}
	if _, err := propagate.IsLowEnd(); !errors.Is(err, boom) {
		t.Fatalf("IsLowEnd(propagate) error = %v, want %v", err, boom)
	}
}

func TestParse(t *testing.T) {
	if p, err := ParsePredicate("few_processors"); err != nil || p != FewProcessors {
		t.Fatalf("ParsePredicate() = %v, %v", p, err)
	}
	if _, err := ParsePredicate("slow_disk"); err == nil {
		t.Fatal("ParsePredicate(slow_disk) error = nil")
	}
	if f, err := ParseFailurePolicy("propagate"); err != nil || f != Propagate {
		t.Fatalf("ParseFailurePolicy() = %v, %v", f, err)
	}
	if _, err := ParseFailurePolicy("retry"); err == nil {
		t.Fatal("ParseFailurePolicy(retry) error = nil")
	}
}

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b Version
		want bool
	}{
		{Version{4, 19}, Version{5, 4}, true},
		{Version{5, 3}, Version{5, 4}, true},
		{Version{5, 4}, Version{5, 4}, false},
		{Version{6, 0}, Version{5, 10}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Fatalf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
