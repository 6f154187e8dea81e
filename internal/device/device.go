package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cptspacemanspiff/eco-monitor/internal/collector"
	"github.com/cptspacemanspiff/eco-monitor/internal/monitor"
	"github.com/cptspacemanspiff/eco-monitor/internal/score"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// BatteryReader reads the current battery charge and state.
type BatteryReader interface {
	Read() (monitor.BatteryReading, error)
}

// LowPowerReader reads whether the system is in a power saving mode.
type LowPowerReader interface {
	Read() (bool, error)
}

// ConnectivityReader classifies the active network on demand.
type ConnectivityReader interface {
	Current() telemetry.Connectivity
}

// Readers are the raw platform reads behind the façade.
type Readers struct {
	Platform   func() (*collector.PlatformInfo, error)
	Memory     func() (*collector.MemInfo, error)
	Storage    func(path string) (*collector.StorageInfo, error)
	Processors func() int
	Thermal    func() (*collector.ThermalSample, error)
}

// DefaultReaders reads from the live kernel interfaces.
func DefaultReaders() Readers {
	return Readers{
		Platform:   collector.CollectPlatform,
		Memory:     collector.CollectMemory,
		Storage:    collector.CollectStorage,
		Processors: collector.ProcessorCount,
		Thermal:    collector.CollectThermal,
	}
}

type Options struct {
	Readers      Readers
	Battery      BatteryReader
	LowPower     LowPowerReader
	Connectivity ConnectivityReader
	// StoragePath is the mount point whose capacity is reported.
	StoragePath string
	Policy      score.Policy
	Logger      *slog.Logger
	// ThermalLogger receives thermal zone read failures. Defaults to Logger.
	ThermalLogger *slog.Logger
}

// Device answers point-in-time telemetry queries. Every accessor returns
// without waiting on an event; values that cannot be read come back as a
// sentinel, except storage capacity which reports its cause.
type Device struct {
	readers      Readers
	battery      BatteryReader
	lowPower     LowPowerReader
	connectivity ConnectivityReader
	storagePath  string
	scorer       *score.Scorer
	log          *slog.Logger
	thermalLog   *slog.Logger

	monitorOnce sync.Once
}

func New(opts Options) *Device {
	d := &Device{
		readers:      opts.Readers,
		battery:      opts.Battery,
		lowPower:     opts.LowPower,
		connectivity: opts.Connectivity,
		storagePath:  opts.StoragePath,
		log:          opts.Logger,
		thermalLog:   opts.ThermalLogger,
	}
	if d.thermalLog == nil {
		d.thermalLog = opts.Logger
	}
	if d.storagePath == "" {
		d.storagePath = "/"
	}
	d.scorer = score.New(opts.Policy, sampler{d}, opts.Logger)
	return d
}

// ScoreBreakdown reports every scoring predicate by name, evaluated under
// the configured failure policy.
func (d *Device) ScoreBreakdown() (map[string]bool, error) {
	preds, err := d.scorer.Evaluate()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(preds))
	for p, ok := range preds {
		out[string(p)] = ok
	}
	return out, nil
}

// PlatformInfo describes the kernel, host, architecture and distribution.
func (d *Device) PlatformInfo() string {
	info, err := d.readers.Platform()
	if err != nil {
		d.log.Debug("read platform info", "err", err)
		return ""
	}
	return info.String()
}

// BatteryLevel returns the charge percentage, 0 when unavailable.
func (d *Device) BatteryLevel() float64 {
	r, err := d.readBattery()
	if err != nil {
		return 0
	}
	return r.Level
}

// BatteryState returns Unknown when no battery can be read.
func (d *Device) BatteryState() telemetry.BatteryState {
	r, err := d.readBattery()
	if err != nil {
		return telemetry.BatteryUnknown
	}
	return r.State
}

// IsBatteryInLowPowerMode is false when no power saving source exists.
func (d *Device) IsBatteryInLowPowerMode() bool {
	on, err := d.readLowPower()
	if err != nil {
		return false
	}
	return on
}

func (d *Device) ThermalState() telemetry.ThermalState {
	sample, err := d.readers.Thermal()
	if err != nil {
		d.thermalLog.Debug("read thermal state", "err", err)
		return telemetry.ThermalUnknown
	}
	return telemetry.ClassifyThermalStatus(sample.Status)
}

func (d *Device) ProcessorCount() int {
	return d.readers.Processors()
}

func (d *Device) TotalMemory() int64 {
	m, err := d.readers.Memory()
	if err != nil {
		d.log.Debug("read memory", "err", err)
		return 0
	}
	return m.TotalBytes
}

func (d *Device) FreeMemory() int64 {
	m, err := d.readers.Memory()
	if err != nil {
		d.log.Debug("read memory", "err", err)
		return 0
	}
	return m.AvailableBytes
}

// TotalStorage returns the capacity of the configured mount point.
func (d *Device) TotalStorage() (int64, error) {
	s, err := d.readers.Storage(d.storagePath)
	if err != nil {
		return 0, fmt.Errorf("total storage: %w", err)
	}
	return s.TotalBytes, nil
}

// FreeStorage returns the space available to unprivileged users.
func (d *Device) FreeStorage() (int64, error) {
	s, err := d.readers.Storage(d.storagePath)
	if err != nil {
		return 0, fmt.Errorf("free storage: %w", err)
	}
	return s.FreeBytes, nil
}

func (d *Device) Connectivity() telemetry.Connectivity {
	if d.connectivity == nil {
		return telemetry.Connectivity{Type: telemetry.ConnectivityUnknown}
	}
	return d.connectivity.Current()
}

func (d *Device) EcoScore() (float64, error) {
	return d.scorer.EcoScore()
}

func (d *Device) IsLowEndDevice() (bool, error) {
	return d.scorer.IsLowEnd()
}

func (d *Device) readBattery() (monitor.BatteryReading, error) {
	d.monitorOnce.Do(func() {
		d.log.Info("battery monitoring enabled")
	})
	if d.battery == nil {
		return monitor.BatteryReading{}, fmt.Errorf("battery: %w", telemetry.ErrUnsupported)
	}
	r, err := d.battery.Read()
	if err != nil {
		d.log.Debug("read battery", "err", err)
		return monitor.BatteryReading{}, err
	}
	return r, nil
}

func (d *Device) readLowPower() (bool, error) {
	if d.lowPower == nil {
		return false, fmt.Errorf("low power mode: %w", telemetry.ErrUnsupported)
	}
	on, err := d.lowPower.Read()
	if err != nil {
		d.log.Debug("read low power mode", "err", err)
		return false, err
	}
	return on, nil
}

// sampler feeds the scorer with the errors the façade otherwise hides.
type sampler struct {
	d *Device
}

func (s sampler) KernelVersion() (score.Version, error) {
	info, err := s.d.readers.Platform()
	if err != nil {
		return score.Version{}, err
	}
	major, minor, err := collector.KernelVersion(info.Release)
	if err != nil {
		return score.Version{}, err
	}
	return score.Version{Major: major, Minor: minor}, nil
}

func (s sampler) TotalMemory() (int64, error) {
	m, err := s.d.readers.Memory()
	if err != nil {
		return 0, err
	}
	return m.TotalBytes, nil
}

func (s sampler) ProcessorCount() (int, error) {
	return s.d.readers.Processors(), nil
}

func (s sampler) TotalStorage() (int64, error) {
	return s.d.TotalStorage()
}

func (s sampler) BatteryLevel() (float64, error) {
	r, err := s.d.readBattery()
	return r.Level, err
}

func (s sampler) BatteryState() (telemetry.BatteryState, error) {
	r, err := s.d.readBattery()
	if err != nil {
		return telemetry.BatteryUnknown, err
	}
	return r.State, nil
}

func (s sampler) LowPowerMode() (bool, error) {
	return s.d.readLowPower()
}
