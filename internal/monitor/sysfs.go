package monitor

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/collector"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// SysfsBattery reads /sys/class/power_supply and polls it for changes.
type SysfsBattery struct {
	interval time.Duration
	log      *slog.Logger
	present  func() bool
	collect  func() (*collector.BatterySample, error)
}

// NewSysfsBattery creates a sysfs battery backend polling every interval.
func NewSysfsBattery(interval time.Duration, logger *slog.Logger) *SysfsBattery {
	return &SysfsBattery{
		interval: interval,
		log:      logger,
		present:  collector.HasBattery,
		collect:  collector.CollectBattery,
	}
}

func (b *SysfsBattery) Name() string { return "sysfs" }

func (b *SysfsBattery) Negotiate() stream.Capability {
	if b.present() {
		return stream.Supported
	}
	return stream.Unsupported
}

func (b *SysfsBattery) Read() (BatteryReading, error) {
	s, err := b.collect()
	if err != nil {
		return BatteryReading{}, err
	}
	return BatteryReading{
		Level: s.Percent(),
		State: telemetry.ClassifyBatteryState(s.Status),
	}, nil
}

// Watch polls the status and level; other uevent fields such as voltage
// change constantly and are ignored.
func (b *SysfsBattery) Watch(changed func()) (stream.Handle, error) {
	return Poll(b.interval, func() (string, error) {
		r, err := b.Read()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/%s", r.State, strconv.FormatFloat(r.Level, 'f', -1, 64)), nil
	}, changed, b.log), nil
}

// PlatformProfile reads the ACPI platform profile as the low-power flag on
// machines without power-profiles-daemon.
type PlatformProfile struct {
	interval time.Duration
	log      *slog.Logger
	present  func() bool
	read     func() (string, error)
}

// NewPlatformProfile creates a platform_profile backend polling every interval.
func NewPlatformProfile(interval time.Duration, logger *slog.Logger) *PlatformProfile {
	return &PlatformProfile{
		interval: interval,
		log:      logger,
		present:  collector.HasPlatformProfile,
		read:     collector.ReadPlatformProfile,
	}
}

func (p *PlatformProfile) Name() string { return "platform_profile" }

// Negotiate is Unsupported without the firmware attribute. Otherwise a read
// decides, so an unreadable attribute comes back Denied.
func (p *PlatformProfile) Negotiate() stream.Capability {
	if !p.present() {
		return stream.Unsupported
	}
	_, err := p.read()
	return negotiateRead(err)
}

func (p *PlatformProfile) Read() (bool, error) {
	profile, err := p.read()
	if err != nil {
		return false, err
	}
	return collector.IsLowPowerProfile(profile), nil
}

func (p *PlatformProfile) Watch(changed func()) (stream.Handle, error) {
	return Poll(p.interval, p.read, changed, p.log), nil
}
