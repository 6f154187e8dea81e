package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyBatteryState(t *testing.T) {
	tests := []struct {
		status PowerSupplyStatus
		want   BatteryState
	}{
		{PowerSupplyCharging, BatteryCharging},
		{PowerSupplyDischarging, BatteryDischarging},
		{PowerSupplyNotCharging, BatteryDischarging},
		{PowerSupplyFull, BatteryFull},
		{PowerSupplyUnknown, BatteryUnknown},
		{-1, BatteryUnknown},
		{42, BatteryUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyBatteryState(tt.status); got != tt.want {
			t.Fatalf("ClassifyBatteryState(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClassifyBatteryState_IsTotal(t *testing.T) {
	for code := PowerSupplyStatus(-10); code < 64; code++ {
		got := ClassifyBatteryState(code)
		if got > BatteryUnknown {
			t.Fatalf("ClassifyBatteryState(%d) = %d, outside enum", code, got)
		}
	}
}

func TestClassifyUPowerState_LegacyFallback(t *testing.T) {
	tests := []struct {
		state UPowerState
		want  BatteryState
	}{
		{UPowerUnknown, BatteryUnknown},
		{UPowerCharging, BatteryCharging},
		{UPowerPendingCharge, BatteryCharging},
		{UPowerDischarging, BatteryDischarging},
		{UPowerEmpty, BatteryDischarging},
		{UPowerPendingDischarge, BatteryDischarging},
		{UPowerFullyCharged, BatteryFull},
		{99, BatteryDischarging},
	}
	for _, tt := range tests {
		if got := ClassifyUPowerState(tt.state); got != tt.want {
			t.Fatalf("ClassifyUPowerState(%d) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestParsePowerSupplyStatus(t *testing.T) {
	tests := map[string]PowerSupplyStatus{
		"Charging":      PowerSupplyCharging,
		"Discharging\n": PowerSupplyDischarging,
		"Not charging":  PowerSupplyNotCharging,
		"Full":          PowerSupplyFull,
		"Unknown":       PowerSupplyUnknown,
		"bogus":         -1,
	}
	for in, want := range tests {
		if got := ParsePowerSupplyStatus(in); got != want {
			t.Fatalf("ParsePowerSupplyStatus(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestClassifyThermalStatus_PreservesSeverityOrder(t *testing.T) {
	statuses := []ThermalStatus{
		ThermalStatusNone, ThermalStatusLight, ThermalStatusModerate, ThermalStatusSevere,
		ThermalStatusCritical, ThermalStatusEmergency, ThermalStatusShutdown,
	}
	prev := ClassifyThermalStatus(statuses[0])
	for _, s := range statuses[1:] {
		got := ClassifyThermalStatus(s)
		if got.Less(prev) {
			t.Fatalf("ClassifyThermalStatus(%d) = %v is less severe than previous %v", s, got, prev)
		}
		prev = got
	}

	if ClassifyThermalStatus(ThermalStatusLight) != ClassifyThermalStatus(ThermalStatusModerate) {
		t.Fatal("light and moderate must both map to FAIR")
	}
	for _, s := range []ThermalStatus{ThermalStatusCritical, ThermalStatusEmergency, ThermalStatusShutdown} {
		if got := ClassifyThermalStatus(s); got != ThermalCritical {
			t.Fatalf("ClassifyThermalStatus(%d) = %v, want CRITICAL", s, got)
		}
	}
	if got := ClassifyThermalStatus(ThermalStatusNone); got != ThermalSafe {
		t.Fatalf("ClassifyThermalStatus(none) = %v, want SAFE", got)
	}
	if got := ClassifyThermalStatus(ThermalStatusSevere); got != ThermalSerious {
		t.Fatalf("ClassifyThermalStatus(severe) = %v, want SERIOUS", got)
	}
	if got := ClassifyThermalStatus(17); got != ThermalUnknown {
		t.Fatalf("ClassifyThermalStatus(17) = %v, want UNKNOWN", got)
	}
}

func TestThermalState_Less(t *testing.T) {
	if !ThermalSafe.Less(ThermalFair) || !ThermalFair.Less(ThermalSerious) || !ThermalSerious.Less(ThermalCritical) {
		t.Fatal("expected SAFE < FAIR < SERIOUS < CRITICAL")
	}
	if ThermalUnknown.Less(ThermalSafe) || ThermalSafe.Less(ThermalUnknown) {
		t.Fatal("UNKNOWN must not compare")
	}
}

func TestBatteryLevel(t *testing.T) {
	tests := []struct {
		raw, scale, want float64
	}{
		{42, 100, 42},
		{1, 2, 50},
		{2, 3, 67},
		{50, 0, 0},
		{-1, -1, 0},
		{-1, 100, 0},
	}
	for _, tt := range tests {
		if got := BatteryLevel(tt.raw, tt.scale); got != tt.want {
			t.Fatalf("BatteryLevel(%v, %v) = %v, want %v", tt.raw, tt.scale, got, tt.want)
		}
	}
}

func TestConnectivity_JSON(t *testing.T) {
	rssi := int64(-52)
	got := Connectivity{Type: ConnectivityWiFi, WifiSignalStrength: &rssi}.JSON()
	if got != `{"type":"WIFI","wifiSignalStrength":-52}` {
		t.Fatalf("JSON() = %s", got)
	}

	got = Connectivity{Type: ConnectivityNone}.JSON()
	if got != `{"type":"NONE"}` {
		t.Fatalf("JSON() = %s", got)
	}

	var back Connectivity
	if err := json.Unmarshal([]byte(`{"type":"MOBILE4G"}`), &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Type != ConnectivityMobile4G || back.WifiSignalStrength != nil {
		t.Fatalf("Unmarshal() = %#v", back)
	}
}

func TestNewErrorRecord(t *testing.T) {
	if NewErrorRecord(nil) != nil {
		t.Fatal("NewErrorRecord(nil) != nil")
	}

	err := fmt.Errorf("statfs /data: %w", fmt.Errorf("%w: no such file or directory", ErrUnavailable))
	rec := NewErrorRecord(err)
	if rec.Code != CodeUnavailable {
		t.Fatalf("Code = %q, want %q", rec.Code, CodeUnavailable)
	}
	if rec.Message != err.Error() {
		t.Fatalf("Message = %q", rec.Message)
	}
	if rec.Details == "" {
		t.Fatal("Details empty, want cause")
	}

	rec = NewErrorRecord(errors.New("boom"))
	if rec.Code != CodeInternal || rec.Details != "" {
		t.Fatalf("NewErrorRecord(boom) = %#v", rec)
	}

	orig := &ErrorRecord{Code: CodeNotImplemented, Message: "nope"}
	if got := NewErrorRecord(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Fatalf("NewErrorRecord(wrapped record) = %#v, want the same record", got)
	}
}
