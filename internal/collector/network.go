package collector

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const (
	rtfUp       = 0x1
	arphrdEther = 1
)

// DefaultRoute returns the lowest-metric usable default route from
// /proc/net/route.
func DefaultRoute() (*Route, error) {
	f, err := os.Open(filepath.Join(procRoot, "net/route"))
	if err != nil {
		return nil, fmt.Errorf("open route table: %w", err)
	}
	defer f.Close()

	var best *Route
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		// Iface Destination Gateway Flags RefCnt Use Metric Mask ...
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 || fields[1] != "00000000" || fields[7] != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil || flags&rtfUp == 0 {
			continue
		}
		metric, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			continue
		}
		if best == nil || metric < best.Metric {
			best = &Route{Interface: fields[0], Metric: metric}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	if best == nil {
		return nil, fmt.Errorf("no default route: %w", telemetry.ErrUnavailable)
	}
	return best, nil
}

// ReadRouteTable returns the raw route table text. The legacy connectivity
// observer polls this to detect changes.
func ReadRouteTable() (string, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, "net/route"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InterfaceKind classifies a network interface from /sys/class/net/<iface>.
func InterfaceKind(iface string) InterfaceKind {
	dir := filepath.Join(sysfsRoot, "class/net", iface)
	if _, err := os.Stat(filepath.Join(dir, "wireless")); err == nil {
		return InterfaceWiFi
	}
	if _, err := os.Stat(filepath.Join(dir, "phy80211")); err == nil {
		return InterfaceWiFi
	}

	if data, err := os.ReadFile(filepath.Join(dir, "uevent")); err == nil {
		switch parseUevent(string(data))["DEVTYPE"] {
		case "wlan":
			return InterfaceWiFi
		case "wwan":
			return InterfaceMobile
		case "wimax":
			return InterfaceWiMAX
		}
	}

	if typ, err := readIntFile(filepath.Join(dir, "type")); err == nil && typ == arphrdEther {
		return InterfaceEthernet
	}
	return InterfaceOther
}

// WirelessSignal returns the signal level in dBm of iface from
// /proc/net/wireless.
func WirelessSignal(iface string) (int64, error) {
	f, err := os.Open(filepath.Join(procRoot, "net/wireless"))
	if err != nil {
		return 0, fmt.Errorf("open wireless: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// wlan0: 0000   54.  -56.  -256        0      0      0      0     12        0
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(name) != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			break
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("parse signal level %q: %w", fields[2], err)
		}
		return int64(level), nil
	}
	return 0, fmt.Errorf("no wireless stats for %s: %w", iface, telemetry.ErrUnavailable)
}
