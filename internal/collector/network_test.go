package collector

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

const testRouteTable = "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\t\tMTU\tWindow\tIRTT\n" +
	"wlan0\t00000000\t0102A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0\n" +
	"eth0\t00000000\t0101A8C0\t0003\t0\t0\t100\t00000000\t0\t0\t0\n" +
	"eth0\t0001A8C0\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n" +
	"wwan0\t00000000\t00000000\t0000\t0\t0\t10\t00000000\t0\t0\t0\n"

func TestDefaultRoute_PicksLowestMetric(t *testing.T) {
	root := setTestProcRoot(t)
	writeTestFile(t, filepath.Join(root, "net/route"), testRouteTable)

	route, err := DefaultRoute()
	if err != nil {
		t.Fatalf("DefaultRoute() error = %v", err)
	}
	// wwan0 has a lower metric but its route is down.
	if route.Interface != "eth0" || route.Metric != 100 {
		t.Fatalf("DefaultRoute() = %+v, want eth0/100", route)
	}
}

func TestDefaultRoute_None(t *testing.T) {
	root := setTestProcRoot(t)
	writeTestFile(t, filepath.Join(root, "net/route"), strings.SplitAfter(testRouteTable, "\n")[0])

	_, err := DefaultRoute()
	if !errors.Is(err, telemetry.ErrUnavailable) {
		t.Fatalf("DefaultRoute() error = %v, want ErrUnavailable", err)
	}
}

func TestInterfaceKind(t *testing.T) {
	root := setTestSysfsRoot(t)
	net := filepath.Join(root, "class/net")
	writeTestFile(t, filepath.Join(net, "eth0/type"), "1\n")
	writeTestFile(t, filepath.Join(net, "eth0/uevent"), "INTERFACE=eth0\nIFINDEX=2\n")
	writeTestFile(t, filepath.Join(net, "wlan0/type"), "1\n")
	writeTestFile(t, filepath.Join(net, "wlan0/wireless/.keep"), "")
	writeTestFile(t, filepath.Join(net, "wwan0/type"), "519\n")
	writeTestFile(t, filepath.Join(net, "wwan0/uevent"), "DEVTYPE=wwan\n")
	writeTestFile(t, filepath.Join(net, "wmx0/uevent"), "DEVTYPE=wimax\n")
	writeTestFile(t, filepath.Join(net, "lo/type"), "772\n")

	tests := map[string]InterfaceKind{
		"eth0":    InterfaceEthernet,
		"wlan0":   InterfaceWiFi,
		"wwan0":   InterfaceMobile,
		"wmx0":    InterfaceWiMAX,
		"lo":      InterfaceOther,
		"missing": InterfaceOther,
	}
	for iface, want := range tests {
		if got := InterfaceKind(iface); got != want {
			t.Fatalf("InterfaceKind(%q) = %d, want %d", iface, got, want)
		}
	}
}

func TestWirelessSignal(t *testing.T) {
	root := setTestProcRoot(t)
	writeTestFile(t, filepath.Join(root, "net/wireless"), strings.Join([]string{
		"Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE",
		" face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22",
		" wlan0: 0000   54.  -56.  -256        0      0      0      0     12        0",
		"",
	}, "\n"))

	level, err := WirelessSignal("wlan0")
	if err != nil {
		t.Fatalf("WirelessSignal() error = %v", err)
	}
	if level != -56 {
		t.Fatalf("WirelessSignal() = %d, want -56", level)
	}

	if _, err := WirelessSignal("wlan1"); !errors.Is(err, telemetry.ErrUnavailable) {
		t.Fatalf("WirelessSignal(wlan1) error = %v, want ErrUnavailable", err)
	}
}
