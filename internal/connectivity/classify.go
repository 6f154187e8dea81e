// Package connectivity classifies the active network into a coarse
// connectivity type and streams snapshots as the default network changes.
package connectivity

import "github.com/cptspacemanspiff/eco-monitor/internal/telemetry"

// Transport is a set of network media reported for a network.
type Transport uint8

const (
	TransportEthernet Transport = 1 << iota
	TransportWiFi
	TransportCellular
)

// Has reports whether all transports in t are present.
func (s Transport) Has(t Transport) bool {
	return t != 0 && s&t == t
}

// Capabilities describes one network. A nil *Capabilities is the empty set,
// which is what a network handle resolves to once the network is gone.
type Capabilities struct {
	Transports Transport
	// WifiSignal is the RSSI in dBm, when the platform exposes it.
	WifiSignal *int64
}

// RadioTechnology is the cellular air interface in use. Values follow the
// Android TelephonyManager NETWORK_TYPE_* codes.
type RadioTechnology int

const (
	RadioUnknown RadioTechnology = 0
	RadioGPRS    RadioTechnology = 1
	RadioEDGE    RadioTechnology = 2
	RadioUMTS    RadioTechnology = 3
	RadioCDMA    RadioTechnology = 4
	RadioEVDO0   RadioTechnology = 5
	RadioEVDOA   RadioTechnology = 6
	Radio1xRTT   RadioTechnology = 7
	RadioHSDPA   RadioTechnology = 8
	RadioHSUPA   RadioTechnology = 9
	RadioHSPA    RadioTechnology = 10
	RadioIDEN    RadioTechnology = 11
	RadioEVDOB   RadioTechnology = 12
	RadioLTE     RadioTechnology = 13
	RadioEHRPD   RadioTechnology = 14
	RadioHSPAP   RadioTechnology = 15
	RadioGSM     RadioTechnology = 16
	RadioTDSCDMA RadioTechnology = 17
	RadioIWLAN   RadioTechnology = 18
	RadioNR      RadioTechnology = 20
)

// Generation maps a radio technology to its mobile generation. Codes not in
// the table, including IDEN and IWLAN, are Unknown.
func Generation(radio RadioTechnology) telemetry.ConnectivityType {
	switch radio {
	case RadioGPRS, RadioEDGE, RadioCDMA, Radio1xRTT, RadioGSM:
		return telemetry.ConnectivityMobile2G
	case RadioUMTS, RadioEVDO0, RadioEVDOA, RadioHSDPA, RadioHSUPA, RadioHSPA,
		RadioEVDOB, RadioEHRPD, RadioHSPAP, RadioTDSCDMA:
		return telemetry.ConnectivityMobile3G
	case RadioLTE:
		return telemetry.ConnectivityMobile4G
	case RadioNR:
		return telemetry.ConnectivityMobile5G
	default:
		return telemetry.ConnectivityUnknown
	}
}

// ModemManager MMModemAccessTechnology flags.
const (
	mmAccessGSM        = 1 << 1
	mmAccessGSMCompact = 1 << 2
	mmAccessGPRS       = 1 << 3
	mmAccessEDGE       = 1 << 4
	mmAccessUMTS       = 1 << 5
	mmAccessHSDPA      = 1 << 6
	mmAccessHSUPA      = 1 << 7
	mmAccessHSPA       = 1 << 8
	mmAccessHSPAPlus   = 1 << 9
	mmAccess1xRTT      = 1 << 10
	mmAccessEVDO0      = 1 << 11
	mmAccessEVDOA      = 1 << 12
	mmAccessEVDOB      = 1 << 13
	mmAccessLTE        = 1 << 14
	mmAccess5GNR       = 1 << 15
	mmAccessLTECatM    = 1 << 16
	mmAccessLTENBIoT   = 1 << 17
)

// Highest first.
var mmAccessOrder = []struct {
	mask  uint32
	radio RadioTechnology
}{
	{mmAccess5GNR, RadioNR},
	{mmAccessLTE | mmAccessLTECatM | mmAccessLTENBIoT, RadioLTE},
	{mmAccessHSPAPlus, RadioHSPAP},
	{mmAccessHSPA, RadioHSPA},
	{mmAccessHSUPA, RadioHSUPA},
	{mmAccessHSDPA, RadioHSDPA},
	{mmAccessEVDOB, RadioEVDOB},
	{mmAccessEVDOA, RadioEVDOA},
	{mmAccessEVDO0, RadioEVDO0},
	{mmAccessUMTS, RadioUMTS},
	{mmAccess1xRTT, Radio1xRTT},
	{mmAccessEDGE, RadioEDGE},
	{mmAccessGPRS, RadioGPRS},
	{mmAccessGSM | mmAccessGSMCompact, RadioGSM},
}

// RadioFromAccessTechnologies maps a ModemManager AccessTechnologies bitmask
// to the most advanced radio technology it contains.
func RadioFromAccessTechnologies(mask uint32) RadioTechnology {
	for _, e := range mmAccessOrder {
		if mask&e.mask != 0 {
			return e.radio
		}
	}
	return RadioUnknown
}

// Classify picks the connectivity type by transport priority: Ethernet, then
// WiFi, then cellular by radio generation. No transport yields None.
func Classify(caps *Capabilities, radio RadioTechnology) telemetry.ConnectivityType {
	if caps == nil {
		return telemetry.ConnectivityNone
	}
	switch {
	case caps.Transports.Has(TransportEthernet):
		return telemetry.ConnectivityEthernet
	case caps.Transports.Has(TransportWiFi):
		return telemetry.ConnectivityWiFi
	case caps.Transports.Has(TransportCellular):
		return Generation(radio)
	default:
		return telemetry.ConnectivityNone
	}
}

// Snapshot classifies caps and attaches the WiFi signal when the result is WiFi.
func Snapshot(caps *Capabilities, radio RadioTechnology) telemetry.Connectivity {
	c := telemetry.Connectivity{Type: Classify(caps, radio)}
	if c.Type == telemetry.ConnectivityWiFi && caps.WifiSignal != nil {
		rssi := *caps.WifiSignal
		c.WifiSignalStrength = &rssi
	}
	return c
}

// LegacyKind is the coarse type of the active network on systems without
// per-network capability reporting.
type LegacyKind int

const (
	LegacyNone LegacyKind = iota
	LegacyEthernet
	LegacyWiFi
	LegacyWiMAX
	LegacyMobile
	LegacyMobileDUN
	LegacyMobileHIPRI
	LegacyOther
)

// ClassifyLegacy maps a legacy active-network kind. WiMAX counts as WiFi.
func ClassifyLegacy(kind LegacyKind, radio RadioTechnology) telemetry.ConnectivityType {
	switch kind {
	case LegacyEthernet:
		return telemetry.ConnectivityEthernet
	case LegacyWiFi, LegacyWiMAX:
		return telemetry.ConnectivityWiFi
	case LegacyMobile, LegacyMobileDUN, LegacyMobileHIPRI:
		return Generation(radio)
	default:
		return telemetry.ConnectivityNone
	}
}
