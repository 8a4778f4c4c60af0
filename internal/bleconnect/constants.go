package bleconnect

import (
	"regexp"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Tool identity, echoed in the stdout header and --version output.
const (
	ToolName = "meshcore-ble-connect"
	Version  = "1.0.0"
)

// D-Bus well-known name, interfaces, and object paths exposed by BlueZ.
const (
	BlueZService = "org.bluez"
	BlueZPath    = "/org/bluez"

	AdapterInterface       = "org.bluez.Adapter1"
	DeviceInterface        = "org.bluez.Device1"
	AgentInterface         = "org.bluez.Agent1"
	AgentManagerInterface  = "org.bluez.AgentManager1"
	PropertiesInterface    = "org.freedesktop.DBus.Properties"
	ObjectManagerInterface = "org.freedesktop.DBus.ObjectManager"

	AgentPath = dbus.ObjectPath("/org/bluez/agent/meshcore")

	// AgentCapability selects KeyboardDisplay so BlueZ routes both legacy
	// PIN entry and BLE SMP passkey entry to RequestPinCode/RequestPasskey
	// instead of a display-only or confirm-only flow.
	AgentCapability = "KeyboardDisplay"
)

// Timeouts and retry parameters. Named rather than inlined so they can
// be tuned independently as real hardware behavior is observed.
const (
	DiscoveryTimeout     = 30 * time.Second
	DiscoverySettleDelay = 2 * time.Second
	ConnectRetries       = 5
	ConnectRetryBaseWait = 1 * time.Second
)

// connectAbortRace is the one BlueZ error substring treated as a
// transient RF race rather than a permanent failure; it is the only
// error that triggers the progressive connect retry. Pair itself is
// not bounded here: BlueZ runs its own internal SMP timeout.
const connectAbortRace = "le-connection-abort-by-local"

// macPattern matches the canonical colon-separated hex MAC form.
var macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// MAC is a validated, canonicalized (upper-case) Bluetooth device
// address. The zero value is not a valid MAC; construct one with
// ParseMAC.
type MAC string

// ParseMAC validates s against the canonical colon-separated hex form
// and returns the upper-cased MAC. Lower-case hex is accepted; no other
// normalization is attempted (dash-separated or bare hex is rejected).
func ParseMAC(s string) (MAC, error) {
	if !macPattern.MatchString(s) {
		return "", &ArgumentError{Msg: "invalid MAC address " + s + " (expected AA:BB:CC:DD:EE:FF)"}
	}
	return MAC(strings.ToUpper(s)), nil
}

// DevicePath derives the BlueZ managed-object path for this MAC under
// the given adapter path, e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func (m MAC) DevicePath(adapter dbus.ObjectPath) dbus.ObjectPath {
	underscored := strings.ReplaceAll(string(m), ":", "_")
	return dbus.ObjectPath(string(adapter) + "/dev_" + underscored)
}

func (m MAC) String() string { return string(m) }
