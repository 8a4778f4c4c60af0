package bleconnect

import (
	"log/slog"
	"strconv"

	"github.com/godbus/dbus/v5"
)

// PairingAgent implements org.bluez.Agent1 for static numeric PIN/
// passkey pairing. It is exported onto the bus only for the duration
// of one pair call: outside that window it does not exist as a D-Bus
// object at all.
type PairingAgent struct {
	pin string
	log *slog.Logger
}

// NewPairingAgent builds an agent that answers every passkey/PIN
// request with pin and auto-approves confirmations and service
// authorizations.
func NewPairingAgent(pin string, log *slog.Logger) *PairingAgent {
	return &PairingAgent{pin: pin, log: log}
}

// RequestPinCode handles legacy BR/EDR PIN entry.
func (a *PairingAgent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	a.log.Debug("agent: RequestPinCode", "device", device)
	return a.pin, nil
}

// RequestPasskey handles BLE SMP passkey entry: the path MeshCore
// peripherals use.
func (a *PairingAgent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	a.log.Debug("agent: RequestPasskey", "device", device)
	passkey, err := strconv.ParseUint(a.pin, 10, 32)
	if err != nil {
		// The PIN itself never goes into an error body or log stream.
		return 0, &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []any{"PIN is not a numeric passkey"}}
	}
	return uint32(passkey), nil
}

// DisplayPasskey is informational only; this agent takes no action.
func (a *PairingAgent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.log.Debug("agent: DisplayPasskey", "device", device, "entered", entered)
	return nil
}

// RequestConfirmation auto-accepts the numeric comparison.
func (a *PairingAgent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.log.Debug("agent: RequestConfirmation (auto-accept)", "device", device)
	return nil
}

// RequestAuthorization auto-accepts a bare authorization request (no
// passkey involved, just "may this device connect").
func (a *PairingAgent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.log.Debug("agent: RequestAuthorization (auto-accept)", "device", device)
	return nil
}

// AuthorizeService auto-accepts any service-access request.
func (a *PairingAgent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	a.log.Debug("agent: AuthorizeService (auto-accept)", "device", device, "uuid", uuid)
	return nil
}

// Release is called by BlueZ once the agent is unregistered.
func (a *PairingAgent) Release() *dbus.Error {
	a.log.Debug("agent: Release")
	return nil
}

// Cancel is called by BlueZ to abort an in-flight request.
func (a *PairingAgent) Cancel() *dbus.Error {
	a.log.Debug("agent: Cancel")
	return nil
}

// registerAgent exports agent at AgentPath and registers it with
// BlueZ's AgentManager1. The caller must unregisterAgent on every exit
// path, success or failure.
func registerAgent(bus Bus, agent *PairingAgent) error {
	if err := bus.Export(agent, AgentPath, AgentInterface); err != nil {
		return &PairingError{Msg: "failed to export pairing agent", Err: err}
	}
	if err := bus.Call(BlueZPath, AgentManagerInterface, "RegisterAgent", AgentPath, AgentCapability); err != nil {
		_ = bus.Unexport(AgentPath, AgentInterface)
		return &PairingError{Msg: "failed to register pairing agent", Err: err}
	}
	return nil
}

// unregisterAgent tears down the agent in the reverse order it was
// set up in. Both calls are best-effort: the agent must end up
// unregistered and unexported even if the daemon already dropped it.
func unregisterAgent(bus Bus) {
	_ = bus.Call(BlueZPath, AgentManagerInterface, "UnregisterAgent", AgentPath)
	_ = bus.Unexport(AgentPath, AgentInterface)
}
