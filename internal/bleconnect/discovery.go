package bleconnect

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// Discovery drives BlueZ's discovery process with a BLE-only transport
// filter and blocks until the target device's InterfacesAdded signal
// arrives or the timeout expires.
type Discovery struct {
	bus     Bus
	adapter dbus.ObjectPath
	log     *slog.Logger
}

func NewDiscovery(bus Bus, adapter dbus.ObjectPath, log *slog.Logger) *Discovery {
	return &Discovery{bus: bus, adapter: adapter, log: log}
}

// Discover starts discovery for target and blocks until its device
// path appears, the timeout elapses, or ctx is cancelled. On every
// return path (success, timeout, or cancellation) discovery is
// stopped and the signal subscription is released before the settle
// delay (success path only) or immediately (failure paths).
func (d *Discovery) Discover(ctx context.Context, target MAC) (dbus.ObjectPath, error) {
	devicePath := target.DevicePath(d.adapter)

	// Subscribe before StartDiscovery to eliminate the missed-signal race.
	matchRule := "type='signal',sender='" + BlueZService + "',interface='" + ObjectManagerInterface + "',member='InterfacesAdded'"
	sigCh, cancel, err := d.bus.Subscribe(matchRule)
	if err != nil {
		return "", &DiscoveryError{Msg: "failed to subscribe to InterfacesAdded", Err: err}
	}
	defer cancel()

	d.log.Debug("discovery: setting BLE transport filter")
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}
	if err := d.bus.Call(d.adapter, AdapterInterface, "SetDiscoveryFilter", filter); err != nil {
		return "", &DiscoveryError{Msg: "failed to set discovery filter", Err: err}
	}

	d.log.Debug("discovery: starting", "target", target)
	if err := d.bus.Call(d.adapter, AdapterInterface, "StartDiscovery"); err != nil {
		return "", &DiscoveryError{Msg: "failed to start discovery", Err: err}
	}

	found, err := d.waitForDevice(ctx, sigCh, devicePath)

	// StopDiscovery is issued on every path that issued StartDiscovery,
	// regardless of the wait outcome.
	if stopErr := d.bus.Call(d.adapter, AdapterInterface, "StopDiscovery"); stopErr != nil {
		d.log.Debug("discovery: StopDiscovery failed (may already be stopped)", "err", stopErr)
	}
	cancel()

	if err != nil {
		return "", err
	}

	// Allow BlueZ to fully release scan state before the subsequent
	// connect attempt; skipping this produces the
	// le-connection-abort-by-local race.
	select {
	case <-time.After(DiscoverySettleDelay):
	case <-ctx.Done():
	}

	return found, nil
}

func (d *Discovery) waitForDevice(ctx context.Context, sigCh <-chan *dbus.Signal, devicePath dbus.ObjectPath) (dbus.ObjectPath, error) {
	timeout := time.NewTimer(DiscoveryTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", &DiscoveryError{Msg: "discovery cancelled", Err: ctx.Err()}
		case <-timeout.C:
			return "", &DiscoveryError{Msg: "device not found within discovery timeout"}
		case sig, ok := <-sigCh:
			if !ok {
				return "", &DiscoveryError{Msg: "signal channel closed before device was found"}
			}
			path, ifaces, ok := decodeInterfacesAdded(sig)
			if !ok {
				// Edge-triggered handler tolerates spurious/malformed
				// signals for unrelated paths.
				continue
			}
			if path != devicePath {
				continue
			}
			if _, hasDevice := ifaces[DeviceInterface]; !hasDevice {
				continue
			}
			d.log.Debug("discovery: device found", "path", path)
			return path, nil
		}
	}
}

func decodeInterfacesAdded(sig *dbus.Signal) (dbus.ObjectPath, map[string]map[string]dbus.Variant, bool) {
	if sig == nil || sig.Name != ObjectManagerInterface+".InterfacesAdded" || len(sig.Body) != 2 {
		return "", nil, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	return path, ifaces, true
}
