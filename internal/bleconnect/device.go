package bleconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Device drives a single BlueZ Device1 object through its bonding
// state machine: existence, pair state, connectivity verification,
// trust, and removal. It is the largest component in this package
// because every state-transition edge case lives here: stale bonds,
// the RF timing race after discovery, and the connect-before-pair
// ordering BLE SMP requires.
type Device struct {
	bus         Bus
	adapterPath dbus.ObjectPath
	path        dbus.ObjectPath
	mac         MAC
	log         *slog.Logger
}

func NewDevice(bus Bus, adapterPath dbus.ObjectPath, mac MAC, log *slog.Logger) *Device {
	return &Device{
		bus:         bus,
		adapterPath: adapterPath,
		path:        mac.DevicePath(adapterPath),
		mac:         mac,
		log:         log,
	}
}

// Path returns the device's D-Bus object path.
func (d *Device) Path() dbus.ObjectPath { return d.path }

// Exists reports whether BlueZ currently has a managed Device1 object
// for this MAC, i.e. it has been seen at least once (by discovery or a
// prior bond) since the adapter last reset its cache. Existence must
// be checked through GetManagedObjects, not introspection: BlueZ can
// answer property calls for paths that are not true managed objects.
func (d *Device) Exists() (bool, error) {
	objs, err := getManagedObjects(d.bus)
	if err != nil {
		return false, &AdapterError{Msg: "failed to enumerate D-Bus objects", Err: err}
	}
	return hasInterface(objs, d.path, DeviceInterface), nil
}

func (d *Device) getBool(name string) (bool, error) {
	v, err := d.bus.GetProperty(d.path, DeviceInterface, name)
	if err != nil {
		return false, fmt.Errorf("failed to read Device1.%s: %w", name, err)
	}
	b, _ := v.Value().(bool)
	return b, nil
}

func (d *Device) IsPaired() (bool, error)    { return d.getBool("Paired") }
func (d *Device) IsTrusted() (bool, error)   { return d.getBool("Trusted") }
func (d *Device) IsConnected() (bool, error) { return d.getBool("Connected") }

// Snapshot recomputes the device's state from BlueZ. The result is a
// value object valid only for the decision it was taken for; callers
// must re-snapshot rather than reuse one across I/O.
func (d *Device) Snapshot() (DeviceSnapshot, error) {
	exists, err := d.Exists()
	if err != nil {
		return DeviceSnapshot{}, err
	}
	if !exists {
		return DeviceSnapshot{}, nil
	}
	paired, err := d.IsPaired()
	if err != nil {
		return DeviceSnapshot{}, err
	}
	trusted, err := d.IsTrusted()
	if err != nil {
		return DeviceSnapshot{}, err
	}
	connected, err := d.IsConnected()
	if err != nil {
		return DeviceSnapshot{}, err
	}
	return DeviceSnapshot{Exists: true, Paired: paired, Trusted: trusted, Connected: connected}, nil
}

func (d *Device) connectOnce() error {
	return d.bus.Call(d.path, DeviceInterface, "Connect")
}

func (d *Device) disconnectOnce() error {
	return d.bus.Call(d.path, DeviceInterface, "Disconnect")
}

// connectWithRetry issues Device1.Connect, retrying with linear
// backoff only when the failure is the le-connection-abort-by-local
// RF timing race that follows a fresh discovery. Any other failure is
// immediate. If the device was already paired, persistent failure is
// reclassified as a stale bond (*BondInvalidError) rather than a
// pairing failure: BlueZ's exact error strings for a remote that lost
// its half of the bond vary across daemon versions, so the paired
// state is the signal, not the error text.
func (d *Device) connectWithRetry(ctx context.Context) error {
	paired, pairedErr := d.IsPaired()

	var lastErr error
	for attempt := 1; attempt <= ConnectRetries; attempt++ {
		err := d.connectOnce()
		if err == nil {
			return nil
		}
		lastErr = err

		if !strings.Contains(err.Error(), connectAbortRace) {
			break
		}

		d.log.Debug("connect: retrying after RF timing race", "attempt", attempt, "err", err)
		wait := time.Duration(attempt) * ConnectRetryBaseWait
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("connect cancelled: %w", ctx.Err())
		}
	}

	// Permission and adapter failures keep their own classification;
	// they say nothing about the bond's validity.
	var permErr *PermissionError
	var adapterErr *AdapterError
	if errors.As(lastErr, &permErr) || errors.As(lastErr, &adapterErr) {
		return lastErr
	}
	if pairedErr == nil && paired {
		return &BondInvalidError{Msg: "connect failed on an already-paired device, bond is likely stale", Err: lastErr}
	}
	return &PairingError{Msg: "failed to connect to device", Err: lastErr}
}

// Verify performs a connect/disconnect round trip against an existing
// bond to confirm it still works, without going through Pair again.
// A connect failure on a paired device is returned as
// *BondInvalidError; permission and adapter errors keep their own
// type, and a cancelled context is returned as a plain wrapped error.
// A failed Disconnect after a successful connect is ignored.
func (d *Device) Verify(ctx context.Context) error {
	d.log.Debug("verify: probing bond with test connect", "device", d.path)
	if err := d.connectWithRetry(ctx); err != nil {
		return err
	}
	if err := d.disconnectOnce(); err != nil {
		d.log.Debug("verify: disconnect after successful connect failed, ignoring", "err", err)
	}
	return nil
}

// Pair runs the full bonding sequence: register the pairing agent,
// connect (BLE SMP runs over an active L2CAP link, so Pair without a
// prior Connect makes BlueZ attempt BR/EDR paging and fail with Page
// Timeout on BLE-only peripherals), call Device1.Pair, then
// disconnect. The agent is always unregistered on exit, success or
// failure, so one call to Pair never leaks an exported agent.
func (d *Device) Pair(ctx context.Context, agent *PairingAgent) error {
	if err := registerAgent(d.bus, agent); err != nil {
		return err
	}
	defer unregisterAgent(d.bus)

	if err := d.connectWithRetry(ctx); err != nil {
		return err
	}

	if err := d.bus.Call(d.path, DeviceInterface, "Pair"); err != nil {
		_ = d.disconnectOnce()
		return &PairingError{Msg: "Device1.Pair failed", Err: err}
	}

	if err := d.disconnectOnce(); err != nil {
		d.log.Debug("pair: disconnect after successful pairing failed, ignoring", "err", err)
	}
	return nil
}

// Trust sets Trusted=true if it is not already set, so future
// reconnects need no operator interaction. Trust is granted only to a
// device whose Paired property reads true at the moment of the set.
func (d *Device) Trust() error {
	paired, err := d.IsPaired()
	if err != nil {
		return err
	}
	if !paired {
		return &PairingError{Msg: "refusing to trust " + d.mac.String() + ": device is not paired"}
	}
	trusted, err := d.IsTrusted()
	if err != nil {
		return err
	}
	if trusted {
		return nil
	}
	if err := d.bus.SetProperty(d.path, DeviceInterface, "Trusted", true); err != nil {
		return fmt.Errorf("failed to set Trusted: %w", err)
	}
	return nil
}

// RemoveIfExists removes the device object from the adapter's cache,
// tolerating the case where it was already gone. A stale bond is
// always removed before re-pairing: BlueZ refuses to re-pair an
// already-Paired device in place.
func (d *Device) RemoveIfExists() error {
	exists, err := d.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := d.bus.Call(d.adapterPath, AdapterInterface, "RemoveDevice", d.path); err != nil {
		if strings.Contains(err.Error(), "DoesNotExist") {
			return nil
		}
		return &PairingError{Msg: "failed to remove stale device", Err: err}
	}
	d.log.Debug("removed device", "device", d.path)
	return nil
}
