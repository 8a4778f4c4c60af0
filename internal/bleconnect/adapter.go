package bleconnect

import (
	"context"
	"os/exec"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Adapter manages the local Bluetooth adapter: locating it, and
// bringing its Powered/Pairable properties into a usable state.
// Every ensure* operation is idempotent: a no-op if the precondition
// already holds.
type Adapter struct {
	bus  Bus
	path dbus.ObjectPath
}

// LocateAdapter enumerates managed objects and returns the first path,
// in sorted path order, whose interfaces include org.bluez.Adapter1.
func LocateAdapter(bus Bus) (*Adapter, error) {
	objs, err := getManagedObjects(bus)
	if err != nil {
		return nil, &AdapterError{Msg: "failed to enumerate D-Bus objects", Err: err}
	}
	var paths []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[AdapterInterface]; ok {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil, &AdapterError{Msg: "no Bluetooth adapter found: is Bluetooth enabled?"}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return &Adapter{bus: bus, path: paths[0]}, nil
}

// Path returns the adapter's D-Bus object path, e.g. /org/bluez/hci0.
func (a *Adapter) Path() dbus.ObjectPath { return a.path }

func (a *Adapter) getBool(name string) (bool, error) {
	v, err := a.bus.GetProperty(a.path, AdapterInterface, name)
	if err != nil {
		return false, &AdapterError{Msg: "failed to read " + name, Err: err}
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, &AdapterError{Msg: "unexpected type for " + name}
	}
	return b, nil
}

// EnsurePowered sets Powered=true if it is not already, re-reading to
// confirm the write took effect.
func (a *Adapter) EnsurePowered() error {
	return a.ensureBool("Powered")
}

// EnsurePairable sets Pairable=true if it is not already.
func (a *Adapter) EnsurePairable() error {
	return a.ensureBool("Pairable")
}

func (a *Adapter) ensureBool(name string) error {
	current, err := a.getBool(name)
	if err != nil {
		return err
	}
	if current {
		return nil
	}
	if err := a.bus.SetProperty(a.path, AdapterInterface, name, true); err != nil {
		return &AdapterError{Msg: "failed to set " + name, Err: err}
	}
	confirmed, err := a.getBool(name)
	if err != nil {
		return err
	}
	if !confirmed {
		return &AdapterError{Msg: name + " remained false after being set"}
	}
	return nil
}

// Summary returns a human-readable adapter status line, e.g.
// "hci0 (powered, pairable)", for the stdout Adapter: field.
func (a *Adapter) Summary() (string, error) {
	powered, err := a.getBool("Powered")
	if err != nil {
		return "", err
	}
	pairable, err := a.getBool("Pairable")
	if err != nil {
		return "", err
	}
	var flags []string
	if powered {
		flags = append(flags, "powered")
	}
	if pairable {
		flags = append(flags, "pairable")
	}
	name := string(a.path)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	flagStr := "inactive"
	if len(flags) > 0 {
		flagStr = strings.Join(flags, ", ")
	}
	return name + " (" + flagStr + ")", nil
}

// ReadDaemonVersion reads the BlueZ daemon version, purely for the
// informational BlueZ: header field. BlueZ exposes no stable D-Bus
// property for this, so it shells out to bluetoothctl --version and
// parses the "bluetoothctl: 5.82" form; any failure (binary missing,
// unexpected output) yields "unknown" rather than failing the run.
func ReadDaemonVersion(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "bluetoothctl", "--version").Output()
	if err != nil {
		return "unknown"
	}
	line := strings.TrimSpace(string(out))
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	if line == "" {
		return "unknown"
	}
	return line
}
