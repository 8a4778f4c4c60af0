package bleconnect

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Bus is the transport abstraction every other component in this
// package is built against. Using an interface instead of *dbus.Conn
// directly lets the orchestrator and its collaborators be driven in
// tests by a fakeBus with no real system bus or BlueZ daemon present;
// see fakebus_test.go and orchestrator_test.go.
//
// Every method presents a suspend-to-completion contract: callers
// block until the reply (or error) is available, even though the
// underlying transport is asynchronous.
type Bus interface {
	// Call invokes a method that returns no values of interest.
	Call(path dbus.ObjectPath, iface, method string, args ...any) error

	// CallWithReturn invokes a method and decodes its reply into ret,
	// which must be a pointer (or a list of pointers via a struct) in
	// the shape godbus/dbus expects for Store.
	CallWithReturn(path dbus.ObjectPath, iface, method string, ret any, args ...any) error

	// GetProperty reads a single property via org.freedesktop.DBus.Properties.
	GetProperty(path dbus.ObjectPath, iface, name string) (dbus.Variant, error)

	// SetProperty writes a single property via org.freedesktop.DBus.Properties.
	SetProperty(path dbus.ObjectPath, iface, name string, value any) error

	// Subscribe installs a raw AddMatch rule and returns a channel of
	// every signal this connection receives (not filtered to the rule
	// by the client library: callers filter by Name/Path themselves).
	// The returned cancel func removes the match and releases the
	// channel; it is safe to call more than once.
	Subscribe(matchRule string) (ch <-chan *dbus.Signal, cancel func(), err error)

	// Export publishes v at path under iface so the daemon can call
	// back into it (used for the pairing agent). A nil v unexports.
	Export(v any, path dbus.ObjectPath, iface string) error

	// Unexport is a convenience wrapper for Export(nil, path, iface).
	Unexport(path dbus.ObjectPath, iface string) error

	// UniqueName returns this connection's bus-assigned unique name.
	UniqueName() string

	Close() error
}

// dbusBus is the production Bus backed by github.com/godbus/dbus/v5.
// Every Call, CallWithReturn, GetProperty and SetProperty is traced at
// debug level so --verbose shows the BlueZ method and property traffic;
// the AddMatch/RemoveMatch calls of Subscribe and Export are not traced.
type dbusBus struct {
	conn *dbus.Conn
	log  *slog.Logger
}

// ConnectSystemBus opens the system bus connection used for all BlueZ
// traffic. Connection failure and AccessDenied responses are both
// classified as *PermissionError, since neither is recoverable without
// operator intervention (running as root, or group membership).
func ConnectSystemBus(log *slog.Logger) (Bus, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, &PermissionError{Msg: "cannot connect to D-Bus system bus (are you root or in the bluetooth group?)", Err: err}
	}
	return &dbusBus{conn: conn, log: log}, nil
}

func (b *dbusBus) object(path dbus.ObjectPath) dbus.BusObject {
	return b.conn.Object(BlueZService, path)
}

func classifyCallErr(iface, method string, err error) error {
	if err == nil {
		return nil
	}
	if dbusErr, ok := err.(dbus.Error); ok && strings.Contains(dbusErr.Name, "AccessDenied") {
		return &PermissionError{Msg: fmt.Sprintf("access denied calling %s.%s", iface, method), Err: err}
	}
	return fmt.Errorf("%s.%s: %w", iface, method, err)
}

func (b *dbusBus) Call(path dbus.ObjectPath, iface, method string, args ...any) error {
	b.log.Debug("dbus call", "path", path, "method", iface+"."+method)
	call := b.object(path).Call(iface+"."+method, 0, args...)
	return classifyCallErr(iface, method, call.Err)
}

func (b *dbusBus) CallWithReturn(path dbus.ObjectPath, iface, method string, ret any, args ...any) error {
	b.log.Debug("dbus call", "path", path, "method", iface+"."+method)
	call := b.object(path).Call(iface+"."+method, 0, args...)
	if call.Err != nil {
		return classifyCallErr(iface, method, call.Err)
	}
	if ret == nil {
		return nil
	}
	if err := call.Store(ret); err != nil {
		return fmt.Errorf("%s.%s: decode reply: %w", iface, method, err)
	}
	return nil
}

func (b *dbusBus) GetProperty(path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	b.log.Debug("dbus get", "path", path, "property", iface+"."+name)
	var v dbus.Variant
	call := b.object(path).Call(PropertiesInterface+".Get", 0, iface, name)
	if call.Err != nil {
		return v, classifyCallErr(PropertiesInterface, "Get("+iface+"."+name+")", call.Err)
	}
	if err := call.Store(&v); err != nil {
		return v, fmt.Errorf("Properties.Get(%s.%s): decode reply: %w", iface, name, err)
	}
	return v, nil
}

func (b *dbusBus) SetProperty(path dbus.ObjectPath, iface, name string, value any) error {
	b.log.Debug("dbus set", "path", path, "property", iface+"."+name, "value", value)
	call := b.object(path).Call(PropertiesInterface+".Set", 0, iface, name, dbus.MakeVariant(value))
	return classifyCallErr(PropertiesInterface, "Set("+iface+"."+name+")", call.Err)
}

func (b *dbusBus) Subscribe(matchRule string) (<-chan *dbus.Signal, func(), error) {
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		return nil, nil, fmt.Errorf("AddMatch(%s): %w", matchRule, err)
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	cancelled := false
	cancel := func() {
		if cancelled {
			return
		}
		cancelled = true
		b.conn.RemoveSignal(ch)
		_ = b.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule).Err
		close(ch)
	}
	return ch, cancel, nil
}

func (b *dbusBus) Export(v any, path dbus.ObjectPath, iface string) error {
	return b.conn.Export(v, path, iface)
}

func (b *dbusBus) Unexport(path dbus.ObjectPath, iface string) error {
	return b.conn.Export(nil, path, iface)
}

func (b *dbusBus) UniqueName() string {
	names := b.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (b *dbusBus) Close() error {
	return b.conn.Close()
}
