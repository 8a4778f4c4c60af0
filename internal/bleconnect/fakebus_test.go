package bleconnect

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// fakeBus is an in-memory Bus double. It carries no real D-Bus
// connection, so every test in this package runs with no system bus
// or BlueZ daemon present: the reason Bus is an interface in the
// first place.
type fakeBus struct {
	mu sync.Mutex

	managed  managedObjects
	props    map[dbus.ObjectPath]map[string]map[string]any
	callErrs map[string][]error
	calls    []string
	exported map[string]any
	sigCh    chan *dbus.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		managed:  managedObjects{},
		props:    map[dbus.ObjectPath]map[string]map[string]any{},
		callErrs: map[string][]error{},
		exported: map[string]any{},
		sigCh:    make(chan *dbus.Signal, 16),
	}
}

func callKey(iface, method string) string { return iface + "." + method }

func (f *fakeBus) setProp(path dbus.ObjectPath, iface, name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.props[path] == nil {
		f.props[path] = map[string]map[string]any{}
	}
	if f.props[path][iface] == nil {
		f.props[path][iface] = map[string]any{}
	}
	f.props[path][iface][name] = value
}

func (f *fakeBus) addManaged(path dbus.ObjectPath, iface string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.managed[path] == nil {
		f.managed[path] = map[string]map[string]dbus.Variant{}
	}
	f.managed[path][iface] = map[string]dbus.Variant{}
}

// failNextCall queues err to be returned by the next matching Call or
// CallWithReturn; queuing it again before it is consumed stacks a
// second failure behind the first.
func (f *fakeBus) failNextCall(iface, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := callKey(iface, method)
	f.callErrs[key] = append(f.callErrs[key], err)
}

func (f *fakeBus) popCallErr(key string) error {
	q := f.callErrs[key]
	if len(q) == 0 {
		return nil
	}
	f.callErrs[key] = q[1:]
	return q[0]
}

func (f *fakeBus) Call(path dbus.ObjectPath, iface, method string, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, callKey(iface, method))
	err := f.popCallErr(callKey(iface, method))
	f.mu.Unlock()

	if err != nil {
		return err
	}

	switch {
	case iface == AdapterInterface && method == "RemoveDevice":
		// Real BlueZ drops all state for a removed device; a
		// rediscovered device starts unpaired and untrusted again.
		devPath, _ := args[0].(dbus.ObjectPath)
		f.mu.Lock()
		delete(f.managed, devPath)
		delete(f.props, devPath)
		f.mu.Unlock()
	case iface == DeviceInterface && method == "Pair":
		// A successful SMP handshake leaves the device paired.
		f.setProp(path, DeviceInterface, "Paired", true)
	}
	return nil
}

func (f *fakeBus) CallWithReturn(path dbus.ObjectPath, iface, method string, ret any, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, callKey(iface, method))
	err := f.popCallErr(callKey(iface, method))
	f.mu.Unlock()

	if err != nil {
		return err
	}

	if method == "GetManagedObjects" {
		if out, ok := ret.(*managedObjects); ok {
			// Copy so callers iterating the result never race with a
			// test goroutine mutating the fake mid-run.
			f.mu.Lock()
			cp := managedObjects{}
			for p, ifaces := range f.managed {
				cp[p] = ifaces
			}
			f.mu.Unlock()
			*out = cp
		}
	}
	return nil
}

func (f *fakeBus) GetProperty(path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var v any
	if byIface, ok := f.props[path]; ok {
		v = byIface[iface][name]
	}
	if v == nil {
		v = false
	}
	return dbus.MakeVariant(v), nil
}

func (f *fakeBus) SetProperty(path dbus.ObjectPath, iface, name string, value any) error {
	f.setProp(path, iface, name, value)
	return nil
}

func (f *fakeBus) Subscribe(matchRule string) (<-chan *dbus.Signal, func(), error) {
	f.mu.Lock()
	f.calls = append(f.calls, "Subscribe")
	f.mu.Unlock()
	return f.sigCh, func() {}, nil
}

func (f *fakeBus) Export(v any, path dbus.ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(path) + "#" + iface
	if v == nil {
		delete(f.exported, key)
		return nil
	}
	f.exported[key] = v
	return nil
}

func (f *fakeBus) Unexport(path dbus.ObjectPath, iface string) error {
	return f.Export(nil, path, iface)
}

func (f *fakeBus) isExported(path dbus.ObjectPath, iface string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.exported[string(path)+"#"+iface]
	return ok
}

func (f *fakeBus) UniqueName() string { return ":1.1" }

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) callCount(iface, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	key := callKey(iface, method)
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

var _ Bus = (*fakeBus)(nil)
