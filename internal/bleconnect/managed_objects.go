package bleconnect

import "github.com/godbus/dbus/v5"

// managedObjects is the decoded shape of
// org.freedesktop.DBus.ObjectManager.GetManagedObjects: a path-indexed
// map of interface name to its property bag.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// getManagedObjects calls GetManagedObjects on the BlueZ root object.
// Device existence checks must go through this rather than
// introspection or a cached property read: BlueZ's introspection XML
// is not reliable across versions for paths that are not true managed
// objects.
func getManagedObjects(bus Bus) (managedObjects, error) {
	var objs managedObjects
	if err := bus.CallWithReturn("/", ObjectManagerInterface, "GetManagedObjects", &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

func hasInterface(objs managedObjects, path dbus.ObjectPath, iface string) bool {
	ifaces, ok := objs[path]
	if !ok {
		return false
	}
	_, ok = ifaces[iface]
	return ok
}
