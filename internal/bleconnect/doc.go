// Package bleconnect guarantees a BLE bond between the host's Bluetooth
// adapter and a target peripheral before a downstream application
// attempts GATT communication. It talks to BlueZ exclusively over the
// system D-Bus; it never touches GATT itself.
//
// The orchestrator in orchestrator.go composes an adapter controller, a
// discovery engine, a transient pairing agent, and a device controller
// to bring a device from "unknown" to "paired and trusted" with a
// minimum of D-Bus round trips, converging to the same end state no
// matter how many times it is re-run against the same device.
package bleconnect
