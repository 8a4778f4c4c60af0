package bleconnect

import "fmt"

// ArgumentError signals a malformed CLI argument (currently just an
// invalid MAC address). It maps to a non-zero exit outside the
// reserved 0-4 exit code taxonomy.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

// AdapterError: adapter missing, or Powered/Pairable could not be set
// true. Maps to ExitAdapterError.
type AdapterError struct {
	Msg string
	Err error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *AdapterError) Unwrap() error { return e.Err }

// DiscoveryError: the target was not seen within the discovery
// timeout. The orchestrator folds this into ExitPairingFailed.
type DiscoveryError struct {
	Msg string
	Err error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// PairingError: connect or pair failed in a way not classified as a
// stale-bond signal. Maps to ExitPairingFailed.
type PairingError struct {
	Msg string
	Err error
}

func (e *PairingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PairingError) Unwrap() error { return e.Err }

// BondInvalidError signals that the remote lost its half of the bond:
// a connect failed against a device whose Paired property was true.
// It never crosses the orchestrator boundary: caught internally and
// turned into a remove-then-repair cycle.
type BondInvalidError struct {
	Msg string
	Err error
}

func (e *BondInvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *BondInvalidError) Unwrap() error { return e.Err }

// PermissionError: denied access to the system bus or a privileged
// BlueZ method. Maps to ExitDbusPermission.
type PermissionError struct {
	Msg string
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PermissionError) Unwrap() error { return e.Err }
