package bleconnect

import (
	"context"
	"errors"
	"log/slog"
)

// Orchestrator composes the adapter, discovery, device, and pairing
// agent collaborators into a single idempotent flow: locate and
// prepare the adapter, verify an existing bond or establish a new
// one, and report the outcome. Re-running it against the same device
// converges to the same end state.
//
// Every collaborator here is reached only through the Bus interface,
// so Run can be driven end to end against a fakeBus with no system
// bus or BlueZ daemon present.
type Orchestrator struct {
	bus Bus
	cfg Config
	out *OutputFormatter
	log *slog.Logger
	pin PinSource
}

func NewOrchestrator(bus Bus, cfg Config, out *OutputFormatter, log *slog.Logger, pin PinSource) *Orchestrator {
	return &Orchestrator{bus: bus, cfg: cfg, out: out, log: log, pin: pin}
}

// Run executes the full flow and returns the single terminal Outcome.
// Every failure is folded into an Outcome so the caller can map it to
// an exit code, and the Result: line is emitted on every path.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	o.out.Header(ToolName + " v" + Version)
	o.out.Field("BlueZ", ReadDaemonVersion(ctx))

	adapter, err := LocateAdapter(o.bus)
	if err != nil {
		return o.fail(err)
	}
	if err := adapter.EnsurePowered(); err != nil {
		return o.fail(err)
	}
	if err := adapter.EnsurePairable(); err != nil {
		return o.fail(err)
	}
	if summary, err := adapter.Summary(); err == nil {
		o.out.Field("Adapter", summary)
	}

	device := NewDevice(o.bus, adapter.Path(), o.cfg.MAC, o.log)
	o.out.Field("Device", o.cfg.MAC.String())

	if o.cfg.ForceRepair {
		return o.forceRepair(ctx, device)
	}

	snap, err := device.Snapshot()
	if err != nil {
		return o.fail(err)
	}
	o.out.Field("Bond", snap.BondSummary())

	switch {
	case snap.Exists && snap.Paired:
		o.out.Field("Verify", "testing connection...")
		verifyErr := device.Verify(ctx)
		if verifyErr == nil {
			o.out.Field("Verify", "test connect OK")
			if !o.cfg.CheckOnly {
				if err := device.Trust(); err != nil {
					return o.fail(err)
				}
			}
			o.out.Result(true, "Bond verified - ready to connect")
			return OutcomeVerified
		}
		var bondInvalid *BondInvalidError
		if !errors.As(verifyErr, &bondInvalid) {
			return o.fail(verifyErr)
		}
		o.out.Field("Verify", "test connect FAILED - bond is invalid")
		if o.cfg.CheckOnly {
			// check-only reports but never mutates: the invalid bond
			// is left in place for a later repair run.
			o.out.Result(false, "No valid bond present")
			return OutcomeNoBond
		}
		if err := device.RemoveIfExists(); err != nil {
			return o.fail(err)
		}
		o.out.Field("Cleanup", "removed invalid bond")

	case snap.Exists:
		if o.cfg.CheckOnly {
			o.out.Result(false, "No valid bond present")
			return OutcomeNoBond
		}
		// Stale cache entry: remove it so the discovery below is a
		// real BLE scan rather than a dead managed-object replay.
		if err := device.RemoveIfExists(); err != nil {
			return o.fail(err)
		}
		o.out.Verbose("removed stale device entry for clean discovery")

	default:
		if o.cfg.CheckOnly {
			o.out.Result(false, "No valid bond present")
			return OutcomeNoBond
		}
	}

	return o.pairFlow(ctx, device, "Bond established - ready to connect")
}

// forceRepair skips verification entirely: remove whatever bond state
// exists, then pair from scratch.
func (o *Orchestrator) forceRepair(ctx context.Context, device *Device) Outcome {
	o.out.Field("Mode", "force-repair")
	if err := device.RemoveIfExists(); err != nil {
		return o.fail(err)
	}
	o.out.Field("Cleanup", "removed existing bond")
	return o.pairFlow(ctx, device, "Re-paired - ready to connect")
}

// pairFlow runs discovery, pairing, and trust for a device BlueZ does
// not currently hold a bond for. Every path that reaches it has
// either removed the device or never had it, so discovery always
// performs a real scan.
func (o *Orchestrator) pairFlow(ctx context.Context, device *Device, resultMsg string) Outcome {
	pin, err := o.pin.PIN()
	if err != nil {
		return o.fail(err)
	}

	discovery := NewDiscovery(o.bus, device.adapterPath, o.log)
	if _, err := discovery.Discover(ctx, o.cfg.MAC); err != nil {
		return o.fail(err)
	}
	o.out.Field("Scan", "device found")

	agent := NewPairingAgent(pin, o.log)
	if err := device.Pair(ctx, agent); err != nil {
		return o.fail(err)
	}
	o.out.Field("Pairing", "success")

	if err := device.Trust(); err != nil {
		return o.fail(err)
	}
	o.out.Field("Trusted", "set")

	o.out.Result(true, resultMsg)
	return OutcomePaired
}

// fail reports err on stderr, closes the stdout report with a Result:
// line, and maps the error kind to the terminal Outcome.
func (o *Orchestrator) fail(err error) Outcome {
	o.out.Error(err.Error())
	outcome := o.classify(err)
	o.out.Result(false, failureLine(outcome))
	return outcome
}

// classify maps an error raised by a collaborator onto the Outcome
// taxonomy. PermissionError and AdapterError carry their own Outcome
// regardless of where they surface; anything else is a pairing
// failure, the taxonomy's catch-all. BondInvalid never reaches here:
// it is consumed inside Run and drives removal plus re-pairing.
func (o *Orchestrator) classify(err error) Outcome {
	var permErr *PermissionError
	if errors.As(err, &permErr) {
		return OutcomePermissionError
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return OutcomeAdapterError
	}
	return OutcomePairingFailed
}

func failureLine(outcome Outcome) string {
	switch outcome {
	case OutcomePermissionError:
		return "Permission denied"
	case OutcomeAdapterError:
		return "Adapter error"
	case OutcomeNoBond:
		return "No valid bond present"
	default:
		return "Pairing failed"
	}
}
