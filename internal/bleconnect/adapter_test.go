package bleconnect

import (
	"errors"
	"testing"
)

func TestLocateAdapter(t *testing.T) {
	t.Run("finds the adapter path", func(t *testing.T) {
		bus := newFakeBus()
		bus.addManaged("/org/bluez/hci0", AdapterInterface)
		a, err := LocateAdapter(bus)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Path() != "/org/bluez/hci0" {
			t.Fatalf("Path = %q, want /org/bluez/hci0", a.Path())
		}
	})

	t.Run("no adapter present", func(t *testing.T) {
		bus := newFakeBus()
		_, err := LocateAdapter(bus)
		var adapterErr *AdapterError
		if !errors.As(err, &adapterErr) {
			t.Fatalf("expected *AdapterError, got %T: %v", err, err)
		}
	})
}

func TestAdapterEnsurePoweredIdempotent(t *testing.T) {
	bus := newFakeBus()
	bus.addManaged("/org/bluez/hci0", AdapterInterface)
	bus.setProp("/org/bluez/hci0", AdapterInterface, "Powered", true)
	a, err := LocateAdapter(bus)
	if err != nil {
		t.Fatalf("LocateAdapter: %v", err)
	}

	if err := a.EnsurePowered(); err != nil {
		t.Fatalf("EnsurePowered: %v", err)
	}
	powered, err := a.getBool("Powered")
	if err != nil {
		t.Fatalf("getBool: %v", err)
	}
	if !powered {
		t.Fatal("expected Powered to remain true")
	}
}

func TestAdapterEnsurePoweredSetsWhenOff(t *testing.T) {
	bus := newFakeBus()
	bus.addManaged("/org/bluez/hci0", AdapterInterface)
	a, err := LocateAdapter(bus)
	if err != nil {
		t.Fatalf("LocateAdapter: %v", err)
	}

	if err := a.EnsurePowered(); err != nil {
		t.Fatalf("EnsurePowered: %v", err)
	}
	powered, err := a.getBool("Powered")
	if err != nil {
		t.Fatalf("getBool: %v", err)
	}
	if !powered {
		t.Fatal("expected Powered to be true after EnsurePowered")
	}
}

func TestAdapterSummary(t *testing.T) {
	bus := newFakeBus()
	bus.addManaged("/org/bluez/hci0", AdapterInterface)
	bus.setProp("/org/bluez/hci0", AdapterInterface, "Powered", true)
	bus.setProp("/org/bluez/hci0", AdapterInterface, "Pairable", true)
	a, err := LocateAdapter(bus)
	if err != nil {
		t.Fatalf("LocateAdapter: %v", err)
	}
	summary, err := a.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary != "hci0 (powered, pairable)" {
		t.Fatalf("Summary = %q", summary)
	}
}
