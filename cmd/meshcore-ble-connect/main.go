// Command meshcore-ble-connect bonds a MeshCore BLE node to the local
// Bluetooth adapter via BlueZ's D-Bus API: it brings the adapter up,
// discovers the target if needed, verifies or establishes a pairing
// bond, and trusts the device so future reconnects need no operator
// interaction. It performs no GATT or RFCOMM I/O of its own; that is
// the job of whatever service uses the bond this tool establishes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/pe1hvh/meshcore-ble-connect/internal/bleconnect"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet(bleconnect.ToolName, pflag.ContinueOnError)
	pin := flags.String("pin", "", "pairing PIN/passkey; prompted interactively if omitted")
	checkOnly := flags.Bool("check-only", false, "report bond state without pairing or repairing")
	forceRepair := flags.Bool("force-repair", false, "remove any existing bond and pair again from scratch")
	verbose := flags.BoolP("verbose", "v", false, "print diagnostic detail to stdout and enable debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")
	help := flags.BoolP("help", "h", false, "print usage and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return int(bleconnect.ExitUsage)
	}

	if *help {
		fmt.Printf("usage: %s [flags] <MAC address>\n\n", bleconnect.ToolName)
		flags.PrintDefaults()
		return 0
	}
	if *showVersion {
		fmt.Println(bleconnect.ToolName, "v"+bleconnect.Version)
		return 0
	}
	if *checkOnly && *forceRepair {
		fmt.Fprintln(os.Stderr, "error: --check-only and --force-repair are mutually exclusive")
		return int(bleconnect.ExitUsage)
	}
	if flags.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <MAC address>\n", bleconnect.ToolName)
		return int(bleconnect.ExitUsage)
	}

	mac, err := bleconnect.ParseMAC(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return int(bleconnect.ExitUsage)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := bleconnect.Config{
		MAC:         mac,
		PIN:         *pin,
		HasPIN:      *pin != "",
		CheckOnly:   *checkOnly,
		ForceRepair: *forceRepair,
		Verbose:     *verbose,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Debug("signal received, cancelling")
		cancel()
	}()

	out := bleconnect.NewOutputFormatter(os.Stdout, os.Stderr, cfg.Verbose)

	bus, err := bleconnect.ConnectSystemBus(logger)
	if err != nil {
		out.Error(err.Error())
		out.Result(false, "Permission denied")
		return int(bleconnect.ExitDbusPermission)
	}
	defer bus.Close()

	var pinSource bleconnect.PinSource
	if cfg.HasPIN {
		pinSource = bleconnect.NewStaticPinSource(cfg.PIN)
	} else {
		pinSource = bleconnect.NewInteractivePinSource(os.Stdin, os.Stdout)
	}

	orch := bleconnect.NewOrchestrator(bus, cfg, out, logger, pinSource)
	outcome := orch.Run(ctx)
	return int(outcome.ExitCode())
}
