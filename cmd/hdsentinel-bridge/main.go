// hdsentinel-bridge publishes Hard Disk Sentinel telemetry to MQTT.
//
// On a fixed interval it obtains the HDSentinel XML report (either by
// running the binary or reading a pre-generated file), maps the raw
// fields to typed sensor readings via a declarative schema, and
// publishes Home Assistant discovery and state messages so every disk
// appears as a native HA device. Configuration comes entirely from
// environment variables (see internal/config).
//
// Usage:
//
//	hdsentinel-bridge run        Start the bridge daemon
//	hdsentinel-bridge once       Run a single poll cycle and exit
//	hdsentinel-bridge status [disk [sensor]]    Print last published values
//	hdsentinel-bridge forget <disk>             Drop stored values for a disk
//	hdsentinel-bridge init       Print an example sensor schema
//	hdsentinel-bridge version    Print version and build information
//	hdsentinel-bridge -o json version    Output version info as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/hdsentinel-bridge/examples"
	"github.com/nugget/hdsentinel-bridge/internal/buildinfo"
	"github.com/nugget/hdsentinel-bridge/internal/config"
	"github.com/nugget/hdsentinel-bridge/internal/connwatch"
	"github.com/nugget/hdsentinel-bridge/internal/history"
	"github.com/nugget/hdsentinel-bridge/internal/mqtt"
	"github.com/nugget/hdsentinel-bridge/internal/poller"
	"github.com/nugget/hdsentinel-bridge/internal/sensor"
	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates immediately to
// [run], keeping os.Exit, os.Stdout, and os.Args out of the
// application logic so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals (flag.CommandLine), which
// interferes with parallel tests, and the argument surface here is
// tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		case command == "":
			command = args[i]
		default:
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	if len(cmdArgs) > 0 && command != "status" && command != "forget" {
		return fmt.Errorf("unexpected argument: %s", cmdArgs[0])
	}

	switch command {
	case "run", "":
		return runBridge(ctx, stdout, outputFmt, false)
	case "once":
		return runBridge(ctx, stdout, outputFmt, true)
	case "status":
		return runStatus(stdout, outputFmt, cmdArgs)
	case "forget":
		return runForget(stdout, cmdArgs)
	case "init":
		_, err := stdout.Write(examples.SensorsYAML)
		return err
	case "version":
		return printVersion(stdout, outputFmt)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", command)
		return printUsage(stdout)
	}
}

// runBridge wires the components and runs the poll loop. With once set
// it executes a single cycle and exits, which is handy for smoke
// testing a deployment without waiting out the interval.
func runBridge(ctx context.Context, stdout io.Writer, outputFmt string, once bool) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	level, err := cfg.LogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger := newLogger(stdout, level, outputFmt)
	slog.SetDefault(logger)

	logger.Info(buildinfo.String())
	logger.Info("bridge starting",
		"broker", cfg.BrokerURL(),
		"base_topic", cfg.BaseTopic,
		"interval", cfg.Interval.String(),
		"external_source", cfg.ExternalSource(),
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	schema, err := sensor.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger.Debug("sensor schema loaded", "sensors", len(schema.Sensors))

	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("instance ID: %w", err)
	}

	store, err := history.NewStore(cfg.DataDir + "/last_values.db")
	if err != nil {
		return fmt.Errorf("open last-value store: %w", err)
	}
	defer store.Close()

	source := sentinel.NewSource(cfg.ToolPath, cfg.OutputPath, cfg.XMLPath, cfg.ToolTimeout, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// every component.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pub := mqtt.New(cfg, instanceID, logger)
	if err := pub.Start(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	defer func() {
		// Publish offline status before disconnecting, bounded so a
		// dead broker cannot hang shutdown.
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := pub.Stop(stopCtx); err != nil {
			logger.Error("mqtt shutdown failed", "error", err)
		}
	}()

	p := poller.New(source, schema, pub, store, cfg.Interval, logger)

	if once {
		if err := p.Cycle(ctx); err != nil {
			return fmt.Errorf("poll cycle: %w", err)
		}
		return nil
	}

	watcher := connwatch.Watch(ctx,
		func(pCtx context.Context) error {
			awaitCtx, awaitCancel := context.WithTimeout(pCtx, 2*time.Second)
			defer awaitCancel()
			return pub.AwaitConnection(awaitCtx)
		},
		connwatch.DefaultBackoff(), nil, nil, logger)
	defer watcher.Stop()

	p.Run(ctx)

	logger.Info("bridge stopped")
	return nil
}

// runStatus prints last published values from the on-disk store,
// without touching the broker or the tool. With no arguments it dumps
// every known entity; a disk argument narrows to one disk, and a disk
// plus sensor argument prints the single raw value.
func runStatus(stdout io.Writer, outputFmt string, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	store, err := history.NewStore(cfg.DataDir + "/last_values.db")
	if err != nil {
		return fmt.Errorf("open last-value store: %w", err)
	}
	defer store.Close()

	switch len(args) {
	case 0:
		// Fall through to the full dump below.
	case 1:
		values, err := store.DiskValues(args[0])
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return fmt.Errorf("no recorded values for disk %q", args[0])
		}
		return printDiskValues(stdout, outputFmt, args[0], values)
	case 2:
		value, err := store.Last(args[0], args[1])
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("no recorded value for %s/%s", args[0], args[1])
		}
		fmt.Fprintln(stdout, value)
		return nil
	default:
		return fmt.Errorf("usage: hdsentinel-bridge status [disk [sensor]]")
	}

	disks, err := store.Disks()
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		out := make(map[string]map[string]string, len(disks))
		for _, d := range disks {
			values, err := store.DiskValues(d)
			if err != nil {
				return err
			}
			out[d] = values
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, d := range disks {
		values, err := store.DiskValues(d)
		if err != nil {
			return err
		}
		printDiskBlock(stdout, d, values)
	}
	return nil
}

func printDiskValues(stdout io.Writer, outputFmt, disk string, values map[string]string) error {
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]map[string]string{disk: values})
	}
	printDiskBlock(stdout, disk, values)
	return nil
}

func printDiskBlock(stdout io.Writer, disk string, values map[string]string) {
	fmt.Fprintf(stdout, "%s\n", disk)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(stdout, "  %-24s %s\n", k, values[k])
	}
}

// runForget drops all stored values for a disk that has been removed
// from the machine, so status output stops listing it.
func runForget(stdout io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hdsentinel-bridge forget <disk>")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	store, err := history.NewStore(cfg.DataDir + "/last_values.db")
	if err != nil {
		return fmt.Errorf("open last-value store: %w", err)
	}
	defer store.Close()

	if err := store.Forget(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "forgot %s\n", args[0])
	return nil
}

func printVersion(stdout io.Writer, outputFmt string) error {
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(buildinfo.Info())
	}
	fmt.Fprintln(stdout, buildinfo.String())
	return nil
}

func printUsage(stdout io.Writer) error {
	fmt.Fprint(stdout, `hdsentinel-bridge - Hard Disk Sentinel to MQTT bridge

Usage:
  hdsentinel-bridge [flags] <command>

Commands:
  run                      Start the bridge daemon (default)
  once                     Run a single poll cycle and exit
  status [disk [sensor]]   Print last published values
  forget <disk>            Drop stored values for a removed disk
  init                     Print an example sensor schema (redirect to sensors.yaml)
  version                  Print version and build information

Flags:
  -o, --output <text|json>   Output format for logs and command output
  -h, --help                 Show this help
`)
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. All log output goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
