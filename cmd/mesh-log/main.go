// Command mesh-log views and analyzes mesh capture files.
//
// Capture files are written by mesh-device when started with -capture.
//
// Usage:
//
//	mesh-log <command> [flags] <file.mlog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	mesh-log view device.mlog
//
//	# View only On/Off Set messages received by element 1
//	mesh-log view --direction in --element 1 --opcode 8202 device.mlog
//
//	# Export to CSV
//	mesh-log export --format csv -o device.csv device.mlog
//
//	# Keep the sensor server traffic of one hour
//	mesh-log filter --model 1100 --time-start 2026-05-01T08:00:00Z \
//	    --time-end 2026-05-01T09:00:00Z -o sensor.mlog device.mlog
//
//	# Show statistics
//	mesh-log stats device.mlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mash-protocol/meshmodel/cmd/mesh-log/commands"
)

const usage = `mesh-log - Mesh Capture Analyzer

Usage:
  mesh-log <command> [flags] <file.mlog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "mesh-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "mesh-log %s - %s\n\nUsage:\n  mesh-log %s %s\n\nFlags:\n", name, synopsis, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// filterFlags registers the event selection flags shared by view and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var opts commands.FilterOptions
	fs.StringVar(&opts.NodeID, "node-id", "", "Filter by node UUID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (network, access, application)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, publication, config, state, error)")
	fs.StringVar(&opts.Element, "element", "", "Filter by element index")
	fs.StringVar(&opts.Model, "model", "", "Filter by model id (hex)")
	fs.StringVar(&opts.Opcode, "opcode", "", "Filter by message opcode (hex)")
	return &opts
}

// capturePath returns the single positional argument or exits.
func capturePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format", "[flags] <file.mlog>")
	opts := filterFlags(fs)
	path := capturePath(fs, args)

	filter, err := commands.BuildFilter(*opts)
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file to JSONL or CSV format", "[flags] <file.mlog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := capturePath(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to new file", "[flags] <file.mlog>")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)
	path := capturePath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}
	if err := commands.RunFilter(path, *output, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file", "<file.mlog>")
	path := capturePath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
