// fvm - run, inspect and trace flatvm program images
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/flatvm/manifest"
	"github.com/chazu/flatvm/vm/image"
)

// options holds the resolved configuration of one invocation.
type options struct {
	cfg      *manifest.Manifest
	format   image.Format
	traceDB  string // "" disables tracing
	output   string
	maxSteps uint64
}

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors only, higher is chattier)")
	configPath := flag.String("config", "", "Configuration file (default: nearest flatvm.toml)")
	maxSteps := flag.Uint64("max-steps", 0, "Stop after this many steps (0 = unlimited)")
	traceDB := flag.String("trace-db", "", "Record every step into this SQLite database")
	format := flag.String("format", "", "Image format for written images: binary or cbor")
	output := flag.String("o", "", "Output path for demo")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fvm [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [image]      Run an image and print the halting value\n")
		fmt.Fprintf(os.Stderr, "  dump [image]     Run an image and print the frame chain\n")
		fmt.Fprintf(os.Stderr, "  disasm [image]   Print a listing of an image\n")
		fmt.Fprintf(os.Stderr, "  demo             Write the nested-object demo program\n")
		fmt.Fprintf(os.Stderr, "  init             Write a default flatvm.toml here\n")
		fmt.Fprintf(os.Stderr, "  trace [run-id]   List recorded runs, or print the steps of one\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fvm -o demo.fvm demo                  # Write the demo image\n")
		fmt.Fprintf(os.Stderr, "  fvm run demo.fvm                      # Run it\n")
		fmt.Fprintf(os.Stderr, "  fvm -trace-db t.db run demo.fvm       # Run and record each step\n")
		fmt.Fprintf(os.Stderr, "  fvm -trace-db t.db trace              # List recorded runs\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line override the configuration file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["v"] {
		cfg.Log.Verbosity = *verbosity
	}
	if set["max-steps"] {
		cfg.Machine.MaxSteps = *maxSteps
	}
	if set["format"] {
		cfg.Image.Format = *format
	}

	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logPath)

	opts := &options{cfg: cfg, output: *output, maxSteps: cfg.Machine.MaxSteps}
	if opts.format, err = image.ParseFormat(cfg.Image.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	switch {
	case set["trace-db"]:
		opts.traceDB = *traceDB
	case cfg.Trace.Enabled:
		opts.traceDB = cfg.TraceDBPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := dispatch(ctx, opts, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(code)
}

// loadConfig reads an explicit configuration file, or the nearest
// flatvm.toml, or falls back to defaults.
func loadConfig(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg = manifest.Default(wd)
	}
	return cfg, nil
}

func dispatch(ctx context.Context, opts *options, cmd string, args []string) (int, error) {
	switch cmd {
	case "run":
		return cmdRun(ctx, opts, args, false)
	case "dump":
		return cmdRun(ctx, opts, args, true)
	case "disasm":
		return cmdDisasm(opts, args)
	case "demo":
		return cmdDemo(opts)
	case "init":
		return cmdInit()
	case "trace":
		return cmdTrace(opts, args)
	}
	flag.Usage()
	return 2, fmt.Errorf("unknown command %q", cmd)
}

// imagePath picks the image argument or the configured entry.
func imagePath(opts *options, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if p := opts.cfg.EntryPath(); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no image given and no [image] entry in %s", filepath.Join(opts.cfg.Dir, manifest.FileName))
}
