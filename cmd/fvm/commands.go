package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/flatvm/manifest"
	"github.com/chazu/flatvm/tracestore"
	"github.com/chazu/flatvm/vm"
	"github.com/chazu/flatvm/vm/image"
)

// builtinStack is the host builtin that prints the frame chain.
const builtinStack = 1

func cmdRun(ctx context.Context, opts *options, args []string, dump bool) (int, error) {
	path, err := imagePath(opts, args)
	if err != nil {
		return 1, err
	}
	img, err := image.ReadFile(path)
	if err != nil {
		return 1, err
	}

	m := vm.NewMachine(img.Code,
		vm.WithArenaReserve(opts.cfg.Machine.ArenaReserve),
		vm.WithArenaLimit(opts.cfg.Machine.ArenaLimit),
		vm.WithBuiltin(builtinStack, func(m *vm.Machine) error {
			return m.WriteStack(os.Stdout)
		}),
	)
	runOpts := vm.RunOptions{MaxSteps: opts.maxSteps}

	var run *tracestore.Run
	if opts.traceDB != "" {
		store, err := tracestore.Open(opts.traceDB)
		if err != nil {
			return 1, err
		}
		defer store.Close()
		if run, err = store.BeginRun(path); err != nil {
			return 1, err
		}
		runOpts.Tracer = run
	}

	result, runErr := vm.Run(ctx, m, runOpts)

	if run != nil {
		if err := run.Finish(result, runErr); err != nil {
			return 1, err
		}
		commonlog.GetLogger("flatvm.cli").Infof("trace recorded: run %s in %s", run.ID, opts.traceDB)
		fmt.Fprintf(os.Stderr, "run %s\n", run.ID)
	}

	if dump {
		if err := m.WriteStack(os.Stdout); err != nil {
			return 1, err
		}
	}
	if runErr != nil {
		return faultExitCode(runErr), runErr
	}
	if !dump {
		fmt.Println(result)
	}
	return 0, nil
}

// faultExitCode maps run errors to process exit codes.
func faultExitCode(err error) int {
	var f *vm.Fault
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.As(err, &f) && f.Kind == vm.FaultStepLimit:
		return 4
	case errors.As(err, &f):
		return 3
	}
	return 1
}

func cmdDisasm(opts *options, args []string) (int, error) {
	path, err := imagePath(opts, args)
	if err != nil {
		return 1, err
	}
	img, err := image.ReadFile(path)
	if err != nil {
		return 1, err
	}
	fmt.Print(vm.Disassemble(img.Code, img.Names))
	return 0, nil
}

// demoImage builds a program that creates a frame holding a nested object,
// stores all-ones in it and halts with that value.
func demoImage() (*image.Image, error) {
	code, err := vm.NewBuilder().
		Emit(vm.Push(0), vm.Push(1), vm.Val(0)).
		EmitLiteral(0xFFFF_FFFF).
		Emit(vm.Def(1), vm.Def(0)).
		Words()
	if err != nil {
		return nil, err
	}
	img := image.New(code)
	img.Names = map[uint32]string{1: "ones"}
	return img, nil
}

func cmdDemo(opts *options) (int, error) {
	out := opts.output
	if out == "" {
		out = "demo.fvm"
	}
	img, err := demoImage()
	if err != nil {
		return 1, err
	}
	if err := image.WriteFile(out, img, opts.format); err != nil {
		return 1, err
	}
	fmt.Printf("wrote %s (%s, %d words)\n", out, opts.format, len(img.Code))
	return 0, nil
}

func cmdInit() (int, error) {
	wd, err := os.Getwd()
	if err != nil {
		return 1, err
	}
	cfg := manifest.Default(wd)
	cfg.Project.Name = filepath.Base(wd)
	cfg.Project.Version = "0.1.0"
	if err := manifest.Write(wd, cfg); err != nil {
		return 1, err
	}
	fmt.Printf("wrote %s\n", filepath.Join(wd, manifest.FileName))
	return 0, nil
}

func cmdTrace(opts *options, args []string) (int, error) {
	if len(args) > 1 {
		return 2, errors.New("trace takes at most one run id")
	}
	db := opts.traceDB
	if db == "" {
		db = opts.cfg.TraceDBPath()
	}
	store, err := tracestore.Open(db)
	if err != nil {
		return 1, err
	}
	defer store.Close()

	if len(args) == 0 {
		runs, err := store.Runs()
		if err != nil {
			return 1, err
		}
		for _, r := range runs {
			outcome := r.Result
			if r.Fault != "" {
				outcome = "fault: " + r.Fault
			}
			fmt.Printf("%s  %s  %s  %s\n", r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Image, outcome)
		}
		return 0, nil
	}

	info, err := store.Run(args[0])
	if err != nil {
		return 1, err
	}
	steps, err := store.Steps(info.ID)
	if err != nil {
		return 1, err
	}

	fmt.Printf("run %s  %s  started %s\n", info.ID, info.Image, info.Started.Format("2006-01-02 15:04:05"))
	for _, st := range steps {
		fmt.Printf("%6d  %04X  %-16s x=%-24s fp=%04X arena=%d\n",
			st.Seq, st.PC, st.Insn, st.X, uint32(st.FP), st.ArenaLen)
	}
	if info.Fault != "" {
		fmt.Printf("fault: %s\n", info.Fault)
	} else {
		fmt.Printf("result: %s\n", info.Result)
	}
	return 0, nil
}
