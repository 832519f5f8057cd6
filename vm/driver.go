package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Driver loop
// ---------------------------------------------------------------------------

// TraceEvent describes the machine after one successful step.
type TraceEvent struct {
	Seq      uint64
	PC       uint32 // address of the executed instruction
	Insn     Insn
	X        Value
	FP       Obj
	ArenaLen uint32
}

// Tracer receives an event after every successful step. A Tracer error
// stops the run.
type Tracer interface {
	Trace(ev TraceEvent) error
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(ev TraceEvent) error

// Trace implements Tracer.
func (f TracerFunc) Trace(ev TraceEvent) error {
	return f(ev)
}

// RunOptions configures Run.
type RunOptions struct {
	MaxSteps uint64 // 0 means unlimited
	Tracer   Tracer
}

// Run steps m until it halts, faults, exceeds MaxSteps or ctx is done.
// It returns the halting accumulator value.
func Run(ctx context.Context, m *Machine, opts RunOptions) (Value, error) {
	log := commonlog.GetLogger("flatvm.driver")

	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return Value{}, fmt.Errorf("run cancelled at #%s: %w", hexWord(m.PC), err)
		}
		if opts.MaxSteps != 0 && seq >= opts.MaxSteps {
			return Value{}, &Fault{Kind: FaultStepLimit, PC: m.PC}
		}

		pc := m.PC
		status, err := m.Step()
		switch status {
		case StepHalted:
			log.Infof("halted after %d steps: %s", seq, m.X)
			return m.X, nil
		case StepFaulted:
			log.Noticef("fault after %d steps: %s", seq, err)
			return Value{}, err
		}

		seq++
		if opts.Tracer != nil {
			ev := TraceEvent{
				Seq:      seq,
				PC:       pc,
				Insn:     DecodeInsn(m.mem.Load32(pc)),
				X:        m.X,
				FP:       m.FP,
				ArenaLen: m.mem.Len(),
			}
			if err := opts.Tracer.Trace(ev); err != nil {
				return Value{}, fmt.Errorf("trace step %d: %w", seq, err)
			}
		}
	}
}
