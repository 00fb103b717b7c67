// Package testbench drives the cycle loop that ties the memory-port
// model to an opaque hardware model, in both directed (scripted) and
// random-traffic modes, and reports the run's outcome.
package testbench

import (
	"errors"
	"fmt"

	"github.com/lowRISC/muntjac-sim/mem"
)

// DUT is the set of signals and lifecycle hooks the driver needs from the
// hardware model: both cache ports' request/response interfaces plus a
// single eval step. The hardware model itself is out of scope; this is
// exactly the signal surface a real design under test would expose.
type DUT interface {
	mem.ICacheDUT
	mem.DCacheDUT

	Eval()

	// Finished reports whether the DUT has run a syscall write that
	// ends the simulation (see mem.PagedMemory's tohost handling).
	Finished() bool
	ExitCode() int
}

// ErrTimeout is returned when a run exceeds its configured cycle budget
// without the DUT finishing.
var ErrTimeout = errors.New("testbench: cycle budget exceeded")

// Driver owns the cycle counter and steps the instruction- and
// data-cache ports against a DUT each cycle, in the fixed order the
// concurrency model mandates: eval, then request sampling, then response
// drive.
type Driver struct {
	DUT    DUT
	ICache *mem.ICachePort
	DCache *mem.DCachePort

	cycle   uint64
	Verbose int
}

// NewDriver builds a Driver around an already-constructed DUT and its
// two memory ports.
func NewDriver(dut DUT, icache *mem.ICachePort, dcache *mem.DCachePort) *Driver {
	return &Driver{DUT: dut, ICache: icache, DCache: dcache}
}

// Cycle returns the number of cycles stepped so far.
func (d *Driver) Cycle() uint64 { return d.cycle }

// CurrentCycle satisfies monitoring.Engine.
func (d *Driver) CurrentCycle() uint64 { return d.cycle }

// Finished satisfies monitoring.Engine.
func (d *Driver) Finished() bool { return d.DUT.Finished() }

// Step advances the simulation by exactly one cycle: the DUT evaluates
// its combinational logic, then each port samples any asserted request
// and, independently, drives a response if one is due.
func (d *Driver) Step() {
	d.DUT.Eval()

	d.ICache.GetInputs(d.cycle, d.DUT)
	d.DCache.GetInputs(d.cycle, d.DUT)

	d.ICache.SetOutputs(d.cycle, d.DUT)
	d.DCache.SetOutputs(d.cycle, d.DUT)

	if d.Verbose >= 2 {
		fmt.Printf("testbench: cycle %d\n", d.cycle)
	}

	d.cycle++
}

// Run steps the cycle loop until the DUT finishes or maxCycles is
// exceeded, returning the DUT's exit code on success.
func (d *Driver) Run(maxCycles uint64) (int, error) {
	for d.cycle < maxCycles {
		if d.DUT.Finished() {
			return d.DUT.ExitCode(), nil
		}
		d.Step()
	}

	if d.DUT.Finished() {
		return d.DUT.ExitCode(), nil
	}

	return 0, ErrTimeout
}

// AwaitCycles steps until pred returns true or timeoutCycles have
// elapsed since the call, for directed tests that need to block on a
// DUT signal without hand-rolling the loop each time.
func (d *Driver) AwaitCycles(pred func() bool, timeoutCycles uint64) error {
	deadline := d.cycle + timeoutCycles
	for !pred() {
		if d.cycle >= deadline {
			return ErrTimeout
		}
		d.Step()
	}
	return nil
}
