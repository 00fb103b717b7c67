package vm

import "fmt"

// Fault is the minimal shape the walker needs from mem.Fault so that this
// package does not have to import mem (which itself will use vm to
// translate addresses). mem.PageFault and mem.AccessFault both satisfy it.
type Fault interface {
	error
}

// PageFaultFactory and AccessFaultFactory let the walker raise faults of
// the caller's concrete type without importing the mem package.
type PageFaultFactory func(addr uint64, reason string) Fault
type AccessFaultFactory func(addr uint64, reason string) Fault

// Memory is the subset of PagedMemory the walker needs: 64-bit
// page-table-entry reads, and the read-modify-write used to set the
// Accessed/Dirty bits.
type Memory interface {
	Read64(addr uint64) uint64
	Write64(addr uint64, v uint64)
}

// Op mirrors mem.Operation without creating an import cycle; the two enums
// share the same underlying values by construction (see mem/fault.go).
type Op int

const (
	OpLoad  Op = 1
	OpStore Op = 2
	OpLR    Op = 5
	OpSC    Op = 6
	OpAMO   Op = 7
	OpFetch Op = 8
)

// Walker translates Sv39 virtual addresses to physical addresses.
type Walker struct {
	Memory Memory

	NewPageFault   PageFaultFactory
	NewAccessFault AccessFaultFactory
}

// NewWalker creates a walker bound to the given memory and fault
// constructors.
func NewWalker(mem Memory, pf PageFaultFactory, af AccessFaultFactory) *Walker {
	return &Walker{Memory: mem, NewPageFault: pf, NewAccessFault: af}
}

// Translate implements the nine-step Sv39 algorithm from the RISC-V
// privileged spec. atc.Mode() must be ModeSv39; the walker does not
// implement Sv32/Sv48. supervisor/sum/mxr are the requester's privilege
// level and the SUM/MXR mstatus bits.
func (w *Walker) Translate(
	va uint64,
	op Op,
	supervisor bool,
	sum bool,
	mxr bool,
	atc ATC,
) (uint64, Fault) {
	if atc.Mode() != ModeSv39 {
		panic(fmt.Sprintf("walker only implements Sv39, got mode %d", atc.Mode()))
	}

	v := VA(va)
	if !v.upperBitsValid() {
		return 0, w.NewPageFault(va, "invalid upper bits of virtual address")
	}

	a := atc.RootPPN() * PageSize
	i := Levels - 1
	var pte PTE
	var pteAddress uint64

	for {
		pteAddress = a + v.VPN(i)*PTESize
		pte = PTE(w.Memory.Read64(pteAddress))

		if !pte.Valid() || (!pte.Readable() && pte.Writable()) {
			return 0, w.NewPageFault(va, "invalid page table entry")
		}

		if pte.IsLeaf() {
			break
		}

		i--
		if i < 0 {
			return 0, w.NewPageFault(va, "no leaf page found")
		}

		a = pte.PhysicalPageNumber()
	}

	if fault := w.checkPermissions(va, op, supervisor, sum, mxr, pte); fault != nil {
		return 0, fault
	}

	if i > 0 {
		for j := 0; j < i; j++ {
			if pte.PPNLevel(j) != 0 {
				return 0, w.NewPageFault(va, "misaligned superpage")
			}
		}
	}

	write := op == OpStore || op == OpSC || op == OpAMO
	if !pte.Accessed() || (write && !pte.Dirty()) {
		updated := pte
		if !pte.Accessed() {
			updated = updated.SetAccessed()
		}
		if write && !pte.Dirty() {
			updated = updated.SetDirty()
		}
		w.Memory.Write64(pteAddress, uint64(updated))
	}

	return buildPA(v, pte, i), nil
}

func (w *Walker) checkPermissions(
	va uint64,
	op Op,
	supervisor bool,
	sum bool,
	mxr bool,
	pte PTE,
) Fault {
	read := op == OpLoad || op == OpLR || op == OpAMO
	write := op == OpStore || op == OpSC || op == OpAMO
	execute := op == OpFetch

	insufficient := (read && !(pte.Readable() || (mxr && pte.Executable()))) ||
		(write && !pte.Writable()) ||
		(execute && !pte.Executable()) ||
		(supervisor && pte.User() && (!sum || (execute && pte.Executable()))) ||
		(!supervisor && !pte.User())

	if insufficient {
		return w.NewPageFault(va, "insufficient permissions")
	}

	return nil
}
