package mem

import "github.com/lowRISC/muntjac-sim/mem/vm"

// NewWalker builds an Sv39 walker bound to memory, raising this package's
// concrete PageFault/AccessFault types, so a vm.Fault returned by Translate
// can be type-asserted to this package's Fault.
func NewWalker(memory *PagedMemory) *vm.Walker {
	return vm.NewWalker(
		memory,
		func(addr uint64, reason string) vm.Fault { return NewPageFault(Address(addr), reason) },
		func(addr uint64, reason string) vm.Fault { return NewAccessFault(Address(addr), reason) },
	)
}
