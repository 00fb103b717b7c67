package mem

// Operation identifies the kind of memory access a port is performing. It
// is needed to pick the right RISC-V exception cause when a translation or
// access fault occurs, and to select AMO/LR/SC behaviour in the data-cache
// port.
type Operation int

// The numeric values match mem_op_e in the hardware model so that a port
// can cast the DUT's request-op signal directly into an Operation.
const (
	OpLoad  Operation = 1
	OpStore Operation = 2
	OpLR    Operation = 5
	OpSC    Operation = 6
	OpAMO   Operation = 7
	OpFetch Operation = 8 // not present on the DUT signal; used internally by the walker.
)

// Cause is a RISC-V exception cause, as written onto a port's exception
// wire.
type Cause uint8

const (
	CauseInstrMisaligned Cause = 0
	CauseInstrAccessFault Cause = 1
	CauseLoadMisaligned   Cause = 4
	CauseLoadAccessFault  Cause = 5
	CauseStoreMisaligned  Cause = 6
	CauseStoreAccessFault Cause = 7
	CauseInstrPageFault   Cause = 12
	CauseLoadPageFault    Cause = 13
	CauseStorePageFault   Cause = 15
)

// Fault is the common shape of the three fallible outcomes a port or the
// page-table walker can produce. Translation, access, and alignment faults
// all carry the address that triggered them and a human-readable reason;
// Cause() maps that fault, together with the operation that triggered it,
// onto the concrete RISC-V exception code that belongs on the wire.
type Fault interface {
	error
	Address() Address
	Cause(op Operation) Cause
}

type faultBase struct {
	addr   Address
	reason string
}

func (f faultBase) Address() Address { return f.addr }

// AccessFault is raised when a port touches an address outside
// [0, MaxPhysicalAddress], or when the walker's own PTE read goes out of
// range. PagedMemory never raises this itself — it has no notion of a
// valid range — the port must check before dispatching.
type AccessFault struct {
	faultBase
}

func NewAccessFault(addr Address, reason string) *AccessFault {
	return &AccessFault{faultBase{addr, reason}}
}

func (f *AccessFault) Error() string {
	return "access fault: " + f.reason
}

func (f *AccessFault) Cause(op Operation) Cause {
	switch op {
	case OpLoad:
		return CauseLoadAccessFault
	case OpLR, OpStore, OpSC, OpAMO:
		return CauseStoreAccessFault
	case OpFetch:
		return CauseInstrAccessFault
	default:
		panic("unknown operation for access fault")
	}
}

// AlignmentFault is raised when a data access's address is not aligned to
// its size.
type AlignmentFault struct {
	faultBase
}

func NewAlignmentFault(addr Address) *AlignmentFault {
	return &AlignmentFault{faultBase{addr, "misaligned access"}}
}

func (f *AlignmentFault) Error() string {
	return "alignment fault"
}

func (f *AlignmentFault) Cause(op Operation) Cause {
	switch op {
	case OpLoad:
		return CauseLoadMisaligned
	case OpLR, OpStore, OpSC, OpAMO:
		return CauseStoreMisaligned
	default:
		panic("unknown operation for alignment fault")
	}
}

// PageFault is raised by the Sv39 walker: an invalid PTE, insufficient
// permission, a misaligned superpage, or bad upper VA bits.
type PageFault struct {
	faultBase
}

func NewPageFault(addr Address, reason string) *PageFault {
	return &PageFault{faultBase{addr, reason}}
}

func (f *PageFault) Error() string {
	return "page fault: " + f.reason
}

func (f *PageFault) Cause(op Operation) Cause {
	switch op {
	case OpLoad:
		return CauseLoadPageFault
	case OpLR, OpStore, OpSC, OpAMO:
		return CauseStorePageFault
	case OpFetch:
		return CauseInstrPageFault
	default:
		panic("unknown operation for page fault")
	}
}
