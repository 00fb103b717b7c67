package mem

import "github.com/lowRISC/muntjac-sim/mem/vm"

// DCacheDUT is the capability interface a hardware-model adapter must
// implement to be driven through a DCachePort.
type DCacheDUT interface {
	DCacheReqValid() bool
	DCacheReqOp() Operation
	DCacheReqAddress() Address
	DCacheReqSize() int // access width in bytes: 1, 2, 4, or 8
	DCacheReqExtension() Extension
	DCacheReqWriteData() uint64
	DCacheReqAMOOp() uint64 // raw amo_op signal, decoded with DecodeAMOOp
	DCacheReqATC() vm.ATC
	DCacheReqSupervisor() bool
	DCacheReqSUM() bool
	DCacheReqMXR() bool

	SetDCacheRespValid(bool)
	SetDCacheRespData(uint64)

	SetDCacheExException(bool)
	SetDCacheExCause(uint32)
	SetDCacheExAddrHi(uint32)
	SetDCacheExAddrLo(uint32)

	DCacheFlushValid() bool
	SetDCacheFlushReady(bool)
}

type dcacheResult struct {
	data uint64
}

// reservation is the single-slot load-reserved/store-conditional tracking
// state. A failed SC leaves it untouched: only a successful SC, or any
// ordinary store/AMO, invalidates it.
type reservation struct {
	valid   bool
	address Address
}

// DCachePort serves loads, stores, AMOs, and LR/SC, with Sv39 translation,
// alignment checking, and a single-slot reservation for LR/SC.
type DCachePort struct {
	*Port[dcacheResult]

	memory *PagedMemory
	walker *vm.Walker
	resv   reservation

	// flushReady/flushReadyNext implement the one-cycle-late ready
	// response to the TLB-flush notification: flushReadyNext is set from
	// this cycle's flush_valid in GetInputs, then rotated into flushReady
	// for SetOutputs on the following cycle.
	flushReady     bool
	flushReadyNext bool
}

// NewDCachePort creates a data-cache port with the given response latency.
func NewDCachePort(memory *PagedMemory, walker *vm.Walker, latency uint64) *DCachePort {
	return &DCachePort{
		Port:   NewPort[dcacheResult](latency),
		memory: memory,
		walker: walker,
	}
}

// GetInputs samples the DUT's data request, if any, performs translation
// and the access itself, and queues a response (or exception) for delivery
// on cycle `cycle + latency - 1`.
func (p *DCachePort) GetInputs(cycle uint64, dut DCacheDUT) {
	p.flushReadyNext = dut.DCacheFlushValid()
	if p.flushReadyNext {
		p.resv.valid = false
	}

	if !dut.DCacheReqValid() {
		return
	}

	op := dut.DCacheReqOp()
	size := dut.DCacheReqSize()
	address := dut.DCacheReqAddress()

	if address&Address(size-1) != 0 {
		fault := NewAlignmentFault(address)
		p.raiseException(cycle, fault.Cause(op), address)
		return
	}

	vmOp := translateOp(op)
	atc := dut.DCacheReqATC()
	if atc.Mode() != vm.ModeBare {
		translated, fault := p.walker.Translate(
			uint64(address), vmOp, dut.DCacheReqSupervisor(), dut.DCacheReqSUM(), dut.DCacheReqMXR(), atc,
		)
		if fault != nil {
			p.raiseException(cycle, fault.(Fault).Cause(op), address)
			return
		}
		address = Address(translated)
	}

	if address > MaxPhysicalAddress {
		p.raiseException(cycle, NewAccessFault(address, "data access out of range").Cause(op), address)
		return
	}

	switch op {
	case OpLoad:
		p.doLoad(cycle, address, size, dut.DCacheReqExtension())
	case OpStore:
		p.resv.valid = false
		p.doStore(cycle, address, size, dut.DCacheReqWriteData())
	case OpLR:
		p.resv.valid = true
		p.resv.address = address
		p.doLoad(cycle, address, size, dut.DCacheReqExtension())
	case OpSC:
		p.doStoreConditional(cycle, address, size, dut.DCacheReqWriteData())
	case OpAMO:
		p.resv.valid = false
		p.doAMO(cycle, address, size, DecodeAMOOp(dut.DCacheReqAMOOp()), dut.DCacheReqWriteData(), dut.DCacheReqExtension())
	}
}

func (p *DCachePort) doLoad(cycle uint64, address Address, size int, ext Extension) {
	raw := loadRaw(p.memory, address, size)
	p.QueueResponse(cycle, dcacheResult{data: extend(raw, size, ext)})
}

func (p *DCachePort) doStore(cycle uint64, address Address, size int, writeData uint64) {
	storeRaw(p.memory, address, size, writeData)
	p.QueueResponse(cycle, dcacheResult{})
}

// doStoreConditional succeeds (returns 0) only when the reservation is
// still valid for this exact address; on success it writes through and
// clears the reservation. A failure (returns 1) neither writes nor clears
// the reservation.
func (p *DCachePort) doStoreConditional(cycle uint64, address Address, size int, writeData uint64) {
	if p.resv.valid && p.resv.address == address {
		storeRaw(p.memory, address, size, writeData)
		p.resv.valid = false
		p.QueueResponse(cycle, dcacheResult{data: 0})
		return
	}

	p.QueueResponse(cycle, dcacheResult{data: 1})
}

func (p *DCachePort) doAMO(cycle uint64, address Address, size int, op AMOOp, operand uint64, ext Extension) {
	current := loadRaw(p.memory, address, size)
	updated := atomicUpdate(op, size, current, operand)
	storeRaw(p.memory, address, size, updated)
	p.QueueResponse(cycle, dcacheResult{data: extend(current, size, ext)})
}

func (p *DCachePort) raiseException(cycle uint64, cause Cause, address Address) {
	p.QueueException(cycle, cause, address)
}

// SetOutputs drives the due response, if any, onto the DUT. Unlike the
// instruction-cache port, an exception here suppresses the normal
// resp_valid strobe entirely: the exception is signalled on its own wires,
// packed into three 32-bit words (cause, addr[63:32], addr[31:0]).
func (p *DCachePort) SetOutputs(cycle uint64, dut DCacheDUT) {
	dut.SetDCacheRespValid(false)
	dut.SetDCacheExException(false)

	dut.SetDCacheFlushReady(p.flushReady)
	p.flushReady = p.flushReadyNext

	rsp, ok := p.Due(cycle)
	if !ok {
		return
	}

	if rsp.Exception {
		dut.SetDCacheExException(true)
		dut.SetDCacheExCause(uint32(rsp.Cause))
		dut.SetDCacheExAddrHi(uint32(uint64(rsp.FaultAddress) >> 32))
		dut.SetDCacheExAddrLo(uint32(uint64(rsp.FaultAddress) & 0xFFFFFFFF))
	} else {
		dut.SetDCacheRespValid(true)
		dut.SetDCacheRespData(rsp.Payload.data)
	}

	p.Consume()
}

func translateOp(op Operation) vm.Op {
	switch op {
	case OpLoad:
		return vm.OpLoad
	case OpStore:
		return vm.OpStore
	case OpLR:
		return vm.OpLR
	case OpSC:
		return vm.OpSC
	case OpAMO:
		return vm.OpAMO
	default:
		panic("mem: unknown data-cache operation")
	}
}

func loadRaw(memory *PagedMemory, address Address, size int) uint64 {
	switch size {
	case 1:
		return uint64(memory.Read8(address))
	case 2:
		return uint64(memory.Read16(address))
	case 4:
		return uint64(memory.Read32(address))
	case 8:
		return memory.Read64(address)
	default:
		panic("mem: unsupported access size")
	}
}

func storeRaw(memory *PagedMemory, address Address, size int, value uint64) {
	switch size {
	case 1:
		memory.Write8(address, uint8(value))
	case 2:
		memory.Write16(address, uint16(value))
	case 4:
		memory.Write32(address, uint32(value))
	case 8:
		memory.Write64(address, value)
	default:
		panic("mem: unsupported access size")
	}
}
