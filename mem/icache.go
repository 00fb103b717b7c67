package mem

import "github.com/lowRISC/muntjac-sim/mem/vm"

// ICacheDUT is the capability interface a hardware-model adapter must
// implement to be driven through an ICachePort: the fetch request it is
// offering this cycle, and the sink for the response the port drives back.
// Field names mirror the DUT's flattened icache_* signals.
type ICacheDUT interface {
	ICacheReqValid() bool
	ICacheReqPC() Address
	ICacheReqATC() vm.ATC
	ICacheReqSupervisor() bool

	SetICacheRespValid(bool)
	SetICacheRespInstr(uint32)
	SetICacheRespException(bool)
	SetICacheRespExceptionCause(Cause)
}

// ICachePort serves instruction fetches: it always rounds the requested PC
// down to a 4-byte boundary, translates through Sv39 when enabled (MXR is
// never needed for fetches), and returns either a 32-bit instruction or an
// exception cause.
type ICachePort struct {
	*Port[uint32]

	memory *PagedMemory
	walker *vm.Walker
}

// NewICachePort creates an instruction-cache port with the given response
// latency, backed by memory and translated with walker.
func NewICachePort(memory *PagedMemory, walker *vm.Walker, latency uint64) *ICachePort {
	return &ICachePort{
		Port:   NewPort[uint32](latency),
		memory: memory,
		walker: walker,
	}
}

// GetInputs samples the DUT's fetch request, if any, and queues a response
// for delivery on cycle `cycle + latency - 1`.
func (p *ICachePort) GetInputs(cycle uint64, dut ICacheDUT) {
	if !dut.ICacheReqValid() {
		return
	}

	address := dut.ICacheReqPC() &^ 0x3

	atc := dut.ICacheReqATC()
	if atc.Mode() != vm.ModeBare {
		translated, fault := p.walker.Translate(
			address, vm.OpFetch, dut.ICacheReqSupervisor(), false, false, atc,
		)
		if fault != nil {
			cause := fault.(Fault).Cause(OpFetch)
			p.QueueException(cycle, cause, address)
			return
		}
		address = translated
	}

	if address > MaxPhysicalAddress {
		p.QueueException(cycle, NewAccessFault(address, "fetch out of range").Cause(OpFetch), address)
		return
	}

	p.QueueResponse(cycle, p.memory.Read32(address))
}

// SetOutputs drives the due response, if any, onto the DUT.
func (p *ICachePort) SetOutputs(cycle uint64, dut ICacheDUT) {
	dut.SetICacheRespValid(false)
	dut.SetICacheRespException(false)

	rsp, ok := p.Due(cycle)
	if !ok {
		return
	}

	dut.SetICacheRespValid(true)

	if rsp.Exception {
		dut.SetICacheRespException(true)
		dut.SetICacheRespExceptionCause(rsp.Cause)
	} else {
		dut.SetICacheRespInstr(rsp.Payload)
	}

	p.Consume()
}
