package mem

import (
	"github.com/lowRISC/muntjac-sim/mem/vm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeICacheDUT struct {
	reqValid      bool
	reqPC         Address
	reqATC        vm.ATC
	reqSupervisor bool

	respValid bool
	respInstr uint32
	respExn   bool
	respCause Cause
}

func (d *fakeICacheDUT) ICacheReqValid() bool           { return d.reqValid }
func (d *fakeICacheDUT) ICacheReqPC() Address           { return d.reqPC }
func (d *fakeICacheDUT) ICacheReqATC() vm.ATC           { return d.reqATC }
func (d *fakeICacheDUT) ICacheReqSupervisor() bool      { return d.reqSupervisor }
func (d *fakeICacheDUT) SetICacheRespValid(v bool)      { d.respValid = v }
func (d *fakeICacheDUT) SetICacheRespInstr(v uint32)    { d.respInstr = v }
func (d *fakeICacheDUT) SetICacheRespException(v bool)  { d.respExn = v }
func (d *fakeICacheDUT) SetICacheRespExceptionCause(c Cause) { d.respCause = c }

var _ ICacheDUT = (*fakeICacheDUT)(nil)

var _ = Describe("ICachePort", func() {
	var (
		memory *PagedMemory
		walker *vm.Walker
		port   *ICachePort
		dut    *fakeICacheDUT
	)

	BeforeEach(func() {
		memory = NewPagedMemory()
		walker = NewWalker(memory)
		port = NewICachePort(memory, walker, 2)
		dut = &fakeICacheDUT{}
	})

	It("fetches an instruction after the configured latency, untranslated", func() {
		memory.Write32(0x1000, 0xDEADBEEF)

		dut.reqValid = true
		dut.reqPC = 0x1000
		dut.reqATC = vm.NewATC(vm.ModeBare, 0, 0)

		port.GetInputs(5, dut)

		port.SetOutputs(5, dut)
		Expect(dut.respValid).To(BeFalse())

		port.SetOutputs(6, dut)
		Expect(dut.respValid).To(BeTrue())
		Expect(dut.respInstr).To(Equal(uint32(0xDEADBEEF)))
		Expect(dut.respExn).To(BeFalse())
	})

	It("rounds the fetch address down to a word boundary", func() {
		memory.Write32(0x2000, 0x11223344)

		dut.reqValid = true
		dut.reqPC = 0x2001
		dut.reqATC = vm.NewATC(vm.ModeBare, 0, 0)

		port.GetInputs(0, dut)
		port.SetOutputs(1, dut)

		Expect(dut.respInstr).To(Equal(uint32(0x11223344)))
	})

	It("raises an access fault for an out-of-range physical address", func() {
		dut.reqValid = true
		dut.reqPC = Address(MaxPhysicalAddress + 8)
		dut.reqATC = vm.NewATC(vm.ModeBare, 0, 0)

		port.GetInputs(0, dut)
		port.SetOutputs(1, dut)

		Expect(dut.respValid).To(BeTrue())
		Expect(dut.respExn).To(BeTrue())
		Expect(dut.respCause).To(Equal(CauseInstrAccessFault))
	})

	It("translates through Sv39 when enabled", func() {
		// Identity-map VPN2 0 with a leaf superpage.
		memory.Write64(0, (0<<28)|0x1|0x2|0x8) // V|R|X

		memory.Write32(0x3000, 0xCAFEBABE)

		dut.reqValid = true
		dut.reqPC = 0x3000
		dut.reqATC = vm.NewATC(vm.ModeSv39, 0, 0)
		dut.reqSupervisor = true

		port.GetInputs(0, dut)
		port.SetOutputs(1, dut)

		Expect(dut.respValid).To(BeTrue())
		Expect(dut.respExn).To(BeFalse())
		Expect(dut.respInstr).To(Equal(uint32(0xCAFEBABE)))
	})
})
