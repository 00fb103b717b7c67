package mem

import (
	"github.com/lowRISC/muntjac-sim/mem/vm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDCacheDUT struct {
	reqValid      bool
	reqOp         Operation
	reqAddress    Address
	reqSize       int
	reqExtension  Extension
	reqWriteData  uint64
	reqAMOOp      uint64
	reqATC        vm.ATC
	reqSupervisor bool
	reqSUM        bool
	reqMXR        bool

	respValid bool
	respData  uint64

	exException bool
	exCause     uint32
	exAddrHi    uint32
	exAddrLo    uint32

	flushValid bool
	flushReady bool
}

func (d *fakeDCacheDUT) DCacheReqValid() bool          { return d.reqValid }
func (d *fakeDCacheDUT) DCacheReqOp() Operation        { return d.reqOp }
func (d *fakeDCacheDUT) DCacheReqAddress() Address     { return d.reqAddress }
func (d *fakeDCacheDUT) DCacheReqSize() int            { return d.reqSize }
func (d *fakeDCacheDUT) DCacheReqExtension() Extension { return d.reqExtension }
func (d *fakeDCacheDUT) DCacheReqWriteData() uint64    { return d.reqWriteData }
func (d *fakeDCacheDUT) DCacheReqAMOOp() uint64        { return d.reqAMOOp }
func (d *fakeDCacheDUT) DCacheReqATC() vm.ATC          { return d.reqATC }
func (d *fakeDCacheDUT) DCacheReqSupervisor() bool     { return d.reqSupervisor }
func (d *fakeDCacheDUT) DCacheReqSUM() bool            { return d.reqSUM }
func (d *fakeDCacheDUT) DCacheReqMXR() bool            { return d.reqMXR }

func (d *fakeDCacheDUT) SetDCacheRespValid(v bool)   { d.respValid = v }
func (d *fakeDCacheDUT) SetDCacheRespData(v uint64)  { d.respData = v }
func (d *fakeDCacheDUT) SetDCacheExException(v bool) { d.exException = v }
func (d *fakeDCacheDUT) SetDCacheExCause(v uint32)   { d.exCause = v }
func (d *fakeDCacheDUT) SetDCacheExAddrHi(v uint32)  { d.exAddrHi = v }
func (d *fakeDCacheDUT) SetDCacheExAddrLo(v uint32)  { d.exAddrLo = v }

func (d *fakeDCacheDUT) DCacheFlushValid() bool     { return d.flushValid }
func (d *fakeDCacheDUT) SetDCacheFlushReady(v bool) { d.flushReady = v }

var _ DCacheDUT = (*fakeDCacheDUT)(nil)

var _ = Describe("DCachePort", func() {
	var (
		memory *PagedMemory
		walker *vm.Walker
		port   *DCachePort
		dut    *fakeDCacheDUT
	)

	BeforeEach(func() {
		memory = NewPagedMemory()
		walker = NewWalker(memory)
		port = NewDCachePort(memory, walker, 1)
		dut = &fakeDCacheDUT{reqATC: vm.NewATC(vm.ModeBare, 0, 0), reqSize: 8}
	})

	It("stores then loads back a doubleword", func() {
		dut.reqValid = true
		dut.reqOp = OpStore
		dut.reqAddress = 0x100
		dut.reqWriteData = 0x1122334455667788
		port.GetInputs(0, dut)
		port.SetOutputs(0, dut)
		Expect(dut.respValid).To(BeTrue())

		dut.reqOp = OpLoad
		dut.reqExtension = ExtendZero
		port.GetInputs(1, dut)
		port.SetOutputs(1, dut)
		Expect(dut.respData).To(Equal(uint64(0x1122334455667788)))
	})

	It("sign-extends a byte load", func() {
		memory.Write8(0x200, 0x80)

		dut.reqValid = true
		dut.reqOp = OpLoad
		dut.reqSize = 1
		dut.reqAddress = 0x200
		dut.reqExtension = ExtendSigned
		port.GetInputs(0, dut)
		port.SetOutputs(0, dut)

		Expect(dut.respData).To(Equal(uint64(0xFFFFFFFFFFFFFF80)))
	})

	It("raises an alignment fault for a misaligned access", func() {
		dut.reqValid = true
		dut.reqOp = OpLoad
		dut.reqSize = 4
		dut.reqAddress = 0x203

		port.GetInputs(0, dut)
		port.SetOutputs(0, dut)

		Expect(dut.respValid).To(BeFalse())
		Expect(dut.exException).To(BeTrue())
		Expect(dut.exCause).To(Equal(uint32(CauseLoadMisaligned)))
	})

	It("packs a fault address into hi/lo exception words", func() {
		dut.reqValid = true
		dut.reqOp = OpLoad
		dut.reqAddress = Address(MaxPhysicalAddress + 8)

		port.GetInputs(0, dut)
		port.SetOutputs(0, dut)

		Expect(dut.exException).To(BeTrue())
		Expect(dut.exAddrLo).To(Equal(uint32(uint64(dut.reqAddress) & 0xFFFFFFFF)))
		Expect(dut.exAddrHi).To(Equal(uint32(uint64(dut.reqAddress) >> 32)))
	})

	Describe("LR/SC", func() {
		It("succeeds an SC to the exact reserved address and clears the reservation", func() {
			dut.reqValid = true
			dut.reqOp = OpLR
			dut.reqAddress = 0x300
			port.GetInputs(0, dut)
			port.SetOutputs(0, dut)

			dut.reqOp = OpSC
			dut.reqWriteData = 99
			port.GetInputs(1, dut)
			port.SetOutputs(1, dut)
			Expect(dut.respData).To(Equal(uint64(0)))

			Expect(memory.Read64(0x300)).To(Equal(uint64(99)))

			// A second SC without an intervening LR fails: reservation was
			// cleared by the first, successful SC.
			port.GetInputs(2, dut)
			port.SetOutputs(2, dut)
			Expect(dut.respData).To(Equal(uint64(1)))
		})

		It("fails an SC to a different address without disturbing the reservation", func() {
			dut.reqValid = true
			dut.reqOp = OpLR
			dut.reqAddress = 0x300
			port.GetInputs(0, dut)
			port.SetOutputs(0, dut)

			dut.reqOp = OpSC
			dut.reqAddress = 0x400
			dut.reqWriteData = 7
			port.GetInputs(1, dut)
			port.SetOutputs(1, dut)
			Expect(dut.respData).To(Equal(uint64(1)))
			Expect(memory.Read64(0x400)).To(Equal(uint64(0)))

			// The reservation on 0x300 survived the failed SC to 0x400.
			dut.reqOp = OpSC
			dut.reqAddress = 0x300
			dut.reqWriteData = 55
			port.GetInputs(2, dut)
			port.SetOutputs(2, dut)
			Expect(dut.respData).To(Equal(uint64(0)))
		})

		It("clears the reservation on an ordinary store to any address", func() {
			dut.reqValid = true
			dut.reqOp = OpLR
			dut.reqAddress = 0x300
			port.GetInputs(0, dut)
			port.SetOutputs(0, dut)

			dut.reqOp = OpStore
			dut.reqAddress = 0x500
			dut.reqWriteData = 1
			port.GetInputs(1, dut)
			port.SetOutputs(1, dut)

			dut.reqOp = OpSC
			dut.reqAddress = 0x300
			dut.reqWriteData = 1
			port.GetInputs(2, dut)
			port.SetOutputs(2, dut)
			Expect(dut.respData).To(Equal(uint64(1)))
		})
	})

	Describe("TLB flush notification", func() {
		It("asserts ready exactly one cycle after valid, and clears any reservation", func() {
			dut.reqValid = true
			dut.reqOp = OpLR
			dut.reqAddress = 0x700
			port.GetInputs(0, dut)
			port.SetOutputs(0, dut)

			dut.reqValid = false
			dut.flushValid = true
			port.GetInputs(1, dut)
			port.SetOutputs(1, dut)
			Expect(dut.flushReady).To(BeFalse())

			dut.flushValid = false
			port.GetInputs(2, dut)
			port.SetOutputs(2, dut)
			Expect(dut.flushReady).To(BeTrue())

			dut.reqValid = true
			dut.reqOp = OpSC
			dut.reqAddress = 0x700
			port.GetInputs(3, dut)
			port.SetOutputs(3, dut)
			Expect(dut.respData).To(Equal(uint64(1))) // reservation was cleared by the flush
		})
	})

	Describe("AMO", func() {
		It("adds and returns the pre-update value", func() {
			memory.Write64(0x600, 10)

			dut.reqValid = true
			dut.reqOp = OpAMO
			dut.reqAddress = 0x600
			dut.reqAMOOp = uint64(AMOAdd)
			dut.reqWriteData = 5
			port.GetInputs(0, dut)
			port.SetOutputs(0, dut)

			Expect(dut.respData).To(Equal(uint64(10)))
			Expect(memory.Read64(0x600)).To(Equal(uint64(15)))
		})
	})
})
