package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeMemory is a flat byte-addressed 64-bit-word store, just enough to
// host a page table for the walker tests without depending on the mem
// package (which would create an import cycle).
type fakeMemory struct {
	words map[uint64]uint64
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{words: make(map[uint64]uint64)}
}

func (m *fakeMemory) Read64(addr uint64) uint64  { return m.words[addr] }
func (m *fakeMemory) Write64(addr uint64, v uint64) { m.words[addr] = v }

type fakeFault struct{ msg string }

func (f *fakeFault) Error() string { return f.msg }

func pageFault(addr uint64, reason string) Fault   { return &fakeFault{"page fault: " + reason} }
func accessFault(addr uint64, reason string) Fault { return &fakeFault{"access fault: " + reason} }

var _ = Describe("Walker", func() {
	var (
		mem    *fakeMemory
		walker *Walker
	)

	BeforeEach(func() {
		mem = newFakeMemory()
		walker = NewWalker(mem, pageFault, accessFault)
	})

	// setupSuperpage installs one level-2 superpage leaf PTE in the root
	// table at rootPPN, mapping vpn2 to ppn2 with the given flag bits.
	setupSuperpage := func(rootPPN uint64, vpn2 uint64, ppn2 uint64, flags uint64) {
		pteAddr := rootPPN*PageSize + vpn2*PTESize
		pte := (ppn2 << 28) | flags
		mem.Write64(pteAddr, pte)
	}

	It("translates through a single leaf superpage", func() {
		setupSuperpage(0, 0, 0, bitV|bitR|bitW|bitX|bitU|bitA|bitD)

		atc := NewATC(ModeSv39, 0, 0)
		pa, fault := walker.Translate(0x1234, OpLoad, false, false, false, atc)
		Expect(fault).To(BeNil())
		Expect(pa).To(Equal(uint64(0x1234)))
	})

	It("sets accessed and dirty on first touch", func() {
		setupSuperpage(0, 0, 5, bitV|bitR|bitW|bitX|bitU)

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpStore, false, false, false, atc)
		Expect(fault).To(BeNil())

		pte := PTE(mem.Read64(0))
		Expect(pte.Accessed()).To(BeTrue())
		Expect(pte.Dirty()).To(BeTrue())
	})

	It("does not set dirty on a load", func() {
		setupSuperpage(0, 0, 5, bitV|bitR|bitW|bitX|bitU)

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, false, false, false, atc)
		Expect(fault).To(BeNil())

		pte := PTE(mem.Read64(0))
		Expect(pte.Accessed()).To(BeTrue())
		Expect(pte.Dirty()).To(BeFalse())
	})

	It("raises a page fault on an invalid PTE", func() {
		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, false, false, false, atc)
		Expect(fault).NotTo(BeNil())
	})

	It("raises a page fault when a user access targets a supervisor-only page", func() {
		setupSuperpage(0, 0, 0, bitV|bitR|bitW|bitX) // U bit clear

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, false, false, false, atc)
		Expect(fault).NotTo(BeNil())
	})

	It("raises a page fault when a supervisor access targets a user page without SUM", func() {
		setupSuperpage(0, 0, 0, bitV|bitR|bitW|bitX|bitU)

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, true, false, false, atc)
		Expect(fault).NotTo(BeNil())

		_, fault = walker.Translate(0x1000, OpLoad, true, true, false, atc)
		Expect(fault).To(BeNil())
	})

	It("allows a load from an execute-only page only when MXR is set", func() {
		setupSuperpage(0, 0, 0, bitV|bitX) // kernel-only (no U bit), accessed in supervisor mode

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, true, false, false, atc)
		Expect(fault).NotTo(BeNil())

		_, fault = walker.Translate(0x1000, OpLoad, true, false, true, atc)
		Expect(fault).To(BeNil())
	})

	It("rejects a write to a read-only page", func() {
		setupSuperpage(0, 0, 0, bitV|bitR) // kernel-only

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpStore, true, false, false, atc)
		Expect(fault).NotTo(BeNil())
	})

	It("rejects a superpage whose low PPN bits are not aligned", func() {
		// Leaf found at level 2 but PPN0/PPN1 nonzero: misaligned. The
		// supervisor-mode access to a non-U page passes the permission
		// check, so the fault comes from the superpage alignment check.
		pte := (uint64(1) << 28) | (uint64(7) << 10) | bitV | bitR | bitW
		mem.Write64(0, pte)

		atc := NewATC(ModeSv39, 0, 0)
		_, fault := walker.Translate(0x1000, OpLoad, true, false, false, atc)
		Expect(fault).NotTo(BeNil())
		Expect(fault.Error()).To(ContainSubstring("misaligned superpage"))
	})
})
