package mem

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PagedMemory", func() {
	var m *PagedMemory

	BeforeEach(func() {
		m = NewPagedMemory()
	})

	It("reads zeroed bytes from an untouched page", func() {
		Expect(m.Read64(0x1000)).To(Equal(uint64(0)))
	})

	It("round-trips a write across a page boundary", func() {
		addr := Address(pageSize - 4)
		m.Write64(addr, 0x1122334455667788)
		Expect(m.Read64(addr)).To(Equal(uint64(0x1122334455667788)))
	})

	It("stores and loads little-endian", func() {
		m.Write32(0x100, 0xAABBCCDD)
		b := m.ReadBytes(0x100, 4)
		Expect(b.Data).To(Equal([]byte{0xDD, 0xCC, 0xBB, 0xAA}))
	})

	Context("tohost/fromhost", func() {
		var handled []uint64

		BeforeEach(func() {
			handled = nil
			m.ToHost = 0x2000
			m.SetSyscallHandler(syscallFunc(func(_ Address, writeData uint64) {
				handled = append(handled, writeData)
			}))
		})

		It("diverts a write to tohost instead of storing it", func() {
			m.Write64(0x2000, 0x0101000000000041)
			Expect(handled).To(Equal([]uint64{0x0101000000000041}))
			Expect(m.Read64(0x2000)).To(Equal(uint64(0)))
		})

		It("leaves ordinary addresses alone", func() {
			m.Write64(0x3000, 42)
			Expect(handled).To(BeEmpty())
			Expect(m.Read64(0x3000)).To(Equal(uint64(42)))
		})
	})
})

var _ = Describe("DefaultSyscallHandler", func() {
	It("treats the putchar encoding as output, not exit", func() {
		devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		defer devNull.Close()

		h := NewDefaultSyscallHandler()
		h.Out = devNull
		h.HandleSyscallWrite(0, 0x0101000000000041)
		Expect(h.Exited).To(BeFalse())
	})

	It("takes the full write value as the exit code when ExitValueIsExitCode", func() {
		h := NewDefaultSyscallHandler()
		h.HandleSyscallWrite(0, 7)
		Expect(h.Exited).To(BeTrue())
		Expect(h.ExitCode).To(Equal(uint64(7)))
	})

	It("maps 1 to a passing exit code under the alternate convention", func() {
		h := NewDefaultSyscallHandler()
		h.ExitValueIsExitCode = false
		h.HandleSyscallWrite(0, 1)
		Expect(h.ExitCode).To(Equal(uint64(0)))

		h2 := NewDefaultSyscallHandler()
		h2.ExitValueIsExitCode = false
		h2.HandleSyscallWrite(0, 99)
		Expect(h2.ExitCode).To(Equal(uint64(1)))
	})
})

type syscallFunc func(addr Address, writeData uint64)

func (f syscallFunc) HandleSyscallWrite(addr Address, writeData uint64) { f(addr, writeData) }
