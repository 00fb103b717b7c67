package mem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Port", func() {
	It("delivers a latency-1 response in the same cycle it was queued", func() {
		p := NewPort[int](1)
		p.QueueResponse(10, 42)

		_, ok := p.Due(9)
		Expect(ok).To(BeFalse())

		rsp, ok := p.Due(10)
		Expect(ok).To(BeTrue())
		Expect(rsp.Payload).To(Equal(42))
	})

	It("delivers a latency-N response N-1 cycles later", func() {
		p := NewPort[int](3)
		p.QueueResponse(10, 42)

		_, ok := p.Due(11)
		Expect(ok).To(BeFalse())

		rsp, ok := p.Due(12)
		Expect(ok).To(BeTrue())
		Expect(rsp.Payload).To(Equal(42))
	})

	It("consumes head-of-queue in FIFO order", func() {
		p := NewPort[int](1)
		p.QueueResponse(0, 1)
		p.QueueResponse(1, 2)

		Expect(p.Pending()).To(Equal(2))

		rsp, _ := p.Due(1)
		Expect(rsp.Payload).To(Equal(1))
		p.Consume()

		rsp, _ = p.Due(1)
		Expect(rsp.Payload).To(Equal(2))
		p.Consume()

		Expect(p.Pending()).To(Equal(0))
	})

	It("panics on a sub-1-cycle latency", func() {
		Expect(func() { NewPort[int](0) }).To(Panic())
	})
})
