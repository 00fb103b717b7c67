package mem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeAMOOp", func() {
	It("strips the two ordering bits", func() {
		Expect(DecodeAMOOp(0b000001)).To(Equal(AMOAdd))
		Expect(DecodeAMOOp(0b000011)).To(Equal(AMOAdd))
		Expect(DecodeAMOOp(uint64(AMOSwap)<<2 | 0b10)).To(Equal(AMOSwap))
	})
})

var _ = Describe("atomicUpdate", func() {
	It("adds", func() {
		Expect(atomicUpdate(AMOAdd, 8, 10, 5)).To(Equal(uint64(15)))
	})

	It("swaps", func() {
		Expect(atomicUpdate(AMOSwap, 8, 10, 5)).To(Equal(uint64(5)))
	})

	It("computes bitwise xor/or/and", func() {
		Expect(atomicUpdate(AMOXor, 8, 0xF0, 0x0F)).To(Equal(uint64(0xFF)))
		Expect(atomicUpdate(AMOOr, 8, 0xF0, 0x0F)).To(Equal(uint64(0xFF)))
		Expect(atomicUpdate(AMOAnd, 8, 0xFF, 0x0F)).To(Equal(uint64(0x0F)))
	})

	It("picks the signed minimum across a negative operand", func() {
		negativeOne := uint64(0xFFFFFFFFFFFFFFFF)
		Expect(atomicUpdate(AMOMinSigned, 8, 10, negativeOne)).To(Equal(negativeOne))
		Expect(atomicUpdate(AMOMaxSigned, 8, 10, negativeOne)).To(Equal(uint64(10)))
	})

	It("compares unsigned for min/max regardless of sign bit", func() {
		negativeOne := uint64(0xFFFFFFFFFFFFFFFF)
		Expect(atomicUpdate(AMOMinUnsigned, 8, 10, negativeOne)).To(Equal(uint64(10)))
		Expect(atomicUpdate(AMOMaxUnsigned, 8, 10, negativeOne)).To(Equal(negativeOne))
	})

	It("narrows the comparison to the access width", func() {
		// As 4-byte words, 0xFFFFFFFF is -1 signed, not a huge number.
		Expect(atomicUpdate(AMOMinSigned, 4, 10, 0xFFFFFFFF)).To(Equal(uint64(0xFFFFFFFF)))
		Expect(atomicUpdate(AMOMaxUnsigned, 4, 10, 0xFFFFFFFF)).To(Equal(uint64(0xFFFFFFFF)))
	})
})
