// Package mem implements the sparse physical-memory model that backs a
// simulated RISC-V core: lazily allocated pages, an ELF-64 loader, the
// syscall trap used by riscv-tests, the Sv39 page-table walker, and the
// latency-pipelined memory ports that a hardware model's fetch and data
// interfaces are driven through.
package mem

// Address is a 64-bit physical or virtual address.
type Address = uint64

// MaxPhysicalAddress is the largest address PagedMemory will service. A
// port must reject anything above this with an access fault before it ever
// reaches the memory model.
const MaxPhysicalAddress Address = (1 << 56) - 1

// Block is a contiguous run of bytes read from, or to be written to, a base
// address. Cloning a Block is cheap: the underlying slice is shared, and Go's
// garbage collector reclaims the backing array once the last reference to it
// drops, which is the value-semantics equivalent of the reference-counted
// buffers the memory model is descended from.
type Block struct {
	Address Address
	Data    []byte
}

// NewBlock wraps data without copying it.
func NewBlock(address Address, data []byte) Block {
	return Block{Address: address, Data: data}
}

// Len returns the number of bytes in the block.
func (b Block) Len() int {
	return len(b.Data)
}

// Clone returns a Block with an independent copy of the underlying bytes.
func (b Block) Clone() Block {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Block{Address: b.Address, Data: data}
}
