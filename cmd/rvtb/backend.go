package main

import (
	"github.com/lowRISC/muntjac-sim/mem"
)

// pagedMemoryBackend adapts a mem.PagedMemory, the same flat address space
// the directed RISC-V tests run against, to tilelink.Backend so randomized
// TileLink traffic has somewhere real to land when no hardware model is
// bound in. It is a loopback device, not a DUT: it exists so --run can
// exercise the channel harness and coverage recorder end to end.
type pagedMemoryBackend struct {
	mem *mem.PagedMemory
}

func newPagedMemoryBackend() *pagedMemoryBackend {
	return &pagedMemoryBackend{mem: mem.NewPagedMemory()}
}

func (b *pagedMemoryBackend) Read(address uint64, size int) (uint64, error) {
	switch size {
	case 1:
		return uint64(b.mem.Read8(address)), nil
	case 2:
		return uint64(b.mem.Read16(address)), nil
	case 4:
		return uint64(b.mem.Read32(address)), nil
	default:
		return b.mem.Read64(address), nil
	}
}

func (b *pagedMemoryBackend) Write(address uint64, size int, mask uint64, data uint64) error {
	if mask == 0 {
		return nil
	}

	full, err := b.Read(address, size)
	if err != nil {
		return err
	}

	merged := full
	for i := 0; i < size; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		shift := uint(i * 8)
		merged &^= 0xff << shift
		merged |= (data & (0xff << shift))
	}

	switch size {
	case 1:
		b.mem.Write8(address, uint8(merged))
	case 2:
		b.mem.Write16(address, uint16(merged))
	case 4:
		b.mem.Write32(address, uint32(merged))
	default:
		b.mem.Write64(address, merged)
	}
	return nil
}
