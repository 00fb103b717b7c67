package mem

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Log2PageSize is the log2 of the page granularity used for lazy allocation.
// 1MB pages, matching the page size the memory model has always used: large
// enough that most programs only ever touch a handful of pages.
const Log2PageSize = 20

const pageSize = 1 << Log2PageSize

// SyscallHandler is notified when a write targets the tohost/fromhost
// address instead of being stored to memory. It decides whether the write
// is a putchar (emit a byte) or an exit request (end the simulation).
type SyscallHandler interface {
	// HandleSyscallWrite processes one write to a magic address. writeData
	// is the full 64-bit value the core attempted to write.
	HandleSyscallWrite(address Address, writeData uint64)
}

// PagedMemory is a sparse 64-bit physical address space. Pages are
// allocated lazily on first touch; a page's initial contents are
// unspecified but stable (they are simply zeroed by Go's allocator).
//
// Writes that target ToHost or FromHost are diverted to the registered
// SyscallHandler instead of being stored. PagedMemory does not itself
// enforce MaxPhysicalAddress: that is an access-fault check that belongs to
// the port issuing the request.
type PagedMemory struct {
	pages map[Address][]byte

	// ToHost and FromHost are resolved from the ELF symbol table at load
	// time. An all-ones sentinel (NoSyscallAddress) never matches a real
	// request, so an image missing one of the symbols simply never raises
	// the syscall trap.
	ToHost   Address
	FromHost Address

	handler SyscallHandler
}

// NoSyscallAddress is the sentinel used for an unresolved tohost/fromhost
// symbol.
const NoSyscallAddress Address = 0xFFFFFFFFFFFFFFFF

// NewPagedMemory creates an empty physical address space with no
// tohost/fromhost symbols resolved.
func NewPagedMemory() *PagedMemory {
	return &PagedMemory{
		pages:    make(map[Address][]byte),
		ToHost:   NoSyscallAddress,
		FromHost: NoSyscallAddress,
	}
}

// SetSyscallHandler registers the handler invoked on a tohost/fromhost
// write.
func (m *PagedMemory) SetSyscallHandler(h SyscallHandler) {
	m.handler = h
}

func tag(addr Address) Address {
	return addr &^ (pageSize - 1)
}

func offset(addr Address) Address {
	return addr & (pageSize - 1)
}

// getOrCreatePage materializes a page on first access.
func (m *PagedMemory) getOrCreatePage(addr Address) []byte {
	t := tag(addr)

	page, ok := m.pages[t]
	if !ok {
		page = make([]byte, pageSize)
		m.pages[t] = page
	}

	return page
}

// ReadBytes copies n bytes starting at addr, crossing page boundaries
// transparently.
func (m *PagedMemory) ReadBytes(addr Address, n int) Block {
	data := make([]byte, n)

	if offset(addr)+Address(n) <= pageSize {
		page := m.getOrCreatePage(addr)
		copy(data, page[offset(addr):offset(addr)+Address(n)])
		return NewBlock(addr, data)
	}

	copied := 0
	for copied < n {
		cur := addr + Address(copied)
		page := m.getOrCreatePage(cur)
		off := offset(cur)

		toCopy := n - copied
		if Address(toCopy) > pageSize-off {
			toCopy = int(pageSize - off)
		}

		copy(data[copied:copied+toCopy], page[off:off+Address(toCopy)])
		copied += toCopy
	}

	return NewBlock(addr, data)
}

// WriteBlock is the inverse of ReadBytes: it stores every byte of the block
// to physical memory, decomposing across page boundaries as needed. It does
// not check for the syscall magic addresses; callers that want the syscall
// trap should go through the Write8/16/32/64 helpers below, or check
// IsSyscallAddress themselves first.
func (m *PagedMemory) WriteBlock(b Block) {
	copied := 0
	for copied < len(b.Data) {
		cur := b.Address + Address(copied)
		page := m.getOrCreatePage(cur)
		off := offset(cur)

		toCopy := len(b.Data) - copied
		if Address(toCopy) > pageSize-off {
			toCopy = int(pageSize - off)
		}

		copy(page[off:off+Address(toCopy)], b.Data[copied:copied+toCopy])
		copied += toCopy
	}
}

// IsSyscallAddress reports whether addr is the resolved tohost or fromhost
// symbol.
func (m *PagedMemory) IsSyscallAddress(addr Address) bool {
	return addr == m.ToHost || addr == m.FromHost
}

// Read8/16/32/64 perform little-endian, possibly page-straddling reads.
func (m *PagedMemory) Read8(addr Address) uint8 {
	return m.ReadBytes(addr, 1).Data[0]
}

func (m *PagedMemory) Read16(addr Address) uint16 {
	return binary.LittleEndian.Uint16(m.ReadBytes(addr, 2).Data)
}

func (m *PagedMemory) Read32(addr Address) uint32 {
	return binary.LittleEndian.Uint32(m.ReadBytes(addr, 4).Data)
}

func (m *PagedMemory) Read64(addr Address) uint64 {
	return binary.LittleEndian.Uint64(m.ReadBytes(addr, 8).Data)
}

// Write8/16/32/64 perform little-endian, possibly page-straddling writes.
// A write to ToHost/FromHost is diverted to the syscall handler instead of
// being stored, per the riscv-tests convention.
func (m *PagedMemory) Write8(addr Address, v uint8) {
	if m.trapSyscall(addr, uint64(v)) {
		return
	}
	m.WriteBlock(NewBlock(addr, []byte{v}))
}

func (m *PagedMemory) Write16(addr Address, v uint16) {
	if m.trapSyscall(addr, uint64(v)) {
		return
	}
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, v)
	m.WriteBlock(NewBlock(addr, data))
}

func (m *PagedMemory) Write32(addr Address, v uint32) {
	if m.trapSyscall(addr, uint64(v)) {
		return
	}
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	m.WriteBlock(NewBlock(addr, data))
}

func (m *PagedMemory) Write64(addr Address, v uint64) {
	if m.trapSyscall(addr, v) {
		return
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, v)
	m.WriteBlock(NewBlock(addr, data))
}

// trapSyscall reports whether addr is a magic address and, if so, dispatches
// to the syscall handler instead of letting the caller store the value.
func (m *PagedMemory) trapSyscall(addr Address, writeData uint64) bool {
	if !m.IsSyscallAddress(addr) {
		return false
	}

	if m.handler != nil {
		m.handler.HandleSyscallWrite(addr, writeData)
	}

	return true
}

// syscallPutcharMask/syscallPutcharTag implement the wire encoding: a write
// whose upper 56 bits equal 0x01010000_00000000 emits the low byte to
// stdout; any other value is an exit request.
const (
	syscallPutcharMask uint64 = 0xFFFFFFFFFFFFFF00
	syscallPutcharTag  uint64 = 0x0101000000000000
)

// DefaultSyscallHandler implements the riscv-tests tohost/fromhost
// convention: putchar on the character encoding, process exit otherwise.
// ExitCode records the full write value as the authoritative exit code (see
// ExitValueIsExitCode); Exited is set once a non-putchar write occurs.
type DefaultSyscallHandler struct {
	// ExitValueIsExitCode selects which of the two observed conventions to
	// use: when true (the authoritative default), the full write value
	// becomes the process exit code. When false, only a write of exactly 1
	// is treated as a passing test (exit code 0); anything else is a
	// failure (exit code 1). The two behaviours give a different exit code
	// for every write value; which one is "correct" depends on the test suite
	// in use, so it is left as a flag rather than guessed.
	ExitValueIsExitCode bool

	Exited   bool
	ExitCode uint64

	Out *os.File
}

// NewDefaultSyscallHandler creates the syscall handler used by the
// testbench driver, writing putchar output to stdout.
func NewDefaultSyscallHandler() *DefaultSyscallHandler {
	return &DefaultSyscallHandler{ExitValueIsExitCode: true, Out: os.Stdout}
}

func (h *DefaultSyscallHandler) HandleSyscallWrite(_ Address, writeData uint64) {
	if (writeData & syscallPutcharMask) == syscallPutcharTag {
		fmt.Fprintf(h.Out, "%c", byte(writeData))
		return
	}

	h.Exited = true
	if h.ExitValueIsExitCode {
		h.ExitCode = writeData
		return
	}

	if writeData == 1 {
		h.ExitCode = 0
	} else {
		h.ExitCode = 1
	}
}

var _ SyscallHandler = (*DefaultSyscallHandler)(nil)
