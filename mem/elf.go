package mem

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	elfMachineRISCV = 0xF3
	elfShtNoBits    = 8
	elfShtSymtab    = 2
	elfShfAlloc     = 0x2
)

// elf64Header is the subset of Elf64_Ehdr the loader needs.
type elf64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// elf64SectionHeader is Elf64_Shdr.
type elf64SectionHeader struct {
	NameOff   uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// elf64Symbol is Elf64_Sym.
type elf64Symbol struct {
	NameOff uint32
	Info    uint8
	Other   uint8
	SHNdx   uint16
	Value   uint64
	Size    uint64
}

// LoadedImage carries the addresses a caller needs after loading a binary:
// the entry point, and the resolved (or sentinel) tohost/fromhost symbols.
type LoadedImage struct {
	Entry    Address
	ToHost   Address
	FromHost Address
}

// LoadELF parses an ELF-64 RISC-V executable out of image and writes every
// SHF_ALLOC section into memory at its physical address, then writes an
// argv image at address 0 ahead of it. args[0] conventionally names the
// binary itself, mirroring the C argc/argv convention the original loader
// followed.
func LoadELF(image []byte, args []string, memory *PagedMemory) (LoadedImage, error) {
	header, err := readELFHeader(image)
	if err != nil {
		return LoadedImage{}, err
	}

	sections, err := readSectionHeaders(image, header)
	if err != nil {
		return LoadedImage{}, err
	}

	for _, sh := range sections {
		if sh.Flags&elfShfAlloc == 0 || sh.Type == elfShtNoBits {
			continue
		}
		if sh.Offset+sh.Size > uint64(len(image)) {
			return LoadedImage{}, errors.Errorf("elf: section at offset %#x overruns file", sh.Offset)
		}
		data := make([]byte, sh.Size)
		copy(data, image[sh.Offset:sh.Offset+sh.Size])
		memory.WriteBlock(NewBlock(Address(sh.Addr), data))
	}

	memory.WriteBlock(buildArgvImage(args))

	toHost, err := resolveSymbol(image, header, sections, "tohost")
	if err != nil {
		return LoadedImage{}, err
	}
	fromHost, err := resolveSymbol(image, header, sections, "fromhost")
	if err != nil {
		return LoadedImage{}, err
	}

	return LoadedImage{
		Entry:    Address(header.Entry),
		ToHost:   toHost,
		FromHost: fromHost,
	}, nil
}

func readELFHeader(image []byte) (elf64Header, error) {
	var header elf64Header
	if len(image) < 64 {
		return header, errors.New("elf: file too short for an ELF-64 header")
	}

	if err := binary.Read(bytes.NewReader(image[:64]), binary.LittleEndian, &header); err != nil {
		return header, errors.Wrap(err, "elf: malformed header")
	}

	if header.Machine != elfMachineRISCV {
		return header, errors.Errorf("elf: received non-RISC-V binary (e_machine=%#x)", header.Machine)
	}

	return header, nil
}

func readSectionHeaders(image []byte, header elf64Header) ([]elf64SectionHeader, error) {
	sections := make([]elf64SectionHeader, header.ShNum)

	for i := range sections {
		off := header.ShOff + uint64(header.ShEntSize)*uint64(i)
		if off+uint64(header.ShEntSize) > uint64(len(image)) {
			return nil, errors.Errorf("elf: section header %d out of range", i)
		}

		r := bytes.NewReader(image[off : off+uint64(header.ShEntSize)])
		if err := binary.Read(r, binary.LittleEndian, &sections[i]); err != nil {
			return nil, errors.Wrapf(err, "elf: malformed section header %d", i)
		}
	}

	return sections, nil
}

// resolveSymbol scans every SHT_SYMTAB section for a symbol named `name`.
// An unresolved symbol is not fatal: it returns NoSyscallAddress, a
// sentinel that never matches a real memory request.
func resolveSymbol(image []byte, header elf64Header, sections []elf64SectionHeader, name string) (Address, error) {
	for _, sh := range sections {
		if sh.Type != elfShtSymtab {
			continue
		}
		if sh.EntSize == 0 {
			continue
		}
		if int(sh.Link) >= len(sections) {
			return 0, errors.Errorf("elf: symtab sh_link %d out of range", sh.Link)
		}
		strtab := sections[sh.Link]

		numSymbols := sh.Size / sh.EntSize
		for i := uint64(0); i < numSymbols; i++ {
			off := sh.Offset + sh.EntSize*i
			if off+sh.EntSize > uint64(len(image)) {
				continue
			}

			var sym elf64Symbol
			r := bytes.NewReader(image[off : off+sh.EntSize])
			if err := binary.Read(r, binary.LittleEndian, &sym); err != nil {
				continue
			}

			symName := readCString(image, strtab.Offset+uint64(sym.NameOff))
			if symName == name {
				return Address(sym.Value), nil
			}
		}
	}

	fmt.Printf("[sim] warning: couldn't find symbol %q in ELF\n", name)
	return NoSyscallAddress, nil
}

func readCString(image []byte, offset uint64) string {
	if offset >= uint64(len(image)) {
		return ""
	}
	end := offset
	for end < uint64(len(image)) && image[end] != 0 {
		end++
	}
	return string(image[offset:end])
}

// buildArgvImage lays out the argc/argv block the simulated program expects
// at physical address 0: a zero word, the argc word, one 64-bit pointer per
// argument, a terminating zero word, then the argument strings themselves.
func buildArgvImage(args []string) Block {
	pointerTableOffset := 8
	stringsOffset := pointerTableOffset + len(args)*8 + 4

	size := stringsOffset
	for _, a := range args {
		size += len(a) + 1
	}

	data := make([]byte, size)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(args)))
	binary.LittleEndian.PutUint32(data[pointerTableOffset+len(args)*8:], 0)

	cursor := stringsOffset
	for i, a := range args {
		binary.LittleEndian.PutUint64(data[pointerTableOffset+i*8:], uint64(cursor))
		copy(data[cursor:], a)
		cursor += len(a) + 1 // NUL terminator byte is left zero.
	}

	return NewBlock(0, data)
}
