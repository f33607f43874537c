// Package petest builds small but well-formed PE32/PE32+ DLL images for
// tests. Every image has one section holding the export data followed by a
// ret instruction per exported function.
package petest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"aheadlib/pkg/pe"
)

const (
	fileAlignment    = 0x200
	sectionAlignment = 0x1000
	sectionRVA       = 0x1000
	sectionRaw       = 0x200
	imageBase        = 0x10000000
	stubSize         = 16
)

// Export describes one export table entry. Exports sharing an ordinal
// become aliases of the same function slot. Forwarder is the raw loader
// form, e.g. "NTDLL.RtlAllocateHeap" or "KERNEL32.#12".
type Export struct {
	Name      string
	Ordinal   uint32
	Forwarder string
}

type Options struct {
	Is64 bool
	// Base is the ordinal base. Zero means the lowest ordinal in Exports.
	Base          uint32
	DllName       string
	Exports       []Export
	NoExportTable bool
	// Characteristics overrides the file header flags. Zero means a DLL.
	Characteristics uint16
}

// Build returns the bytes of the image described by opts.
func Build(opts Options) []byte {
	section, exportSize := buildSection(opts)

	rawSize := pe.AlignUpUInt32(uint32(len(section)), fileAlignment)
	virtualSize := uint32(len(section))

	var buf bytes.Buffer
	write := func(v interface{}) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}

	write(pe.ImageDosHeader{
		E_magic:  pe.IMAGE_DOS_SIGNATURE,
		E_cblp:   0x90,
		E_cp:     3,
		E_cparhd: 4,
		E_sp:     0xb8,
		E_lfarlc: 0x40,
		E_lfanew: 0x40,
	})
	write(pe.ImageNTHeader{Signature: pe.IMAGE_NT_SIGNATURE})

	machine := uint16(pe.IMAGE_FILE_MACHINE_I386)
	characteristics := uint16(pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE | pe.IMAGE_FILE_DLL)
	optionalSize := uint16(binary.Size(pe.ImageOptionalHeader32{}))
	if opts.Is64 {
		machine = pe.IMAGE_FILE_MACHINE_AMD64
		characteristics = pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE | pe.IMAGE_FILE_DLL
		optionalSize = uint16(binary.Size(pe.ImageOptionalHeader64{}))
	}
	if opts.Characteristics != 0 {
		characteristics = opts.Characteristics
	}
	optionalSize += pe.IMAGE_NUMBEROF_DIRECTORY_ENTRIES * uint16(binary.Size(pe.ImageDataDirectory{}))

	write(pe.ImageFileHeader{
		Machine:              machine,
		NumberOfSections:     1,
		SizeOfOptionalHeader: optionalSize,
		Characteristics:      characteristics,
	})

	sizeOfImage := sectionRVA + pe.AlignUpUInt32(virtualSize, sectionAlignment)
	if opts.Is64 {
		write(pe.ImageOptionalHeader64{
			Magic:                 pe.IMAGE_NT_OPTIONAL_HDR64_MAGIC,
			MajorLinkerVersion:    14,
			SizeOfCode:            rawSize,
			BaseOfCode:            sectionRVA,
			ImageBase:             imageBase,
			SectionAlignment:      sectionAlignment,
			FileAlignment:         fileAlignment,
			MajorSubsystemVersion: 6,
			SizeOfImage:           sizeOfImage,
			SizeOfHeaders:         sectionRaw,
			Subsystem:             2,
			SizeOfStackReserve:    0x100000,
			SizeOfStackCommit:     0x1000,
			SizeOfHeapReserve:     0x100000,
			SizeOfHeapCommit:      0x1000,
			NumberOfRvaAndSizes:   pe.IMAGE_NUMBEROF_DIRECTORY_ENTRIES,
		})
	} else {
		write(pe.ImageOptionalHeader32{
			Magic:                 pe.IMAGE_NT_OPTIONAL_HDR32_MAGIC,
			MajorLinkerVersion:    14,
			SizeOfCode:            rawSize,
			BaseOfCode:            sectionRVA,
			BaseOfData:            sectionRVA,
			ImageBase:             imageBase,
			SectionAlignment:      sectionAlignment,
			FileAlignment:         fileAlignment,
			MajorSubsystemVersion: 6,
			SizeOfImage:           sizeOfImage,
			SizeOfHeaders:         sectionRaw,
			Subsystem:             2,
			SizeOfStackReserve:    0x100000,
			SizeOfStackCommit:     0x1000,
			SizeOfHeapReserve:     0x100000,
			SizeOfHeapCommit:      0x1000,
			NumberOfRvaAndSizes:   pe.IMAGE_NUMBEROF_DIRECTORY_ENTRIES,
		})
	}

	dirs := make([]pe.ImageDataDirectory, pe.IMAGE_NUMBEROF_DIRECTORY_ENTRIES)
	if !opts.NoExportTable {
		dirs[pe.IMAGE_DIRECTORY_ENTRY_EXPORT] = pe.ImageDataDirectory{
			VirtualAddress: sectionRVA,
			Size:           exportSize,
		}
	}
	write(dirs)

	header := pe.ImageSectionHeader{
		Misc_VirtualSize_PhysicalAddress: virtualSize,
		VirtualAddress:                   sectionRVA,
		SizeOfRawData:                    rawSize,
		PointerToRawData:                 sectionRaw,
		Characteristics:                  0x60000020, // code, execute, read
	}
	copy(header.Name[:], ".text")
	write(header)

	if buf.Len() > sectionRaw {
		panic("petest: headers overflow the first file alignment unit")
	}
	buf.Write(make([]byte, sectionRaw-buf.Len()))
	buf.Write(section)
	buf.Write(make([]byte, int(rawSize)-len(section)))

	return buf.Bytes()
}

// Write builds the image and stores it as dir/name.
func Write(t testing.TB, dir, name string, opts Options) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, Build(opts), 0644))
	return path
}

// buildSection lays out the export directory, its three tables, the string
// pool and the code stubs. The returned size covers everything up to the end
// of the string pool, so forwarder strings fall inside the export directory.
func buildSection(opts Options) ([]byte, uint32) {
	if opts.NoExportTable {
		return bytes.Repeat([]byte{0xC3}, stubSize), 0
	}

	base := opts.Base
	if base == 0 {
		base = 1
		for i, e := range opts.Exports {
			if i == 0 || e.Ordinal < base {
				base = e.Ordinal
			}
		}
	}

	var numFuncs uint32
	slots := map[uint32]Export{}
	for _, e := range opts.Exports {
		if e.Ordinal < base {
			panic("petest: export ordinal below the ordinal base")
		}
		idx := e.Ordinal - base
		if idx+1 > numFuncs {
			numFuncs = idx + 1
		}
		if _, ok := slots[idx]; !ok {
			slots[idx] = e
		}
	}

	type nameRef struct {
		name string
		idx  uint16
	}
	var names []nameRef
	for _, e := range opts.Exports {
		if e.Name != "" {
			names = append(names, nameRef{e.Name, uint16(e.Ordinal - base)})
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return names[i].name < names[j].name })

	dllName := opts.DllName
	if dllName == "" {
		dllName = "test.dll"
	}

	dirSize := uint32(binary.Size(pe.ImageExportDirectory{}))
	funcsOff := dirSize
	namesOff := funcsOff + 4*numFuncs
	ordsOff := namesOff + 4*uint32(len(names))
	strOff := ordsOff + 2*uint32(len(names))

	var pool bytes.Buffer
	addString := func(s string) uint32 {
		rva := sectionRVA + strOff + uint32(pool.Len())
		pool.WriteString(s)
		pool.WriteByte(0)
		return rva
	}

	dllNameRVA := addString(dllName)
	nameRVAs := make([]uint32, len(names))
	for i, n := range names {
		nameRVAs[i] = addString(n.name)
	}
	forwarderRVAs := map[uint32]uint32{}
	for idx := uint32(0); idx < numFuncs; idx++ {
		if e, ok := slots[idx]; ok && e.Forwarder != "" {
			forwarderRVAs[idx] = addString(e.Forwarder)
		}
	}

	exportSize := strOff + uint32(pool.Len())
	codeOff := pe.AlignUpUInt32(exportSize, stubSize)
	data := make([]byte, codeOff+numFuncs*stubSize)

	var dir bytes.Buffer
	if err := binary.Write(&dir, binary.LittleEndian, pe.ImageExportDirectory{
		Name:                  dllNameRVA,
		Base:                  base,
		NumberOfFunctions:     numFuncs,
		NumberOfNames:         uint32(len(names)),
		AddressOfFunctions:    sectionRVA + funcsOff,
		AddressOfNames:        sectionRVA + namesOff,
		AddressOfNameOrdinals: sectionRVA + ordsOff,
	}); err != nil {
		panic(err)
	}
	copy(data, dir.Bytes())

	for idx := uint32(0); idx < numFuncs; idx++ {
		var rva uint32
		if _, ok := slots[idx]; ok {
			rva = sectionRVA + codeOff + idx*stubSize
			if fwd, ok := forwarderRVAs[idx]; ok {
				rva = fwd
			}
		}
		binary.LittleEndian.PutUint32(data[funcsOff+4*idx:], rva)
	}
	for i, n := range names {
		binary.LittleEndian.PutUint32(data[namesOff+4*uint32(i):], nameRVAs[i])
		binary.LittleEndian.PutUint16(data[ordsOff+2*uint32(i):], n.idx)
	}
	copy(data[strOff:], pool.Bytes())
	for i := codeOff; i < uint32(len(data)); i++ {
		data[i] = 0xC3
	}

	return data, exportSize
}
