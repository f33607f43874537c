package pe

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// The representation of the PEFile with some helpful abstractions
type PEFile struct {
	Filename         string
	DosHeader        *DosHeader
	NTHeader         *NTHeader
	FileHeader       *FileHeader
	OptionalHeader   *OptionalHeader32
	OptionalHeader64 *OptionalHeader64
	Sections         []*SectionHeader
	ExportDirectory  *ExportDirectory

	// Private Fields
	reader    *bytes.Reader
	data      mmap.MMap
	dataLen   int
	headerEnd int
}

// errMapFailed marks failures that happen before any byte was parsed.
type errMapFailed struct{ error }

func (e errMapFailed) Unwrap() error { return e.error }

// PE maps filename read-only and parses its headers, sections and export
// directory. The mapping stays alive until Close.
func PE(filename string) (pe *PEFile, err error) {
	pe = new(PEFile)
	pe.Filename = filename

	handle, err := os.Open(pe.Filename)
	if err != nil {
		return nil, errMapFailed{err}
	}
	defer func() {
		_ = handle.Close()
	}()

	info, err := handle.Stat()
	if err != nil {
		return nil, errMapFailed{err}
	}
	if info.IsDir() {
		return nil, errMapFailed{errors.Errorf("%s is a directory", filename)}
	}
	// mmap refuses zero-length files, report those as malformed instead.
	if info.Size() == 0 {
		return nil, errors.New("file is empty")
	}

	pe.data, err = mmap.Map(handle, mmap.RDONLY, 0)
	if err != nil {
		return nil, errMapFailed{err}
	}
	pe.dataLen = len(pe.data)
	pe.reader = bytes.NewReader(pe.data)

	if err = pe.parse(); err != nil {
		_ = pe.Close()
		return nil, err
	}

	return pe, nil
}

// Close releases the file mapping. Slices returned by the parser must not be
// used afterwards.
func (p *PEFile) Close() error {
	if p.data == nil {
		return nil
	}
	err := p.data.Unmap()
	p.data = nil
	p.reader = nil
	p.dataLen = 0
	return err
}

func (p *PEFile) parse() (err error) {
	// Current file offset.
	offset := 0

	p.DosHeader = NewDosHeader(offset)
	if err = p.parseInterface(&p.DosHeader.ImageDosHeader, offset, p.DosHeader.size); err != nil {
		return errors.Wrap(err, "DOS header")
	}

	if p.DosHeader.E_magic == IMAGE_DOSZM_SIGNATURE {
		return errors.New("probably a ZM Executable (not a PE file)")
	}

	if p.DosHeader.E_magic != IMAGE_DOS_SIGNATURE {
		return errors.New("DOS Header magic not found")
	}
	log.Trace(p.DosHeader)

	if int(p.DosHeader.E_lfanew) > p.dataLen {
		return errors.New("invalid e_lfanew value, probably not a PE file")
	}

	offset = int(p.DosHeader.E_lfanew)

	p.NTHeader = NewNTHeader(offset)
	if err = p.parseInterface(&p.NTHeader.ImageNTHeader, offset, p.NTHeader.size); err != nil {
		return errors.Wrap(err, "NT headers")
	}

	if (p.NTHeader.Signature & 0xFFFF) == IMAGE_NE_SIGNATURE {
		return errors.New("invalid NT Headers signature (probably a NE file)")
	} else if (p.NTHeader.Signature & 0xFFFF) == IMAGE_LE_SIGNATURE {
		return errors.New("invalid NT Headers signature (probably a LE file)")
	} else if (p.NTHeader.Signature & 0xFFFF) == IMAGE_LX_SIGNATURE {
		return errors.New("invalid NT Headers signature (probably a LX file)")
	} else if (p.NTHeader.Signature & 0xFFFF) == IMAGE_TE_SIGNATURE {
		return errors.New("invalid NT Headers signature (probably a TE file)")
	} else if p.NTHeader.Signature != IMAGE_NT_SIGNATURE {
		return errors.New("invalid NT headers signature")
	}
	log.Trace(p.NTHeader)

	offset += p.NTHeader.size

	p.FileHeader = NewFileHeader(offset)
	if err = p.parseInterface(&p.FileHeader.ImageFileHeader, offset, p.FileHeader.size); err != nil {
		return errors.Wrap(err, "file header")
	}
	SetFlags(p.FileHeader.flags, ImageCharacteristics, uint32(p.FileHeader.Characteristics))
	log.Debug(p.FileHeader)

	offset += p.FileHeader.size

	p.OptionalHeader = NewOptionalHeader32(offset)
	if err = p.parseInterface(&p.OptionalHeader.ImageOptionalHeader32, offset, p.OptionalHeader.size); err != nil {
		return errors.Wrap(err, "optional header")
	}

	switch p.OptionalHeader.Magic {
	case IMAGE_NT_OPTIONAL_HDR32_MAGIC:
	case IMAGE_NT_OPTIONAL_HDR64_MAGIC:
		p.OptionalHeader64 = NewOptionalHeader64(offset)
		if err = p.parseInterface(&p.OptionalHeader64.ImageOptionalHeader64, offset, p.OptionalHeader64.size); err != nil {
			return errors.Wrap(err, "optional header")
		}
	default:
		return errors.Errorf("no optional header found - invalid PE32 or PE32+ file (magic 0x%x)", p.OptionalHeader.Magic)
	}

	if p.OptionalHeader64 != nil {
		log.Debug(p.OptionalHeader64)
	} else {
		log.Debug(p.OptionalHeader)
	}

	if !p.FileHeader.HasFlag("IMAGE_FILE_DLL") {
		log.Printf("%s is not flagged as a dynamic link library", p.Filename)
	}

	// Section data
	var numRvaAndSizes uint32

	msg := "Suspicious NumberOfRvaAndSizes in the Optional Header. "
	msg += "Normal values are never larger than 16, the value is: 0x%x"

	var dataDir map[string]*DataDirectory

	sectionOffset := offset + int(p.FileHeader.SizeOfOptionalHeader)

	if p.OptionalHeader64 != nil {
		numRvaAndSizes = p.OptionalHeader64.NumberOfRvaAndSizes
		dataDir = p.OptionalHeader64.DataDirs
		offset += p.OptionalHeader64.size
	} else {
		numRvaAndSizes = p.OptionalHeader.NumberOfRvaAndSizes
		dataDir = p.OptionalHeader.DataDirs
		offset += p.OptionalHeader.size
	}
	if numRvaAndSizes > IMAGE_NUMBEROF_DIRECTORY_ENTRIES {
		log.Warnf(msg, numRvaAndSizes)
	}
	if numRvaAndSizes > MAX_ASSUMED_VALID_NUMBER_OF_RVA_AND_SIZES {
		numRvaAndSizes = IMAGE_NUMBEROF_DIRECTORY_ENTRIES
	}

	for i := uint32(0); i < numRvaAndSizes; i++ {
		if p.dataLen-offset <= 0 {
			break
		}

		dirEntry := NewDataDirectory(offset)
		if err = p.parseInterface(&dirEntry.ImageDataDirectory, offset, dirEntry.size); err != nil {
			return errors.Wrap(err, "data directory")
		}

		offset += dirEntry.size

		name, ok := DirectoryEntryTypes[i]
		if !ok {
			break
		}

		dirEntry.Name = name
		dataDir[dirEntry.Name] = dirEntry
		log.Trace(name, " ", dirEntry)
	}

	offset, err = p.parseSections(sectionOffset)
	if err != nil {
		return err
	}

	p.calculateHeaderEnd(offset)

	return p.parseDataDirectories()
}

// Is64 reports whether the image uses the PE32+ (64-bit) optional header.
func (p *PEFile) Is64() bool {
	return p.OptionalHeader64 != nil
}

// DataDirectory returns the named data directory entry, or nil when the
// optional header does not carry it.
func (p *PEFile) DataDirectory(name string) *DataDirectory {
	if p.OptionalHeader64 != nil {
		return p.OptionalHeader64.DataDirs[name]
	}
	if p.OptionalHeader != nil {
		return p.OptionalHeader.DataDirs[name]
	}
	return nil
}

type ByVAddr []*SectionHeader

func (a ByVAddr) Len() int {
	return len(a)
}
func (a ByVAddr) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}
func (a ByVAddr) Less(i, j int) bool {
	return a[i].VirtualAddress < a[j].VirtualAddress
}

func (p *PEFile) parseSections(offset int) (newOffset int, err error) {
	newOffset = offset
	for i := uint32(0); i < uint32(p.FileHeader.NumberOfSections); i++ {
		section := NewSectionHeader(newOffset)
		if err = p.parseInterface(&section.ImageSectionHeader, newOffset, section.size); err != nil {
			return 0, errors.Wrapf(err, "section header %d", i)
		}

		if uint64(section.PointerToRawData)+uint64(section.SizeOfRawData) > uint64(p.dataLen) {
			log.Printf("section %d raw data lies outside the file: 0x%x+0x%x", i, section.PointerToRawData, section.SizeOfRawData)
		}

		log.Trace(section)
		p.Sections = append(p.Sections, section)

		newOffset += section.size
	}

	// Sort the sections by their VirtualAddress and add a field to each of them
	// with the VirtualAddress of the next section. This will allow to check
	// for potentially overlapping sections in badly constructed PEs.
	sort.Sort(ByVAddr(p.Sections))
	for idx, section := range p.Sections {
		if idx == len(p.Sections)-1 {
			section.nextHeaderRva = 0
		} else {
			section.nextHeaderRva = p.Sections[idx+1].VirtualAddress
		}
	}

	return newOffset, nil
}

func (p *PEFile) parseInterface(iface interface{}, offset, size int) (err error) {
	if offset < 0 || offset+size > p.dataLen {
		return errors.Errorf("read of %d bytes at 0x%x is outside the file", size, offset)
	}

	_, err = p.reader.Seek(int64(offset), io.SeekStart)
	if err != nil {
		return err
	}

	return binary.Read(p.reader, binary.LittleEndian, iface)
}

func (p *PEFile) parseDataDirectories() error {
	funcMap := map[string]func(uint32, uint32) error{
		"IMAGE_DIRECTORY_ENTRY_EXPORT": p.parseExportDirectory,
	}

	for name, parser := range funcMap {
		dirEntry := p.DataDirectory(name)
		if dirEntry == nil || dirEntry.VirtualAddress == 0 {
			continue
		}
		if err := parser(dirEntry.VirtualAddress, dirEntry.Size); err != nil {
			return err
		}
	}

	return nil
}

func (p *PEFile) getSectionByRva(rva uint32) *SectionHeader {
	for _, section := range p.Sections {
		var size uint32
		adjustedPointer := p.adjustFileAlignment(section.PointerToRawData, p.getFileAlignment())
		if uint32(p.dataLen)-adjustedPointer < section.SizeOfRawData {
			size = section.Misc_VirtualSize_PhysicalAddress
		} else {
			size = MaxUInt32(section.SizeOfRawData, section.Misc_VirtualSize_PhysicalAddress)
		}

		vaddr := p.adjustSectionAlignment(section.VirtualAddress, p.getSectionAlignment(), p.getFileAlignment())

		if section.nextHeaderRva != 0 && section.nextHeaderRva > section.VirtualAddress && vaddr+size > section.nextHeaderRva {
			size = section.nextHeaderRva - vaddr
		}

		if vaddr <= rva && rva < (vaddr+size) {
			return section
		}
	}

	return nil
}

func (p *PEFile) getOffsetFromRva(rva uint32) int {
	section := p.getSectionByRva(rva)
	if section == nil {
		if int(rva) < p.dataLen {
			return int(rva)
		}
		log.Println("data at RVA cannot be fetched - corrupt header?")
		return ^0
	}
	sectionAlignment := p.adjustSectionAlignment(section.VirtualAddress, p.getSectionAlignment(), p.getFileAlignment())
	fileAlignment := p.adjustFileAlignment(section.PointerToRawData, p.getFileAlignment())
	return int(rva - sectionAlignment + fileAlignment)
}

func (p *PEFile) getFileAlignment() uint32 {
	if p.OptionalHeader64 != nil {
		return p.OptionalHeader64.FileAlignment
	}
	if p.OptionalHeader != nil {
		return p.OptionalHeader.FileAlignment
	}
	return uint32(4)
}

func (p *PEFile) getSectionAlignment() uint32 {
	if p.OptionalHeader64 != nil {
		return p.OptionalHeader64.SectionAlignment
	}
	if p.OptionalHeader != nil {
		return p.OptionalHeader.SectionAlignment
	}
	return uint32(4)
}

// According to http://corkami.blogspot.com/2010/01/parce-que-la-planche-aura-brule.html
// if PointerToRawData is less that 512 it's rounded to zero. Loading the test file
// in a debugger it's easy to verify that the PointerToRawData value of 1 is rounded
// to zero. Hence we reproduce the behavior
//
// According to the document:
// [ Microsoft Portable Executable and Common Object File Format Specification ]
// "The alignment factor (in bytes) that is used to align the raw data of sections in
//  the image file. The value should be a power of 2 between 512 and 64 K, inclusive.
//  The default is 512. If the SectionAlignment is less than the architecture's page
//  size, then FileAlignment must match SectionAlignment."
//
// The following is a hard-coded constant if the Windows loader
func (p *PEFile) adjustFileAlignment(pointer, fileAlignment uint32) uint32 {
	if fileAlignment > IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE {
		// If it's not a power of two, report it:
		if !PowerOfTwo(fileAlignment) {
			log.Debugf("if FileAlignment > 512 it should be a power of 2: %x", fileAlignment)
		}
	}

	if fileAlignment < IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE {
		return pointer
	}

	return (pointer / IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE) * IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE
}

// According to the document:
// [ Microsoft Portable Executable and Common Object File Format Specification ]
// "The alignment (in bytes) of sections when they are loaded into memory. It must be
//  greater than or equal to FileAlignment. The default is the page size for the
//  architecture."
func (p *PEFile) adjustSectionAlignment(pointer, sectionAlignment, fileAlignment uint32) uint32 {
	if fileAlignment < IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE {
		if fileAlignment != sectionAlignment {
			log.Debugf("if FileAlignment(%x) < 512 it should equal SectionAlignment(%x)", fileAlignment, sectionAlignment)
		}
	}

	if int(sectionAlignment) < os.Getpagesize() { // page size
		sectionAlignment = fileAlignment
	} else if sectionAlignment < 0x80 {
		// 512 is the minimum valid FileAlignment according to the documentation
		// although ntoskrnl.exe has an alignment of 0x80 in some Windows versions
		sectionAlignment = 0x80
	}

	if sectionAlignment != 0 && (pointer%sectionAlignment) != 0 {
		return sectionAlignment * (pointer / sectionAlignment)
	}

	return pointer
}

func (p *PEFile) getDataBounds(rva, length uint32) (start, size int) {
	var offset, end int

	section := p.getSectionByRva(rva)

	if length > 0 {
		end = int(rva + length)
	} else {
		end = p.dataLen
	}

	if section == nil {
		if int(rva) < p.headerEnd {
			end = MinInt(end, p.headerEnd)
		}
		// Before we give up we check whether the file might
		// contain the data anyway. There are cases of PE files
		// without sections that rely on windows loading the first
		// 8291 bytes into memory and assume the data will be there
		// A functional file with these characteristics is:
		// MD5: 0008892cdfbc3bda5ce047c565e52295
		// SHA-1: c7116b9ff950f86af256defb95b5d4859d4752a9
		if int(rva) < p.dataLen {
			return int(rva), end
		}

		return ^0, ^0
	}
	pointer := p.adjustFileAlignment(section.PointerToRawData, p.getFileAlignment())
	vaddr := p.adjustSectionAlignment(section.VirtualAddress, p.getSectionAlignment(), p.getFileAlignment())

	if rva == 0 {
		offset = int(pointer)
	} else {
		offset = int((rva - vaddr) + pointer)
	}

	if length != 0 {
		end = offset + int(length)
	} else {
		end = offset + int(section.SizeOfRawData)
	}

	if end > int(pointer+section.SizeOfRawData) {
		end = int(section.PointerToRawData) + int(section.SizeOfRawData)
	}

	return offset, end
}

// Get an ASCII string from within the data at an RVA considering section
func (p *PEFile) getStringAtRva(rva uint32) []byte {
	start, _ := p.getDataBounds(rva, 0)
	return p.getStringFromData(start)
}

// Get an ASCII string from within the data.
func (p *PEFile) getStringFromData(offset int) []byte {
	if offset < 0 || offset >= p.dataLen {
		return []byte{}
	}

	limit := MinInt(p.dataLen, offset+MAX_STRING_LENGTH)
	end := offset
	for end < limit {
		if p.data[end] == 0 {
			break
		}
		end += 1
	}

	return p.data[offset:end]
}

// OC Patch:
// There could be a problem if there are no raw data sections
// greater than 0
// fc91013eb72529da005110a3403541b6 example
// Should this throw an exception in the minimum header offset
// can't be found?
func (p *PEFile) calculateHeaderEnd(offset int) {
	var rawDataPointers []uint32

	for _, section := range p.Sections {
		prd := section.PointerToRawData
		if prd > uint32(0) {
			rawDataPointers = append(rawDataPointers, p.adjustFileAlignment(prd, p.getFileAlignment()))
		}
	}

	minSectionOffset := 0
	if len(rawDataPointers) > 0 {
		minSectionOffset = int(rawDataPointers[0])
		for _, pointer := range rawDataPointers {
			if int(pointer) < minSectionOffset {
				minSectionOffset = int(pointer)
			}
		}
	}

	if minSectionOffset == 0 || minSectionOffset < offset {
		p.headerEnd = offset
	} else {
		p.headerEnd = minSectionOffset
	}
}
