package pe

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
)

// DOS Header
//noinspection GoSnakeCaseUsage
type ImageDosHeader struct {
	E_magic    uint16
	E_cblp     uint16
	E_cp       uint16
	E_crlc     uint16
	E_cparhd   uint16
	E_minalloc uint16
	E_maxalloc uint16
	E_ss       uint16
	E_sp       uint16
	E_csum     uint16
	E_ip       uint16
	E_cs       uint16
	E_lfarlc   uint16
	E_ovno     uint16
	E_res      [8]uint8
	E_oemid    uint16
	E_oeminfo  uint16
	E_res2     [20]uint8
	E_lfanew   uint32
}

type DosHeader struct {
	ImageDosHeader
	fileOffset int
	size       int
}

func NewDosHeader(fileOffset int) (header *DosHeader) {
	header = new(DosHeader)
	header.size = binary.Size(header.ImageDosHeader)
	header.fileOffset = fileOffset
	return header
}

func (h *DosHeader) String() string {
	return structString(h.fileOffset, "IMAGE_DOS_HEADER", h.ImageDosHeader)
}

// NT Header
type ImageNTHeader struct {
	Signature uint32
}

type NTHeader struct {
	ImageNTHeader
	fileOffset int
	size       int
}

func NewNTHeader(fileOffset int) (header *NTHeader) {
	header = new(NTHeader)
	header.size = binary.Size(header.ImageNTHeader)
	header.fileOffset = fileOffset
	return header
}

func (h *NTHeader) String() string {
	return structString(h.fileOffset, "IMAGE_NT_HEADER", h.ImageNTHeader)
}

// File Header
type ImageFileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type FileHeader struct {
	ImageFileHeader

	fileOffset int
	size       int
	flags      map[string]bool
}

func NewFileHeader(fileOffset int) (header *FileHeader) {
	header = new(FileHeader)
	header.flags = make(map[string]bool)
	header.size = IMAGE_SIZEOF_FILE_HEADER
	header.fileOffset = fileOffset
	return header
}

func (f *FileHeader) String() string {
	return structString(f.fileOffset, "IMAGE_FILE_HEADER", f.ImageFileHeader) + flagString(f.flags)
}

// HasFlag reports whether the named characteristic was set when the header was parsed.
func (f *FileHeader) HasFlag(name string) bool {
	return f.flags[name]
}

// Optional Header
type ImageOptionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Reserved1                   uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type OptionalHeader32 struct {
	ImageOptionalHeader32
	DataDirs map[string]*DataDirectory

	fileOffset int
	size       int
}

func NewOptionalHeader32(fileOffset int) (header *OptionalHeader32) {
	header = new(OptionalHeader32)
	header.DataDirs = make(map[string]*DataDirectory)
	header.size = binary.Size(header.ImageOptionalHeader32)
	header.fileOffset = fileOffset
	return header
}

func (o *OptionalHeader32) String() string {
	return structString(o.fileOffset, "OPTIONAL_HEADER", o.ImageOptionalHeader32)
}

// PE32+ drops BaseOfData and widens ImageBase and the stack/heap sizes.
type ImageOptionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Reserved1                   uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type OptionalHeader64 struct {
	ImageOptionalHeader64
	DataDirs map[string]*DataDirectory

	fileOffset int
	size       int
}

func NewOptionalHeader64(fileOffset int) (header *OptionalHeader64) {
	header = new(OptionalHeader64)
	header.DataDirs = make(map[string]*DataDirectory)
	header.size = binary.Size(header.ImageOptionalHeader64)
	header.fileOffset = fileOffset
	return header
}

func (o *OptionalHeader64) String() string {
	return structString(o.fileOffset, "OPTIONAL_HEADER64", o.ImageOptionalHeader64)
}

// Data directory
type ImageDataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type DataDirectory struct {
	ImageDataDirectory
	Name string

	fileOffset int
	size       int
}

func NewDataDirectory(fileOffset int) (header *DataDirectory) {
	header = new(DataDirectory)
	header.size = binary.Size(header.ImageDataDirectory)
	header.fileOffset = fileOffset
	return header
}

func (d *DataDirectory) String() string {
	return structString(d.fileOffset, "DATA_DIRECTORY", d.ImageDataDirectory)
}

// Image Section

//noinspection GoSnakeCaseUsage
type ImageSectionHeader struct {
	Name                             [IMAGE_SIZEOF_SHORT_NAME]uint8
	Misc_VirtualSize_PhysicalAddress uint32
	VirtualAddress                   uint32
	SizeOfRawData                    uint32
	PointerToRawData                 uint32
	PointerToRelocations             uint32
	PointerToLinenumbers             uint32
	NumberOfRelocations              uint16
	NumberOfLinenumbers              uint16
	Characteristics                  uint32
}

type SectionHeader struct {
	ImageSectionHeader

	nextHeaderRva uint32

	fileOffset int
	size       int
}

func NewSectionHeader(fileOffset int) (header *SectionHeader) {
	header = new(SectionHeader)
	header.size = IMAGE_SIZEOF_SECTION_HEADER
	header.fileOffset = fileOffset
	return header
}

func (s *SectionHeader) String() string {
	return structString(s.fileOffset, "SECTION_HEADER", s.ImageSectionHeader)
}

// Export Directory
type ImageExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

type ExportDirectory struct {
	ImageExportDirectory
	// Module name recorded by the linker, usually the original file name.
	ModuleName []byte
	Exports    []*ExportData

	fileOffset int
	size       int
}

func NewExportDirectory(fileOffset int) (header *ExportDirectory) {
	header = new(ExportDirectory)
	header.size = binary.Size(header.ImageExportDirectory)
	header.fileOffset = fileOffset
	return header
}

func (d *ExportDirectory) String() string {
	return structString(d.fileOffset, "EXPORT_DIRECTORY", d.ImageExportDirectory)
}

// ExportData is one slot of the export address table. Slots with a zero
// address are never materialized.
type ExportData struct {
	// Index into AddressOfFunctions, before the ordinal base is applied.
	Index           uint32
	Ordinal         uint16
	Address         uint32
	AddressOffset   int
	Name            []byte // empty when exported by ordinal only
	NameOffset      int
	// Further names bound to the same slot, in name table order.
	Aliases         [][]byte
	Forwarder       []byte
	ForwarderOffset int
}

func (e ExportData) String() string {
	return structString(0, "Export Data", e)
}

// Helper functions

func structString(fileOffset int, structName string, iface interface{}) string {
	sType := reflect.TypeOf(iface)
	sValue := reflect.ValueOf(iface)
	values := "[" + structName + "]\n"
	for i := 0; i < sType.NumField(); i++ {
		sField := sType.Field(i)
		vField := sValue.Field(i)
		if !sField.IsExported() {
			continue
		}
		kind := vField.Kind()

		fieldOffset := uint64(fileOffset) + uint64(sField.Offset)
		if kind == reflect.Uint8 || kind == reflect.Uint16 || kind == reflect.Uint32 || kind == reflect.Uint64 {
			values += fmt.Sprintf("0x%-4X\t\t0x%-4X\t%-24s\t0x%X"+
				"\n", fieldOffset, sField.Offset, sField.Name, vField.Interface())
		}

		if kind == reflect.Array || kind == reflect.Slice || kind == reflect.String {
			values += fmt.Sprintf("0x%-4X\t\t0x%-4X\t%-24s\t%s"+
				"\n", fieldOffset, sField.Offset, sField.Name, vField.Interface())
		}
	}
	return values
}

func flagString(flagMap map[string]bool) string {
	if len(flagMap) == 0 {
		return "No Flags\n"
	}

	var set []string
	for key, value := range flagMap {
		if value {
			set = append(set, key)
		}
	}

	return "Flags: " + strings.Join(set, " | ") + "\n"
}

// Call this function after the data has been parsed
func SetFlags(flagMap map[string]bool, charMap map[string]uint32, flags uint32) {
	for key, value := range charMap {
		flagMap[key] = (flags & value) == value
	}
}
