package pe

//noinspection GoSnakeCaseUsage
const (
	IMAGE_DOS_SIGNATURE   = 0x5A4D // MZ
	IMAGE_DOSZM_SIGNATURE = 0x4D5A // ZM
	IMAGE_NE_SIGNATURE    = 0x454E // NE
	IMAGE_LE_SIGNATURE    = 0x454C // LE
	IMAGE_LX_SIGNATURE    = 0x584C // LX
	IMAGE_TE_SIGNATURE    = 0x5A56 // VZ
	IMAGE_NT_SIGNATURE    = 0x00004550

	IMAGE_NT_OPTIONAL_HDR32_MAGIC = 0x10b
	IMAGE_NT_OPTIONAL_HDR64_MAGIC = 0x20b

	IMAGE_NUMBEROF_DIRECTORY_ENTRIES = 16
	IMAGE_SIZEOF_FILE_HEADER         = 20
	IMAGE_SIZEOF_SHORT_NAME          = 8
	IMAGE_SIZEOF_SECTION_HEADER      = 40

	IMAGE_FILE_ALIGNMENT_HARDCODED_VALUE = 0x200

	// Sanity cap on data directories; anything above is treated as corrupt.
	MAX_ASSUMED_VALID_NUMBER_OF_RVA_AND_SIZES = 0x100
)

//noinspection GoSnakeCaseUsage
const (
	IMAGE_FILE_MACHINE_UNKNOWN = 0x0
	IMAGE_FILE_MACHINE_I386    = 0x14c
	IMAGE_FILE_MACHINE_IA64    = 0x200
	IMAGE_FILE_MACHINE_AMD64   = 0x8664
	IMAGE_FILE_MACHINE_ARM     = 0x1c0
	IMAGE_FILE_MACHINE_ARMNT   = 0x1c4
	IMAGE_FILE_MACHINE_ARM64   = 0xaa64
)

//noinspection GoSnakeCaseUsage
const (
	IMAGE_FILE_RELOCS_STRIPPED     = 0x0001
	IMAGE_FILE_EXECUTABLE_IMAGE    = 0x0002
	IMAGE_FILE_LARGE_ADDRESS_AWARE = 0x0020
	IMAGE_FILE_32BIT_MACHINE       = 0x0100
	IMAGE_FILE_DEBUG_STRIPPED      = 0x0200
	IMAGE_FILE_SYSTEM              = 0x1000
	IMAGE_FILE_DLL                 = 0x2000
)

var ImageCharacteristics = map[string]uint32{
	"IMAGE_FILE_RELOCS_STRIPPED":     IMAGE_FILE_RELOCS_STRIPPED,
	"IMAGE_FILE_EXECUTABLE_IMAGE":    IMAGE_FILE_EXECUTABLE_IMAGE,
	"IMAGE_FILE_LARGE_ADDRESS_AWARE": IMAGE_FILE_LARGE_ADDRESS_AWARE,
	"IMAGE_FILE_32BIT_MACHINE":       IMAGE_FILE_32BIT_MACHINE,
	"IMAGE_FILE_DEBUG_STRIPPED":      IMAGE_FILE_DEBUG_STRIPPED,
	"IMAGE_FILE_SYSTEM":              IMAGE_FILE_SYSTEM,
	"IMAGE_FILE_DLL":                 IMAGE_FILE_DLL,
}

var MachineTypes = map[uint16]string{
	IMAGE_FILE_MACHINE_UNKNOWN: "unknown",
	IMAGE_FILE_MACHINE_I386:    "i386",
	IMAGE_FILE_MACHINE_IA64:    "ia64",
	IMAGE_FILE_MACHINE_AMD64:   "amd64",
	IMAGE_FILE_MACHINE_ARM:     "arm",
	IMAGE_FILE_MACHINE_ARMNT:   "armnt",
	IMAGE_FILE_MACHINE_ARM64:   "arm64",
}

//noinspection GoSnakeCaseUsage
const (
	IMAGE_DIRECTORY_ENTRY_EXPORT = iota
	IMAGE_DIRECTORY_ENTRY_IMPORT
	IMAGE_DIRECTORY_ENTRY_RESOURCE
	IMAGE_DIRECTORY_ENTRY_EXCEPTION
	IMAGE_DIRECTORY_ENTRY_SECURITY
	IMAGE_DIRECTORY_ENTRY_BASERELOC
	IMAGE_DIRECTORY_ENTRY_DEBUG
	IMAGE_DIRECTORY_ENTRY_COPYRIGHT
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR
	IMAGE_DIRECTORY_ENTRY_TLS
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT
	IMAGE_DIRECTORY_ENTRY_IAT
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR
	IMAGE_DIRECTORY_ENTRY_RESERVED
)

var DirectoryEntryTypes = map[uint32]string{
	IMAGE_DIRECTORY_ENTRY_EXPORT:         "IMAGE_DIRECTORY_ENTRY_EXPORT",
	IMAGE_DIRECTORY_ENTRY_IMPORT:         "IMAGE_DIRECTORY_ENTRY_IMPORT",
	IMAGE_DIRECTORY_ENTRY_RESOURCE:       "IMAGE_DIRECTORY_ENTRY_RESOURCE",
	IMAGE_DIRECTORY_ENTRY_EXCEPTION:      "IMAGE_DIRECTORY_ENTRY_EXCEPTION",
	IMAGE_DIRECTORY_ENTRY_SECURITY:       "IMAGE_DIRECTORY_ENTRY_SECURITY",
	IMAGE_DIRECTORY_ENTRY_BASERELOC:      "IMAGE_DIRECTORY_ENTRY_BASERELOC",
	IMAGE_DIRECTORY_ENTRY_DEBUG:          "IMAGE_DIRECTORY_ENTRY_DEBUG",
	IMAGE_DIRECTORY_ENTRY_COPYRIGHT:      "IMAGE_DIRECTORY_ENTRY_COPYRIGHT",
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR:      "IMAGE_DIRECTORY_ENTRY_GLOBALPTR",
	IMAGE_DIRECTORY_ENTRY_TLS:            "IMAGE_DIRECTORY_ENTRY_TLS",
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG:    "IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG",
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT:   "IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT",
	IMAGE_DIRECTORY_ENTRY_IAT:            "IMAGE_DIRECTORY_ENTRY_IAT",
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT:   "IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT",
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR: "IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR",
	IMAGE_DIRECTORY_ENTRY_RESERVED:       "IMAGE_DIRECTORY_ENTRY_RESERVED",
}
