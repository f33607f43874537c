package pe

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// exportTableLimit bounds an export table array of elemSize entries that
// starts at rva by the end of the section holding it.
func (p *PEFile) exportTableLimit(rva, count, elemSize uint32) (uint32, bool) {
	section := p.getSectionByRva(rva)
	if section == nil {
		return 0, false
	}

	end := uint64(section.VirtualAddress) + uint64(MaxUInt32(section.SizeOfRawData, section.Misc_VirtualSize_PhysicalAddress))
	if end <= uint64(rva) {
		return 0, true
	}

	safetyBoundary := uint32((end - uint64(rva)) / uint64(elemSize))
	return MinUInt32(safetyBoundary, count), true
}

// Parse the export directory.
//
// Given the RVA of the export directory, it will process all
// its entries.
//
// Every non-empty slot of the export address table becomes one ExportData.
// Names are attached through the name ordinal table; when several names
// point at the same slot the first one is the name and the rest are aliases.
func (p *PEFile) parseExportDirectory(rva, size uint32) (err error) {
	exportDir := NewExportDirectory(p.getOffsetFromRva(rva))
	start, _ := p.getDataBounds(rva, 0)
	if err = p.parseInterface(&exportDir.ImageExportDirectory, start, exportDir.size); err != nil {
		return errors.Wrap(err, "export directory")
	}
	p.ExportDirectory = exportDir
	log.Debug(exportDir)

	if exportDir.Name != 0 {
		exportDir.ModuleName = p.getStringAtRva(exportDir.Name)
		if len(exportDir.ModuleName) > 0 && !validDosFilename(exportDir.ModuleName) {
			log.Warnf("export directory module name %q looks corrupt", exportDir.ModuleName)
		}
	}

	if exportDir.NumberOfFunctions == 0 {
		return nil
	}

	errMsg := "RVA %s in the export directory points to an invalid address: %x"

	numberOfFunctions, ok := p.exportTableLimit(exportDir.AddressOfFunctions, exportDir.NumberOfFunctions, 4)
	if !ok {
		return errors.Errorf(errMsg, "AddressOfFunctions", exportDir.AddressOfFunctions)
	}
	if numberOfFunctions < exportDir.NumberOfFunctions {
		log.Warnf("export address table truncated from %d to %d entries", exportDir.NumberOfFunctions, numberOfFunctions)
	}

	startAddrOfFuncs, _ := p.getDataBounds(exportDir.AddressOfFunctions, 0)

	named := make(map[uint32]*ExportData)
	if exportDir.NumberOfNames > 0 {
		numberOfNames, ok := p.exportTableLimit(exportDir.AddressOfNames, exportDir.NumberOfNames, 4)
		if !ok {
			return errors.Errorf(errMsg, "AddressOfNames", exportDir.AddressOfNames)
		}
		if _, ok := p.exportTableLimit(exportDir.AddressOfNameOrdinals, exportDir.NumberOfNames, 2); !ok {
			return errors.Errorf(errMsg, "AddressOfNameOrdinals", exportDir.AddressOfNameOrdinals)
		}

		startAddrOfNames, _ := p.getDataBounds(exportDir.AddressOfNames, 0)
		startAddrOfOrdinals, _ := p.getDataBounds(exportDir.AddressOfNameOrdinals, 0)

		for i := uint32(0); i < numberOfNames; i++ {
			var symNameAddr uint32
			nameOffset := startAddrOfNames + (int(i) * 4)
			if err = p.parseInterface(&symNameAddr, nameOffset, 4); err != nil {
				return errors.Wrapf(err, "export name %d", i)
			}

			var index uint16
			if err = p.parseInterface(&index, startAddrOfOrdinals+(int(i)*2), 2); err != nil {
				return errors.Wrapf(err, "export name ordinal %d", i)
			}

			if uint32(index) >= numberOfFunctions {
				log.Warnf("export name %d refers to function slot %d past the end of the table", i, index)
				continue
			}

			name := p.getStringAtRva(symNameAddr)
			if len(name) == 0 {
				log.Warnf("export name %d at RVA 0x%x is empty", i, symNameAddr)
				continue
			}
			if !validFuncName(name) {
				log.Debugf("export name %q contains unusual characters", name)
			}

			if prev, ok := named[uint32(index)]; ok {
				log.Debugf("export %q aliases %q", name, prev.Name)
				prev.Aliases = append(prev.Aliases, name)
				continue
			}

			named[uint32(index)] = &ExportData{
				Name:       name,
				NameOffset: p.getOffsetFromRva(symNameAddr),
			}
		}
	}

	for i := uint32(0); i < numberOfFunctions; i++ {
		sym := new(ExportData)
		if n, ok := named[i]; ok {
			sym = n
		}
		sym.Index = i

		// Address
		sym.AddressOffset = startAddrOfFuncs + (int(i) * 4)
		if err = p.parseInterface(&sym.Address, sym.AddressOffset, 4); err != nil {
			return errors.Wrapf(err, "export address %d", i)
		}
		if sym.Address == 0 {
			continue
		}

		ordinal := uint64(exportDir.Base) + uint64(i)
		if ordinal > 0xFFFF {
			log.Warnf("export ordinal %d does not fit in 16 bits, clamping", ordinal)
			ordinal = 0xFFFF
		}
		sym.Ordinal = uint16(ordinal)

		// Forwarder if applicable
		if sym.Address >= rva && uint64(sym.Address) < uint64(rva)+uint64(size) {
			sym.Forwarder = p.getStringAtRva(sym.Address)
			sym.ForwarderOffset = p.getOffsetFromRva(sym.Address)
		}

		log.Trace(sym)
		exportDir.Exports = append(exportDir.Exports, sym)
	}

	return nil
}
