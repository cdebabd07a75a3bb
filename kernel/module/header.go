// Package module implements the hot-swappable module registry: image
// parsing/validation, the flat symbol table, the dependency graph, and
// the load/unload/hot-swap state machine of spec.md §4.3. There is no
// direct teacher analogue (pongo has no relocatable-image concept); the
// registry-of-live-instances shape is grounded on
// game/room_manager.go's map-under-sync.RWMutex pattern, generalized
// from PIDs to module records, while the image layout follows spec.md
// §6's bit-exact table.
package module

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/lguibr/actorkernel/kerr"
)

// Magic and format-version constants from spec.md §6.
const (
	Magic         uint32 = 0x4D4F44
	FormatVersion uint32 = 1
)

// Fixed field widths (bytes) of the bit-exact header.
const (
	nameFieldSize        = 64
	descriptionFieldSize = 256
	authorFieldSize      = 128
	licenseFieldSize     = 64

	// HeaderSize is the offset at which code begins, per spec.md §6's
	// "572+ code size code" row.
	HeaderSize = 572

	// MaxSectionSize and MaxImageSize are spec.md §6's caps: each of
	// code/data/bss <= 1 MiB, total image <= 1 MiB.
	MaxSectionSize = 1 << 20
	MaxImageSize   = 1 << 20

	// SymbolEntrySize is name[64] + address_rel u32 + size u32 + type u8
	// + visibility u8.
	SymbolEntrySize = nameFieldSize + 4 + 4 + 1 + 1
	// DependencyEntrySize is name[64] + min_version u32 + max_version
	// u32 + optional u8.
	DependencyEntrySize = nameFieldSize + 4 + 4 + 1
)

// Flags is the module flags bitmask of spec.md §3.
type Flags uint16

const (
	FlagCore Flags = 1 << iota
	FlagAutoStart
	FlagHotSwap
	FlagAiMonitor
	FlagPrivileged
	FlagPersistent
)

func (f Flags) Has(want Flags) bool { return f&want == want }

// Header is the bit-exact module image header of spec.md §6, decoded
// into Go-native field types (fixed-size NUL-padded byte arrays become
// plain strings).
type Header struct {
	ModuleVersion uint32
	Name          string
	Description   string
	Author        string
	License       string
	Type          uint8
	Priority      uint8
	Flags         Flags

	CodeSize int
	DataSize int
	BSSSize  int

	EntryOffset uint32
	ExitOffset  uint32

	SymbolCount       uint32
	SymbolTableOffset uint32

	DependencyCount       uint32
	DependencyTableOffset uint32

	Checksum  uint32
	Signature uint32
}

func putString(buf []byte, offset, width int, s string) {
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	copy(buf[offset:offset+width], b)
}

func getString(buf []byte, offset, width int) string {
	raw := buf[offset : offset+width]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// EncodeHeader renders h into a HeaderSize-byte buffer at the exact
// offsets spec.md §6 lists.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], h.ModuleVersion)
	putString(buf, 12, nameFieldSize, h.Name)
	putString(buf, 76, descriptionFieldSize, h.Description)
	putString(buf, 332, authorFieldSize, h.Author)
	putString(buf, 460, licenseFieldSize, h.License)
	buf[524] = h.Type
	buf[525] = h.Priority
	binary.LittleEndian.PutUint16(buf[526:528], uint16(h.Flags))
	binary.LittleEndian.PutUint32(buf[528:532], uint32(h.CodeSize))
	binary.LittleEndian.PutUint32(buf[532:536], uint32(h.DataSize))
	binary.LittleEndian.PutUint32(buf[536:540], uint32(h.BSSSize))
	binary.LittleEndian.PutUint32(buf[540:544], h.EntryOffset)
	binary.LittleEndian.PutUint32(buf[544:548], h.ExitOffset)
	binary.LittleEndian.PutUint32(buf[548:552], h.SymbolCount)
	binary.LittleEndian.PutUint32(buf[552:556], h.SymbolTableOffset)
	binary.LittleEndian.PutUint32(buf[556:560], h.DependencyCount)
	binary.LittleEndian.PutUint32(buf[560:564], h.DependencyTableOffset)
	binary.LittleEndian.PutUint32(buf[564:568], h.Checksum)
	binary.LittleEndian.PutUint32(buf[568:572], h.Signature)
	return buf
}

// DecodeHeader parses a HeaderSize-byte prefix into a Header, validating
// only the magic and format version (the full structural validation —
// section size bounds, declared-size-vs-buffer, checksum — is
// ValidateImage's job, per spec.md §4.3 step 1).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, kerr.New(kerr.ValidationFailed, "image shorter than header")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, kerr.New(kerr.ValidationFailed, "bad magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != FormatVersion {
		return Header{}, kerr.New(kerr.ValidationFailed, "unsupported format version")
	}
	h := Header{
		ModuleVersion:         binary.LittleEndian.Uint32(buf[8:12]),
		Name:                  getString(buf, 12, nameFieldSize),
		Description:           getString(buf, 76, descriptionFieldSize),
		Author:                getString(buf, 332, authorFieldSize),
		License:               getString(buf, 460, licenseFieldSize),
		Type:                  buf[524],
		Priority:              buf[525],
		Flags:                 Flags(binary.LittleEndian.Uint16(buf[526:528])),
		CodeSize:              int(binary.LittleEndian.Uint32(buf[528:532])),
		DataSize:              int(binary.LittleEndian.Uint32(buf[532:536])),
		BSSSize:               int(binary.LittleEndian.Uint32(buf[536:540])),
		EntryOffset:           binary.LittleEndian.Uint32(buf[540:544]),
		ExitOffset:            binary.LittleEndian.Uint32(buf[544:548]),
		SymbolCount:           binary.LittleEndian.Uint32(buf[548:552]),
		SymbolTableOffset:     binary.LittleEndian.Uint32(buf[552:556]),
		DependencyCount:       binary.LittleEndian.Uint32(buf[556:560]),
		DependencyTableOffset: binary.LittleEndian.Uint32(buf[560:564]),
		Checksum:              binary.LittleEndian.Uint32(buf[564:568]),
		Signature:             binary.LittleEndian.Uint32(buf[568:572]),
	}
	return h, nil
}

// SymbolEntry is one exported symbol, per spec.md §6's {name[64],
// address_rel, size, type, visibility} layout.
type SymbolEntry struct {
	Name         string
	AddressRel   uint32
	Size         uint32
	Type         uint8
	Visibility   uint8
}

func encodeSymbolEntry(e SymbolEntry) []byte {
	buf := make([]byte, SymbolEntrySize)
	putString(buf, 0, nameFieldSize, e.Name)
	binary.LittleEndian.PutUint32(buf[64:68], e.AddressRel)
	binary.LittleEndian.PutUint32(buf[68:72], e.Size)
	buf[72] = e.Type
	buf[73] = e.Visibility
	return buf
}

func decodeSymbolEntry(buf []byte) SymbolEntry {
	return SymbolEntry{
		Name:       getString(buf, 0, nameFieldSize),
		AddressRel: binary.LittleEndian.Uint32(buf[64:68]),
		Size:       binary.LittleEndian.Uint32(buf[68:72]),
		Type:       buf[72],
		Visibility: buf[73],
	}
}

// DependencyEntry is one required-module declaration, per spec.md §6's
// {name[64], min_version, max_version, optional} layout.
type DependencyEntry struct {
	Name       string
	MinVersion uint32
	MaxVersion uint32
	Optional   bool
}

func encodeDependencyEntry(d DependencyEntry) []byte {
	buf := make([]byte, DependencyEntrySize)
	putString(buf, 0, nameFieldSize, d.Name)
	binary.LittleEndian.PutUint32(buf[64:68], d.MinVersion)
	binary.LittleEndian.PutUint32(buf[68:72], d.MaxVersion)
	if d.Optional {
		buf[72] = 1
	}
	return buf
}

func decodeDependencyEntry(buf []byte) DependencyEntry {
	return DependencyEntry{
		Name:       getString(buf, 0, nameFieldSize),
		MinVersion: binary.LittleEndian.Uint32(buf[64:68]),
		MaxVersion: binary.LittleEndian.Uint32(buf[68:72]),
		Optional:   buf[72] != 0,
	}
}

// ComputeChecksum is this implementation's checksum algorithm (spec.md
// §6 names a checksum field but does not pin an algorithm): CRC-32/IEEE
// over the code and data sections, computed the same way at build time
// (BuildImage) and verify time (ValidateImage).
func ComputeChecksum(code, data []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(code)
	crc.Write(data)
	return crc.Sum32()
}

// BuildImage assembles a complete image byte buffer from a header
// (whose section sizes and table offsets are filled in automatically)
// plus code/data/symbols/dependencies. It is the inverse of
// ValidateImage + the section/table extraction in Load, used by tests
// and by internal/moduletest's synthetic image builder.
func BuildImage(h Header, code, data []byte, symbols []SymbolEntry, deps []DependencyEntry) []byte {
	h.CodeSize = len(code)
	h.DataSize = len(data)
	h.SymbolCount = uint32(len(symbols))
	h.DependencyCount = uint32(len(deps))

	symTableOff := HeaderSize + len(code) + len(data)
	depTableOff := symTableOff + len(symbols)*SymbolEntrySize
	h.SymbolTableOffset = uint32(symTableOff)
	h.DependencyTableOffset = uint32(depTableOff)
	h.Checksum = ComputeChecksum(code, data)

	total := depTableOff + len(deps)*DependencyEntrySize
	buf := make([]byte, total)
	copy(buf, EncodeHeader(h))
	copy(buf[HeaderSize:], code)
	copy(buf[HeaderSize+len(code):], data)
	for i, s := range symbols {
		copy(buf[symTableOff+i*SymbolEntrySize:], encodeSymbolEntry(s))
	}
	for i, d := range deps {
		copy(buf[depTableOff+i*DependencyEntrySize:], encodeDependencyEntry(d))
	}
	return buf
}

// ParsedImage is the result of validating and slicing a raw image
// buffer, per spec.md §4.3 step 1.
type ParsedImage struct {
	Header       Header
	Code         []byte
	Data         []byte
	Symbols      []SymbolEntry
	Dependencies []DependencyEntry
}

// ValidateImage implements spec.md §4.3 load-pipeline step 1: header
// magic/version, section size bounds, declared total size against the
// provided buffer, and checksum verification (signature-checking is
// reserved per spec.md §6 and is not implemented).
func ValidateImage(buf []byte) (ParsedImage, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return ParsedImage{}, err
	}
	if h.CodeSize < 0 || h.DataSize < 0 || h.BSSSize < 0 {
		return ParsedImage{}, kerr.New(kerr.ValidationFailed, "negative section size")
	}
	if h.CodeSize > MaxSectionSize || h.DataSize > MaxSectionSize || h.BSSSize > MaxSectionSize {
		return ParsedImage{}, kerr.New(kerr.ValidationFailed, "section exceeds 1 MiB cap")
	}
	if h.CodeSize+h.DataSize+h.BSSSize > MaxImageSize {
		return ParsedImage{}, kerr.New(kerr.ValidationFailed, "total image exceeds 1 MiB cap")
	}

	symEnd := int(h.SymbolTableOffset) + int(h.SymbolCount)*SymbolEntrySize
	depEnd := int(h.DependencyTableOffset) + int(h.DependencyCount)*DependencyEntrySize
	declaredEnd := HeaderSize + h.CodeSize + h.DataSize
	if int(h.SymbolCount) > 0 && symEnd > declaredEnd {
		declaredEnd = symEnd
	}
	if int(h.DependencyCount) > 0 && depEnd > declaredEnd {
		declaredEnd = depEnd
	}
	if declaredEnd > len(buf) {
		return ParsedImage{}, kerr.New(kerr.ValidationFailed, "declared size exceeds provided buffer")
	}

	code := buf[HeaderSize : HeaderSize+h.CodeSize]
	data := buf[HeaderSize+h.CodeSize : HeaderSize+h.CodeSize+h.DataSize]

	if ComputeChecksum(code, data) != h.Checksum {
		return ParsedImage{}, kerr.New(kerr.ValidationFailed, "checksum mismatch")
	}

	symbols := make([]SymbolEntry, h.SymbolCount)
	for i := range symbols {
		off := int(h.SymbolTableOffset) + i*SymbolEntrySize
		symbols[i] = decodeSymbolEntry(buf[off : off+SymbolEntrySize])
	}
	deps := make([]DependencyEntry, h.DependencyCount)
	for i := range deps {
		off := int(h.DependencyTableOffset) + i*DependencyEntrySize
		deps[i] = decodeDependencyEntry(buf[off : off+DependencyEntrySize])
	}

	return ParsedImage{Header: h, Code: code, Data: data, Symbols: symbols, Dependencies: deps}, nil
}
