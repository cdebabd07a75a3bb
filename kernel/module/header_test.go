package module

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeader() Header {
	return Header{
		ModuleVersion: 3,
		Name:          "mod_sample",
		Description:   "a sample module",
		Author:        "kernel team",
		License:       "MIT",
		Type:          1,
		Priority:      2,
		Flags:         FlagAutoStart | FlagHotSwap,
		EntryOffset:   0,
		ExitOffset:    4,
	}
}

// TestHeaderRoundTrip covers the round-trip property of §8: encode then
// decode of the module image header round-trips exactly.
func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	h.CodeSize = 16
	h.DataSize = 8
	h.BSSSize = 4
	h.SymbolCount = 1
	h.SymbolTableOffset = 1000
	h.DependencyCount = 0
	h.Checksum = 0xdeadbeef
	h.Signature = 0

	buf := EncodeHeader(h)
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := EncodeHeader(sampleHeader())
	buf[0] = 0xFF
	_, err := DecodeHeader(buf)
	require.Error(t, err)
}

// TestValidateImageRejectsOversizedSection covers the boundary test:
// code_size = 1 MiB + 1 must fail with ValidationFailed.
func TestValidateImageRejectsOversizedSection(t *testing.T) {
	h := sampleHeader()
	code := make([]byte, MaxSectionSize+1)
	buf := BuildImage(h, code, nil, nil, nil)
	_, err := ValidateImage(buf)
	require.Error(t, err)
}

func TestValidateImageAcceptsMaxSection(t *testing.T) {
	h := sampleHeader()
	code := make([]byte, MaxSectionSize)
	buf := BuildImage(h, code, nil, nil, nil)
	parsed, err := ValidateImage(buf)
	require.NoError(t, err)
	require.Equal(t, MaxSectionSize, parsed.Header.CodeSize)
}

func TestValidateImageRejectsBadChecksum(t *testing.T) {
	h := sampleHeader()
	buf := BuildImage(h, []byte("code"), []byte("data"), nil, nil)
	buf[564] ^= 0xFF // corrupt one checksum byte
	_, err := ValidateImage(buf)
	require.Error(t, err)
}

func TestBuildAndValidateSymbolsAndDeps(t *testing.T) {
	h := sampleHeader()
	syms := []SymbolEntry{{Name: "f", AddressRel: 0, Size: 4}}
	deps := []DependencyEntry{{Name: "mod_base", MinVersion: 1, MaxVersion: 5}}
	buf := BuildImage(h, []byte("aaaa"), []byte("bb"), syms, deps)

	parsed, err := ValidateImage(buf)
	require.NoError(t, err)
	require.Equal(t, syms, parsed.Symbols)
	require.Equal(t, deps, parsed.Dependencies)
}
