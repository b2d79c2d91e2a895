package logframe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func int32Frame(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

func uint32Frame(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func newTestDataset(fmts map[uint32]FormatRecord) *Dataset {
	return &Dataset{Fmts: fmts}
}

func TestDecodeHappyPathInt32(t *testing.T) {
	level := 0
	ds := newTestDataset(map[uint32]FormatRecord{
		0x1000: {Level: &level, File: "a.c", Line: 42, Format: "v=%d", Parsers: []parserAtom{{Kind: parserInt32}}},
	})

	rec := ds.Decode(0, 0x1000, int32Frame(-7))
	require.Equal(t, "INFO", rec.Level)
	require.Equal(t, "a.c", rec.File)
	require.Equal(t, 42, rec.Line)
	require.Equal(t, "v=-7", rec.Text)
}

func TestDecodeSymbolViaFunctionRange(t *testing.T) {
	level := 0
	ds := &Dataset{
		Functions: []functionEntry{{Low: 0x2000, High: 0x2100, Name: "foo"}},
		Fmts: map[uint32]FormatRecord{
			0x1000: {Level: &level, File: "a.c", Line: 1, Format: "at %s", Parsers: []parserAtom{{Kind: parserSym}}},
		},
	}

	rec := ds.Decode(0, 0x1000, uint32Frame(0x2049))
	require.Equal(t, "at foo+0x48", rec.Text)
}

func TestDecodeSymbolUnknownFallsBackToHex(t *testing.T) {
	level := 0
	ds := &Dataset{
		Fmts: map[uint32]FormatRecord{
			0x1000: {Level: &level, File: "a.c", Line: 1, Format: "at %s", Parsers: []parserAtom{{Kind: parserSym}}},
		},
	}

	rec := ds.Decode(0, 0x1000, uint32Frame(0x9000))
	require.Equal(t, "at 0x00009000", rec.Text)
}

func TestDecodeEnumMiss(t *testing.T) {
	level := 0
	ds := &Dataset{
		Enums: map[string]map[int]string{"Color": {0: "RED", 1: "GREEN"}},
		Fmts: map[uint32]FormatRecord{
			0x1000: {Level: &level, File: "a.c", Line: 1, Format: "%s", Parsers: []parserAtom{{Kind: parserEnum, EnumName: "Color"}}},
		},
	}

	rec := ds.Decode(0, 0x1000, uint32Frame(2))
	require.Equal(t, "<Color:2>", rec.Text)
}

func TestDecodeEnumUnknownName(t *testing.T) {
	level := 0
	ds := &Dataset{
		Fmts: map[uint32]FormatRecord{
			0x1000: {Level: &level, File: "a.c", Line: 1, Format: "%s", Parsers: []parserAtom{{Kind: parserEnum, EnumName: "Mystery"}}},
		},
	}

	rec := ds.Decode(0, 0x1000, uint32Frame(3))
	require.Equal(t, "<!Mystery:3>", rec.Text)
}

func TestDecodeUnknownAddressIsUndecoded(t *testing.T) {
	ds := newTestDataset(map[uint32]FormatRecord{})
	rec := ds.Decode(2, 0x9999, []byte{0xDE, 0xAD})
	require.Equal(t, "RAW", rec.Level)
	require.Contains(t, rec.Text, "UNDECODED")
	require.Contains(t, rec.Text, "TGT=2")
}

func TestDecodeOpaqueRecordIsUndecoded(t *testing.T) {
	ds := newTestDataset(map[uint32]FormatRecord{
		0x1000: {Opaque: true},
	})
	rec := ds.Decode(0, 0x1000, nil)
	require.Equal(t, "RAW", rec.Level)
}

func TestDecodeTrailingBytesReportsError(t *testing.T) {
	level := 0
	ds := newTestDataset(map[uint32]FormatRecord{
		0x1000: {Level: &level, File: "a.c", Line: 1, Format: "v=%d", Parsers: []parserAtom{{Kind: parserInt32}}},
	})
	frame := append(int32Frame(5), 0xFF)
	rec := ds.Decode(0, 0x1000, frame)
	require.Contains(t, rec.Text, "v=%d")
	require.Contains(t, rec.Text, "trailing")
}

func TestDecodeShortFieldReportsError(t *testing.T) {
	level := 0
	ds := newTestDataset(map[uint32]FormatRecord{
		0x1000: {Level: &level, File: "a.c", Line: 1, Format: "v=%d", Parsers: []parserAtom{{Kind: parserInt32}}},
	})
	rec := ds.Decode(0, 0x1000, []byte{0x01})
	require.Contains(t, rec.Text, "short int32")
}

func TestDecodeStringField(t *testing.T) {
	level := 0
	ds := newTestDataset(map[uint32]FormatRecord{
		0x1000: {Level: &level, File: "a.c", Line: 1, Format: "name=%s", Parsers: []parserAtom{{Kind: parserString}}},
	})
	rec := ds.Decode(0, 0x1000, append([]byte("hello"), 0x00))
	require.Equal(t, "name=hello", rec.Text)
}
