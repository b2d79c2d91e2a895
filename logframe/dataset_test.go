package logframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func writeSymbolTable(t *testing.T, wire wireDataset) string {
	t.Helper()
	data, err := cbor.Marshal(wire)
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.cbor")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadConvertsFnsArrayKeysToRanges(t *testing.T) {
	level := 0
	path := writeSymbolTable(t, wireDataset{
		Vars: map[int]string{0x1000: "g_state", 0x1100: "g_count"},
		Fns:  map[[2]int64]string{{0x2000, 0x2100}: "foo"},
		Fmts: map[int]cbor.RawMessage{
			0x3000: marshalFmt(t, []any{level, "a.c", 42, "v=%d", []any{"int32"}}),
		},
	})

	ds, err := Load(path)
	require.NoError(t, err)
	require.Len(t, ds.Functions, 1)
	require.Equal(t, uint32(0x2000), ds.Functions[0].Low)
	require.Equal(t, uint32(0x2100), ds.Functions[0].High)
	require.Equal(t, "foo", ds.Functions[0].Name)

	require.Len(t, ds.Variables, 2)
	require.Equal(t, uint32(0x1000), ds.Variables[0].Address)
	require.Equal(t, uint32(0x1100), ds.Variables[1].Address)

	rec, ok := ds.Fmts[0x3000]
	require.True(t, ok)
	require.False(t, rec.Opaque)
	require.Equal(t, "v=%d", rec.Format)
	require.Len(t, rec.Parsers, 1)
	require.Equal(t, parserInt32, rec.Parsers[0].Kind)
}

func TestLoadTreatsNullLevelAsUndecodable(t *testing.T) {
	path := writeSymbolTable(t, wireDataset{
		Fmts: map[int]cbor.RawMessage{
			0x4000: marshalFmt(t, []any{nil, "a.c", 1, "x", []any{}}),
		},
	})
	ds, err := Load(path)
	require.NoError(t, err)
	rec := ds.Fmts[0x4000]
	require.Nil(t, rec.Level)
}

func TestLoadCompilesEnumAtom(t *testing.T) {
	path := writeSymbolTable(t, wireDataset{
		Fmts: map[int]cbor.RawMessage{
			0x5000: marshalFmt(t, []any{0, "a.c", 1, "color=%s", []any{[]string{"enum", "Color"}}}),
		},
	})
	ds, err := Load(path)
	require.NoError(t, err)
	rec := ds.Fmts[0x5000]
	require.Len(t, rec.Parsers, 1)
	require.Equal(t, parserEnum, rec.Parsers[0].Kind)
	require.Equal(t, "Color", rec.Parsers[0].EnumName)
}

func TestTargetExtractsBits20Through23(t *testing.T) {
	ds := &Dataset{SAddr: 0x00500000}
	require.Equal(t, 5, ds.Target())
}

func marshalFmt(t *testing.T, v []any) cbor.RawMessage {
	t.Helper()
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return cbor.RawMessage(data)
}
