// Package logframe loads a CBOR-described symbol table and decodes raw
// binary log records emitted by the instrument into structured log events.
package logframe

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// wireDataset mirrors the symbol table's top-level CBOR map. fns uses a
// fixed-size [2]int64 key: Go arrays (unlike slices) are comparable, so the
// CBOR library can decode the wire's 2-array keys straight into a Go map
// key without a manual tuple-conversion pass.
type wireDataset struct {
	Enums   map[string]map[int]string `cbor:"enums"`
	TDEnums map[string]map[int]string `cbor:"tdenums"`
	Vars    map[int]string            `cbor:"vars"`
	Fns     map[[2]int64]string       `cbor:"fns"`
	SAddr   uint32                    `cbor:"saddr"`
	Fmts    map[int]cbor.RawMessage   `cbor:"fmts"`
}

type variableEntry struct {
	Address uint32
	Name    string
}

type functionEntry struct {
	Low, High uint32
	Name      string
}

type parserKind int

const (
	parserInt32 parserKind = iota
	parserUint32
	parserInt64
	parserUint64
	parserDouble
	parserPointer
	parserBytes
	parserString
	parserSym
	parserEnum
)

var atomKinds = map[string]parserKind{
	"int32":   parserInt32,
	"uint32":  parserUint32,
	"int64":   parserInt64,
	"uint64":  parserUint64,
	"double":  parserDouble,
	"pointer": parserPointer,
	"bytes":   parserBytes,
	"string":  parserString,
	"sym":     parserSym,
}

type parserAtom struct {
	Kind     parserKind
	EnumName string // only meaningful when Kind == parserEnum
}

// FormatRecord is a pre-compiled fmts entry. Opaque marks a 3-element wire
// record (passthrough, never decoded); a nil Level marks a 5-element record
// whose level is CBOR null, which spec.md treats the same as a missing
// entry — both fall back to an UNDECODED record.
type FormatRecord struct {
	Opaque  bool
	Level   *int
	File    string
	Line    int
	Format  string
	Parsers []parserAtom
}

// Dataset is the immutable symbol table bundle a decoder is built from.
type Dataset struct {
	Enums     map[string]map[int]string
	TDEnums   map[string]map[int]string
	Variables []variableEntry // sorted by Address for nearest-preceding lookup
	Functions []functionEntry // sorted by Low for range-containment lookup
	SAddr     uint32
	Fmts      map[uint32]FormatRecord

	loadedAt     time.Time
	frameCounter atomic.Uint64
}

// Load reads path and parses it into a Dataset. Any I/O or structural
// failure is a load error — per spec.md, symbol-table problems are the one
// class of failure in this subsystem that should fail loudly rather than
// degrade to an UNDECODED record.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr("load", CodeIO, err)
	}

	var wire wireDataset
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, newErr("load", CodeDecode, err)
	}

	variables := make([]variableEntry, 0, len(wire.Vars))
	for addr, name := range wire.Vars {
		variables = append(variables, variableEntry{Address: uint32(addr), Name: name})
	}
	sort.Slice(variables, func(i, j int) bool { return variables[i].Address < variables[j].Address })

	functions := make([]functionEntry, 0, len(wire.Fns))
	for rng, name := range wire.Fns {
		functions = append(functions, functionEntry{Low: uint32(rng[0]), High: uint32(rng[1]), Name: name})
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].Low < functions[j].Low })

	fmts := make(map[uint32]FormatRecord, len(wire.Fmts))
	for addr, raw := range wire.Fmts {
		rec, err := compileFormat(raw)
		if err != nil {
			return nil, newErr(fmt.Sprintf("load:fmts:0x%x", addr), CodeDecode, err)
		}
		fmts[uint32(addr)] = rec
	}

	return &Dataset{
		Enums:     wire.Enums,
		TDEnums:   wire.TDEnums,
		Variables: variables,
		Functions: functions,
		SAddr:     wire.SAddr,
		Fmts:      fmts,
		loadedAt:  time.Now(),
	}, nil
}

// Target returns the target id encoded in bits 20..23 of the dataset's
// saddr metadata.
func (d *Dataset) Target() int {
	return int((d.SAddr >> 20) & 0xF)
}

func compileFormat(raw cbor.RawMessage) (FormatRecord, error) {
	var probe []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &probe); err != nil {
		return FormatRecord{}, err
	}
	switch len(probe) {
	case 3:
		return FormatRecord{Opaque: true}, nil
	case 5:
		var level *int
		if err := cbor.Unmarshal(probe[0], &level); err != nil {
			return FormatRecord{}, err
		}
		var file string
		if err := cbor.Unmarshal(probe[1], &file); err != nil {
			return FormatRecord{}, err
		}
		var line int
		if err := cbor.Unmarshal(probe[2], &line); err != nil {
			return FormatRecord{}, err
		}
		var format string
		if err := cbor.Unmarshal(probe[3], &format); err != nil {
			return FormatRecord{}, err
		}
		var atomsRaw []cbor.RawMessage
		if err := cbor.Unmarshal(probe[4], &atomsRaw); err != nil {
			return FormatRecord{}, err
		}
		atoms := make([]parserAtom, 0, len(atomsRaw))
		for _, araw := range atomsRaw {
			atom, err := compileAtom(araw)
			if err != nil {
				return FormatRecord{}, err
			}
			atoms = append(atoms, atom)
		}
		return FormatRecord{Level: level, File: file, Line: line, Format: format, Parsers: atoms}, nil
	default:
		return FormatRecord{}, fmt.Errorf("unexpected fmts record length %d", len(probe))
	}
}

func compileAtom(raw cbor.RawMessage) (parserAtom, error) {
	var name string
	if err := cbor.Unmarshal(raw, &name); err == nil {
		kind, ok := atomKinds[name]
		if !ok {
			return parserAtom{}, fmt.Errorf("unknown parser atom %q", name)
		}
		return parserAtom{Kind: kind}, nil
	}
	var pair [2]string
	if err := cbor.Unmarshal(raw, &pair); err == nil && pair[0] == "enum" {
		return parserAtom{Kind: parserEnum, EnumName: pair[1]}, nil
	}
	return parserAtom{}, fmt.Errorf("unrecognized parser atom %s", raw)
}
