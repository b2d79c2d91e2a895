package logframe

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Record is one decoded log event.
type Record struct {
	Count     uint64
	Timestamp float64 // seconds since the dataset was loaded
	Level     string
	File      string
	Line      int
	Text      string
}

var levelNames = []string{"INFO", "TRACE ", "WARN ", "ERROR", "FATAL", "PANIC"}

func levelName(n int) string {
	if n < 0 || n >= len(levelNames) {
		return "<bad level>"
	}
	return levelNames[n]
}

// Decode turns a raw (target, address, frame) triple into a structured log
// record, per spec.md §4.8. kind is computed from the address's low two
// bits for parity with the wire format's own bookkeeping; the decoder
// itself only ever dispatches on the masked clean address.
func (d *Dataset) Decode(target int, address uint32, frame []byte) Record {
	_ = address & 3 // kind: present in the wire format, unused by decode itself
	clean := address &^ 3
	count := d.frameCounter.Add(1)
	ts := time.Since(d.loadedAt).Seconds()

	rec, ok := d.Fmts[clean]
	if !ok || rec.Opaque || rec.Level == nil {
		return Record{
			Count:     count,
			Timestamp: ts,
			Level:     "RAW",
			File:      "?",
			Line:      0,
			Text:      fmt.Sprintf("UNDECODED: TGT=%d ADDR=0x%x FRAME=%x", target, address, frame),
		}
	}

	level := levelName(*rec.Level)
	args, rest, err := d.parseFields(rec.Parsers, frame)
	if err == nil && len(rest) > 0 {
		err = fmt.Errorf("%d trailing byte(s)", len(rest))
	}
	if err != nil {
		return Record{
			Count:     count,
			Timestamp: ts,
			Level:     level,
			File:      rec.File,
			Line:      rec.Line,
			Text:      fmt.Sprintf("%s [%x - %v]", rec.Format, frame, err),
		}
	}

	text := applyFormat(rec.Format, args)
	return Record{Count: count, Timestamp: ts, Level: level, File: rec.File, Line: rec.Line, Text: text}
}

// applyFormat substitutes args into format positionally. Go's fmt verbs
// are a close enough superset of the original C-style printf subset this
// format string was written against; a verb/argument mismatch shows up in
// fmt's own "%!verb(...)" error text, which we detect and treat as a
// formatting failure per spec.md's fallback rule.
func applyFormat(format string, args []any) string {
	out := fmt.Sprintf(format, args...)
	if strings.Contains(out, "%!") {
		return fmt.Sprintf("%s (FORMATTING FAILED) %v", format, args)
	}
	return out
}

// parseFields walks atoms against frame, consuming bytes from the front.
// It returns the parsed, substitution-ready arguments and whatever bytes
// were left unconsumed.
func (d *Dataset) parseFields(atoms []parserAtom, frame []byte) ([]any, []byte, error) {
	buf := frame
	args := make([]any, 0, len(atoms))
	for _, a := range atoms {
		switch a.Kind {
		case parserInt32:
			if len(buf) < 4 {
				return nil, nil, fmt.Errorf("short int32 field")
			}
			args = append(args, int32(binary.LittleEndian.Uint32(buf[:4])))
			buf = buf[4:]
		case parserUint32:
			if len(buf) < 4 {
				return nil, nil, fmt.Errorf("short uint32 field")
			}
			args = append(args, binary.LittleEndian.Uint32(buf[:4]))
			buf = buf[4:]
		case parserInt64:
			if len(buf) < 8 {
				return nil, nil, fmt.Errorf("short int64 field")
			}
			args = append(args, int64(binary.LittleEndian.Uint64(buf[:8])))
			buf = buf[8:]
		case parserUint64:
			if len(buf) < 8 {
				return nil, nil, fmt.Errorf("short uint64 field")
			}
			args = append(args, binary.LittleEndian.Uint64(buf[:8]))
			buf = buf[8:]
		case parserDouble:
			if len(buf) < 8 {
				return nil, nil, fmt.Errorf("short double field")
			}
			args = append(args, math.Float64frombits(binary.LittleEndian.Uint64(buf[:8])))
			buf = buf[8:]
		case parserPointer:
			if len(buf) < 4 {
				return nil, nil, fmt.Errorf("short pointer field")
			}
			args = append(args, fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(buf[:4])))
			buf = buf[4:]
		case parserBytes:
			args = append(args, fmt.Sprintf("% x", buf))
			buf = nil
		case parserString:
			idx := indexByte(buf, 0)
			if idx < 0 {
				return nil, nil, fmt.Errorf("unterminated string field")
			}
			args = append(args, string(buf[:idx]))
			buf = buf[idx+1:]
		case parserSym:
			if len(buf) < 4 {
				return nil, nil, fmt.Errorf("short sym field")
			}
			addr := binary.LittleEndian.Uint32(buf[:4])
			args = append(args, d.resolveSym(addr))
			buf = buf[4:]
		case parserEnum:
			if len(buf) < 4 {
				return nil, nil, fmt.Errorf("short enum field")
			}
			value := int32(binary.LittleEndian.Uint32(buf[:4]))
			args = append(args, d.resolveEnum(a.EnumName, value))
			buf = buf[4:]
		}
	}
	return args, buf, nil
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

// resolveSym resolves a symbolic address: function range (low bit masked),
// then nearest-preceding variable within 0x3000, then raw hex.
func (d *Dataset) resolveSym(addr uint32) string {
	masked := addr &^ 1
	for _, f := range d.Functions {
		if masked >= f.Low && masked <= f.High {
			return fmt.Sprintf("%s+0x%x", f.Name, masked-f.Low)
		}
	}
	if idx := nearestPrecedingVariable(d.Variables, addr); idx >= 0 {
		v := d.Variables[idx]
		if addr-v.Address <= 0x3000 {
			return fmt.Sprintf("%s+0x%x", v.Name, addr-v.Address)
		}
	}
	return fmt.Sprintf("0x%08x", addr)
}

// nearestPrecedingVariable returns the index of the variable with the
// greatest address <= addr, or -1 if none qualifies.
func nearestPrecedingVariable(vars []variableEntry, addr uint32) int {
	i := sort.Search(len(vars), func(i int) bool { return vars[i].Address > addr })
	if i == 0 {
		return -1
	}
	return i - 1
}

// resolveEnum resolves value against enums[name], falling back to
// tdenums[name]; an unknown enum name or unknown member both format with
// distinct markers per spec.md §4.8.
func (d *Dataset) resolveEnum(name string, value int32) string {
	members, ok := d.Enums[name]
	if !ok {
		members, ok = d.TDEnums[name]
	}
	if !ok {
		return fmt.Sprintf("<!%s:%d>", name, value)
	}
	if memberName, ok := members[int(value)]; ok {
		return memberName
	}
	return fmt.Sprintf("<%s:%d>", name, value)
}
