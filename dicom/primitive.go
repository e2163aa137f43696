package dicom

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/errors"
)

// PrimitiveValue is the decoded value of one data element under every VR
// except SQ (sequences are a Value variant of their own; see dataobject.go).
// The typed field selected by the VR is populated; Raw always holds the
// value-preserving original bytes so a pass-through re-encode (a proxy that
// doesn't interpret pixel data, say) never has to round-trip through a
// lossy typed representation. Temporal and numeric-as-text VRs carry both:
// Strings holds the wire text, and Dates/Times/DateTimes/Longs/Doubles the
// lexical interpretation, unless the value-preserved reader was used.
type PrimitiveValue struct {
	VR        VR
	Raw       []byte
	Strings   []string    // string VRs, split on the backslash value delimiter
	Shorts    []int16     // SS
	UShorts   []uint16    // US, OW read as words
	Ints      []int32     // SL
	UInts     []uint32    // UL
	Longs     []int64     // SV; IS parsed from ASCII
	ULongs    []uint64    // UV
	Floats    []float32   // FL, OF
	Doubles   []float64   // FD, OD; DS parsed from ASCII
	Tags      []uint32    // AT: each entry is group<<16 | element
	Dates     []time.Time // DA
	Times     []time.Time // TM
	DateTimes []time.Time // DT
}

// ReadPrimitiveValue decodes length bytes from d according to vr's parse
// policy (PS3.5 §6.2 and the per-VR value-representation table). DA, TM,
// DT, IS and DS values are lexically interpreted into their typed fields
// and a malformed member is an error; use ReadPrimitiveValuePreserved to
// keep them as raw text instead. SQ is rejected: sequence values are read
// by the token-stream reader, which recurses into nested data sets instead
// of treating the bytes as opaque.
func ReadPrimitiveValue(d *dicomio.Decoder, vr VR, length Length, cs charset.CodingSystem) (PrimitiveValue, error) {
	return readPrimitiveValue(d, vr, length, cs, false)
}

// ReadPrimitiveValuePreserved decodes like ReadPrimitiveValue but forces
// the temporal and numeric-as-text VRs (DA, TM, DT, IS, DS) into their
// string form without lexical interpretation. It never surfaces a format
// error for those VRs, which makes it the reader of choice when a
// malformed date or number must survive a decode/encode round trip
// byte-identically.
func ReadPrimitiveValuePreserved(d *dicomio.Decoder, vr VR, length Length, cs charset.CodingSystem) (PrimitiveValue, error) {
	return readPrimitiveValue(d, vr, length, cs, true)
}

func readPrimitiveValue(d *dicomio.Decoder, vr VR, length Length, cs charset.CodingSystem, preserved bool) (PrimitiveValue, error) {
	if vr == VRSequenceOfItems {
		return PrimitiveValue{}, errors.NewValueError("", string(vr), "SQ has no primitive value representation")
	}
	if length.IsUndefined() {
		return PrimitiveValue{}, errors.NewValueError("", string(vr), "undefined length on a primitive value")
	}
	n := int(length)
	raw := d.ReadBytes(n)
	if d.Error() != nil {
		return PrimitiveValue{}, d.Error()
	}
	pv := PrimitiveValue{VR: vr, Raw: raw}

	switch vr {
	case VRAttributeTag:
		bo, _ := d.TransferSyntax()
		count := n / 4
		pv.Tags = make([]uint32, count)
		for i := 0; i < count; i++ {
			group := bo.Uint16(raw[i*4 : i*4+2])
			element := bo.Uint16(raw[i*4+2 : i*4+4])
			pv.Tags[i] = uint32(group)<<16 | uint32(element)
		}
		return pv, nil

	case VRUnsignedShort, VROtherWord:
		bo, _ := d.TransferSyntax()
		pv.UShorts = bulkUint16(raw, bo)
		return pv, nil
	case VRSignedShort:
		bo, _ := d.TransferSyntax()
		pv.Shorts = bulkInt16(raw, bo)
		return pv, nil
	case VRUnsignedLong, VROtherLong:
		bo, _ := d.TransferSyntax()
		pv.UInts = bulkUint32(raw, bo)
		return pv, nil
	case VRSignedLong:
		bo, _ := d.TransferSyntax()
		pv.Ints = bulkInt32(raw, bo)
		return pv, nil
	case VRUnsignedVeryLong, VROtherVeryLong:
		bo, _ := d.TransferSyntax()
		pv.ULongs = bulkUint64(raw, bo)
		return pv, nil
	case VRSignedVeryLong:
		bo, _ := d.TransferSyntax()
		pv.Longs = bulkInt64(raw, bo)
		return pv, nil
	case VRFloatingPointSingle, VROtherFloat:
		bo, _ := d.TransferSyntax()
		pv.Floats = bulkFloat32(raw, bo)
		return pv, nil
	case VRFloatingPointDouble, VROtherDouble:
		bo, _ := d.TransferSyntax()
		pv.Doubles = bulkFloat64(raw, bo)
		return pv, nil

	case VROtherByte, VRUnknown:
		// Value-preserved only; Raw already holds it.
		return pv, nil

	case VRPersonName:
		s, err := cs.Decode(charset.AlphabeticCodingSystem, raw)
		if err != nil {
			return PrimitiveValue{}, errors.NewValueError("", string(vr), err.Error())
		}
		pv.Strings = splitValues(s)
		return pv, nil

	case VRLongText, VRShortText, VRUnlimitedText:
		// Single-valued: a backslash in the payload is text, not a
		// multiplicity delimiter.
		s, err := cs.Decode(charset.IdeographicCodingSystem, raw)
		if err != nil {
			return PrimitiveValue{}, errors.NewValueError("", string(vr), err.Error())
		}
		pv.Strings = []string{s}
		return pv, nil

	case VRApplicationEntity, VRUniqueIdentifier:
		s, err := cs.Decode(charset.IdeographicCodingSystem, raw)
		if err != nil {
			return PrimitiveValue{}, errors.NewValueError("", string(vr), err.Error())
		}
		pv.Strings = splitTrimPadding(s)
		return pv, nil

	case VRDate, VRTime, VRDateTime, VRIntegerString, VRDecimalString:
		s, err := cs.Decode(charset.IdeographicCodingSystem, raw)
		if err != nil {
			return PrimitiveValue{}, errors.NewValueError("", string(vr), err.Error())
		}
		pv.Strings = splitValues(s)
		if preserved {
			return pv, nil
		}
		if err := interpretTextValue(&pv); err != nil {
			return PrimitiveValue{}, err
		}
		return pv, nil

	default:
		s, err := cs.Decode(charset.IdeographicCodingSystem, raw)
		if err != nil {
			return PrimitiveValue{}, errors.NewValueError("", string(vr), err.Error())
		}
		pv.Strings = splitValues(s)
		return pv, nil
	}
}

// interpretTextValue parses the temporal and numeric-as-text members of pv
// into their typed fields. An empty member (a zero-length value, or an
// absent member in a multi-valued element) is skipped rather than rejected;
// a non-empty member that does not parse is an error.
func interpretTextValue(pv *PrimitiveValue) error {
	for _, s := range pv.Strings {
		if strings.TrimRight(s, " \x00") == "" {
			continue
		}
		switch pv.VR {
		case VRDate:
			t, err := ParseDate(s)
			if err != nil {
				return err
			}
			pv.Dates = append(pv.Dates, t)
		case VRTime:
			t, err := ParseTime(s)
			if err != nil {
				return err
			}
			pv.Times = append(pv.Times, t)
		case VRDateTime:
			t, err := ParseDateTime(s)
			if err != nil {
				return err
			}
			pv.DateTimes = append(pv.DateTimes, t)
		case VRIntegerString:
			v, err := ParseIntegerString(s)
			if err != nil {
				return errors.NewValueError("", string(pv.VR), err.Error())
			}
			pv.Longs = append(pv.Longs, v)
		case VRDecimalString:
			v, err := ParseDecimalString(s)
			if err != nil {
				return errors.NewValueError("", string(pv.VR), err.Error())
			}
			pv.Doubles = append(pv.Doubles, v)
		}
	}
	return nil
}

func bulkUint16(raw []byte, bo binary.ByteOrder) []uint16 {
	n := len(raw) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = bo.Uint16(raw[i*2 : i*2+2])
	}
	return out
}

func bulkInt16(raw []byte, bo binary.ByteOrder) []int16 {
	u := bulkUint16(raw, bo)
	out := make([]int16, len(u))
	for i, v := range u {
		out[i] = int16(v)
	}
	return out
}

func bulkUint32(raw []byte, bo binary.ByteOrder) []uint32 {
	n := len(raw) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = bo.Uint32(raw[i*4 : i*4+4])
	}
	return out
}

func bulkInt32(raw []byte, bo binary.ByteOrder) []int32 {
	u := bulkUint32(raw, bo)
	out := make([]int32, len(u))
	for i, v := range u {
		out[i] = int32(v)
	}
	return out
}

func bulkUint64(raw []byte, bo binary.ByteOrder) []uint64 {
	n := len(raw) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = bo.Uint64(raw[i*8 : i*8+8])
	}
	return out
}

func bulkInt64(raw []byte, bo binary.ByteOrder) []int64 {
	u := bulkUint64(raw, bo)
	out := make([]int64, len(u))
	for i, v := range u {
		out[i] = int64(v)
	}
	return out
}

func bulkFloat32(raw []byte, bo binary.ByteOrder) []float32 {
	u := bulkUint32(raw, bo)
	out := make([]float32, len(u))
	for i, v := range u {
		out[i] = math.Float32frombits(v)
	}
	return out
}

func bulkFloat64(raw []byte, bo binary.ByteOrder) []float64 {
	u := bulkUint64(raw, bo)
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = math.Float64frombits(v)
	}
	return out
}

// WritePrimitiveValue encodes pv back to its wire form and returns the
// written byte length, which callers use directly as the element's header
// length. The length is even for string VRs (padded) and numeric VRs; OB
// and UN write pv.Raw as it is, so an odd-length Raw gives an odd length.
// It is the encode-side inverse of ReadPrimitiveValue and uses the same VR
// dispatch.
func WritePrimitiveValue(e *dicomio.Encoder, vr VR, pv PrimitiveValue, cs charset.CodingSystem) (int, error) {
	switch vr {
	case VRSequenceOfItems:
		return 0, errors.NewValueError("", string(vr), "SQ has no primitive value representation")

	case VRAttributeTag:
		bo, _ := e.TransferSyntax()
		buf := make([]byte, len(pv.Tags)*4)
		for i, t := range pv.Tags {
			bo.PutUint16(buf[i*4:i*4+2], uint16(t>>16))
			bo.PutUint16(buf[i*4+2:i*4+4], uint16(t))
		}
		e.WriteBytes(buf)
		return len(buf), e.Error()

	case VRUnsignedShort, VROtherWord:
		e.WriteUInt16Array(pv.UShorts)
		return len(pv.UShorts) * 2, e.Error()
	case VRSignedShort:
		e.WriteInt16Array(pv.Shorts)
		return len(pv.Shorts) * 2, e.Error()
	case VRUnsignedLong, VROtherLong:
		e.WriteUInt32Array(pv.UInts)
		return len(pv.UInts) * 4, e.Error()
	case VRSignedLong:
		e.WriteInt32Array(pv.Ints)
		return len(pv.Ints) * 4, e.Error()
	case VRUnsignedVeryLong, VROtherVeryLong:
		bo, _ := e.TransferSyntax()
		buf := make([]byte, len(pv.ULongs)*8)
		for i, v := range pv.ULongs {
			bo.PutUint64(buf[i*8:i*8+8], v)
		}
		e.WriteBytes(buf)
		return len(buf), e.Error()
	case VRSignedVeryLong:
		bo, _ := e.TransferSyntax()
		buf := make([]byte, len(pv.Longs)*8)
		for i, v := range pv.Longs {
			bo.PutUint64(buf[i*8:i*8+8], uint64(v))
		}
		e.WriteBytes(buf)
		return len(buf), e.Error()
	case VRFloatingPointSingle, VROtherFloat:
		e.WriteFloat32Array(pv.Floats)
		return len(pv.Floats) * 4, e.Error()
	case VRFloatingPointDouble, VROtherDouble:
		e.WriteFloat64Array(pv.Doubles)
		return len(pv.Doubles) * 8, e.Error()

	case VROtherByte, VRUnknown:
		e.WriteBytes(pv.Raw)
		return len(pv.Raw), e.Error()

	case VRPersonName:
		return writeStringValue(e, pv.Strings, cs, charset.AlphabeticCodingSystem, false)

	case VRUniqueIdentifier:
		return writeStringValue(e, pv.Strings, cs, charset.IdeographicCodingSystem, true)

	default:
		return writeStringValue(e, pv.Strings, cs, charset.IdeographicCodingSystem, false)
	}
}

// writeStringValue joins parts with the backslash multiplicity delimiter,
// encodes them with cs, and pads the result to an even length: NUL for
// nulPad VRs (only UI is written with nulPad), space for everything else,
// AE included (PS3.5 §6.2).
func writeStringValue(e *dicomio.Encoder, parts []string, cs charset.CodingSystem, role charset.CodingSystemType, nulPad bool) (int, error) {
	joined := strings.Join(parts, "\\")
	encoded, err := cs.Encode(role, joined)
	if err != nil {
		return 0, errors.NewValueError("", "", err.Error())
	}
	pad := byte(' ')
	if nulPad {
		pad = 0x00
	}
	if len(encoded)%2 == 1 {
		encoded = append(encoded, pad)
	}
	e.WriteBytes(encoded)
	return len(encoded), e.Error()
}

// splitValues splits a string VR's payload on the backslash multiplicity
// delimiter without touching padding: trailing whitespace is significant
// for every text VR except AE and UI (PS3.5 §6.2).
func splitValues(s string) []string {
	return strings.Split(s, "\\")
}

// splitTrimPadding splits like splitValues and additionally strips the
// trailing NUL/space padding AE and UI values carry.
func splitTrimPadding(s string) []string {
	parts := strings.Split(s, "\\")
	for i, p := range parts {
		parts[i] = strings.TrimRight(p, " \x00")
	}
	return parts
}

// ParseIntegerString parses an IS value per PS3.5: a leading-zero-tolerant,
// optionally signed decimal integer in at most 12 characters.
func ParseIntegerString(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// ParseDecimalString parses a DS value: a fixed- or floating-point decimal
// number, optionally in scientific notation, in at most 16 characters.
func ParseDecimalString(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseDate parses a DA value: YYYYMMDD, or the partial forms YYYY and
// YYYYMM. Missing components default to the earliest value in range.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimRight(s, " \x00")
	var layout string
	switch len(s) {
	case 4:
		layout = "2006"
	case 6:
		layout = "200601"
	case 8:
		layout = "20060102"
	default:
		return time.Time{}, errors.NewValueError("", "DA", "malformed date "+strconv.Quote(s))
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, errors.NewValueError("", "DA", err.Error())
	}
	return t, nil
}

// ParseTime parses a TM value: HH[MM[SS[.FFFFFF]]].
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimRight(s, " \x00")
	base, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		base, frac = s[:i], s[i+1:]
	}
	var layout string
	switch len(base) {
	case 2:
		layout = "15"
	case 4:
		layout = "1504"
	case 6:
		layout = "150405"
	default:
		return time.Time{}, errors.NewValueError("", "TM", "malformed time "+strconv.Quote(s))
	}
	t, err := time.Parse(layout, base)
	if err != nil {
		return time.Time{}, errors.NewValueError("", "TM", err.Error())
	}
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		micros, err := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
		if err != nil {
			return time.Time{}, errors.NewValueError("", "TM", err.Error())
		}
		t = t.Add(time.Duration(micros) * time.Microsecond)
	}
	return t, nil
}

// ParseDateTime parses a DT value: a partial date, optionally followed by a
// partial time, optionally followed by a ±HHMM UTC offset. A value with no
// offset is interpreted in UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimRight(s, " \x00")
	loc := time.UTC
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		off := s[i:]
		if len(off) != 5 {
			return time.Time{}, errors.NewValueError("", "DT", "malformed UTC offset "+strconv.Quote(off))
		}
		hours, err1 := strconv.Atoi(off[1:3])
		minutes, err2 := strconv.Atoi(off[3:5])
		if err1 != nil || err2 != nil {
			return time.Time{}, errors.NewValueError("", "DT", "malformed UTC offset "+strconv.Quote(off))
		}
		secs := (hours*60 + minutes) * 60
		if off[0] == '-' {
			secs = -secs
		}
		loc = time.FixedZone(off, secs)
		s = s[:i]
	}

	datePart, timePart := s, ""
	if len(s) > 8 {
		datePart, timePart = s[:8], s[8:]
	}
	d, err := ParseDate(datePart)
	if err != nil {
		return time.Time{}, err
	}
	if timePart == "" {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
	}
	tm, err := ParseTime(timePart)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(),
		tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond(), loc), nil
}
