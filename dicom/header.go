package dicom

import (
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/types"
)

// DataElementHeader is the decoded (tag, VR, length) triple that precedes
// every data element's value bytes, independent of which of the three wire
// encodings (Implicit VR LE, Explicit VR LE short/long form, Explicit VR
// BE) produced it.
type DataElementHeader struct {
	Tag    types.Tag
	VR     VR
	Length Length
}

// itemTag and the two delimiter tags live in the private group 0xFFFE and
// are never looked up in a dictionary; they always carry an implicit,
// 4-byte length field regardless of transfer syntax.
var (
	itemTag                 = types.Tag{Group: 0xFFFE, Element: 0xE000}
	itemDelimitationTag     = types.Tag{Group: 0xFFFE, Element: 0xE00D}
	sequenceDelimitationTag = types.Tag{Group: 0xFFFE, Element: 0xE0DD}
)

func isDelimiter(tag types.Tag) bool {
	return tag.Group == 0xFFFE
}

// ReadHeader decodes one data element header from d, resolving an Implicit
// VR element's VR against dict using the eager-relaxation policy (virtual
// VRs such as OX/XS are immediately concretized; see the dictionary
// package). Delimiter tags in group FFFE never carry a VR on the wire and
// are returned with VR UN and their 4-byte length, whatever the transfer
// syntax.
func ReadHeader(d *dicomio.Decoder, dict dictionary.Dictionary) DataElementHeader {
	group := d.ReadUInt16()
	element := d.ReadUInt16()
	tag := types.Tag{Group: group, Element: element}
	if d.Error() != nil {
		return DataElementHeader{Tag: tag}
	}

	if isDelimiter(tag) {
		length := Length(d.ReadUInt32())
		return DataElementHeader{Tag: tag, VR: VRUnknown, Length: length}
	}

	_, implicit := d.TransferSyntax()
	if implicit == dicomio.ImplicitVR {
		vr := VRUnknown
		switch {
		// Pixel Data and the repeating Overlay Data group decode as OW
		// whatever a (possibly caller-supplied) dictionary says about them.
		case tag == (types.Tag{Group: 0x7FE0, Element: 0x0010}):
			vr = VROtherWord
		case tag.Group&0xFF00 == 0x6000 && tag.Element == 0x3000:
			vr = VROtherWord
		default:
			if entry, ok := dict.ByTag(tag); ok {
				vr = VR(dictionary.Relaxed(entry.VR))
			} else if tag.Element == 0x0000 {
				vr = VRUnsignedLong
			}
		}
		length := Length(d.ReadUInt32())
		return DataElementHeader{Tag: tag, VR: vr, Length: length}
	}

	vrBytes := d.ReadBytes(2)
	if d.Error() != nil {
		return DataElementHeader{Tag: tag}
	}
	// An unrecognised two-letter code is not a decode failure: PS3.5 leaves
	// room for VRs this codec doesn't know about, so they are read as UN,
	// the same fallback Implicit VR decoding uses for a dictionary miss.
	vr, err := FromTwoASCIIBytes([2]byte{vrBytes[0], vrBytes[1]})
	if err != nil {
		vr = VRUnknown
	}

	var length Length
	if vr.HasLongLengthField() {
		d.Skip(2) // reserved
		length = Length(d.ReadUInt32())
	} else {
		length = Length(d.ReadUInt16())
	}
	return DataElementHeader{Tag: tag, VR: vr, Length: length}
}

// WriteHeader encodes h to e. In Implicit VR, the VR is not written at all
// (a reader must recover it from a dictionary, exactly as ReadHeader does);
// in Explicit VR, the long or short length form is chosen by h.VR.
func WriteHeader(e *dicomio.Encoder, h DataElementHeader) {
	e.WriteUInt16(h.Tag.Group)
	e.WriteUInt16(h.Tag.Element)

	if isDelimiter(h.Tag) {
		e.WriteUInt32(uint32(h.Length))
		return
	}

	_, implicit := e.TransferSyntax()
	if implicit == dicomio.ImplicitVR {
		e.WriteUInt32(uint32(h.Length))
		return
	}

	b := h.VR.ToTwoASCIIBytes()
	e.WriteBytes(b[:])
	if h.VR.HasLongLengthField() {
		e.WriteZeros(2)
		e.WriteUInt32(uint32(h.Length))
	} else {
		e.WriteUInt16(uint16(h.Length))
	}
}
