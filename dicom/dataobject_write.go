package dicom

import (
	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicomio"
)

// WriteDataObject encodes obj to e in tag order, the encode-side inverse of
// ReadDataObject: primitive elements are written header-then-value, SQ
// elements recurse into their items, and an encapsulated PixelData element
// is written as a Basic Offset Table item followed by one item per
// fragment. e's transfer syntax (byte order, implicit/explicit VR) governs
// every header and numeric value written.
//
// A sequence or item whose Header.Length is UndefinedLength is written with
// the undefined-length marker and a closing delimitation item; one with a
// defined length is written with that length recomputed from its actual
// encoded size, so a caller that mutates an item after reading it never has
// to keep the length field in sync by hand.
func WriteDataObject(e *dicomio.Encoder, obj *DataObject, cs charset.CodingSystem) error {
	for _, el := range obj.Elements {
		if err := writeElement(e, el, cs); err != nil {
			return err
		}
	}
	return e.Error()
}

func writeElement(e *dicomio.Encoder, el *DataElement, cs charset.CodingSystem) error {
	switch {
	case el.Header.VR == VRSequenceOfItems:
		return writeSequence(e, el, cs)
	case el.Value.PixelData != nil:
		return writePixelDataSequence(e, el)
	default:
		return writePrimitiveElement(e, el, cs)
	}
}

func writePrimitiveElement(e *dicomio.Encoder, el *DataElement, cs charset.CodingSystem) error {
	var pv PrimitiveValue
	if el.Value.Primitive != nil {
		pv = *el.Value.Primitive
	}
	bo, implicit := e.TransferSyntax()
	buf := dicomio.NewBytesEncoder(bo, implicit)
	n, err := WritePrimitiveValue(buf, el.Header.VR, pv, cs)
	if err != nil {
		return err
	}
	h := el.Header
	h.Length = Length(n)
	WriteHeader(e, h)
	e.WriteBytes(buf.Bytes())
	return e.Error()
}

func writeSequence(e *dicomio.Encoder, el *DataElement, cs charset.CodingSystem) error {
	undefined := el.Header.Length.IsUndefined()

	if undefined {
		h := el.Header
		h.Length = UndefinedLength
		WriteHeader(e, h)
		for _, item := range el.Value.Items {
			if err := writeItem(e, item, cs, true); err != nil {
				return err
			}
		}
		WriteHeader(e, DataElementHeader{Tag: sequenceDelimitationTag, VR: VRUnknown, Length: 0})
		return e.Error()
	}

	bo, implicit := e.TransferSyntax()
	body := dicomio.NewBytesEncoder(bo, implicit)
	for _, item := range el.Value.Items {
		if err := writeItem(body, item, cs, false); err != nil {
			return err
		}
	}
	h := el.Header
	h.Length = Length(len(body.Bytes()))
	WriteHeader(e, h)
	e.WriteBytes(body.Bytes())
	return e.Error()
}

func writeItem(e *dicomio.Encoder, item *DataObject, cs charset.CodingSystem, undefined bool) error {
	if undefined {
		WriteHeader(e, DataElementHeader{Tag: itemTag, VR: VRUnknown, Length: UndefinedLength})
		for _, el := range item.Elements {
			if err := writeElement(e, el, cs); err != nil {
				return err
			}
		}
		WriteHeader(e, DataElementHeader{Tag: itemDelimitationTag, VR: VRUnknown, Length: 0})
		return e.Error()
	}

	bo, implicit := e.TransferSyntax()
	body := dicomio.NewBytesEncoder(bo, implicit)
	for _, el := range item.Elements {
		if err := writeElement(body, el, cs); err != nil {
			return err
		}
	}
	WriteHeader(e, DataElementHeader{Tag: itemTag, VR: VRUnknown, Length: Length(len(body.Bytes()))})
	e.WriteBytes(body.Bytes())
	return e.Error()
}

func writePixelDataSequence(e *dicomio.Encoder, el *DataElement) error {
	h := el.Header
	h.Length = UndefinedLength
	WriteHeader(e, h)

	WriteHeader(e, DataElementHeader{Tag: itemTag, VR: VRUnknown, Length: Length(len(el.Value.PixelData.OffsetTable))})
	e.WriteBytes(el.Value.PixelData.OffsetTable)

	for _, frag := range el.Value.PixelData.Fragments {
		WriteHeader(e, DataElementHeader{Tag: itemTag, VR: VRUnknown, Length: Length(len(frag))})
		e.WriteBytes(frag)
	}

	WriteHeader(e, DataElementHeader{Tag: sequenceDelimitationTag, VR: VRUnknown, Length: 0})
	return e.Error()
}
