package dicom

import (
	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/errors"
	"github.com/mtamura/godicom/types"
)

// Value is the decoded value of a data element: exactly one of Primitive,
// Items, or PixelData is set, selected by the element's VR (SQ -> Items,
// PixelData/FloatPixelData/DoubleFloatPixelData under an encapsulated
// transfer syntax -> PixelData, everything else -> Primitive).
type Value struct {
	Primitive *PrimitiveValue
	Items     []*DataObject
	PixelData *PixelDataSequence
}

// DataElement pairs a decoded header with its value.
type DataElement struct {
	Header DataElementHeader
	Value  Value
}

// DataObject is an ordered collection of data elements: a data set, or one
// item of a sequence (which is itself a data set). Lookup by tag is O(1);
// iteration preserves wire order, which DICOM requires to be ascending tag
// order for a conformant encoder but this reader does not itself enforce
// on decode.
type DataObject struct {
	Elements []*DataElement
	index    map[types.Tag]*DataElement
}

func newDataObject() *DataObject {
	return &DataObject{index: make(map[types.Tag]*DataElement)}
}

func (o *DataObject) add(e *DataElement) {
	o.Elements = append(o.Elements, e)
	o.index[e.Header.Tag] = e
}

// NewDataObject creates an empty data set that elements can be appended to
// with Add, for callers (synthetic query/move results, command-set framing)
// that build a data set by hand instead of decoding one with ReadDataObject.
func NewDataObject() *DataObject {
	return newDataObject()
}

// Add appends a fully-formed element to the data set. If the tag is already
// present, both elements stay in Elements and Get returns the one added
// last. Callers are responsible for
// keeping Header.Length consistent with Value; WriteDataObject recomputes
// it from the encoded value for everything except an undefined-length
// sequence or item.
func (o *DataObject) Add(e *DataElement) {
	o.add(e)
}

// Get returns the element at tag, if present.
func (o *DataObject) Get(tag types.Tag) (*DataElement, bool) {
	e, ok := o.index[tag]
	return e, ok
}

// GetString returns the first string value at tag, or "" if the tag is
// absent or holds no primitive string value.
func (o *DataObject) GetString(tag types.Tag) string {
	e, ok := o.Get(tag)
	if !ok || e.Value.Primitive == nil || len(e.Value.Primitive.Strings) == 0 {
		return ""
	}
	return e.Value.Primitive.Strings[0]
}

// SetString adds a single-valued string element at tag with the given VR,
// for building a data set element by element (e.g. a synthetic C-FIND
// match or a command-set field) without going through the decoder.
func (o *DataObject) SetString(tag types.Tag, vr VR, value string) {
	length := Length(len(value))
	if length%2 != 0 {
		length++
	}
	o.add(&DataElement{
		Header: DataElementHeader{Tag: tag, VR: vr, Length: length},
		Value:  Value{Primitive: &PrimitiveValue{VR: vr, Strings: []string{value}}},
	})
}

// PixelDataSequence is the value of an encapsulated PixelData element
// (PS3.5 Annex A.4): a Basic Offset Table item followed by one fragment
// item per encoded frame (or more, for a multi-fragment frame).
type PixelDataSequence struct {
	OffsetTable []byte
	Fragments   [][]byte
}

// ReadDataObject decodes a complete data set from d: a flat sequence of
// elements, sequences of nested items, and (for the PixelData element
// under an encapsulated transfer syntax) encapsulated fragments, until d
// reaches its current limit (see dicomio.Decoder.PushLimit) or EOF.
// Temporal and numeric-as-text values are lexically interpreted; see
// ReadDataObjectPreserved for the round-trip-fidelity alternative.
func ReadDataObject(d *dicomio.Decoder, dict dictionary.Dictionary, cs charset.CodingSystem) (*DataObject, error) {
	return readDataObject(d, dict, cs, false)
}

// ReadDataObjectPreserved decodes like ReadDataObject but reads DA, TM,
// DT, IS and DS values with ReadPrimitiveValuePreserved, keeping them as
// raw text. A data set containing malformed dates or numbers then decodes
// without error and re-encodes byte-identically, which is what a store-and-
// forward consumer wants.
func ReadDataObjectPreserved(d *dicomio.Decoder, dict dictionary.Dictionary, cs charset.CodingSystem) (*DataObject, error) {
	return readDataObject(d, dict, cs, true)
}

func readDataObject(d *dicomio.Decoder, dict dictionary.Dictionary, cs charset.CodingSystem, preserved bool) (*DataObject, error) {
	root := newDataObject()

	for !d.EOF() {
		h := ReadHeader(d, dict)
		if d.Error() != nil {
			return nil, d.Error()
		}

		switch h.Tag {
		case itemDelimitationTag, sequenceDelimitationTag:
			return nil, errors.NewCodecError(d.BytesRead(), "delimitation item outside any sequence")
		}

		if h.VR == VRSequenceOfItems {
			items, err := readSequenceItems(d, dict, cs, h.Length, preserved)
			if err != nil {
				return nil, err
			}
			root.add(&DataElement{Header: h, Value: Value{Items: items}})
			continue
		}

		if isPixelDataTag(h.Tag) && h.Length.IsUndefined() {
			pd, err := readPixelDataSequence(d)
			if err != nil {
				return nil, err
			}
			root.add(&DataElement{Header: h, Value: Value{PixelData: pd}})
			continue
		}

		pv, err := readPrimitiveValue(d, h.VR, h.Length, cs, preserved)
		if err != nil {
			return nil, err
		}
		if h.Tag == specificCharacterSetTag {
			if resolved, rerr := charset.Parse(pv.Strings); rerr == nil {
				cs = resolved
				d.SetCodingSystem(cs)
			}
		}
		root.add(&DataElement{Header: h, Value: Value{Primitive: &pv}})
	}

	return root, nil
}

var specificCharacterSetTag = types.Tag{Group: 0x0008, Element: 0x0005}

func isPixelDataTag(tag types.Tag) bool {
	switch tag {
	case types.Tag{Group: 0x7FE0, Element: 0x0010},
		types.Tag{Group: 0x7FE0, Element: 0x0008},
		types.Tag{Group: 0x7FE0, Element: 0x0009}:
		return true
	default:
		return false
	}
}

// readSequenceItems decodes the items of one SQ element, each of which is
// itself a data set bounded either by its own declared length or, for an
// undefined-length item inside an undefined-length sequence, by an Item
// Delimitation Item. A defined-length sequence is bounded by narrowing the
// decoder to exactly its declared bytes, so a trailing sibling element is
// never mistaken for another item.
func readSequenceItems(d *dicomio.Decoder, dict dictionary.Dictionary, cs charset.CodingSystem, seqLength Length, preserved bool) ([]*DataObject, error) {
	if !seqLength.IsUndefined() {
		d.PushLimit(int64(seqLength))
		defer d.PopLimit()
	}

	var items []*DataObject

	readOne := func() (bool, error) {
		if seqLength.IsUndefined() {
			if d.EOF() {
				return false, errors.NewCodecError(d.BytesRead(), "unterminated undefined-length sequence")
			}
		} else if d.EOF() {
			return false, nil
		}

		h := ReadHeader(d, dict)
		if d.Error() != nil {
			return false, d.Error()
		}
		if h.Tag == sequenceDelimitationTag {
			return false, nil
		}
		if h.Tag != itemTag {
			return false, errors.NewCodecError(d.BytesRead(), "expected item tag in sequence")
		}

		var item *DataObject
		var err error
		if h.Length.IsUndefined() {
			item, err = readItemBody(d, dict, cs, true, preserved)
		} else {
			d.PushLimit(int64(h.Length))
			item, err = readItemBody(d, dict, cs, false, preserved)
			d.PopLimit()
		}
		if err != nil {
			return false, err
		}
		items = append(items, item)
		return true, nil
	}

	for {
		more, err := readOne()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return items, nil
}

// readItemBody decodes one sequence item's nested data set. For a
// defined-length item, the caller's PushLimit already bounds the read; for
// an undefined-length item, this loop watches for the Item Delimitation
// Item itself.
func readItemBody(d *dicomio.Decoder, dict dictionary.Dictionary, cs charset.CodingSystem, undefined, preserved bool) (*DataObject, error) {
	obj := newDataObject()
	for {
		if undefined {
			if d.EOF() {
				return nil, errors.NewCodecError(d.BytesRead(), "unterminated undefined-length item")
			}
		} else if d.EOF() {
			break
		}

		h := ReadHeader(d, dict)
		if d.Error() != nil {
			return nil, d.Error()
		}
		if h.Tag == itemDelimitationTag {
			break
		}
		if h.VR == VRSequenceOfItems {
			items, err := readSequenceItems(d, dict, cs, h.Length, preserved)
			if err != nil {
				return nil, err
			}
			obj.add(&DataElement{Header: h, Value: Value{Items: items}})
			continue
		}
		pv, err := readPrimitiveValue(d, h.VR, h.Length, cs, preserved)
		if err != nil {
			return nil, err
		}
		obj.add(&DataElement{Header: h, Value: Value{Primitive: &pv}})
	}
	return obj, nil
}

// readPixelDataSequence decodes an encapsulated PixelData element's basic
// offset table and fragment items, terminated by a Sequence Delimitation
// Item (PS3.5 Annex A.4).
func readPixelDataSequence(d *dicomio.Decoder) (*PixelDataSequence, error) {
	pd := &PixelDataSequence{}
	first := true
	for {
		if d.EOF() {
			return nil, errors.NewCodecError(d.BytesRead(), "unterminated encapsulated pixel data")
		}
		group := d.ReadUInt16()
		element := d.ReadUInt16()
		tag := types.Tag{Group: group, Element: element}
		length := d.ReadUInt32()
		if d.Error() != nil {
			return nil, d.Error()
		}
		if tag == sequenceDelimitationTag {
			return pd, nil
		}
		if tag != itemTag {
			return nil, errors.NewCodecError(d.BytesRead(), "expected item tag in encapsulated pixel data")
		}
		data := d.ReadBytes(int(length))
		if d.Error() != nil {
			return nil, d.Error()
		}
		if first {
			pd.OffsetTable = data
			first = false
			continue
		}
		pd.Fragments = append(pd.Fragments, data)
	}
}
