package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/types"
)

// part10Magic is the four ASCII bytes that follow the 128-byte preamble in
// a DICOM Part 10 file (PS3.10 §7.1).
const part10Magic = "DICM"

const preambleLength = 128

// FileMetaTable is the File Meta Information group (group 0x0002) that
// precedes every Part 10 data set, always encoded Explicit VR Little
// Endian regardless of the main data set's own transfer syntax.
type FileMetaTable struct {
	*DataObject
}

// TransferSyntaxUID returns the (0002,0010) value that determines how to
// decode the data set following this meta table.
func (m *FileMetaTable) TransferSyntaxUID() string {
	return m.firstString(types.Tag{Group: 0x0002, Element: 0x0010})
}

// MediaStorageSOPClassUID returns (0002,0002).
func (m *FileMetaTable) MediaStorageSOPClassUID() string {
	return m.firstString(types.Tag{Group: 0x0002, Element: 0x0002})
}

// MediaStorageSOPInstanceUID returns (0002,0003).
func (m *FileMetaTable) MediaStorageSOPInstanceUID() string {
	return m.firstString(types.Tag{Group: 0x0002, Element: 0x0003})
}

func (m *FileMetaTable) firstString(tag types.Tag) string {
	el, ok := m.Get(tag)
	if !ok || el.Value.Primitive == nil || len(el.Value.Primitive.Strings) == 0 {
		return ""
	}
	return el.Value.Primitive.Strings[0]
}

// ReadFile decodes a complete DICOM Part 10 stream: the 128-byte preamble,
// the "DICM" magic, the File Meta Information group (always Explicit VR
// Little Endian), and the main data set, switched to the transfer syntax
// the meta group declares (PS3.10 §7.1, SPEC_FULL.md §6.1).
func ReadFile(r io.Reader, dict dictionary.Dictionary) (*FileMetaTable, *DataObject, error) {
	preamble := make([]byte, preambleLength+len(part10Magic))
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, nil, fmt.Errorf("dicom: reading Part 10 preamble: %w", err)
	}
	if string(preamble[preambleLength:]) != part10Magic {
		return nil, nil, fmt.Errorf("dicom: missing DICM magic at offset %d", preambleLength)
	}

	metaDecoder := dicomio.NewDecoder(r, binary.LittleEndian, dicomio.ExplicitVR)
	groupLengthHeader := ReadHeader(metaDecoder, dict)
	if metaDecoder.Error() != nil {
		return nil, nil, fmt.Errorf("dicom: reading File Meta Information Group Length: %w", metaDecoder.Error())
	}
	if groupLengthHeader.Tag != (types.Tag{Group: 0x0002, Element: 0x0000}) {
		return nil, nil, fmt.Errorf("dicom: File Meta Information must begin with Group Length, got %s", groupLengthHeader.Tag)
	}
	groupLengthValue, err := ReadPrimitiveValue(metaDecoder, groupLengthHeader.VR, groupLengthHeader.Length, charset.Default)
	if err != nil {
		return nil, nil, fmt.Errorf("dicom: reading File Meta Information Group Length value: %w", err)
	}
	if len(groupLengthValue.UInts) != 1 {
		return nil, nil, fmt.Errorf("dicom: File Meta Information Group Length has no value")
	}

	metaDecoder.PushLimit(int64(groupLengthValue.UInts[0]))
	metaObj, err := ReadDataObject(metaDecoder, dict, charset.Default)
	metaDecoder.PopLimit()
	if err != nil {
		return nil, nil, fmt.Errorf("dicom: reading File Meta Information: %w", err)
	}
	meta := &FileMetaTable{DataObject: metaObj}

	tsUID := meta.TransferSyntaxUID()
	if tsUID == "" {
		return nil, nil, fmt.Errorf("dicom: File Meta Information is missing Transfer Syntax UID")
	}
	ts := Resolve(tsUID)

	// Continue reading from metaDecoder itself, not the original r: its
	// internal bufio.Reader may already have buffered bytes past the meta
	// group's declared length, and reading those same bytes again from r
	// directly would desynchronize the stream.
	body := ts.WrapReader(metaDecoder)
	dataDecoder := dicomio.NewDecoder(body, ts.ByteOrder, ts.Implicit)
	dataset, err := ReadDataObject(dataDecoder, dict, charset.Default)
	if err != nil {
		return nil, nil, fmt.Errorf("dicom: reading data set (transfer syntax %s): %w", tsUID, err)
	}
	return meta, dataset, nil
}

// WriteFile encodes meta and dataset as a complete Part 10 stream: a
// zero-filled preamble, the DICM magic, the File Meta Information group
// (recomputing its Group Length to match what's actually written), and the
// data set under the transfer syntax meta declares.
func WriteFile(w io.Writer, meta *FileMetaTable, dataset *DataObject) error {
	tsUID := meta.TransferSyntaxUID()
	if tsUID == "" {
		return fmt.Errorf("dicom: WriteFile: meta is missing Transfer Syntax UID")
	}

	if _, err := w.Write(make([]byte, preambleLength)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, part10Magic); err != nil {
		return err
	}

	metaBody := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ExplicitVR)
	if err := WriteDataObject(metaBody, meta.DataObject, charset.Default); err != nil {
		return fmt.Errorf("dicom: encoding File Meta Information: %w", err)
	}

	groupLengthEl := &DataElement{
		Header: DataElementHeader{Tag: types.Tag{Group: 0x0002, Element: 0x0000}, VR: VRUnsignedLong, Length: 4},
		Value:  Value{Primitive: &PrimitiveValue{VR: VRUnsignedLong, UInts: []uint32{uint32(len(metaBody.Bytes()))}}},
	}
	glEncoder := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ExplicitVR)
	if err := writeElement(glEncoder, groupLengthEl, charset.Default); err != nil {
		return fmt.Errorf("dicom: encoding File Meta Information Group Length: %w", err)
	}
	if _, err := w.Write(glEncoder.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(metaBody.Bytes()); err != nil {
		return err
	}

	ts := Resolve(tsUID)
	var dataBuf bytes.Buffer
	dataEncoder := dicomio.NewEncoder(&dataBuf, ts.ByteOrder, ts.Implicit)
	if err := WriteDataObject(dataEncoder, dataset, charset.Default); err != nil {
		return fmt.Errorf("dicom: encoding data set: %w", err)
	}
	wc := ts.WrapWriter(w)
	if _, err := wc.Write(dataBuf.Bytes()); err != nil {
		return err
	}
	return wc.Close()
}
