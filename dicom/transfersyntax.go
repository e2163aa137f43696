package dicom

import (
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/types"
)

// TransferSyntax is the dataset-codec-relevant projection of a transfer
// syntax: the byte order and VR-encoding mode its element headers use, and
// whether its value stream is deflate-compressed or its pixel data is
// encapsulated. The UID registry itself — names, retirement status,
// compression family — is carried by types.TransferSyntaxInfo; this struct
// adds the fields the dataset codec needs that the registry doesn't.
type TransferSyntax struct {
	UID          string
	ByteOrder    binary.ByteOrder
	Implicit     dicomio.IsImplicitVR
	Deflated     bool
	Encapsulated bool
}

// DeflatedExplicitVRLittleEndian re-exports types.DeflatedExplicitVRLittleEndian
// for callers that otherwise only import this package: its dataset bytes,
// after the File Meta group, are themselves a raw DEFLATE stream (RFC 1951,
// no zlib or gzip framing) of an otherwise ordinary Explicit VR Little
// Endian dataset, a byte layout types.TransferSyntaxInfo doesn't model.
const DeflatedExplicitVRLittleEndian = types.DeflatedExplicitVRLittleEndian

// Resolve looks up the dataset-codec parameters for a transfer syntax UID.
// An unrecognised UID is not an error here: many encapsulated compressed
// syntaxes (JPEG family, RLE) share the same Explicit VR LE element-header
// framing and only differ in how PixelData's fragments are interpreted, a
// concern this core deliberately leaves to a pixel codec plugged in above
// it (see Non-goals).
func Resolve(uid string) TransferSyntax {
	switch uid {
	case "", types.ImplicitVRLittleEndian:
		return TransferSyntax{UID: types.ImplicitVRLittleEndian, ByteOrder: binary.LittleEndian, Implicit: dicomio.ImplicitVR}
	case types.ExplicitVRBigEndian:
		return TransferSyntax{UID: uid, ByteOrder: binary.BigEndian, Implicit: dicomio.ExplicitVR}
	case types.DeflatedExplicitVRLittleEndian:
		return TransferSyntax{UID: uid, ByteOrder: binary.LittleEndian, Implicit: dicomio.ExplicitVR, Deflated: true}
	default:
		ts := TransferSyntax{UID: uid, ByteOrder: binary.LittleEndian, Implicit: dicomio.ExplicitVR}
		if info, ok := types.KnownTransferSyntax(uid); ok {
			ts.Encapsulated = info.SupportsEncapsulated && info.IsCompressed
		}
		return ts
	}
}

// WrapReader applies the deflate transform Deflated transfer syntaxes
// require before any header can be decoded from the stream.
func (ts TransferSyntax) WrapReader(r io.Reader) io.Reader {
	if !ts.Deflated {
		return r
	}
	return flate.NewReader(r)
}

// WrapWriter applies the inverse transform of WrapReader. Callers must
// Close the returned io.WriteCloser to flush the final deflate block.
func (ts TransferSyntax) WrapWriter(w io.Writer) io.WriteCloser {
	if !ts.Deflated {
		return nopWriteCloser{w}
	}
	fw, _ := flate.NewWriter(w, flate.DefaultCompression)
	return fw
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// String renders the transfer syntax the way slog attributes expect:
// short, UID-identified, human-legible if the UID is a known one.
func (ts TransferSyntax) String() string {
	if info, ok := types.KnownTransferSyntax(ts.UID); ok {
		return fmt.Sprintf("%s (%s)", info.Name, ts.UID)
	}
	return ts.UID
}
