// Package dicomio provides endianness-parameterized encoding and decoding
// of the primitive byte layouts DICOM data elements are built from:
// fixed-width integers and floats, fixed-length byte runs, and
// character-set-aware strings. It does not know about tags, VRs, or
// sequence nesting; those live in the dicom package, layered on top.
package dicomio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mtamura/godicom/charset"
)

// IsImplicitVR records whether the transfer syntax in effect carries an
// explicit 2-byte VR code with each element header, or must be resolved
// against a dictionary.
type IsImplicitVR int

const (
	ImplicitVR IsImplicitVR = iota
	ExplicitVR
	UnknownVR
)

type transferSyntaxState struct {
	byteOrder binary.ByteOrder
	implicit  IsImplicitVR
}

// Encoder serializes primitive values under a given byte order, tracking
// the first error encountered (the "sticky error" pattern) so call sites
// can chain writes without checking every return value.
type Encoder struct {
	err       error
	out       io.Writer
	byteOrder binary.ByteOrder
	implicit  IsImplicitVR

	tsStack []transferSyntaxState
}

// NewEncoder creates an Encoder that writes to out.
func NewEncoder(out io.Writer, byteOrder binary.ByteOrder, implicit IsImplicitVR) *Encoder {
	return &Encoder{out: out, byteOrder: byteOrder, implicit: implicit}
}

// NewBytesEncoder creates an Encoder backed by an in-memory buffer whose
// contents are retrieved with Bytes.
func NewBytesEncoder(byteOrder binary.ByteOrder, implicit IsImplicitVR) *Encoder {
	return NewEncoder(&bytes.Buffer{}, byteOrder, implicit)
}

// TransferSyntax returns the byte order and VR-encoding mode in effect.
func (e *Encoder) TransferSyntax() (binary.ByteOrder, IsImplicitVR) {
	return e.byteOrder, e.implicit
}

// PushTransferSyntax temporarily switches byte order and implicit-VR mode,
// for example while encoding an encapsulated item in an otherwise
// big-endian stream. PopTransferSyntax restores the previous setting.
func (e *Encoder) PushTransferSyntax(byteOrder binary.ByteOrder, implicit IsImplicitVR) {
	e.tsStack = append(e.tsStack, transferSyntaxState{e.byteOrder, e.implicit})
	e.byteOrder = byteOrder
	e.implicit = implicit
}

// PopTransferSyntax undoes the most recent PushTransferSyntax.
func (e *Encoder) PopTransferSyntax() {
	last := len(e.tsStack) - 1
	e.byteOrder, e.implicit = e.tsStack[last].byteOrder, e.tsStack[last].implicit
	e.tsStack = e.tsStack[:last]
}

// SetError records err as the sticky error, if one isn't already set.
func (e *Encoder) SetError(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

func (e *Encoder) SetErrorf(format string, args ...interface{}) {
	e.SetError(fmt.Errorf(format, args...))
}

// Error returns the first error recorded by a Write* call, or nil.
func (e *Encoder) Error() error { return e.err }

// Bytes returns the accumulated output. It panics if the encoder was not
// built with NewBytesEncoder, mirroring a programmer error rather than a
// data error.
func (e *Encoder) Bytes() []byte {
	buf, ok := e.out.(*bytes.Buffer)
	if !ok {
		panic("dicomio: Bytes called on an Encoder not backed by a buffer")
	}
	return buf.Bytes()
}

func (e *Encoder) WriteByte(v byte) {
	if e.err != nil {
		return
	}
	if _, err := e.out.Write([]byte{v}); err != nil {
		e.SetError(err)
	}
}

func (e *Encoder) WriteUInt16(v uint16)   { e.write(v) }
func (e *Encoder) WriteUInt32(v uint32)   { e.write(v) }
func (e *Encoder) WriteInt16(v int16)     { e.write(v) }
func (e *Encoder) WriteInt32(v int32)     { e.write(v) }
func (e *Encoder) WriteFloat32(v float32) { e.write(v) }
func (e *Encoder) WriteFloat64(v float64) { e.write(v) }

func (e *Encoder) write(v interface{}) {
	if e.err != nil {
		return
	}
	if err := binary.Write(e.out, e.byteOrder, v); err != nil {
		e.SetError(err)
	}
}

// WriteUInt16Array writes a run of uint16 values back to back, the layout
// US/SS/OW/AT elements use for their value field.
func (e *Encoder) WriteUInt16Array(vs []uint16) {
	for _, v := range vs {
		e.WriteUInt16(v)
	}
}

func (e *Encoder) WriteInt16Array(vs []int16) {
	for _, v := range vs {
		e.WriteInt16(v)
	}
}

func (e *Encoder) WriteUInt32Array(vs []uint32) {
	for _, v := range vs {
		e.WriteUInt32(v)
	}
}

func (e *Encoder) WriteInt32Array(vs []int32) {
	for _, v := range vs {
		e.WriteInt32(v)
	}
}

func (e *Encoder) WriteFloat32Array(vs []float32) {
	for _, v := range vs {
		e.WriteFloat32(v)
	}
}

func (e *Encoder) WriteFloat64Array(vs []float64) {
	for _, v := range vs {
		e.WriteFloat64(v)
	}
}

// WriteString writes v verbatim, without any length prefix or padding.
// Callers are responsible for padding odd-length values per PS3.5 §6.4.
func (e *Encoder) WriteString(v string) {
	if e.err != nil {
		return
	}
	if _, err := e.out.Write([]byte(v)); err != nil {
		e.SetError(err)
	}
}

// WriteZeros writes n zero bytes, used to pad odd-length values.
func (e *Encoder) WriteZeros(n int) {
	if e.err != nil || n <= 0 {
		return
	}
	if _, err := e.out.Write(make([]byte, n)); err != nil {
		e.SetError(err)
	}
}

// WriteBytes copies v to the output unchanged.
func (e *Encoder) WriteBytes(v []byte) {
	if e.err != nil {
		return
	}
	if _, err := e.out.Write(v); err != nil {
		e.SetError(err)
	}
}

type limitState struct {
	limit int64
	err   error
}

// Decoder reads primitive values from an underlying byte stream, enforcing
// a stack of nested length limits (one per open sequence item or defined-
// length element) and tracking the first decode error as a sticky error.
type Decoder struct {
	in        *bufio.Reader
	err       error
	byteOrder binary.ByteOrder
	implicit  IsImplicitVR

	limit int64
	pos   int64

	codingSystem charset.CodingSystem

	tsStack    []transferSyntaxState
	limitStack []limitState
}

// NewDecoder creates a Decoder reading from in, with no length limit until
// PushLimit is called.
func NewDecoder(in io.Reader, byteOrder binary.ByteOrder, implicit IsImplicitVR) *Decoder {
	return &Decoder{
		in:        bufio.NewReader(in),
		byteOrder: byteOrder,
		implicit:  implicit,
		limit:     math.MaxInt64,
	}
}

// NewBytesDecoder creates a Decoder that reads from an in-memory slice.
func NewBytesDecoder(data []byte, byteOrder binary.ByteOrder, implicit IsImplicitVR) *Decoder {
	return NewDecoder(bytes.NewReader(data), byteOrder, implicit)
}

func (d *Decoder) SetError(err error) {
	if err == nil || d.err != nil {
		return
	}
	if err != io.EOF {
		err = fmt.Errorf("%w (offset %d)", err, d.pos)
	}
	d.err = err
}

func (d *Decoder) SetErrorf(format string, args ...interface{}) {
	d.SetError(fmt.Errorf(format, args...))
}

func (d *Decoder) Error() error { return d.err }

// Finish reports an error if the decoder is in an error state, or if there
// is unconsumed data within the current limit.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if !d.EOF() {
		return fmt.Errorf("dicomio: %d unconsumed bytes remain", d.limit-d.pos)
	}
	return nil
}

// TransferSyntax returns the byte order and VR-encoding mode in effect.
func (d *Decoder) TransferSyntax() (binary.ByteOrder, IsImplicitVR) {
	return d.byteOrder, d.implicit
}

// PushTransferSyntax switches byte order and implicit-VR mode until the
// matching PopTransferSyntax restores the previous setting.
func (d *Decoder) PushTransferSyntax(byteOrder binary.ByteOrder, implicit IsImplicitVR) {
	d.tsStack = append(d.tsStack, transferSyntaxState{d.byteOrder, d.implicit})
	d.byteOrder = byteOrder
	d.implicit = implicit
}

func (d *Decoder) PopTransferSyntax() {
	last := len(d.tsStack) - 1
	d.byteOrder, d.implicit = d.tsStack[last].byteOrder, d.tsStack[last].implicit
	d.tsStack = d.tsStack[:last]
}

// SetCodingSystem overrides the decoder used to turn bytes into strings,
// following a Specific Character Set (0008,0005) element.
func (d *Decoder) SetCodingSystem(cs charset.CodingSystem) {
	d.codingSystem = cs
}

// PushLimit temporarily narrows the readable range to the next n bytes,
// for the duration of a defined-length element or sequence item. The new
// limit must not exceed the currently active one.
func (d *Decoder) PushLimit(n int64) {
	newLimit := d.pos + n
	if newLimit > d.limit {
		d.SetError(fmt.Errorf("dicomio: PushLimit(%d) extends past the enclosing limit", n))
		newLimit = d.limit
	}
	d.limitStack = append(d.limitStack, limitState{limit: d.limit, err: d.err})
	d.limit = newLimit
	d.err = nil
}

// PopLimit restores the limit saved by the matching PushLimit. Any bytes
// left unconsumed within the narrowed range are skipped, so a caller that
// bails out early on one element doesn't desynchronize the stream for its
// siblings.
func (d *Decoder) PopLimit() {
	if d.pos < d.limit {
		d.Skip(int(d.limit - d.pos))
	}
	last := len(d.limitStack) - 1
	d.limit = d.limitStack[last].limit
	if d.limitStack[last].err != nil {
		d.err = d.limitStack[last].err
	}
	d.limitStack = d.limitStack[:last]
}

// Read implements io.Reader over the limited range, used internally by
// binary.Read so every ReadXxx helper benefits from the same accounting.
func (d *Decoder) Read(p []byte) (int, error) {
	remaining := d.limit - d.pos
	if remaining <= 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := d.in.Read(p)
	if n > 0 {
		d.pos += int64(n)
	}
	return n, err
}

// EOF reports whether there is no more data to read, either because the
// current limit has been reached or because the underlying stream ended.
func (d *Decoder) EOF() bool {
	if d.err != nil {
		return true
	}
	if d.limit-d.pos <= 0 {
		return true
	}
	b, _ := d.in.Peek(1)
	return len(b) == 0
}

// BytesRead returns the cumulative number of bytes consumed so far.
func (d *Decoder) BytesRead() int64 { return d.pos }

// Len returns the number of bytes remaining before the active limit.
func (d *Decoder) Len() int64 { return d.limit - d.pos }

func (d *Decoder) ReadByte() (v byte) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadUInt16() (v uint16) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadUInt32() (v uint32) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadInt16() (v int16) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadInt32() (v int32) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadFloat32() (v float32) {
	d.readInto(&v)
	return v
}

func (d *Decoder) ReadFloat64() (v float64) {
	d.readInto(&v)
	return v
}

func (d *Decoder) readInto(v interface{}) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d, d.byteOrder, v); err != nil {
		d.SetError(err)
	}
}

// ReadUInt16Array reads n uint16 values back to back.
func (d *Decoder) ReadUInt16Array(n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = d.ReadUInt16()
	}
	return out
}

func (d *Decoder) ReadInt16Array(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = d.ReadInt16()
	}
	return out
}

func (d *Decoder) ReadUInt32Array(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.ReadUInt32()
	}
	return out
}

func (d *Decoder) ReadInt32Array(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = d.ReadInt32()
	}
	return out
}

func (d *Decoder) ReadFloat32Array(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = d.ReadFloat32()
	}
	return out
}

func (d *Decoder) ReadFloat64Array(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.ReadFloat64()
	}
	return out
}

// ReadStringWithRole decodes length bytes using the decoder for the given
// character-set role (PN splits alphabetic/ideographic/phonetic groups
// across separate roles; every other string VR uses Ideographic).
func (d *Decoder) ReadStringWithRole(role charset.CodingSystemType, length int) string {
	b := d.ReadBytes(length)
	if d.err != nil || len(b) == 0 {
		return ""
	}
	s, err := d.codingSystem.Decode(role, b)
	if err != nil {
		d.SetError(err)
		return ""
	}
	return s
}

// ReadString decodes length bytes using the Ideographic role, the default
// for every string VR except PN.
func (d *Decoder) ReadString(length int) string {
	return d.ReadStringWithRole(charset.IdeographicCodingSystem, length)
}

// ReadBytes reads exactly length raw bytes.
func (d *Decoder) ReadBytes(length int) []byte {
	if length == 0 {
		return nil
	}
	if d.Len() < int64(length) {
		d.SetErrorf("dicomio: ReadBytes(%d): only %d bytes remain", length, d.Len())
		return nil
	}
	v := make([]byte, length)
	remaining := v
	for len(remaining) > 0 {
		n, err := d.Read(remaining)
		if err != nil {
			d.SetError(err)
			break
		}
		remaining = remaining[n:]
	}
	return v
}

// Skip discards the next length bytes without returning them.
func (d *Decoder) Skip(length int) {
	if length <= 0 {
		return
	}
	if d.Len() < int64(length) {
		d.SetErrorf("dicomio: Skip(%d): only %d bytes remain", length, d.Len())
		return
	}
	const chunkSize = 1 << 16
	junk := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		n := chunkSize
		if remaining < n {
			n = remaining
		}
		read, err := d.Read(junk[:n])
		if err != nil {
			d.SetError(err)
			return
		}
		remaining -= read
	}
}
