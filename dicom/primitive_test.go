package dicom

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicomio"
	"github.com/stretchr/testify/require"
)

func TestReadPrimitiveValueUnsignedShort(t *testing.T) {
	raw := []byte{0x01, 0x00, 0x02, 0x00}
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRUnsignedShort, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 2}, pv.UShorts)
	require.Equal(t, raw, pv.Raw)
}

func TestReadPrimitiveValueAttributeTag(t *testing.T) {
	raw := []byte{0x08, 0x00, 0x05, 0x00}
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRAttributeTag, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []uint32{uint32(0x0008)<<16 | 0x0005}, pv.Tags)
}

func TestReadPrimitiveValueStringSplitsPreservingWhitespace(t *testing.T) {
	// LO keeps its trailing padding: only AE and UI strip it.
	raw := []byte("SMITH^JOHN \\DOE^JANE ")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRLongString, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"SMITH^JOHN ", "DOE^JANE "}, pv.Strings)
}

func TestReadPrimitiveValueTrimsAEAndUIPaddingOnly(t *testing.T) {
	raw := []byte("1.2.840.10008.1.2.1\x00")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRUniqueIdentifier, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.840.10008.1.2.1"}, pv.Strings)

	raw = []byte("STORESCP ")
	d = dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err = ReadPrimitiveValue(d, VRApplicationEntity, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"STORESCP"}, pv.Strings)
}

func TestReadPrimitiveValueTextVRIsSingleValued(t *testing.T) {
	raw := []byte("one\\two")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRLongText, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"one\\two"}, pv.Strings)
}

func TestReadPrimitiveValueInterpretsTemporalAndNumericText(t *testing.T) {
	raw := []byte("20240101\\20240315")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRDate, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"20240101", "20240315"}, pv.Strings)
	require.Len(t, pv.Dates, 2)
	require.Equal(t, time.March, pv.Dates[1].Month())

	raw = []byte("42\\-7 ")
	d = dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err = ReadPrimitiveValue(d, VRIntegerString, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []int64{42, -7}, pv.Longs)

	raw = []byte("1.5\\2.5")
	d = dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err = ReadPrimitiveValue(d, VRDecimalString, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5}, pv.Doubles)
}

func TestReadPrimitiveValueMalformedDateErrors(t *testing.T) {
	raw := []byte("not-a-da")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	_, err := ReadPrimitiveValue(d, VRDate, Length(len(raw)), charset.Default)
	require.Error(t, err)
}

func TestReadPrimitiveValuePreservedKeepsMalformedText(t *testing.T) {
	raw := []byte("not-a-da")
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValuePreserved(d, VRDate, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []string{"not-a-da"}, pv.Strings)
	require.Empty(t, pv.Dates)
}

func TestReadPrimitiveValueRejectsSequence(t *testing.T) {
	d := dicomio.NewBytesDecoder(nil, binary.LittleEndian, dicomio.ExplicitVR)
	_, err := ReadPrimitiveValue(d, VRSequenceOfItems, 0, charset.Default)
	require.Error(t, err)
}

func TestReadPrimitiveValueFloatingPointDouble(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, 0x3FF0000000000000) // 1.0
	d := dicomio.NewBytesDecoder(raw, binary.LittleEndian, dicomio.ExplicitVR)
	pv, err := ReadPrimitiveValue(d, VRFloatingPointDouble, Length(len(raw)), charset.Default)
	require.NoError(t, err)
	require.Equal(t, []float64{1.0}, pv.Doubles)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("20240315")
	require.NoError(t, err)
	require.Equal(t, 2024, d.Year())
	require.Equal(t, time.March, d.Month())
	require.Equal(t, 15, d.Day())

	partial, err := ParseDate("2024")
	require.NoError(t, err)
	require.Equal(t, 2024, partial.Year())
	require.Equal(t, time.January, partial.Month())

	_, err = ParseDate("2024-03-15")
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	tm, err := ParseTime("134502.250000")
	require.NoError(t, err)
	require.Equal(t, 13, tm.Hour())
	require.Equal(t, 45, tm.Minute())
	require.Equal(t, 2, tm.Second())
	require.Equal(t, 250*int(time.Millisecond), tm.Nanosecond())

	partial, err := ParseTime("13")
	require.NoError(t, err)
	require.Equal(t, 13, partial.Hour())
	require.Equal(t, 0, partial.Minute())

	_, err = ParseTime("13:45")
	require.Error(t, err)
}

func TestParseDateTime(t *testing.T) {
	dt, err := ParseDateTime("20240315134502+0200")
	require.NoError(t, err)
	require.Equal(t, 13, dt.Hour())
	_, offset := dt.Zone()
	require.Equal(t, 2*60*60, offset)

	noOffset, err := ParseDateTime("20240315")
	require.NoError(t, err)
	require.Equal(t, time.UTC, noOffset.Location())

	_, err = ParseDateTime("20240315+02")
	require.Error(t, err)
}

func TestParseIntegerAndDecimalString(t *testing.T) {
	i, err := ParseIntegerString(" 042 ")
	require.NoError(t, err)
	require.Equal(t, int64(42), i)

	f, err := ParseDecimalString(" 3.5e2 ")
	require.NoError(t, err)
	require.Equal(t, 350.0, f)
}
