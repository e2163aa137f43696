package dicom

import "github.com/mtamura/godicom/errors"

// VR is a DICOM value representation code, the two-letter tag that
// determines how an element's value bytes are interpreted.
type VR string

const (
	VRApplicationEntity    VR = "AE"
	VRAgeString            VR = "AS"
	VRAttributeTag         VR = "AT"
	VRCodeString           VR = "CS"
	VRDate                 VR = "DA"
	VRDecimalString        VR = "DS"
	VRDateTime             VR = "DT"
	VRFloatingPointSingle  VR = "FL"
	VRFloatingPointDouble  VR = "FD"
	VRIntegerString        VR = "IS"
	VRLongString           VR = "LO"
	VRLongText             VR = "LT"
	VROtherByte            VR = "OB"
	VROtherDouble          VR = "OD"
	VROtherFloat           VR = "OF"
	VROtherLong            VR = "OL"
	VROtherVeryLong        VR = "OV"
	VROtherWord            VR = "OW"
	VRPersonName           VR = "PN"
	VRShortString          VR = "SH"
	VRSignedLong           VR = "SL"
	VRSequenceOfItems      VR = "SQ"
	VRSignedShort          VR = "SS"
	VRShortText            VR = "ST"
	VRSignedVeryLong       VR = "SV"
	VRTime                 VR = "TM"
	VRUnlimitedCharacters  VR = "UC"
	VRUniqueIdentifier     VR = "UI"
	VRUnsignedLong         VR = "UL"
	VRUnknown              VR = "UN"
	VRUniversalResource    VR = "UR"
	VRUnsignedShort        VR = "US"
	VRUnlimitedText        VR = "UT"
	VRUnsignedVeryLong     VR = "UV"
)

// allVRs lists every code FromTwoASCIIBytes accepts.
var allVRs = map[VR]bool{
	VRApplicationEntity: true, VRAgeString: true, VRAttributeTag: true, VRCodeString: true,
	VRDate: true, VRDecimalString: true, VRDateTime: true, VRFloatingPointSingle: true,
	VRFloatingPointDouble: true, VRIntegerString: true, VRLongString: true, VRLongText: true,
	VROtherByte: true, VROtherDouble: true, VROtherFloat: true, VROtherLong: true,
	VROtherVeryLong: true, VROtherWord: true, VRPersonName: true, VRShortString: true,
	VRSignedLong: true, VRSequenceOfItems: true, VRSignedShort: true, VRShortText: true,
	VRSignedVeryLong: true, VRTime: true, VRUnlimitedCharacters: true, VRUniqueIdentifier: true,
	VRUnsignedLong: true, VRUnknown: true, VRUniversalResource: true, VRUnsignedShort: true,
	VRUnlimitedText: true, VRUnsignedVeryLong: true,
}

// longFormVRs is the set of Explicit VR codes whose element header carries
// a 2-byte reserved field and a 4-byte length, per PS3.5 §7.1.2 table 7.1-1.
var longFormVRs = map[VR]bool{
	VROtherByte: true, VROtherDouble: true, VROtherFloat: true, VROtherLong: true,
	VROtherVeryLong: true, VROtherWord: true, VRSequenceOfItems: true,
	VRUnlimitedCharacters: true, VRUnknown: true, VRUniversalResource: true,
	VRUnlimitedText: true, VRUnsignedVeryLong: true, VRSignedVeryLong: true,
}

// FromTwoASCIIBytes parses the two-character VR code read from an Explicit
// VR element header.
func FromTwoASCIIBytes(b [2]byte) (VR, error) {
	v := VR(b[:])
	if !allVRs[v] {
		return "", errors.NewHeaderError("", "unrecognised VR code "+string(b[:]))
	}
	return v, nil
}

// ToTwoASCIIBytes renders the VR as the two bytes written to an Explicit VR
// element header.
func (v VR) ToTwoASCIIBytes() [2]byte {
	return [2]byte{v[0], v[1]}
}

// HasLongLengthField reports whether this VR's Explicit VR header uses the
// 12-byte long form (2-byte reserved + 4-byte length) rather than the
// 8-byte short form (2-byte length).
func (v VR) HasLongLengthField() bool {
	return longFormVRs[v]
}

// IsStringVR reports whether values of this VR are encoded as (possibly
// backslash-separated) character data rather than binary numbers.
func (v VR) IsStringVR() bool {
	switch v {
	case VRApplicationEntity, VRAgeString, VRCodeString, VRDate, VRDecimalString,
		VRDateTime, VRIntegerString, VRLongString, VRLongText, VRPersonName,
		VRShortString, VRShortText, VRTime, VRUnlimitedCharacters, VRUniqueIdentifier,
		VRUniversalResource, VRUnlimitedText:
		return true
	default:
		return false
	}
}

// IsBinaryArrayVR reports whether values of this VR are a packed run of
// fixed-width numbers rather than a single scalar or string.
func (v VR) IsBinaryArrayVR() bool {
	switch v {
	case VRUnsignedShort, VRSignedShort, VRUnsignedLong, VRSignedLong,
		VRUnsignedVeryLong, VRSignedVeryLong, VRFloatingPointSingle, VRFloatingPointDouble,
		VROtherWord, VROtherByte, VROtherLong, VROtherVeryLong, VROtherFloat, VROtherDouble,
		VRAttributeTag:
		return true
	default:
		return false
	}
}
