// Package charset decodes and encodes DICOM text values according to the
// Specific Character Set (0008,0005) attribute defined in PS3.5 Annex D.6.2.
package charset

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// CodingSystem holds the decoders selected for the three character-set
// roles DICOM distinguishes. For every VR except PN, only Ideographic is
// ever consulted; PN values are decoded and encoded whole with
// Alphabetic, without being split into component groups.
type CodingSystem struct {
	Alphabetic  *encoding.Decoder
	Ideographic *encoding.Decoder
	Phonetic    *encoding.Decoder

	alphabeticEnc  *encoding.Encoder
	ideographicEnc *encoding.Encoder
	phoneticEnc    *encoding.Encoder
}

// CodingSystemType selects which of CodingSystem's three decoders applies.
type CodingSystemType int

const (
	AlphabeticCodingSystem CodingSystemType = iota
	IdeographicCodingSystem
	PhoneticCodingSystem
)

// Default is the coding system in effect before any Specific Character Set
// element has been seen: plain 7-bit ASCII, decoders left nil.
var Default = CodingSystem{}

// dicomNameToHTMLIndexName maps a DICOM defined term for Specific Character
// Set to the name golang.org/x/text/encoding/htmlindex expects. An empty
// target means 7-bit ASCII, for which no decoder is needed.
var dicomNameToHTMLIndexName = map[string]string{
	"":                "",
	"ISO_IR 6":        "",
	"ISO 2022 IR 6":   "iso-8859-1",
	"ISO_IR 13":       "shift_jis",
	"ISO 2022 IR 13":  "shift_jis",
	"ISO_IR 100":      "iso-8859-1",
	"ISO 2022 IR 100": "iso-8859-1",
	"ISO_IR 101":      "iso-8859-2",
	"ISO 2022 IR 101": "iso-8859-2",
	"ISO_IR 109":      "iso-8859-3",
	"ISO 2022 IR 109": "iso-8859-3",
	"ISO_IR 110":      "iso-8859-4",
	"ISO 2022 IR 110": "iso-8859-4",
	"ISO_IR 126":      "iso-ir-126",
	"ISO 2022 IR 126": "iso-ir-126",
	"ISO_IR 127":      "iso-ir-127",
	"ISO 2022 IR 127": "iso-ir-127",
	"ISO_IR 138":      "iso-ir-138",
	"ISO 2022 IR 138": "iso-ir-138",
	"ISO_IR 144":      "iso-ir-144",
	"ISO 2022 IR 144": "iso-ir-144",
	"ISO_IR 148":      "iso-ir-148",
	"ISO 2022 IR 148": "iso-ir-148",
	"ISO 2022 IR 149": "euc-kr",
	"ISO 2022 IR 159": "iso-2022-jp",
	"ISO_IR 166":      "iso-ir-166",
	"ISO 2022 IR 166": "iso-ir-166",
	"ISO 2022 IR 87":  "iso-2022-jp",
	"ISO_IR 192":      "utf-8",
	"GB18030":         "gb18030",
}

// Parse resolves the (possibly multi-valued, for ISO 2022 code extensions)
// Specific Character Set attribute into a CodingSystem. An unknown defined
// term is an error; callers that want lossless round-tripping over an
// unrecognised value should fall back to Default rather than fail the
// whole data set.
func Parse(definedTerms []string) (CodingSystem, error) {
	if len(definedTerms) == 0 {
		return Default, nil
	}

	decoders := make([]*encoding.Decoder, 0, len(definedTerms))
	encoders := make([]*encoding.Encoder, 0, len(definedTerms))
	for _, term := range definedTerms {
		htmlName, ok := dicomNameToHTMLIndexName[term]
		if !ok {
			return CodingSystem{}, fmt.Errorf("charset: unrecognised Specific Character Set term %q", term)
		}
		if htmlName == "" {
			decoders = append(decoders, nil)
			encoders = append(encoders, nil)
			continue
		}
		enc, err := htmlindex.Get(htmlName)
		if err != nil {
			return CodingSystem{}, fmt.Errorf("charset: encoding %q for term %q not registered: %w", htmlName, term, err)
		}
		decoders = append(decoders, enc.NewDecoder())
		encoders = append(encoders, enc.NewEncoder())
	}

	switch len(decoders) {
	case 1:
		return CodingSystem{
			Alphabetic: decoders[0], Ideographic: decoders[0], Phonetic: decoders[0],
			alphabeticEnc: encoders[0], ideographicEnc: encoders[0], phoneticEnc: encoders[0],
		}, nil
	case 2:
		return CodingSystem{
			Alphabetic: decoders[0], Ideographic: decoders[1], Phonetic: decoders[1],
			alphabeticEnc: encoders[0], ideographicEnc: encoders[1], phoneticEnc: encoders[1],
		}, nil
	default:
		return CodingSystem{
			Alphabetic: decoders[0], Ideographic: decoders[1], Phonetic: decoders[2],
			alphabeticEnc: encoders[0], ideographicEnc: encoders[1], phoneticEnc: encoders[2],
		}, nil
	}
}

// Decode converts raw bytes to a UTF-8 string using the given role's
// decoder, or as plain ASCII/UTF-8 passthrough if none is set.
func (cs CodingSystem) Decode(role CodingSystemType, b []byte) (string, error) {
	var dec *encoding.Decoder
	switch role {
	case AlphabeticCodingSystem:
		dec = cs.Alphabetic
	case PhoneticCodingSystem:
		dec = cs.Phonetic
	default:
		dec = cs.Ideographic
	}
	if dec == nil {
		return string(b), nil
	}
	out, err := dec.Bytes(b)
	if err != nil {
		return "", fmt.Errorf("charset: decode: %w", err)
	}
	return string(out), nil
}

// Encode converts a UTF-8 string back to the role's native byte encoding,
// or as plain ASCII/UTF-8 passthrough if none is set. This is the encode
// side of Decode, used by the primitive-value writer to re-encode text VRs
// under whatever Specific Character Set is active.
func (cs CodingSystem) Encode(role CodingSystemType, s string) ([]byte, error) {
	var enc *encoding.Encoder
	switch role {
	case AlphabeticCodingSystem:
		enc = cs.alphabeticEnc
	case PhoneticCodingSystem:
		enc = cs.phoneticEnc
	default:
		enc = cs.ideographicEnc
	}
	if enc == nil {
		return []byte(s), nil
	}
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("charset: encode: %w", err)
	}
	return out, nil
}
