// Package dictionary resolves DICOM tags to their standard attribute
// metadata: value representation, keyword, and (for Implicit VR decoding)
// the concrete VR an element must be interpreted with.
package dictionary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mtamura/godicom/types"
)

// Tag is the (group, element) pair identifying an attribute.
type Tag = types.Tag

// Entry describes one attribute as carried in the standard dictionary.
type Entry struct {
	Tag     Tag
	VR      string // may be a virtual VR: "OX", "XS", "PX", "LX" (context-dependent)
	Keyword string
	VM      string
}

// virtual VR codes that require relaxation before they can be used in a
// primitive-value decode.
const (
	virtualOX = "OX" // OB or OW depending on Bits Allocated
	virtualXS = "XS" // US or SS depending on Pixel Representation
	virtualPX = "PX" // OB, OW or UN depending on transfer syntax / photometric interpretation
	virtualLT = "LX" // US or SS depending on frame of reference (rarely used); "LT" itself is the Long Text VR
)

// Relaxed returns a concrete VR for a (possibly virtual) dictionary VR.
// This implements the eager-relaxation resolution documented in
// SPEC_FULL.md §9: a streaming, single-pass decoder cannot defer to the
// attribute that would otherwise disambiguate the VR, so it always picks
// the side effect-free default.
func Relaxed(vr string) string {
	switch vr {
	case virtualOX:
		return "OW"
	case virtualXS:
		return "US"
	case virtualPX:
		return "OB"
	case virtualLT:
		return "US"
	default:
		return vr
	}
}

// standard is a small, hand-curated slice of the attributes this codec
// needs to resolve VRs for under Implicit VR Little Endian and to support
// keyword-based tag lookup. A production dictionary is machine-generated
// from the NEMA attribute table (explicitly out of the core's scope, see
// SPEC_FULL.md §1); this codec only depends on the By-Tag/By-Name contract.
var standard = []Entry{
	{Tag{0x0002, 0x0000}, "UL", "FileMetaInformationGroupLength", "1"},
	{Tag{0x0002, 0x0001}, "OB", "FileMetaInformationVersion", "1"},
	{Tag{0x0002, 0x0002}, "UI", "MediaStorageSOPClassUID", "1"},
	{Tag{0x0002, 0x0003}, "UI", "MediaStorageSOPInstanceUID", "1"},
	{Tag{0x0002, 0x0010}, "UI", "TransferSyntaxUID", "1"},
	{Tag{0x0002, 0x0012}, "UI", "ImplementationClassUID", "1"},
	{Tag{0x0002, 0x0013}, "SH", "ImplementationVersionName", "1"},
	{Tag{0x0008, 0x0005}, "CS", "SpecificCharacterSet", "1-n"},
	{Tag{0x0008, 0x0016}, "UI", "SOPClassUID", "1"},
	{Tag{0x0008, 0x0018}, "UI", "SOPInstanceUID", "1"},
	{Tag{0x0008, 0x0020}, "DA", "StudyDate", "1"},
	{Tag{0x0008, 0x0030}, "TM", "StudyTime", "1"},
	{Tag{0x0008, 0x0050}, "SH", "AccessionNumber", "1"},
	{Tag{0x0008, 0x0052}, "CS", "QueryRetrieveLevel", "1"},
	{Tag{0x0008, 0x0060}, "CS", "Modality", "1"},
	{Tag{0x0008, 0x1030}, "LO", "StudyDescription", "1"},
	{Tag{0x0010, 0x0010}, "PN", "PatientName", "1"},
	{Tag{0x0010, 0x0020}, "LO", "PatientID", "1"},
	{Tag{0x0010, 0x0030}, "DA", "PatientBirthDate", "1"},
	{Tag{0x0010, 0x0040}, "CS", "PatientSex", "1"},
	{Tag{0x0018, 0x6011}, "SQ", "SequenceOfUltrasoundRegions", "1-n"},
	{Tag{0x0018, 0x6012}, "US", "RegionSpatialFormat", "1"},
	{Tag{0x0018, 0x6014}, "US", "RegionDataType", "1"},
	{Tag{0x0020, 0x000D}, "UI", "StudyInstanceUID", "1"},
	{Tag{0x0020, 0x000E}, "UI", "SeriesInstanceUID", "1"},
	{Tag{0x0020, 0x0013}, "IS", "InstanceNumber", "1"},
	{Tag{0x0020, 0x4000}, "LT", "ImageComments", "1"},
	{Tag{0x0028, 0x0002}, "US", "SamplesPerPixel", "1"},
	{Tag{0x0028, 0x0004}, "CS", "PhotometricInterpretation", "1"},
	{Tag{0x0028, 0x0010}, "US", "Rows", "1"},
	{Tag{0x0028, 0x0011}, "US", "Columns", "1"},
	{Tag{0x0028, 0x0100}, "US", "BitsAllocated", "1"},
	{Tag{0x0028, 0x0101}, "US", "BitsStored", "1"},
	{Tag{0x0028, 0x0103}, "US", "PixelRepresentation", "1"},
	{Tag{0x7FE0, 0x0010}, "OW", "PixelData", "1"},
	{Tag{0xFFFE, 0xE000}, "UN", "Item", "1"},
	{Tag{0xFFFE, 0xE00D}, "UN", "ItemDelimitationItem", "1"},
	{Tag{0xFFFE, 0xE0DD}, "UN", "SequenceDelimitationItem", "1"},
}

// Dictionary is the trait the codec consults. It is satisfied by Standard
// and by any caller-supplied table (e.g. one merging private dictionaries).
type Dictionary interface {
	ByTag(tag Tag) (Entry, bool)
	ByName(keyword string) (Entry, bool)
}

type standardDictionary struct {
	byTag  map[Tag]Entry
	byName map[string]Entry
	// repeatingGGxx / repeatingEExx hold template entries keyed by the
	// masked tag, so the repeating-group fallback in ByTag is an O(1) map
	// lookup rather than a linear scan, per SPEC_FULL.md §9.
	repeatingGGxx map[Tag]Entry
	repeatingEExx map[Tag]Entry
}

// Standard is the process-wide standard dictionary instance.
var Standard Dictionary = buildStandard()

func buildStandard() *standardDictionary {
	d := &standardDictionary{
		byTag:         make(map[Tag]Entry, len(standard)),
		byName:        make(map[string]Entry, len(standard)),
		repeatingGGxx: make(map[Tag]Entry),
		repeatingEExx: make(map[Tag]Entry),
	}
	for _, e := range standard {
		d.byTag[e.Tag] = e
		d.byName[e.Keyword] = e
	}
	// Overlay Data repeating group (60xx,3000) is the one repeating-group
	// tag this codec must resolve without a dictionary hit, since Implicit
	// VR decoding overrides it to OW directly (§4.3); register it anyway
	// so ByTag is correct if consulted independently of header decode.
	overlayData := Entry{Tag{0x6000, 0x3000}, "OW", "OverlayData", "1"}
	d.repeatingGGxx[Tag{0x6000, 0x3000}] = overlayData
	return d
}

// ByTag resolves tag to its dictionary entry. On a direct miss it applies,
// in order: the repeating-group-high-byte fallback (GGxx,EEEE), the
// repeating-element-low-byte fallback (GGGG,EExx), group-length synthesis
// for (gggg,0000), and private-creator synthesis for odd groups with
// element in 0x0010..0x00FF. A tag matching none of these resolves to UN
// by the caller (header decode), not here; ByTag reports a plain miss.
func (d *standardDictionary) ByTag(tag Tag) (Entry, bool) {
	if e, ok := d.byTag[tag]; ok {
		return e, true
	}
	if e, ok := d.repeatingGGxx[Tag{tag.Group & 0xFF00, tag.Element}]; ok {
		e.Tag = tag
		return e, true
	}
	if e, ok := d.repeatingEExx[Tag{tag.Group, tag.Element & 0xFF00}]; ok {
		e.Tag = tag
		return e, true
	}
	if tag.Element == 0x0000 {
		return Entry{Tag: tag, VR: "UL", Keyword: "GenericGroupLength", VM: "1"}, true
	}
	if tag.Group%2 == 1 && tag.Element >= 0x0010 && tag.Element <= 0x00FF {
		return Entry{Tag: tag, VR: "LO", Keyword: "PrivateCreator", VM: "1"}, true
	}
	return Entry{}, false
}

// ByName performs a case-sensitive exact lookup by attribute keyword.
func (d *standardDictionary) ByName(keyword string) (Entry, bool) {
	e, ok := d.byName[keyword]
	return e, ok
}

// ByExpr resolves a selector expression: "(gggg,eeee)", "ggggeeee", or a
// bare keyword. Nested sequence-path expressions ("Seq[i].Keyword") are
// explicitly out of scope for this codec and are left to the lazy object
// model layered above it.
func ByExpr(d Dictionary, expr string) (Entry, error) {
	if tag, err := ParseTag(expr); err == nil {
		if e, ok := d.ByTag(tag); ok {
			return e, nil
		}
		return Entry{}, fmt.Errorf("dictionary: tag %s not found", tag)
	}
	if e, ok := d.ByName(expr); ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("dictionary: keyword %q not found", expr)
}

// ParseTag parses "(gggg,eeee)" or "ggggeeee" into a Tag.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "()")
	var groupHex, elemHex string
	if strings.Contains(s, ",") {
		parts := strings.SplitN(s, ",", 2)
		groupHex, elemHex = parts[0], parts[1]
	} else if len(s) == 8 {
		groupHex, elemHex = s[:4], s[4:]
	} else {
		return Tag{}, fmt.Errorf("dictionary: %q is not a tag expression", s)
	}
	group, err := strconv.ParseUint(groupHex, 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("dictionary: bad group in %q: %w", s, err)
	}
	elem, err := strconv.ParseUint(elemHex, 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("dictionary: bad element in %q: %w", s, err)
	}
	return Tag{Group: uint16(group), Element: uint16(elem)}, nil
}
