package dicom

// Length is a data element's value length in bytes, as carried in its
// header. The all-ones value marks a sequence or encapsulated pixel-data
// element whose length is determined by a delimiter item instead of a
// byte count (PS3.5 §7.1.3).
type Length uint32

// UndefinedLength is the reserved 0xFFFFFFFF marker for defined-length-less
// sequences, items, and encapsulated pixel data.
const UndefinedLength Length = 0xFFFFFFFF

// IsUndefined reports whether this length is the undefined-length marker.
func (l Length) IsUndefined() bool {
	return l == UndefinedLength
}
