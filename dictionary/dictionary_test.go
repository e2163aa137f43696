package dictionary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByTagDirectHit(t *testing.T) {
	e, ok := Standard.ByTag(Tag{Group: 0x0010, Element: 0x0010})
	require.True(t, ok)
	require.Equal(t, "PN", e.VR)
	require.Equal(t, "PatientName", e.Keyword)
}

func TestByTagGroupLengthSynthesis(t *testing.T) {
	e, ok := Standard.ByTag(Tag{Group: 0x0018, Element: 0x0000})
	require.True(t, ok)
	require.Equal(t, "UL", e.VR)
}

func TestByTagPrivateCreatorSynthesis(t *testing.T) {
	e, ok := Standard.ByTag(Tag{Group: 0x0009, Element: 0x0010})
	require.True(t, ok)
	require.Equal(t, "LO", e.VR)
	require.Equal(t, "PrivateCreator", e.Keyword)
}

func TestByTagRepeatingGroupFallback(t *testing.T) {
	e, ok := Standard.ByTag(Tag{Group: 0x6012, Element: 0x3000})
	require.True(t, ok)
	require.Equal(t, "OW", e.VR)
	require.Equal(t, Tag{Group: 0x6012, Element: 0x3000}, e.Tag)
}

func TestByTagMiss(t *testing.T) {
	_, ok := Standard.ByTag(Tag{Group: 0x0012, Element: 0x9999})
	require.False(t, ok)
}

func TestByName(t *testing.T) {
	e, ok := Standard.ByName("StudyInstanceUID")
	require.True(t, ok)
	require.Equal(t, Tag{Group: 0x0020, Element: 0x000D}, e.Tag)
}

func TestRelaxed(t *testing.T) {
	require.Equal(t, "OW", Relaxed("OX"))
	require.Equal(t, "US", Relaxed("XS"))
	require.Equal(t, "OB", Relaxed("PX"))
	require.Equal(t, "US", Relaxed("LX"))
	require.Equal(t, "LT", Relaxed("LT"))
	require.Equal(t, "DA", Relaxed("DA"))
}

func TestParseTag(t *testing.T) {
	tag, err := ParseTag("(0010,0010)")
	require.NoError(t, err)
	require.Equal(t, Tag{Group: 0x0010, Element: 0x0010}, tag)

	tag, err = ParseTag("7FE00010")
	require.NoError(t, err)
	require.Equal(t, Tag{Group: 0x7FE0, Element: 0x0010}, tag)

	_, err = ParseTag("not-a-tag")
	require.Error(t, err)
}

func TestByExpr(t *testing.T) {
	e, err := ByExpr(Standard, "PatientID")
	require.NoError(t, err)
	require.Equal(t, "LO", e.VR)

	e, err = ByExpr(Standard, "(0008,0060)")
	require.NoError(t, err)
	require.Equal(t, "Modality", e.Keyword)
}
