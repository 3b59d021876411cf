package social

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_ShortTextIsOneChunk(t *testing.T) {
	chunks := segment("hello world", 2000)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSegment_SplitsOnWordBoundaryNotMidWord(t *testing.T) {
	text := strings.Repeat("a", 10) + " " + strings.Repeat("b", 10)
	chunks := segment(text, 15)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 10), chunks[0])
	assert.Equal(t, strings.Repeat("b", 10), chunks[1])
}

func TestSegment_PrefersParagraphBreakOverWordBreak(t *testing.T) {
	// The first 15-char window holds both a paragraph break (index 10)
	// and a later space (index 14); the paragraph break must win.
	text := strings.Repeat("x", 10) + "\n\n" + "yy " + strings.Repeat("y", 8)
	chunks := segment(text, 15)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, "yy "+strings.Repeat("y", 8), chunks[1])
}

func TestSegment_NeverExceedsCeiling(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	chunks := segment(text, 2000)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 2000)
	}
}

func TestParseHexColor_AcceptsWithAndWithoutHash(t *testing.T) {
	v, err := parseHexColor("#ff9900")
	require.NoError(t, err)
	assert.Equal(t, 0xff9900, v)

	v, err = parseHexColor("00ff00")
	require.NoError(t, err)
	assert.Equal(t, 0x00ff00, v)
}

func TestParseHexColor_RejectsEmpty(t *testing.T) {
	_, err := parseHexColor("")
	assert.Error(t, err)
}
