package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/l1jgo/hub/internal/model"
)

func TestFormat_GameRendererIncludesRankTag(t *testing.T) {
	styles := Table{
		{2, 3}: {Prefix: "Sergeant", Color: "0080FF"},
	}
	f := New(styles, GameRenderer{})
	msg := model.ChatMessage{CanonicalText: "hello there"}

	out := f.Format(msg, "Rin", model.RankCoordinate{MainIndex: 2, SubIndex: 3})
	assert.Equal(t, "&0080FF;[Sergeant] Rin: hello there", out)
}

func TestFormat_GameRendererOmitsTagForUnknownCoordinate(t *testing.T) {
	f := New(Table{}, GameRenderer{})
	msg := model.ChatMessage{CanonicalText: "hi"}

	out := f.Format(msg, "Rin", model.RankCoordinate{MainIndex: 9, SubIndex: 9})
	assert.Equal(t, "Rin: hi", out)
}

func TestFormat_PlainRendererIncludesChannelTag(t *testing.T) {
	styles := Table{{1, 1}: {Prefix: "Recruit"}}
	f := New(styles, PlainRenderer{ChannelTag: "bridge"})
	msg := model.ChatMessage{CanonicalText: "hi all"}

	out := f.Format(msg, "Aki", model.RankCoordinate{MainIndex: 1, SubIndex: 1})
	assert.Equal(t, "[bridge] [Recruit] Aki: hi all", out)
}

func TestEmbedRenderer_RenderEmbedReturnsStructuredField(t *testing.T) {
	r := EmbedRenderer{}
	msg := model.ChatMessage{CanonicalText: "hi"}
	field := r.RenderEmbed(msg, "Aki", RankStyle{Prefix: "Recruit", Color: "00FF00"})

	assert.Equal(t, "Aki", field.AuthorName)
	assert.Equal(t, "Recruit", field.RankPrefix)
	assert.Equal(t, "00FF00", field.RankColor)
	assert.Equal(t, "hi", field.Text)
}

func TestFormatEmbed_FalseForNonEmbedRenderer(t *testing.T) {
	f := New(Table{}, GameRenderer{})
	msg := model.ChatMessage{CanonicalText: "hi"}

	_, ok := f.FormatEmbed(msg, "Rin", model.RankCoordinate{})
	assert.False(t, ok)
}

func TestFormatEmbed_TrueForEmbedRenderer(t *testing.T) {
	styles := Table{{4, 1}: {Prefix: "Captain", Color: "FF0000"}}
	f := New(styles, EmbedRenderer{})
	msg := model.ChatMessage{CanonicalText: "incoming"}

	field, ok := f.FormatEmbed(msg, "Rin", model.RankCoordinate{MainIndex: 4, SubIndex: 1})
	assert.True(t, ok)
	assert.Equal(t, "Captain", field.RankPrefix)
	assert.Equal(t, "incoming", field.Text)
}

func TestDeterminism_SameInputsSameOutput(t *testing.T) {
	styles := Table{{0, 0}: {Prefix: "Private"}}
	f := New(styles, GameRenderer{})
	msg := model.ChatMessage{CanonicalText: "same"}

	a := f.Format(msg, "X", model.RankCoordinate{MainIndex: 0, SubIndex: 0})
	b := f.Format(msg, "X", model.RankCoordinate{MainIndex: 0, SubIndex: 0})
	assert.Equal(t, a, b)
}
