// Package format renders a ChatMessage for a specific egress platform
// given the author's current rank, deterministically and without side
// effects.
package format

import (
	"fmt"
	"strings"

	"github.com/l1jgo/hub/internal/model"
)

// RankStyle is the per-coordinate presentation: a short prefix and a
// color tag understood by the target platform's markup.
type RankStyle struct {
	Prefix string
	Color  string
}

// Table maps a RankCoordinate to its display style. Declared by
// configuration (rank.role_map), loaded once at boot.
type Table map[[2]int]RankStyle

func (t Table) styleFor(c model.RankCoordinate) RankStyle {
	if s, ok := t[[2]int{c.MainIndex, c.SubIndex}]; ok {
		return s
	}
	return RankStyle{Prefix: "", Color: ""}
}

// Renderer is the per-platform capability: plain text with color tags,
// rich embed fields, or federated markdown.
type Renderer interface {
	Render(msg model.ChatMessage, authorName string, rank RankStyle) string
}

// Formatter composes a rank style table with a platform Renderer.
type Formatter struct {
	styles   Table
	renderer Renderer
}

func New(styles Table, renderer Renderer) *Formatter {
	return &Formatter{styles: styles, renderer: renderer}
}

func (f *Formatter) Format(msg model.ChatMessage, authorName string, rank model.RankCoordinate) string {
	return f.renderer.Render(msg, authorName, f.styles.styleFor(rank))
}

// embedRenderer is implemented by Renderers that can also produce a
// structured EmbedField; EmbedRenderer satisfies it.
type embedRenderer interface {
	RenderEmbed(msg model.ChatMessage, authorName string, rank RankStyle) EmbedField
}

// FormatEmbed returns the structured embed form when the underlying
// Renderer supports it, so platforms with rich-message support (the
// social adapter's Discord personalities) don't have to flatten to text
// first.
func (f *Formatter) FormatEmbed(msg model.ChatMessage, authorName string, rank model.RankCoordinate) (EmbedField, bool) {
	er, ok := f.renderer.(embedRenderer)
	if !ok {
		return EmbedField{}, false
	}
	return er.RenderEmbed(msg, authorName, f.styles.styleFor(rank)), true
}

// GameRenderer produces the proxy host's native color/markup tags.
type GameRenderer struct{}

func (GameRenderer) Render(msg model.ChatMessage, authorName string, rank RankStyle) string {
	if rank.Prefix == "" {
		return fmt.Sprintf("%s: %s", authorName, msg.CanonicalText)
	}
	return fmt.Sprintf("&%s;[%s] %s: %s", rank.Color, rank.Prefix, authorName, msg.CanonicalText)
}

// PlainRenderer produces platform-agnostic plain text with a bracketed
// channel tag and rank prefix (no color), used for federated-bridge
// markdown output.
type PlainRenderer struct{ ChannelTag string }

func (p PlainRenderer) Render(msg model.ChatMessage, authorName string, rank RankStyle) string {
	var b strings.Builder
	if p.ChannelTag != "" {
		b.WriteString("[" + p.ChannelTag + "] ")
	}
	if rank.Prefix != "" {
		b.WriteString("[" + rank.Prefix + "] ")
	}
	b.WriteString(authorName)
	b.WriteString(": ")
	b.WriteString(msg.CanonicalText)
	return b.String()
}

// EmbedField is a minimal representation of a social-platform rich embed
// field, decoupled from any particular SDK's concrete embed type so this
// package stays free of the discordgo dependency.
type EmbedField struct {
	AuthorName string
	RankPrefix string
	RankColor  string
	Text       string
}

// EmbedRenderer produces an EmbedField rather than a flat string; the
// social adapter is responsible for translating it into the SDK's embed
// type at send time.
type EmbedRenderer struct{}

func (EmbedRenderer) RenderEmbed(msg model.ChatMessage, authorName string, rank RankStyle) EmbedField {
	return EmbedField{AuthorName: authorName, RankPrefix: rank.Prefix, RankColor: rank.Color, Text: msg.CanonicalText}
}

// Render satisfies Renderer by falling back to a flat string; callers
// that need the structured embed use RenderEmbed directly.
func (e EmbedRenderer) Render(msg model.ChatMessage, authorName string, rank RankStyle) string {
	field := e.RenderEmbed(msg, authorName, rank)
	return fmt.Sprintf("**%s** %s: %s", field.RankPrefix, field.AuthorName, field.Text)
}
