// Package social implements the multi-personality social-platform
// adapter. Each configured personality owns its own discordgo.Session
// and a sub-limiter drawn from one network-wide rate.Limiter, so a
// single noisy personality cannot starve the others.
package social

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/l1jgo/hub/internal/adapter"
	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/model"
)

var _ adapter.Adapter = (*Adapter)(nil)

const defaultMessageCeiling = 2000

// BotConfig declares one personality's credentials and routing.
type BotConfig struct {
	Name       string
	Credential string
	Priority   int
	GuildID    string
	ChannelMap map[string]string // hub channel name -> platform channel id
}

type personality struct {
	cfg     BotConfig
	session *discordgo.Session
	limiter *rate.Limiter
}

// Adapter is the adapter.Adapter implementation for the social
// platform; it fans inbound messages from every personality's session
// through one callback and fans outbound sends back out through the
// personality assigned to the target channel.
type Adapter struct {
	personalities  map[string]*personality
	network        *rate.Limiter
	formatter      *format.Formatter
	ranks          RankProvider
	messageCeiling int
	log            *zap.Logger

	mu      sync.Mutex
	inbound func(model.ChatMessage)
}

// NewSession constructs the discordgo session for one personality. A
// separate function so tests can substitute a fake without opening a
// real websocket to Discord.
func NewSession(cfg BotConfig) (*discordgo.Session, error) {
	sess, err := discordgo.New("Bot " + cfg.Credential)
	if err != nil {
		return nil, fmt.Errorf("social: new discordgo session: %w", err)
	}
	return sess, nil
}

// RankProvider resolves a player's current rank for outbound rendering.
type RankProvider interface {
	CurrentRank(player model.PlayerIdentity) (model.RankCoordinate, bool)
}

func New(bots []BotConfig, sessionFor func(BotConfig) (*discordgo.Session, error), formatter *format.Formatter, ranks RankProvider, requestsPerSecond float64, segmentCeiling int, log *zap.Logger) (*Adapter, error) {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 50
	}
	if segmentCeiling <= 0 {
		segmentCeiling = defaultMessageCeiling
	}
	network := rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond)))
	personalities := make(map[string]*personality, len(bots))

	for _, cfg := range bots {
		sess, err := sessionFor(cfg)
		if err != nil {
			return nil, fmt.Errorf("social: open personality %q: %w", cfg.Name, err)
		}
		share := requestsPerSecond / float64(len(bots))
		personalities[cfg.Name] = &personality{
			cfg:     cfg,
			session: sess,
			limiter: rate.NewLimiter(rate.Limit(share), max(1, int(share))),
		}
	}

	a := &Adapter{personalities: personalities, network: network, formatter: formatter, ranks: ranks, messageCeiling: segmentCeiling, log: log}

	for name, p := range personalities {
		name, p := name, p
		p.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Author != nil && m.Author.Bot {
				return
			}
			a.handleInbound(name, p, m)
		})
	}

	return a, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (a *Adapter) Identity() string { return "social" }

func (a *Adapter) handleInbound(personalityName string, p *personality, m *discordgo.MessageCreate) {
	hubChannel := ""
	for hub, platformID := range p.cfg.ChannelMap {
		if platformID == m.ChannelID {
			hubChannel = hub
			break
		}
	}
	if hubChannel == "" {
		return
	}

	a.mu.Lock()
	fn := a.inbound
	a.mu.Unlock()
	if fn == nil {
		return
	}

	fn(model.ChatMessage{
		IngressID:        m.ID,
		IngressAt:        time.Now(),
		SourcePlatform:   "social:" + personalityName,
		SourceChannel:    hubChannel,
		OriginAdapter:    a.Identity(),
		AuthorPlatformID: m.Author.ID,
		RawText:          m.Content,
		CanonicalText:    m.Content,
	})
}

func (a *Adapter) SubscribeInbound(fn func(model.ChatMessage)) {
	a.mu.Lock()
	a.inbound = fn
	a.mu.Unlock()
}

// Send delivers already-rendered text through the channel's assigned
// personality, segmenting at the platform's character ceiling on
// paragraph or word boundaries; a single word longer than the ceiling
// is cut at the ceiling.
func (a *Adapter) Send(channel string, rendered string) error {
	p, platformChannel, err := a.resolve(channel)
	if err != nil {
		return err
	}
	for _, chunk := range segment(rendered, a.messageCeiling) {
		if err := a.rateLimitedSend(p, platformChannel, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Announce(channel string, rendered string) error {
	return a.Send(channel, rendered)
}

// Deliver satisfies router.Subscriber: it renders msg for this platform
// before handing it out. When the formatter's renderer supports a
// structured embed, an embed is sent instead of flattened plain text.
func (a *Adapter) Deliver(msg model.ChatMessage) error {
	authorName := msg.AuthorPlatformID
	rank := model.RankCoordinate{}
	if msg.Author != nil {
		authorName = msg.Author.DisplayName
		if a.ranks != nil {
			if r, ok := a.ranks.CurrentRank(*msg.Author); ok {
				rank = r
			}
		}
	}
	if field, ok := a.formatter.FormatEmbed(msg, authorName, rank); ok {
		return a.sendEmbed(msg.SourceChannel, field)
	}
	rendered := a.formatter.Format(msg, authorName, rank)
	return a.Send(msg.SourceChannel, rendered)
}

// sendEmbed delivers a structured EmbedField to the channel's assigned
// personality. Discord's embed description ceiling (4096 chars) is far
// above any chat message this hub relays, so no segmentation is needed.
func (a *Adapter) sendEmbed(channel string, field format.EmbedField) error {
	p, platformChannel, err := a.resolve(channel)
	if err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: field.AuthorName},
		Description: field.Text,
	}
	if field.RankPrefix != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: field.RankPrefix}
	}
	if color, err := parseHexColor(field.RankColor); err == nil {
		embed.Color = color
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.network.Wait(ctx); err != nil {
		return fmt.Errorf("social: network rate limit wait: %w", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("social: personality rate limit wait: %w", err)
	}
	if _, err := p.session.ChannelMessageSendEmbed(platformChannel, embed); err != nil {
		return fmt.Errorf("social: send embed to discord channel %s: %w", platformChannel, err)
	}
	return nil
}

func parseHexColor(hex string) (int, error) {
	hex = strings.TrimPrefix(hex, "#")
	if hex == "" {
		return 0, fmt.Errorf("social: empty color")
	}
	var v int64
	if _, err := fmt.Sscanf(hex, "%x", &v); err != nil {
		return 0, err
	}
	return int(v), nil
}

func (a *Adapter) rateLimitedSend(p *personality, platformChannel, chunk string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.network.Wait(ctx); err != nil {
		return fmt.Errorf("social: network rate limit wait: %w", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("social: personality rate limit wait: %w", err)
	}
	_, err := p.session.ChannelMessageSend(platformChannel, chunk)
	if err != nil {
		return fmt.Errorf("social: send to discord channel %s: %w", platformChannel, err)
	}
	return nil
}

func (a *Adapter) resolve(hubChannel string) (*personality, string, error) {
	for _, p := range a.personalities {
		if platformID, ok := p.cfg.ChannelMap[hubChannel]; ok {
			return p, platformID, nil
		}
	}
	return nil, "", fmt.Errorf("social: no personality routes channel %q", hubChannel)
}

// SendDirect delivers a direct message to the given external (Discord
// user) ID, used for verification warnings that must reach a player who
// has no channel binding yet. Any configured personality can open the
// DM channel; one is taken from the personality map, in no defined order.
func (a *Adapter) SendDirect(externalID, text string) error {
	for _, p := range a.personalities {
		ch, err := p.session.UserChannelCreate(externalID)
		if err != nil {
			return fmt.Errorf("social: open DM channel for %s: %w", externalID, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.network.Wait(ctx); err != nil {
			return fmt.Errorf("social: rate limit wait for DM: %w", err)
		}
		if _, err := p.session.ChannelMessageSend(ch.ID, text); err != nil {
			return fmt.Errorf("social: send DM to %s: %w", externalID, err)
		}
		return nil
	}
	return fmt.Errorf("social: no personality configured to send DMs")
}

// SyncRole assigns the guild role named by roleName to player, resolved
// by name against the guild's role list since the hub only tracks role
// names, not platform-specific role IDs.
func (a *Adapter) SyncRole(player model.PlayerIdentity, roleName string) error {
	for _, p := range a.personalities {
		if p.cfg.GuildID == "" {
			continue
		}
		roles, err := p.session.GuildRoles(p.cfg.GuildID)
		if err != nil {
			return fmt.Errorf("social: list guild roles: %w", err)
		}
		for _, role := range roles {
			if role.Name == roleName {
				return p.session.GuildMemberRoleAdd(p.cfg.GuildID, discordMemberID(player), role.ID)
			}
		}
	}
	return fmt.Errorf("social: role %q not found in any configured guild", roleName)
}

func discordMemberID(player model.PlayerIdentity) string {
	return player.DisplayName
}

// segment splits text into chunks no longer than ceiling, preferring a
// paragraph boundary, then a word boundary; when the window holds
// neither, it cuts at the ceiling, mid-word.
func segment(text string, ceiling int) []string {
	if len(text) <= ceiling {
		return []string{text}
	}

	var chunks []string
	for len(text) > ceiling {
		cut := lastBreak(text, ceiling)
		if cut <= 0 {
			cut = ceiling
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], " \n"))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func lastBreak(text string, ceiling int) int {
	window := text[:ceiling]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 2
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return idx + 1
	}
	return ceiling
}
