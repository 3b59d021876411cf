// Package filter implements the ordered, short-circuiting filter chain:
// length, cooldown, repeat-limit, flood, pattern/profanity, caps, and
// command-escape checks, composed as a configuration-driven registry of
// a small capability interface rather than a class hierarchy.
package filter

import (
	"strings"
	"time"

	"github.com/l1jgo/hub/internal/model"
)

// Check is the polymorphic capability every filter stage implements. now
// is the chain's evaluation time, threaded through rather than read from
// the clock, so a check's outcome is a pure function of its inputs.
type Check interface {
	Name() string
	Evaluate(msg *model.ChatMessage, state *SenderState, now time.Time) model.RoutingVerdict
}

// Infraction records one (check, outcome) pair in a sender's bounded
// history.
type Infraction struct {
	Check     string
	Verdict   model.RoutingVerdictKind
	Reason    string
	Timestamp time.Time
}

// SenderState is the per-sender state the chain threads through checks:
// recent message history for cooldown/repeat/flood detection, and a
// bounded infraction log for policy decisions made elsewhere.
type SenderState struct {
	LastMessageAt   time.Time
	LastMessageText string
	RepeatCount     int
	RepeatWindowStart time.Time
	RecentTimestamps []time.Time // for flood detection, trimmed to 1 minute
	Infractions     []Infraction
	maxInfractions  int
}

func NewSenderState(maxInfractions int) *SenderState {
	return &SenderState{maxInfractions: maxInfractions}
}

func (s *SenderState) recordInfraction(check string, verdict model.RoutingVerdictKind, reason string, now time.Time) {
	s.Infractions = append(s.Infractions, Infraction{Check: check, Verdict: verdict, Reason: reason, Timestamp: now})
	if s.maxInfractions > 0 && len(s.Infractions) > s.maxInfractions {
		s.Infractions = s.Infractions[len(s.Infractions)-s.maxInfractions:]
	}
}

// Chain is the ordered sequence of checks. Verdict ordering is
// CANCEL > MODIFY > ALLOW: the chain stops at the first CANCEL, and a
// MODIFY's replacement text is visible to downstream checks.
type Chain struct {
	checks []Check
}

func NewChain(checks ...Check) *Chain {
	return &Chain{checks: checks}
}

// Evaluate runs msg through every check in order, mutating state and
// returning the final verdict. now is threaded explicitly so tests are
// deterministic.
func (c *Chain) Evaluate(msg *model.ChatMessage, state *SenderState, now time.Time) model.RoutingVerdict {
	text := msg.CanonicalText
	final := model.RoutingVerdict{Kind: model.VerdictAllow}

	for _, check := range c.checks {
		scratch := *msg
		scratch.CanonicalText = text
		v := check.Evaluate(&scratch, state, now)

		switch v.Kind {
		case model.VerdictCancel:
			state.recordInfraction(check.Name(), v.Kind, v.Reason, now)
			return v
		case model.VerdictModify:
			text = v.NewText
			final = v
			state.recordInfraction(check.Name(), v.Kind, v.Reason, now)
		}
	}

	msg.CanonicalText = text
	return final
}

// --- standard checks ---

// LengthCheck cancels if the trimmed message is empty or exceeds Ceiling.
type LengthCheck struct{ Ceiling int }

func (LengthCheck) Name() string { return "length" }

func (l LengthCheck) Evaluate(msg *model.ChatMessage, _ *SenderState, _ time.Time) model.RoutingVerdict {
	trimmed := strings.TrimSpace(msg.CanonicalText)
	if trimmed == "" {
		return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "empty"}
	}
	if l.Ceiling > 0 && len(trimmed) > l.Ceiling {
		return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "too_long"}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

// CooldownCheck cancels if the sender posted within TCool.
type CooldownCheck struct{ TCool time.Duration }

func (CooldownCheck) Name() string { return "cooldown" }

func (c CooldownCheck) Evaluate(_ *model.ChatMessage, state *SenderState, now time.Time) model.RoutingVerdict {
	if !state.LastMessageAt.IsZero() && now.Sub(state.LastMessageAt) < c.TCool {
		return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "cooldown"}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

// RepeatLimitCheck cancels if the message equals the sender's previous
// message (case-insensitive) within TRepeat more than N times.
type RepeatLimitCheck struct {
	TRepeat time.Duration
	N       int
}

func (RepeatLimitCheck) Name() string { return "repeat" }

func (c RepeatLimitCheck) Evaluate(msg *model.ChatMessage, state *SenderState, now time.Time) model.RoutingVerdict {
	sameAsLast := strings.EqualFold(msg.CanonicalText, state.LastMessageText)
	withinWindow := !state.LastMessageAt.IsZero() && now.Sub(state.LastMessageAt) < c.TRepeat

	if sameAsLast && withinWindow {
		state.RepeatCount++
	} else {
		state.RepeatCount = 0
	}
	state.LastMessageText = msg.CanonicalText
	state.LastMessageAt = now

	if state.RepeatCount >= c.N {
		return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "repeat"}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

// FloodCheck cancels if the sender's message count in the last minute
// exceeds FMax.
type FloodCheck struct{ FMax int }

func (FloodCheck) Name() string { return "flood" }

func (c FloodCheck) Evaluate(_ *model.ChatMessage, state *SenderState, now time.Time) model.RoutingVerdict {
	cutoff := now.Add(-time.Minute)
	kept := state.RecentTimestamps[:0]
	for _, t := range state.RecentTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	state.RecentTimestamps = kept

	if len(state.RecentTimestamps) > c.FMax {
		return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "flood"}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

// PatternRule declares a single substitution or hard-block rule.
type PatternRule struct {
	Match       string
	Replacement string
	HardBlock   bool
}

// PatternCheck substitutes replacements from a declared pattern table,
// or cancels if a pattern is marked hard-block. In production the table
// is sourced from the Lua script read at boot (see pattern_lua.go);
// this check only needs the resolved []PatternRule.
type PatternCheck struct{ Rules []PatternRule }

func (PatternCheck) Name() string { return "pattern" }

func (c PatternCheck) Evaluate(msg *model.ChatMessage, _ *SenderState, _ time.Time) model.RoutingVerdict {
	text := msg.CanonicalText
	lower := strings.ToLower(text)
	modified := false
	for _, rule := range c.Rules {
		if !strings.Contains(lower, strings.ToLower(rule.Match)) {
			continue
		}
		if rule.HardBlock {
			return model.RoutingVerdict{Kind: model.VerdictCancel, Reason: "pattern_blocked"}
		}
		text = replaceCaseInsensitive(text, rule.Match, rule.Replacement)
		lower = strings.ToLower(text)
		modified = true
	}
	if modified {
		return model.RoutingVerdict{Kind: model.VerdictModify, NewText: text}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

func replaceCaseInsensitive(text, match, replacement string) string {
	lowerText := strings.ToLower(text)
	lowerMatch := strings.ToLower(match)
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lowerText[i:], lowerMatch)
		if idx < 0 {
			b.WriteString(text[i:])
			break
		}
		b.WriteString(text[i : i+idx])
		b.WriteString(replacement)
		i += idx + len(match)
	}
	return b.String()
}

// CapsCheck lowercases the message when the alphabetic-uppercase ratio
// exceeds CRatio and the length exceeds 8.
type CapsCheck struct{ CRatio float64 }

func (CapsCheck) Name() string { return "caps" }

func (c CapsCheck) Evaluate(msg *model.ChatMessage, _ *SenderState, _ time.Time) model.RoutingVerdict {
	text := msg.CanonicalText
	if len(text) <= 8 {
		return model.RoutingVerdict{Kind: model.VerdictAllow}
	}
	var upper, alpha int
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alpha++
			if r >= 'A' && r <= 'Z' {
				upper++
			}
		}
	}
	if alpha == 0 {
		return model.RoutingVerdict{Kind: model.VerdictAllow}
	}
	if float64(upper)/float64(alpha) > c.CRatio {
		return model.RoutingVerdict{Kind: model.VerdictModify, NewText: strings.ToLower(text)}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}

// CommandEscapeCheck neutralizes leading command characters on platforms
// where they would otherwise execute as commands.
type CommandEscapeCheck struct{ LeadingChars string }

func (CommandEscapeCheck) Name() string { return "command_escape" }

func (c CommandEscapeCheck) Evaluate(msg *model.ChatMessage, _ *SenderState, _ time.Time) model.RoutingVerdict {
	text := msg.CanonicalText
	if text == "" {
		return model.RoutingVerdict{Kind: model.VerdictAllow}
	}
	if strings.ContainsRune(c.LeadingChars, rune(text[0])) {
		return model.RoutingVerdict{Kind: model.VerdictModify, NewText: "​" + text}
	}
	return model.RoutingVerdict{Kind: model.VerdictAllow}
}
