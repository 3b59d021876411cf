package filter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/l1jgo/hub/internal/config"
)

// BuildChain constructs a Chain from the chat configuration's filter
// list, in declared order. Unknown filter names are rejected at boot
// rather than silently skipped.
func BuildChain(cfg config.ChatConfig) (*Chain, error) {
	checks := make([]Check, 0, len(cfg.Filters))
	for _, c := range cfg.Filters {
		check, err := buildCheck(c, cfg.PatternScriptPath)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return NewChain(checks...), nil
}

func buildCheck(c config.FilterConfig, defaultPatternScript string) (Check, error) {
	switch c.Name {
	case "length":
		return LengthCheck{Ceiling: intParam(c.Params, "ceiling", 512)}, nil
	case "cooldown":
		return CooldownCheck{TCool: durationParam(c.Params, "t_cool", time.Second)}, nil
	case "repeat":
		return RepeatLimitCheck{
			TRepeat: durationParam(c.Params, "t_repeat", 30*time.Second),
			N:       intParam(c.Params, "n", 3),
		}, nil
	case "flood":
		return FloodCheck{FMax: intParam(c.Params, "f_max", 10)}, nil
	case "pattern":
		path := stringParam(c.Params, "script_path", defaultPatternScript)
		if path == "" {
			return nil, fmt.Errorf("filter: pattern check requires a script_path")
		}
		rules, err := LoadPatternRules(path)
		if err != nil {
			return nil, err
		}
		return PatternCheck{Rules: rules}, nil
	case "caps":
		return CapsCheck{CRatio: floatParam(c.Params, "c_ratio", 0.7)}, nil
	case "command_escape":
		return CommandEscapeCheck{LeadingChars: stringParam(c.Params, "leading_chars", "/!")}, nil
	default:
		return nil, fmt.Errorf("filter: unknown check %q", c.Name)
	}
}

func stringParam(params map[string]string, key, def string) string {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func intParam(params map[string]string, key string, def int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatParam(params map[string]string, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func durationParam(params map[string]string, key string, def time.Duration) time.Duration {
	if v, ok := params[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
