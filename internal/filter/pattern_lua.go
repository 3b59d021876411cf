package filter

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
)

// LoadPatternRules evaluates a Lua script that declares a global `rules`
// table of { match = "...", replacement = "...", hard_block = true|false }
// entries, letting operators change moderation patterns without a
// binary rebuild. The script is read when the filter chain is built at
// boot; a change takes effect on the next restart. A fresh VM is loaded
// per call rather than kept resident, since moderation rules are small.
func LoadPatternRules(scriptPath string) ([]PatternRule, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read pattern script %s: %w", scriptPath, err)
	}

	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer vm.Close()
	for _, pair := range []struct {
		n string
		f lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := vm.CallByParam(lua.P{Fn: vm.NewFunction(pair.f), NRet: 0, Protect: true}); err != nil {
			return nil, fmt.Errorf("open lua lib %s: %w", pair.n, err)
		}
	}

	if err := vm.DoString(string(data)); err != nil {
		return nil, fmt.Errorf("eval pattern script: %w", err)
	}

	rulesTable, ok := vm.GetGlobal("rules").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("pattern script does not declare a `rules` table")
	}

	var rules []PatternRule
	var evalErr error
	rulesTable.ForEach(func(_, value lua.LValue) {
		entry, ok := value.(*lua.LTable)
		if !ok {
			evalErr = fmt.Errorf("rules entries must be tables")
			return
		}
		rules = append(rules, PatternRule{
			Match:       lua.LVAsString(entry.RawGetString("match")),
			Replacement: lua.LVAsString(entry.RawGetString("replacement")),
			HardBlock:   lua.LVAsBool(entry.RawGetString("hard_block")),
		})
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return rules, nil
}
