package pseudoop

import (
	_ "embed"
	"strings"
)

//go:embed data/pseudo.tab
var builtinCatalog string

// Default returns a Table loaded from the bundled catalog. It panics
// if the bundled catalog itself fails to parse, since that indicates
// a build-time defect rather than a runtime condition callers can
// recover from.
func Default() *Table {
	defs, err := LoadText(strings.NewReader(builtinCatalog))
	if err != nil {
		panic("pseudoop: bundled catalog: " + err.Error())
	}
	t := NewTable()
	if err := t.Reload(defs); err != nil {
		panic("pseudoop: bundled catalog: " + err.Error())
	}
	return t
}

// LoadWithOverride merges overrideText (text catalog form, or JSON
// when json is true) on top of the bundled catalog, overriding entries
// are detected once by Example mnemonic (spec.md §4.7: "user entries
// overwriting by mnemonic"). An empty overrideText just returns the
// bundled catalog.
func LoadWithOverride(overrideText string, json bool) (*Table, error) {
	base, err := LoadText(strings.NewReader(builtinCatalog))
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*PseudoOpDefinition, len(base))
	var order []string
	for _, d := range base {
		m := mnemonicOf(d)
		if _, ok := merged[m]; !ok {
			order = append(order, m)
		}
		merged[m] = d
	}

	if strings.TrimSpace(overrideText) != "" {
		var overrides []*PseudoOpDefinition
		if json {
			overrides, err = LoadJSON(strings.NewReader(overrideText))
		} else {
			overrides, err = LoadText(strings.NewReader(overrideText))
		}
		if err != nil {
			return nil, err
		}
		for _, d := range overrides {
			m := mnemonicOf(d)
			if _, ok := merged[m]; !ok {
				order = append(order, m)
			}
			merged[m] = d
		}
	}

	out := make([]*PseudoOpDefinition, 0, len(order))
	for _, m := range order {
		out = append(out, merged[m])
	}

	t := NewTable()
	if err := t.Reload(out); err != nil {
		return nil, err
	}
	return t, nil
}
