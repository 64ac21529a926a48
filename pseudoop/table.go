// Package pseudoop implements the loadable, table-driven pseudo-
// instruction catalog (spec.md §4.6.1, §4.7): a PseudoOpDefinition
// matches a pseudo-instruction's raw source tokens against an example
// form and expands it into one or more native instructions by
// substituting a small macro mini-language (see template.go) into a
// template line, which is then re-lexed and re-parsed.
//
// Table implements asm.PseudoExpander, but this package is the only
// one that imports asm for that purpose; asm never imports pseudoop,
// so Options.PseudoExpander stays a plain interface field.
package pseudoop

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/mipsasm/mipsasm/asm"
)

// PseudoOpDefinition is one entry of the catalog: an example form
// (used both to infer the mnemonic and to derive the match pattern)
// and an ordered list of expansion templates. A literal "COMPACT"
// entry in Templates separates the default group from an optional
// group used when every numeric source operand fits signed-16
// (spec.md §4.6.1 point 2).
type PseudoOpDefinition struct {
	Example     string
	Templates   []string
	Description string
}

// compiledDef is a PseudoOpDefinition with its example pre-lexed, its
// template list pre-split into groups, and every template in those
// groups pre-compiled (spec.md §9: parse template symbols once, at
// load time, not per expansion).
type compiledDef struct {
	mnemonic      string
	exampleTokens []asm.Token
	defaultGroup  []compiledTemplate
	compactGroup  []compiledTemplate
	description   string
}

type tableData struct {
	defs map[string][]*compiledDef
}

// Table is a reloadable pseudo-op catalog. Reload swaps the internal
// definition map atomically, so a Table can be reloaded while
// Assemble calls using it are in flight (spec.md §5).
type Table struct {
	data atomic.Pointer[tableData]
}

// NewTable returns an empty, usable Table.
func NewTable() *Table {
	t := &Table{}
	t.data.Store(&tableData{defs: map[string][]*compiledDef{}})
	return t
}

// Reload compiles defs and atomically replaces the table's contents.
// On error the table is left unchanged.
func (t *Table) Reload(defs []*PseudoOpDefinition) error {
	data := &tableData{defs: map[string][]*compiledDef{}}
	for i, d := range defs {
		cd, err := compile(d)
		if err != nil {
			return fmt.Errorf("pseudoop: definition %d: %w", i, err)
		}
		data.defs[cd.mnemonic] = append(data.defs[cd.mnemonic], cd)
	}
	t.data.Store(data)
	return nil
}

func compile(def *PseudoOpDefinition) (*compiledDef, error) {
	lexed, err := asm.NewLexer().LexLine(0, 1, def.Example)
	if err != nil {
		return nil, fmt.Errorf("bad example %q: %w", def.Example, err)
	}
	toks := stripCommas(lexed.Tokens)
	if len(toks) == 0 || toks[0].Kind != asm.TokIdentifier {
		return nil, fmt.Errorf("example %q has no mnemonic", def.Example)
	}

	var defaultGroup, compactGroup []compiledTemplate
	group := &defaultGroup
	for _, tmpl := range def.Templates {
		if strings.TrimSpace(tmpl) == "COMPACT" {
			group = &compactGroup
			continue
		}
		ct, err := compileTemplate(tmpl)
		if err != nil {
			return nil, fmt.Errorf("example %q: template %q: %w", def.Example, tmpl, err)
		}
		*group = append(*group, ct)
	}
	if len(defaultGroup) == 0 {
		return nil, fmt.Errorf("example %q has no default expansion templates", def.Example)
	}

	return &compiledDef{
		mnemonic:      strings.ToLower(toks[0].Text),
		exampleTokens: toks,
		defaultGroup:  defaultGroup,
		compactGroup:  compactGroup,
		description:   def.Description,
	}, nil
}

func stripCommas(toks []asm.Token) []asm.Token {
	out := make([]asm.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == asm.TokComma {
			continue
		}
		out = append(out, t)
	}
	return out
}

// matchExample implements spec.md §4.6.1 point 1: register positions
// match any register, numeric positions match any number (with "10"
// meaning 0..31 and "100" meaning fits-signed-16 as magnitude hints;
// any other example magnitude matches any number at all), identifier
// positions other than the mnemonic are label wildcards, and every
// other token must match exactly (case-insensitive), including
// parentheses positionally.
func matchExample(example, source []asm.Token) bool {
	if len(example) != len(source) {
		return false
	}
	if !strings.EqualFold(example[0].Text, source[0].Text) {
		return false
	}
	for i := 1; i < len(example); i++ {
		et, st := example[i], source[i]
		switch et.Kind {
		case asm.TokRegister:
			if st.Kind != asm.TokRegister {
				return false
			}
		case asm.TokNumber:
			if st.Kind != asm.TokNumber {
				return false
			}
			switch et.Text {
			case "10":
				if st.IntVal < 0 || st.IntVal > 31 {
					return false
				}
			case "100":
				if st.IntVal < -32768 || st.IntVal > 32767 {
					return false
				}
			}
		case asm.TokIdentifier, asm.TokDirective:
			if st.Kind != asm.TokIdentifier && st.Kind != asm.TokDirective {
				return false
			}
		default:
			if st.Kind != et.Kind || !strings.EqualFold(st.Text, et.Text) {
				return false
			}
		}
	}
	return true
}

// allNumericOperandsFitSigned16 drives compact-vs-default group
// selection (spec.md §4.6.1 point 2). A line with no numeric operands
// at all (e.g. a pure label branch) vacuously fits.
func allNumericOperandsFitSigned16(raw []asm.Token) bool {
	for _, t := range raw[1:] {
		if t.Kind == asm.TokNumber && (t.IntVal < -32768 || t.IntVal > 32767) {
			return false
		}
	}
	return true
}

func (d *compiledDef) selectGroup(raw []asm.Token) ([]compiledTemplate, bool) {
	if !matchExample(d.exampleTokens, raw) {
		return nil, false
	}
	if len(d.compactGroup) > 0 && allNumericOperandsFitSigned16(raw) {
		return d.compactGroup, true
	}
	return d.defaultGroup, true
}

// Entry describes one catalog definition for reporting purposes
// (host's "pseudoops list" command).
type Entry struct {
	Mnemonic    string
	Example     string
	Description string
}

// Listing returns every loaded definition, grouped by mnemonic in
// alphabetical order, for display by a caller such as host's
// pseudoops command. It reads the table's current snapshot under the
// same atomic pointer Expand uses, so a concurrent Reload never
// observes or produces a torn listing.
func (t *Table) Listing() []Entry {
	data := t.data.Load()
	if data == nil {
		return nil
	}

	var mnemonics []string
	for m := range data.defs {
		mnemonics = append(mnemonics, m)
	}
	sort.Strings(mnemonics)

	var out []Entry
	for _, m := range mnemonics {
		for _, d := range data.defs[m] {
			out = append(out, Entry{
				Mnemonic:    d.mnemonic,
				Example:     strings.Join(rawExampleText(d.exampleTokens), " "),
				Description: d.description,
			})
		}
	}
	return out
}

func rawExampleText(toks []asm.Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

// Expand implements asm.PseudoExpander.
func (t *Table) Expand(node asm.AstNode, delayedBranching bool) ([]asm.AstNode, bool, error) {
	return t.expand(node, delayedBranching, 0)
}

// maxExpansionDepth bounds the table's self-recursive re-expansion to
// two layers (spec.md §4.6.1 point 3).
const maxExpansionDepth = 2

func (t *Table) expand(node asm.AstNode, delayed bool, depth int) ([]asm.AstNode, bool, error) {
	data := t.data.Load()
	if data == nil {
		return nil, false, nil
	}

	for _, def := range data.defs[strings.ToLower(node.Mnemonic)] {
		group, ok := def.selectGroup(node.RawTokens)
		if !ok {
			continue
		}

		var out []asm.AstNode
		for _, tmpl := range group {
			text, err := renderCompiledTemplate(tmpl, node.RawTokens, delayed)
			if err != nil {
				return nil, false, err
			}
			parsed, err := parseTemplateLine(text, node)
			if err != nil {
				return nil, false, err
			}
			for _, p := range parsed {
				if asm.IsNativeMnemonic(p.Mnemonic) {
					out = append(out, p)
					continue
				}
				if depth >= maxExpansionDepth {
					return nil, false, fmt.Errorf("pseudoop: %q: expansion exceeds maximum depth", node.Mnemonic)
				}
				sub, matched, err := t.expand(p, delayed, depth+1)
				if err != nil {
					return nil, false, err
				}
				if !matched {
					return nil, false, fmt.Errorf("pseudoop: %q: expanded to unrecognized instruction %q", node.Mnemonic, p.Mnemonic)
				}
				out = append(out, sub...)
			}
		}
		return out, true, nil
	}
	return nil, false, nil
}
