package asm

import (
	"fmt"
	"strings"
)

// macroDef is a captured ".macro"/".end_macro" definition.
type macroDef struct {
	name        string
	params      []string // parameter keys, sigil-included (e.g. "$r", "r", "%r")
	body        []LexedLine
	localLabels map[string]bool
	defLine     int
}

// MacroExpander rewrites lexed lines into lexed lines, resolving
// ".macro"/".end_macro" definitions and their call sites (spec.md
// §4.4). Grounded on the same re-lex-after-substitution technique the
// teacher's asm/asm.go macro handling uses, generalized to MIPS's
// richer parameter/local-label rules.
type MacroExpander struct {
	lexer       *Lexer
	defs        []*macroDef
	guard       *cycleGuard
	callSiteIDs map[string]uint
	nextCallID  uint
	nextExpID   int
}

// NewMacroExpander creates a MacroExpander.
func NewMacroExpander() *MacroExpander {
	return &MacroExpander{
		lexer:       NewLexer(),
		guard:       newCycleGuard(),
		callSiteIDs: make(map[string]uint),
	}
}

// Expand captures every ".macro" definition in lines, then expands
// every call site (recursively, so an expansion's own calls are
// expanded too), returning the fully macro-free line sequence.
func (me *MacroExpander) Expand(lines []LexedLine) ([]LexedLine, error) {
	body, err := me.captureDefinitions(lines)
	if err != nil {
		return nil, err
	}
	return me.expandLines(body)
}

//
// Definition capture
//

func (me *MacroExpander) captureDefinitions(lines []LexedLine) ([]LexedLine, error) {
	var out []LexedLine
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !isMacroStart(line) {
			out = append(out, line)
			i++
			continue
		}

		def, consumed, err := me.parseDefinition(lines, i)
		if err != nil {
			return nil, err
		}
		me.defs = append(me.defs, def)
		i += consumed
	}
	return out, nil
}

func isMacroStart(line LexedLine) bool {
	return len(line.Tokens) > 0 && line.Tokens[0].Kind == TokDirective && strings.EqualFold(line.Tokens[0].Text, ".macro")
}

func isMacroEnd(line LexedLine) bool {
	return len(line.Tokens) > 0 && line.Tokens[0].Kind == TokDirective &&
		(strings.EqualFold(line.Tokens[0].Text, ".end_macro") || strings.EqualFold(line.Tokens[0].Text, ".endmacro"))
}

// parseDefinition parses the ".macro" header at lines[start] and
// consumes its body up to the matching ".end_macro", returning the
// number of input lines consumed.
func (me *MacroExpander) parseDefinition(lines []LexedLine, start int) (*macroDef, int, error) {
	header := lines[start]
	toks := header.Tokens
	if len(toks) < 2 || toks[1].Kind != TokIdentifier {
		return nil, 0, errAt(ErrMacro, toks[0].pos, ".macro requires a name")
	}

	def := &macroDef{name: strings.ToLower(toks[1].Text), localLabels: make(map[string]bool), defLine: header.Line}
	for _, g := range splitByComma(toks[2:]) {
		if len(g) != 1 || (g[0].Kind != TokIdentifier && g[0].Kind != TokRegister) {
			return nil, 0, errAt(ErrMacro, toks[0].pos, "invalid macro parameter")
		}
		def.params = append(def.params, paramKey(g[0]))
	}

	depth := 1
	i := start + 1
	for ; i < len(lines); i++ {
		l := lines[i]
		if isMacroStart(l) {
			depth++
		} else if isMacroEnd(l) {
			depth--
			if depth == 0 {
				break
			}
		}
		def.body = append(def.body, l)
	}
	if depth != 0 {
		return nil, 0, errAt(ErrMacro, toks[0].pos, "missing .end_macro for macro '%s'", def.name)
	}

	for _, l := range def.body {
		collectLocalLabels(l, def.localLabels)
	}

	return def, i - start + 1, nil
}

func collectLocalLabels(line LexedLine, out map[string]bool) {
	toks := line.Tokens
	i := 0
	for i+1 < len(toks) && toks[i].Kind == TokIdentifier && toks[i+1].Kind == TokColon {
		out[toks[i].Text] = true
		i += 2
	}
}

// paramKey renders a parameter-declaration or body token into the
// comparable key used to match it: register tokens carry their '$'
// sigil since "the leading sigil is part of the parameter name".
func paramKey(t Token) string {
	if t.Kind == TokRegister {
		return "$" + t.Text
	}
	return t.Text
}

//
// Call-site matching and expansion
//

func (me *MacroExpander) findDef(name string, arity int) *macroDef {
	for i := len(me.defs) - 1; i >= 0; i-- {
		if me.defs[i].name == name && len(me.defs[i].params) == arity {
			return me.defs[i]
		}
	}
	return nil
}

func (me *MacroExpander) expandLines(lines []LexedLine) ([]LexedLine, error) {
	var out []LexedLine
	for _, line := range lines {
		expanded, err := me.expandLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func (me *MacroExpander) expandLine(line LexedLine) ([]LexedLine, error) {
	labelToks, callToks := splitLeadingLabels(line.Tokens)
	if len(callToks) == 0 || callToks[0].Kind != TokIdentifier {
		return []LexedLine{line}, nil
	}

	name := strings.ToLower(callToks[0].Text)
	argGroups := splitByComma(callToks[1:])
	arity := len(argGroups)
	if len(callToks) == 1 {
		arity = 0
	}

	def := me.findDef(name, arity)
	if def == nil {
		return []LexedLine{line}, nil
	}

	callID := me.callSiteID(line.File, callToks[0].Line)
	if me.guard.enter(callID, fmt.Sprintf("%s (line %d)", def.name, callToks[0].Line)) {
		return nil, errAt(ErrMacro, callToks[0].pos, "recursive macro expansion: %s", me.guard.chain(callID))
	}
	defer me.guard.leave(callID)

	expansionID := me.nextExpID
	me.nextExpID++

	body, err := me.renderBody(def, argGroups, expansionID)
	if err != nil {
		return nil, err
	}

	result, err := me.expandLines(body)
	if err != nil {
		return nil, err
	}
	if len(labelToks) > 0 && len(result) > 0 {
		merged := append(append([]Token{}, labelToks...), result[0].Tokens...)
		result[0].Tokens = merged
	} else if len(labelToks) > 0 {
		result = []LexedLine{{File: line.File, Line: line.Line, Tokens: labelToks}}
	}
	return result, nil
}

func (me *MacroExpander) callSiteID(file, line int) uint {
	key := fmt.Sprintf("%d:%d", file, line)
	if id, ok := me.callSiteIDs[key]; ok {
		return id
	}
	id := me.nextCallID
	me.nextCallID++
	me.callSiteIDs[key] = id
	return id
}

// splitLeadingLabels splits off leading "IDENT ':'" chains, returning
// the label tokens and the remainder.
func splitLeadingLabels(toks []Token) ([]Token, []Token) {
	i := 0
	for i+1 < len(toks) && toks[i].Kind == TokIdentifier && toks[i+1].Kind == TokColon {
		i += 2
	}
	return toks[:i], toks[i:]
}

func (me *MacroExpander) renderBody(def *macroDef, argGroups [][]Token, expansionID int) ([]LexedLine, error) {
	paramMap := make(map[string][]Token, len(def.params))
	for i, name := range def.params {
		if i < len(argGroups) {
			paramMap[name] = argGroups[i]
		}
	}

	out := make([]LexedLine, 0, len(def.body))
	for _, bodyLine := range def.body {
		var newToks []Token
		for _, t := range bodyLine.Tokens {
			if repl, ok := paramMap[paramKey(t)]; ok {
				newToks = append(newToks, repl...)
				continue
			}
			if t.Kind == TokIdentifier && def.localLabels[t.Text] {
				renamed := t
				renamed.Text = fmt.Sprintf("%s_M%d", t.Text, expansionID)
				newToks = append(newToks, renamed)
				continue
			}
			newToks = append(newToks, t)
		}

		text := renderLine(newToks)
		relexed, err := me.lexer.LexLine(bodyLine.File, bodyLine.Line, text)
		if err != nil {
			return nil, err
		}
		out = append(out, relexed)
	}
	return out, nil
}

// renderLine reconstructs source text for a token sequence so it can
// be re-lexed, spacing tokens conventionally (no space before commas
// or closing parens, none after an opening paren).
func renderLine(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		text := t.Text
		if t.Kind == TokRegister {
			text = "$" + t.Text
		}
		if i > 0 {
			prev := toks[i-1]
			if t.Kind != TokComma && t.Kind != TokRParen && prev.Kind != TokLParen {
				b.WriteByte(' ')
			}
		}
		b.WriteString(text)
		if t.Kind == TokComma {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
