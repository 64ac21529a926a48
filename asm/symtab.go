package asm

import "strings"

// SymbolTable holds every qualified symbol's resolved address plus
// the disjoint linkage-class sets spec.md §3 defines. It implements
// the resolver interface used by Eval.
type SymbolTable struct {
	addr      map[string]int32
	globl     map[string]bool
	extern    map[string]bool
	undefined map[string]bool
	eqv       map[string]*eqvEntry
}

type eqvEntry struct {
	expr         *ExprNode
	modulePrefix string
	resolved     bool
	value        int64
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{
		addr:      make(map[string]int32),
		globl:     make(map[string]bool),
		extern:    make(map[string]bool),
		undefined: make(map[string]bool),
		eqv:       make(map[string]*eqvEntry),
	}
}

func qualify(modulePrefix, name string) string {
	if modulePrefix == "" {
		return name
	}
	return modulePrefix + "::" + name
}

// lookup implements the resolver interface: try the qualified name,
// then fall back to the bare name (spec.md §3).
func (t *SymbolTable) lookup(modulePrefix, name string) (int64, bool) {
	if v, ok := t.addr[qualify(modulePrefix, name)]; ok {
		return int64(v), true
	}
	if v, ok := t.addr[name]; ok {
		return int64(v), true
	}
	return 0, false
}

// Symbols returns the final defined-symbol map, keyed by qualified name.
func (t *SymbolTable) Symbols() map[string]int32 {
	out := make(map[string]int32, len(t.addr))
	for k, v := range t.addr {
		out[k] = v
	}
	return out
}

// GlobalSymbols, ExternSymbols, UndefinedSymbols expose the linkage
// classes for BinaryImage assembly.
func (t *SymbolTable) GlobalSymbols() []string    { return setKeys(t.globl) }
func (t *SymbolTable) ExternSymbols() []string    { return setKeys(t.extern) }
func (t *SymbolTable) UndefinedSymbols() []string { return setKeys(t.undefined) }

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// SymbolTableBuilder is Pass 1: walks the AST once, assigning an
// address to every label and deferring .eqv resolution to a
// fix-point pass at the end (spec.md §4.5).
type SymbolTableBuilder struct {
	table       *SymbolTable
	cursor      segmentCursor
	moduleStack []string
	expander    PseudoExpander
	delayed     bool
	pseudoOn    bool
}

// NewSymbolTableBuilder creates a Pass 1 builder. expander may be nil
// if pseudo-instructions are disabled.
func NewSymbolTableBuilder(expander PseudoExpander, delayedBranching, pseudoEnabled bool) *SymbolTableBuilder {
	return &SymbolTableBuilder{
		table:    newSymbolTable(),
		expander: expander,
		delayed:  delayedBranching,
		pseudoOn: pseudoEnabled,
	}
}

// Build walks nodes and returns the populated SymbolTable.
func (b *SymbolTableBuilder) Build(nodes []AstNode) (*SymbolTable, error) {
	for i, n := range nodes {
		if err := b.visit(nodes, i, n); err != nil {
			return nil, err
		}
	}
	if err := b.resolveEquates(); err != nil {
		return nil, err
	}
	b.promoteGlobals()
	return b.table, nil
}

func (b *SymbolTableBuilder) modulePrefix() string { return strings.Join(b.moduleStack, "::") }

func (b *SymbolTableBuilder) visit(nodes []AstNode, i int, n AstNode) error {
	switch n.Kind {
	case NodeLabel:
		return b.defineLabel(nodes, i, n)

	case NodeDirective:
		return b.visitDirective(nodes, i, n)

	case NodeInstruction:
		seg := n.Segment
		if !seg.isText() {
			return errAt(ErrSymbol, posOf(n), "instruction not in a text segment")
		}
		expanded, err := expandInstruction(n, b.expander, b.delayed, b.pseudoOn)
		if err != nil {
			return err
		}
		b.cursor.advance(seg, 4*len(expanded))
		return nil
	}
	return nil
}

func (b *SymbolTableBuilder) defineLabel(nodes []AstNode, i int, n AstNode) error {
	seg := n.Segment
	if seg.isData() {
		if align, found := lookaheadAlignment(nodes, i); found {
			pad := alignPadding(b.cursor.offset(seg), align)
			b.cursor.advance(seg, pad)
		}
	}
	name := qualify(b.modulePrefix(), n.Name)
	if _, exists := b.table.addr[name]; exists {
		return errAt(ErrSymbol, posOf(n), "duplicate label '%s'", n.Name)
	}
	if _, exists := b.table.eqv[name]; exists {
		return errAt(ErrSymbol, posOf(n), "'%s' is already defined as an equate", n.Name)
	}
	addr := segmentBase(seg) + int64(b.cursor.offset(seg))
	b.table.addr[name] = int32(addr)
	return nil
}

func (b *SymbolTableBuilder) visitDirective(nodes []AstNode, i int, n AstNode) error {
	switch n.DirectiveName {
	case ".text", ".ktext", ".data", ".kdata":
		return nil

	case ".globl":
		for _, a := range n.DirectiveArgs {
			b.table.globl[qualify(b.modulePrefix(), a.Label)] = true
		}
		return nil

	case ".extern":
		for _, a := range n.DirectiveArgs {
			name := qualify(b.modulePrefix(), a.Label)
			b.table.extern[name] = true
			b.table.undefined[name] = true
		}
		return nil

	case ".eqv":
		name := qualify(b.modulePrefix(), n.DirectiveArgs[0].Label)
		if _, exists := b.table.eqv[name]; exists {
			return errAt(ErrSymbol, posOf(n), "duplicate equate '%s'", n.DirectiveArgs[0].Label)
		}
		if _, exists := b.table.addr[name]; exists {
			return errAt(ErrSymbol, posOf(n), "'%s' is already defined as a label", n.DirectiveArgs[0].Label)
		}
		b.table.eqv[name] = &eqvEntry{expr: n.DirectiveArgs[1].Expr, modulePrefix: b.modulePrefix()}
		return nil

	case ".module":
		b.moduleStack = append(b.moduleStack, n.DirectiveArgs[0].Label)
		return nil

	case ".endmodule":
		if len(b.moduleStack) == 0 {
			return errAt(ErrSymbol, posOf(n), ".endmodule without matching .module")
		}
		b.moduleStack = b.moduleStack[:len(b.moduleStack)-1]
		return nil

	case ".org":
		seg := n.Segment
		target, err := Eval(n.DirectiveArgs[0].Expr, b.modulePrefix(), b.table)
		if err != nil {
			return err
		}
		newOff := int(target - segmentBase(seg))
		if newOff < b.cursor.offset(seg) {
			return errAt(ErrSymbol, posOf(n), ".org cannot move the segment offset backward")
		}
		b.cursor.setOffset(seg, newOff)
		return nil

	case ".space":
		seg := n.Segment
		if align, found := lookaheadAlignment(nodes, i); found {
			b.cursor.advance(seg, alignPadding(b.cursor.offset(seg), align))
		}
		n64, err := Eval(n.DirectiveArgs[0].Expr, b.modulePrefix(), b.table)
		if err != nil {
			return err
		}
		if n64 < 0 {
			return errAt(ErrSymbol, posOf(n), ".space argument must be non-negative")
		}
		b.cursor.advance(seg, int(n64))
		return nil

	case ".align":
		seg := n.Segment
		k, err := Eval(n.DirectiveArgs[0].Expr, b.modulePrefix(), b.table)
		if err != nil {
			return err
		}
		if k < 0 {
			return errAt(ErrSymbol, posOf(n), ".align argument must be non-negative")
		}
		align := 1 << uint(k)
		b.cursor.advance(seg, alignPadding(b.cursor.offset(seg), align))
		return nil

	case ".ascii", ".asciiz":
		seg := n.Segment
		if !seg.isData() {
			return errAt(ErrSymbol, posOf(n), "%s not in a data segment", n.DirectiveName)
		}
		if align, found := lookaheadAlignment(nodes, i); found {
			b.cursor.advance(seg, alignPadding(b.cursor.offset(seg), align))
		}
		size := len(n.DirectiveArgs[0].Bytes)
		if n.DirectiveName == ".asciiz" {
			size++
		}
		b.cursor.advance(seg, size)
		return nil

	case ".byte", ".half", ".word", ".float", ".double":
		seg := n.Segment
		if !seg.isData() {
			return errAt(ErrSymbol, posOf(n), "%s not in a data segment", n.DirectiveName)
		}
		if align, found := lookaheadAlignment(nodes, i); found {
			b.cursor.advance(seg, alignPadding(b.cursor.offset(seg), align))
		}
		elemSize, _ := dataElemSize(n.DirectiveName)
		b.cursor.advance(seg, elemSize*len(n.DirectiveArgs))
		return nil

	case ".set":
		return nil

	default:
		return errAt(ErrSymbol, posOf(n), "unknown directive %s", n.DirectiveName)
	}
}

// resolveEquates resolves every .eqv entry to a concrete int64 value
// via a small fix-point over the equate dependency graph, detecting
// cycles with a visited set (spec.md §9).
func (b *SymbolTableBuilder) resolveEquates() error {
	visiting := make(map[string]bool)
	var resolve func(name string) error
	resolve = func(name string) error {
		entry, ok := b.table.eqv[name]
		if !ok || entry.resolved {
			return nil
		}
		if visiting[name] {
			return errAt(ErrSymbol, span{}, "circular .eqv definition involving '%s'", name)
		}
		visiting[name] = true
		v, err := evalWithEquates(entry.expr, entry.modulePrefix, b.table, resolve)
		if err != nil {
			return err
		}
		entry.value = v
		entry.resolved = true
		b.table.addr[name] = int32(v)
		visiting[name] = false
		return nil
	}

	for name := range b.table.eqv {
		if err := resolve(name); err != nil {
			return err
		}
	}
	for name, entry := range b.table.eqv {
		b.table.addr[name] = int32(entry.value)
	}
	return nil
}

// evalWithEquates evaluates e, resolving any referenced equate that
// isn't yet promoted into addr by recursing through resolve first.
func evalWithEquates(e *ExprNode, modulePrefix string, t *SymbolTable, resolve func(string) error) (int64, error) {
	var walk func(n *ExprNode) error
	walk = func(n *ExprNode) error {
		if n.Op == ExprSymbol {
			qualified := qualify(modulePrefix, n.Symbol)
			for _, candidate := range []string{qualified, n.Symbol} {
				if entry, ok := t.eqv[candidate]; ok && !entry.resolved {
					if err := resolve(candidate); err != nil {
						return err
					}
				}
			}
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(e); err != nil {
		return 0, err
	}
	return Eval(e, modulePrefix, t)
}

// promoteGlobals moves any symbol named in .globl that was never
// defined (and isn't extern) into undefined, per spec.md §4.5's
// post-conditions.
func (b *SymbolTableBuilder) promoteGlobals() {
	for name := range b.table.globl {
		if _, defined := b.table.addr[name]; defined {
			continue
		}
		if b.table.extern[name] {
			continue
		}
		b.table.undefined[name] = true
	}
}
