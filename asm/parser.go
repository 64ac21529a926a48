package asm

import "strings"

// Parser consumes LexedLines and produces an ordered program AST
// (spec.md §4.2). It tracks only the current segment; module scope
// and symbol addresses are the concern of later passes.
type Parser struct {
	segment Segment
}

// NewParser creates a Parser. The initial segment is .text, matching
// conventional MIPS assembler behavior for code appearing before any
// segment directive.
func NewParser() *Parser {
	return &Parser{segment: SegText}
}

// Parse converts lexed lines into AST nodes.
func (p *Parser) Parse(lines []LexedLine) ([]AstNode, error) {
	var out []AstNode
	for _, line := range lines {
		nodes, err := p.parseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

func (p *Parser) parseLine(line LexedLine) ([]AstNode, error) {
	toks := line.Tokens
	var out []AstNode
	i := 0

	for i+1 < len(toks) && toks[i].Kind == TokIdentifier && toks[i+1].Kind == TokColon {
		out = append(out, AstNode{
			Kind:    NodeLabel,
			Name:    toks[i].Text,
			Segment: p.segment,
			Line:    line.Line,
			File:    line.File,
		})
		i += 2
	}

	if i >= len(toks) {
		return out, nil
	}

	head := toks[i]
	switch head.Kind {
	case TokDirective:
		node, err := p.parseDirective(line, toks[i:])
		if err != nil {
			return nil, err
		}
		out = append(out, node)

	case TokIdentifier:
		node, err := p.parseInstruction(line, toks[i:])
		if err != nil {
			return nil, err
		}
		out = append(out, node)

	default:
		return nil, errAt(ErrParse, head.pos, "expected directive, label, or instruction")
	}

	return out, nil
}

//
// Directives
//

var directiveAliases = map[string]string{
	".global": ".globl",
	".equ":    ".eqv",
	".skip":   ".space",
	".balign": ".align",
}

func normalizeDirectiveName(name string) string {
	name = strings.ToLower(name)
	if canon, ok := directiveAliases[name]; ok {
		return canon
	}
	return name
}

func (p *Parser) parseDirective(line LexedLine, toks []Token) (AstNode, error) {
	name := normalizeDirectiveName(toks[0].Text)
	rest := toks[1:]

	switch name {
	case ".text":
		p.segment = SegText
		return p.directiveNode(line, name, nil), nil
	case ".ktext":
		p.segment = SegKText
		return p.directiveNode(line, name, nil), nil
	case ".data":
		p.segment = SegData
		return p.directiveNode(line, name, nil), nil
	case ".kdata":
		p.segment = SegKData
		return p.directiveNode(line, name, nil), nil
	}

	switch name {
	case ".word", ".byte", ".half", ".float", ".double":
		if !p.segment.isData() {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s not allowed outside a data segment", name)
		}
		args, err := p.parseOperandList(rest, true)
		if err != nil {
			return AstNode{}, err
		}
		if len(args) == 0 {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s requires at least one argument", name)
		}
		return p.directiveNode(line, name, args), nil

	case ".ascii", ".asciiz":
		if !p.segment.isData() {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s not allowed outside a data segment", name)
		}
		if len(rest) != 1 || rest[0].Kind != TokString {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s requires a single string argument", name)
		}
		return p.directiveNode(line, name, []Operand{{Kind: OperandString, Bytes: []byte(rest[0].Str)}}), nil

	case ".space", ".align", ".org":
		if len(rest) == 0 {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s requires an argument", name)
		}
		op, err := parseOperandGroup(rest)
		if err != nil {
			return AstNode{}, err
		}
		if op.Kind == OperandImmediate || op.Kind == OperandLabel {
			op = Operand{Kind: OperandExpr, Expr: operandToExpr(op), pos: op.pos}
		}
		return p.directiveNode(line, name, []Operand{op}), nil

	case ".globl", ".extern":
		groups := splitByComma(rest)
		if len(groups) == 0 {
			return AstNode{}, errAt(ErrParse, toks[0].pos, "%s requires at least one label", name)
		}
		var args []Operand
		for _, g := range groups {
			if len(g) != 1 || g[0].Kind != TokIdentifier {
				return AstNode{}, errAt(ErrParse, toks[0].pos, "%s argument must be a label", name)
			}
			args = append(args, Operand{Kind: OperandLabel, Label: g[0].Text})
		}
		return p.directiveNode(line, name, args), nil

	case ".eqv":
		if len(rest) < 2 || rest[0].Kind != TokIdentifier {
			return AstNode{}, errAt(ErrParse, toks[0].pos, ".eqv requires a name and a value")
		}
		valueToks := rest[1:]
		if valueToks[0].Kind == TokComma {
			valueToks = valueToks[1:]
		}
		expr, remain, err := parseExpr(valueToks)
		if err != nil {
			return AstNode{}, err
		}
		if len(remain) != 0 {
			return AstNode{}, errAt(ErrParse, toks[0].pos, ".eqv value is malformed")
		}
		return p.directiveNode(line, name, []Operand{
			{Kind: OperandLabel, Label: rest[0].Text},
			{Kind: OperandExpr, Expr: expr},
		}), nil

	case ".module":
		if len(rest) != 1 || rest[0].Kind != TokIdentifier {
			return AstNode{}, errAt(ErrParse, toks[0].pos, ".module requires a single name")
		}
		return p.directiveNode(line, name, []Operand{{Kind: OperandLabel, Label: rest[0].Text}}), nil

	case ".endmodule":
		if len(rest) != 0 {
			return AstNode{}, errAt(ErrParse, toks[0].pos, ".endmodule takes no arguments")
		}
		return p.directiveNode(line, name, nil), nil

	case ".set":
		var args []Operand
		for _, g := range splitByComma(rest) {
			if len(g) == 0 {
				continue
			}
			if len(g) == 1 && (g[0].Kind == TokIdentifier || g[0].Kind == TokDirective) {
				args = append(args, Operand{Kind: OperandLabel, Label: g[0].Text})
				continue
			}
			op, err := parseOperandGroup(g)
			if err != nil {
				return AstNode{}, err
			}
			args = append(args, op)
		}
		return p.directiveNode(line, name, args), nil

	case ".include", ".macro", ".end_macro":
		return AstNode{}, errAt(ErrParse, toks[0].pos, "%s must be resolved before parsing", name)

	default:
		return AstNode{}, errAt(ErrParse, toks[0].pos, "unknown directive %s", name)
	}
}

func (p *Parser) directiveNode(line LexedLine, name string, args []Operand) AstNode {
	return AstNode{
		Kind:          NodeDirective,
		DirectiveName: name,
		DirectiveArgs: args,
		Segment:       p.segment,
		Line:          line.Line,
		File:          line.File,
	}
}

//
// Instructions
//

func (p *Parser) parseInstruction(line LexedLine, toks []Token) (AstNode, error) {
	mnemonic := strings.ToLower(toks[0].Text)
	rest := toks[1:]

	operands, err := p.parseOperandList(rest, true)
	if err != nil {
		return AstNode{}, err
	}

	raw := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == TokComma {
			continue
		}
		raw = append(raw, t)
	}

	return AstNode{
		Kind:      NodeInstruction,
		Mnemonic:  mnemonic,
		Operands:  operands,
		RawTokens: raw,
		Segment:   p.segment,
		Line:      line.Line,
		File:      line.File,
	}, nil
}

//
// Shared operand parsing
//

func (p *Parser) parseOperandList(toks []Token, exprAllowed bool) ([]Operand, error) {
	groups := splitByComma(toks)
	var out []Operand
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		op, err := parseOperandGroupAllowing(g, exprAllowed)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// splitByComma splits tokens at top-level commas, tracking paren
// depth so a comma can never legally appear inside "(...)" anyway but
// this keeps the split robust if it ever does.
func splitByComma(toks []Token) [][]Token {
	var groups [][]Token
	var cur []Token
	depth := 0
	for _, t := range toks {
		switch t.Kind {
		case TokLParen:
			depth++
		case TokRParen:
			depth--
		}
		if t.Kind == TokComma && depth == 0 {
			groups = append(groups, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 || len(groups) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// parseOperandGroup parses a single comma-separated operand group
// into an Operand (spec.md §4.2's operand parsing policy).
func parseOperandGroup(toks []Token) (Operand, error) {
	return parseOperandGroupAllowing(toks, true)
}

func parseOperandGroupAllowing(toks []Token, exprAllowed bool) (Operand, error) {
	if len(toks) == 0 {
		return Operand{}, errAt(ErrParse, span{}, "empty operand")
	}

	if idx := findParen(toks); idx >= 0 {
		return parseMemoryOperand(toks, idx)
	}

	if len(toks) == 1 {
		t := toks[0]
		switch t.Kind {
		case TokRegister:
			idx, ok := lookupRegister(t.Text)
			if !ok {
				return Operand{}, errAt(ErrParse, t.pos, "unknown register '$%s'", t.Text)
			}
			return Operand{Kind: OperandRegister, RegIndex: idx, RegName: t.Text, pos: t.pos}, nil
		case TokNumber:
			if t.IsFlt {
				return Operand{Kind: OperandExpr, Expr: &ExprNode{Op: ExprNumber, Number: int64(t.FltVal), FltVal: t.FltVal, IsFlt: true}, pos: t.pos}, nil
			}
			return Operand{Kind: OperandImmediate, ImmValue: t.IntVal, pos: t.pos}, nil
		case TokString:
			return Operand{Kind: OperandString, Bytes: []byte(t.Str), pos: t.pos}, nil
		case TokIdentifier, TokDirective:
			return Operand{Kind: OperandLabel, Label: t.Text, pos: t.pos}, nil
		default:
			return Operand{}, errAt(ErrParse, t.pos, "malformed operand")
		}
	}

	if !exprAllowed {
		return Operand{}, errAt(ErrParse, toks[0].pos, "malformed operand")
	}
	expr, remain, err := parseExpr(toks)
	if err != nil {
		return Operand{}, err
	}
	if len(remain) != 0 {
		return Operand{}, errAt(ErrParse, toks[0].pos, "malformed operand")
	}
	return Operand{Kind: OperandExpr, Expr: expr, pos: toks[0].pos}, nil
}

func findParen(toks []Token) int {
	for i, t := range toks {
		if t.Kind == TokLParen {
			return i
		}
	}
	return -1
}

// parseMemoryOperand parses "OFFSET ( $reg )" into a Memory operand;
// idx is the position of the '(' token.
func parseMemoryOperand(toks []Token, idx int) (Operand, error) {
	offsetToks := toks[:idx]
	inner := toks[idx:]
	if len(inner) != 3 || inner[0].Kind != TokLParen || inner[1].Kind != TokRegister || inner[2].Kind != TokRParen {
		return Operand{}, errAt(ErrParse, toks[idx].pos, "malformed memory operand")
	}

	base, ok := lookupRegister(inner[1].Text)
	if !ok {
		return Operand{}, errAt(ErrParse, inner[1].pos, "unknown register '$%s'", inner[1].Text)
	}

	op := Operand{Kind: OperandMemory, BaseRegister: base, pos: toks[idx].pos}

	switch {
	case len(offsetToks) == 0:
		op.OffsetKind = OffsetImmediate
		op.OffsetImm = 0
	case len(offsetToks) == 1 && offsetToks[0].Kind == TokNumber:
		op.OffsetKind = OffsetImmediate
		op.OffsetImm = offsetToks[0].IntVal
	case len(offsetToks) == 1 && (offsetToks[0].Kind == TokIdentifier || offsetToks[0].Kind == TokDirective):
		op.OffsetKind = OffsetLabel
		op.OffsetLabel = offsetToks[0].Text
	default:
		expr, remain, err := parseExpr(offsetToks)
		if err != nil {
			return Operand{}, err
		}
		if len(remain) != 0 {
			return Operand{}, errAt(ErrParse, toks[0].pos, "malformed memory offset")
		}
		op.OffsetKind = OffsetExpr
		op.OffsetExpr = expr
	}

	return op, nil
}
