package pseudoop

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mipsasm/mipsasm/asm"
)

// placeholderPattern matches every symbol in a template line that
// might need substitution (spec.md §4.6.2). It never fires inside a
// hex literal like 0x1F: the digit immediately before an uppercase run
// is a word character, so there is no \b between them.
var placeholderPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*\b`)

var (
	reBROFF = regexp.MustCompile(`^BROFF(\d)(\d)$`)
	reRG    = regexp.MustCompile(`^RG(\d+)$`)
	reNR    = regexp.MustCompile(`^NR(\d+)$`)
	reOP    = regexp.MustCompile(`^OP(\d+)$`)
	reLAB   = regexp.MustCompile(`^LAB(\d*)$`)
	reLL    = regexp.MustCompile(`^LL(\d+)(?:P(\d+))?(U)?$`)
	reLH    = regexp.MustCompile(`^LH(\d+)(?:P(\d+))?$`)
	reVHL   = regexp.MustCompile(`^VHL(\d+)(?:P(\d+))?$`)
	reVH    = regexp.MustCompile(`^VH(\d+)(?:P(\d+))?$`)
	reVL    = regexp.MustCompile(`^VL(\d+)(?:P(\d+))?(U)?$`)
	reLLP   = regexp.MustCompile(`^LLP(U)?(?:P(\d+))?$`)
	reLHPA  = regexp.MustCompile(`^LHPA(?:P(\d+))?$`)
)

// placeholderKind enumerates the small set of template macro symbols
// spec.md §9 calls for: "parse each template symbol into a small enum
// once; do not re-parse per expansion."
type placeholderKind byte

const (
	phCompact placeholderKind = iota
	phDBNOP
	phIMM
	phLHL
	phLHPN
	phS32
	phBROFF
	phRG
	phNR
	phOP
	phLAB
	phLastLabel // LAB with no digits: the last operand token
	phLL
	phLH
	phVHL
	phVH
	phVL
	phLLP
	phLHPA
)

// placeholder is one parsed template symbol: its kind plus whatever
// operand index / addend / signedness the symbol's digits and suffix
// letters encoded. BROFFNonDelayed/BROFFDelayed hold BROFFmn's two
// digits (m for the non-delayed-branch form, n for the delayed one).
type placeholder struct {
	kind            placeholderKind
	operand         int
	addend          int
	unsigned        bool
	broffNonDelayed int
	broffDelayed    int
}

// templateOp is one piece of a pre-compiled template: either a literal
// run of text or a placeholder to substitute against a pseudo
// instruction's raw operand tokens.
type templateOp struct {
	isPlaceholder bool
	literal       string
	placeholder   placeholder
}

// compiledTemplate is a template line parsed once, at catalog load
// time, into a flat instruction sequence. Expansion replays this
// sequence against the matched instruction's raw tokens without
// touching a regexp or calling strconv again.
type compiledTemplate struct {
	ops []templateOp
}

// compileTemplate parses tmpl's placeholders once (spec.md §9), so
// that rendering it against many matched instructions never re-parses
// the template text.
func compileTemplate(tmpl string) (compiledTemplate, error) {
	var ct compiledTemplate
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(tmpl, -1) {
		start, end := loc[0], loc[1]
		if start > last {
			ct.ops = append(ct.ops, templateOp{literal: tmpl[last:start]})
		}
		ph, err := parsePlaceholder(tmpl[start:end])
		if err != nil {
			return compiledTemplate{}, err
		}
		ct.ops = append(ct.ops, templateOp{isPlaceholder: true, placeholder: ph})
		last = end
	}
	if last < len(tmpl) {
		ct.ops = append(ct.ops, templateOp{literal: tmpl[last:]})
	}
	return ct, nil
}

// parsePlaceholder decides which macro symbol sym is and extracts its
// operand index / addend / signedness once, matching spec.md §4.6.2's
// table.
func parsePlaceholder(sym string) (placeholder, error) {
	switch sym {
	case "COMPACT":
		return placeholder{kind: phCompact}, nil
	case "DBNOP":
		return placeholder{kind: phDBNOP}, nil
	case "IMM":
		return placeholder{kind: phIMM}, nil
	case "LHL":
		return placeholder{kind: phLHL}, nil
	case "LHPN":
		return placeholder{kind: phLHPN}, nil
	case "S32":
		return placeholder{kind: phS32}, nil
	}

	if m := reBROFF.FindStringSubmatch(sym); m != nil {
		nonDelayed, _ := strconv.Atoi(m[1])
		delayed, _ := strconv.Atoi(m[2])
		return placeholder{kind: phBROFF, broffNonDelayed: nonDelayed, broffDelayed: delayed}, nil
	}
	if m := reRG.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phRG, operand: n}, nil
	}
	if m := reNR.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phNR, operand: n}, nil
	}
	if m := reOP.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phOP, operand: n}, nil
	}
	if m := reLAB.FindStringSubmatch(sym); m != nil {
		if m[1] == "" {
			return placeholder{kind: phLastLabel}, nil
		}
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phLAB, operand: n}, nil
	}
	if m := reLL.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phLL, operand: n, addend: decimalOrZero(m[2]), unsigned: m[3] == "U"}, nil
	}
	if m := reLH.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phLH, operand: n, addend: decimalOrZero(m[2])}, nil
	}
	if m := reVHL.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phVHL, operand: n, addend: decimalOrZero(m[2])}, nil
	}
	if m := reVH.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phVH, operand: n, addend: decimalOrZero(m[2])}, nil
	}
	if m := reVL.FindStringSubmatch(sym); m != nil {
		n, _ := strconv.Atoi(m[1])
		return placeholder{kind: phVL, operand: n, addend: decimalOrZero(m[2]), unsigned: m[3] == "U"}, nil
	}
	if m := reLLP.FindStringSubmatch(sym); m != nil {
		return placeholder{kind: phLLP, addend: decimalOrZero(m[2]), unsigned: m[1] == "U"}, nil
	}
	if m := reLHPA.FindStringSubmatch(sym); m != nil {
		return placeholder{kind: phLHPA, addend: decimalOrZero(m[1])}, nil
	}

	return placeholder{}, fmt.Errorf("pseudoop: unknown template symbol %q", sym)
}

// renderCompiledTemplate replays a pre-compiled template against one
// pseudo instruction's raw source tokens, producing a line of literal
// assembly text to be re-lexed and re-parsed (spec.md §4.6.1 point 3).
// raw is the matched node's RawTokens (mnemonic at index 0).
func renderCompiledTemplate(ct compiledTemplate, raw []asm.Token, delayedBranching bool) (string, error) {
	var out string
	for _, op := range ct.ops {
		if !op.isPlaceholder {
			out += op.literal
			continue
		}
		repl, err := renderPlaceholder(op.placeholder, raw, delayedBranching)
		if err != nil {
			return "", err
		}
		out += repl
	}
	return out, nil
}

func renderPlaceholder(p placeholder, raw []asm.Token, delayed bool) (string, error) {
	switch p.kind {
	case phCompact:
		return "", nil
	case phDBNOP:
		if delayed {
			return "nop", nil
		}
		return "", nil
	case phIMM:
		return tokenText(firstNumericOperand(raw)), nil
	case phLHL:
		t, err := operandAt(raw, 2)
		if err != nil {
			return "", err
		}
		return highExpr(tokenText(t), false), nil
	case phLHPN:
		return highExpr(combinedLabelImm(raw), false), nil
	case phS32:
		last := raw[len(raw)-1]
		if last.Kind == asm.TokNumber {
			return strconv.FormatInt(32-last.IntVal, 10), nil
		}
		return "(32 - " + tokenText(last) + ")", nil
	case phBROFF:
		if delayed {
			return strconv.Itoa(p.broffDelayed), nil
		}
		return strconv.Itoa(p.broffNonDelayed), nil
	case phRG:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		return "$" + t.Text, nil
	case phNR:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		idx, ok := asm.LookupRegisterIndex(t.Text)
		if !ok {
			return "", fmt.Errorf("pseudoop: NR%d: token %q is not a register", p.operand, t.Text)
		}
		return "$" + strconv.Itoa(idx+1), nil
	case phOP:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		return tokenText(t), nil
	case phLastLabel:
		return raw[len(raw)-1].Text, nil
	case phLAB:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		return t.Text, nil
	case phLL:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		base := addend(tokenText(t), p.addend)
		return lowExpr(base, p.unsigned), nil
	case phLH:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		base := addend(tokenText(t), p.addend)
		return highExpr(base, true), nil
	case phVHL:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		base := addend(tokenText(t), p.addend)
		return highExpr(base, false), nil
	case phVH:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		base := addend(tokenText(t), p.addend)
		return highExpr(base, true), nil
	case phVL:
		t, err := operandAt(raw, p.operand)
		if err != nil {
			return "", err
		}
		base := addend(tokenText(t), p.addend)
		return lowExpr(base, p.unsigned), nil
	case phLLP:
		base := addend(combinedLabelImm(raw), p.addend)
		return lowExpr(base, p.unsigned), nil
	case phLHPA:
		base := addend(combinedLabelImm(raw), p.addend)
		return highExpr(base, true), nil
	}
	return "", fmt.Errorf("pseudoop: unhandled placeholder kind %d", p.kind)
}

func decimalOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// tokenText renders a raw source token the way it appeared (or must
// appear) in a re-lexable expression: registers regain their '$',
// strings are re-quoted, everything else is used verbatim.
func tokenText(t asm.Token) string {
	switch t.Kind {
	case asm.TokRegister:
		return "$" + t.Text
	case asm.TokString:
		return strconv.Quote(t.Str)
	default:
		return t.Text
	}
}

func operandAt(raw []asm.Token, n int) (asm.Token, error) {
	if n < 1 || n >= len(raw) {
		return asm.Token{}, fmt.Errorf("pseudoop: operand token %d out of range (have %d)", n, len(raw)-1)
	}
	return raw[n], nil
}

// firstNumericOperand is the first TokNumber among the operand tokens,
// falling back to the last operand token (spec.md §4.6.2's IMM row).
func firstNumericOperand(raw []asm.Token) asm.Token {
	for _, t := range raw[1:] {
		if t.Kind == asm.TokNumber {
			return t
		}
	}
	return raw[len(raw)-1]
}

// combinedLabelImm builds "label + immediate" text for the LLP/LHPA
// family: the label defaults to the last operand token, the immediate
// is the first numeric token after the mnemonic (spec.md §4.6.2).
func combinedLabelImm(raw []asm.Token) string {
	lbl := raw[len(raw)-1]
	imm := firstNumericOperand(raw)
	return "(" + lbl.Text + " + " + tokenText(imm) + ")"
}

func addend(base string, add int) string {
	if add == 0 {
		return base
	}
	return "(" + base + " + " + strconv.Itoa(add) + ")"
}

// lowExpr truncates base to its low 16 bits: sign-extended (matching
// a *signed* immediate field) unless unsigned is requested (matching
// a zero-extending field such as ori's).
func lowExpr(base string, unsigned bool) string {
	if unsigned {
		return "((" + base + ") & 0xFFFF)"
	}
	return "(((" + base + ") << 16) >> 16)"
}

// highExpr extracts bits 16..31 of base. carry adds the standard MIPS
// lui/addiu rounding constant (0x8000) to compensate for the sign
// extension the paired low-16 instruction would perform; templates
// paired with a zero-extending low part (this package always builds
// lui+ori, never lui+addiu) use the no-carry form instead.
func highExpr(base string, carry bool) string {
	if carry {
		return "(((" + base + " + 0x8000) >> 16) & 0xFFFF)"
	}
	return "((" + base + " >> 16) & 0xFFFF)"
}

// parseTemplateLine re-lexes and re-parses one substituted template
// line, inheriting the originating pseudo instruction's segment/file/
// line so diagnostics and the source map still point at the real
// source (spec.md §4.6.1 point 3).
func parseTemplateLine(text string, like asm.AstNode) ([]asm.AstNode, error) {
	lexed, err := asm.NewLexer().LexLine(like.File, like.Line, text)
	if err != nil {
		return nil, err
	}
	if len(lexed.Tokens) == 0 {
		return nil, fmt.Errorf("pseudoop: template for %q produced an empty line", like.Mnemonic)
	}
	nodes, err := asm.NewParser().Parse([]asm.LexedLine{lexed})
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Segment = like.Segment
	}
	return nodes, nil
}
