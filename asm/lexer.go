package asm

import "strconv"

// Lexer turns source text into one LexedLine per physical line,
// stripping comments and whitespace. Grounded on the character-driven
// dispatch in the teacher's asm/asm.go (parseLine/parseUnlabeledLine),
// split out into its own stage since MIPS needs two-level comments,
// string escapes, and a richer numeric grammar than 6502's.
type Lexer struct{}

// NewLexer creates a Lexer.
func NewLexer() *Lexer {
	return &Lexer{}
}

// LexLine lexes a single physical source line. file identifies the
// originating source file (post include-expansion) for diagnostics.
func (lx *Lexer) LexLine(file, row int, text string) (LexedLine, error) {
	s := newSpan(file, row, text)
	s = stripComment(s)

	var toks []Token
	for {
		s = s.consumeWhitespace()
		if s.isEmpty() {
			break
		}
		tok, remain, err := lx.lexToken(s)
		if err != nil {
			return LexedLine{}, err
		}
		toks = append(toks, tok)
		s = remain
	}
	return LexedLine{Line: row, File: file, Tokens: toks}, nil
}

// stripComment removes a trailing "#…" or "//…" comment, taking care
// not to treat '#' or '/' inside a string literal as a comment start.
func stripComment(s span) span {
	for i := 0; i < len(s.str); i++ {
		c := s.str[i]
		if c == '"' {
			i++
			for i < len(s.str) && s.str[i] != '"' {
				if s.str[i] == '\\' && i+1 < len(s.str) {
					i++
				}
				i++
			}
			continue
		}
		if c == '#' {
			return s.trunc(i)
		}
		if c == '/' && i+1 < len(s.str) && s.str[i+1] == '/' {
			return s.trunc(i)
		}
	}
	return s
}

func (lx *Lexer) lexToken(s span) (Token, span, error) {
	c := s.str[0]
	switch {
	case c == ',':
		return simpleTok(TokComma, s)
	case c == ':':
		return simpleTok(TokColon, s)
	case c == '(':
		return simpleTok(TokLParen, s)
	case c == ')':
		return simpleTok(TokRParen, s)
	case c == '+':
		return simpleTok(TokPlus, s)
	case c == '*':
		return simpleTok(TokStar, s)
	case c == '%':
		if isIdentStart(peekAt(s, 1)) {
			return lx.lexIdentifier(s)
		}
		return simpleTok(TokPercent, s)
	case c == '&':
		return simpleTok(TokAmp, s)
	case c == '|':
		return simpleTok(TokPipe, s)
	case c == '^':
		return simpleTok(TokCaret, s)
	case c == '~':
		return simpleTok(TokTilde, s)
	case c == '<':
		if s.startsWithString("<<") {
			return twoCharTok(TokLShift, s)
		}
		return Token{}, span{}, errAt(ErrLexical, s, "unexpected character '%c'", c)
	case c == '>':
		if s.startsWithString(">>") {
			return twoCharTok(TokRShift, s)
		}
		return Token{}, span{}, errAt(ErrLexical, s, "unexpected character '%c'", c)
	case c == '-':
		// '-' only begins a numeric literal when immediately followed by a
		// digit; otherwise it's a binary/unary minus token handled by the
		// expression parser.
		if len(s.str) > 1 && isDecimal(s.str[1]) {
			return lx.lexNumber(s)
		}
		return simpleTok(TokMinus, s)
	case c == '/':
		return simpleTok(TokSlash, s)
	case c == '"':
		return lx.lexString(s)
	case c == '$':
		if len(s.str) > 1 && (isDecimal(s.str[1]) || isAlpha(s.str[1])) {
			return lx.lexRegister(s)
		}
		return Token{}, span{}, errAt(ErrLexical, s, "unexpected character '$'")
	case c == '.':
		return lx.lexDirective(s)
	case isDecimal(c):
		return lx.lexNumber(s)
	case isIdentStart(c):
		return lx.lexIdentifier(s)
	default:
		return Token{}, span{}, errAt(ErrLexical, s, "unexpected character '%c'", c)
	}
}

func peekAt(s span, i int) byte {
	if i < len(s.str) {
		return s.str[i]
	}
	return 0
}

func simpleTok(kind TokenKind, s span) (Token, span, error) {
	consumed, remain := s.trunc(1), s.consume(1)
	return Token{Kind: kind, Text: consumed.str, Line: consumed.row, Col: consumed.column, pos: consumed}, remain, nil
}

func twoCharTok(kind TokenKind, s span) (Token, span, error) {
	consumed, remain := s.trunc(2), s.consume(2)
	return Token{Kind: kind, Text: consumed.str, Line: consumed.row, Col: consumed.column, pos: consumed}, remain, nil
}

func (lx *Lexer) lexRegister(s span) (Token, span, error) {
	start := s
	consumed, remain := s.consume(1).consumeWhile(isRegisterChar)
	if consumed.isEmpty() {
		return Token{}, span{}, errAt(ErrLexical, s, "invalid register name")
	}
	return Token{Kind: TokRegister, Text: consumed.str, Line: start.row, Col: start.column, pos: start}, remain, nil
}

func (lx *Lexer) lexDirective(s span) (Token, span, error) {
	start := s
	consumed, remain := s.consume(1).consumeWhile(isIdentChar)
	if consumed.isEmpty() {
		return Token{}, span{}, errAt(ErrLexical, s, "invalid directive")
	}
	return Token{Kind: TokDirective, Text: "." + consumed.str, Line: start.row, Col: start.column, pos: start}, remain, nil
}

func (lx *Lexer) lexIdentifier(s span) (Token, span, error) {
	start := s
	consumed, remain := s.consumeWhile(isIdentChar)
	return Token{Kind: TokIdentifier, Text: consumed.str, Line: start.row, Col: start.column, pos: start}, remain, nil
}

func (lx *Lexer) lexString(s span) (Token, span, error) {
	start := s
	rest := s.consume(1)
	var out []byte
	for {
		if rest.isEmpty() {
			return Token{}, span{}, errAt(ErrLexical, start, "unterminated string")
		}
		c := rest.str[0]
		if c == '"' {
			rest = rest.consume(1)
			break
		}
		if c == '\\' && len(rest.str) > 1 {
			switch rest.str[1] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case '\\':
				out = append(out, '\\')
			case '"':
				out = append(out, '"')
			case '0':
				out = append(out, 0)
			default:
				out = append(out, rest.str[1])
			}
			rest = rest.consume(2)
			continue
		}
		out = append(out, c)
		rest = rest.consume(1)
	}
	return Token{Kind: TokString, Str: string(out), Text: start.str[:len(start.str)-len(rest.str)], Line: start.row, Col: start.column, pos: start}, rest, nil
}

// lexNumber parses decimal, 0x-hex, and floating literals (with
// optional fractional and exponent parts, for .float/.double).
func (lx *Lexer) lexNumber(s span) (Token, span, error) {
	start := s
	rest := s
	neg := false
	if rest.startsWithChar('-') {
		neg = true
		rest = rest.consume(1)
	}

	if rest.startsWithString("0x") || rest.startsWithString("0X") {
		rest = rest.consume(2)
		digits, remain := rest.consumeWhile(isHex)
		if digits.isEmpty() {
			return Token{}, span{}, errAt(ErrLexical, start, "invalid numeric literal")
		}
		v, err := strconv.ParseUint(digits.str, 16, 64)
		if err != nil {
			return Token{}, span{}, errAt(ErrLexical, start, "invalid numeric literal '%s'", digits.str)
		}
		iv := int64(v)
		if neg {
			iv = -iv
		}
		text := start.str[:len(start.str)-len(remain.str)]
		return Token{Kind: TokNumber, IntVal: iv, Text: text, Line: start.row, Col: start.column, pos: start}, remain, nil
	}

	intPart, remain := rest.consumeWhile(isDecimal)
	if intPart.isEmpty() {
		return Token{}, span{}, errAt(ErrLexical, start, "invalid numeric literal")
	}

	isFloat := false
	fracStr := ""
	if remain.startsWithChar('.') && len(remain.str) > 1 && isDecimal(remain.str[1]) {
		isFloat = true
		frac, r2 := remain.consume(1).consumeWhile(isDecimal)
		fracStr = frac.str
		remain = r2
	}
	expStr := ""
	if remain.startsWithChar('e') || remain.startsWithChar('E') {
		isFloat = true
		e := remain.consume(1)
		sign := ""
		if e.startsWithChar('+') || e.startsWithChar('-') {
			sign = e.str[:1]
			e = e.consume(1)
		}
		edigits, r2 := e.consumeWhile(isDecimal)
		expStr = sign + edigits.str
		remain = r2
	}

	text := start.str[:len(start.str)-len(remain.str)]
	if isFloat {
		full := intPart.str + "." + fracStr
		if expStr != "" {
			full += "e" + expStr
		}
		f, err := strconv.ParseFloat(full, 64)
		if err != nil {
			return Token{}, span{}, errAt(ErrLexical, start, "invalid numeric literal '%s'", text)
		}
		if neg {
			f = -f
		}
		return Token{Kind: TokNumber, FltVal: f, IsFlt: true, Text: text, Line: start.row, Col: start.column, pos: start}, remain, nil
	}

	v, err := strconv.ParseInt(intPart.str, 10, 64)
	if err != nil {
		return Token{}, span{}, errAt(ErrLexical, start, "invalid numeric literal '%s'", text)
	}
	if neg {
		v = -v
	}
	return Token{Kind: TokNumber, IntVal: v, Text: text, Line: start.row, Col: start.column, pos: start}, remain, nil
}
