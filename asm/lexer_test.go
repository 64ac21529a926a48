package asm

import "testing"

func lexAll(t *testing.T, text string) []Token {
	t.Helper()
	lx := NewLexer()
	line, err := lx.LexLine(0, 1, text)
	if err != nil {
		t.Fatalf("LexLine(%q): %v", text, err)
	}
	return line.Tokens
}

func TestLexInstructionLine(t *testing.T) {
	toks := lexAll(t, "addi $t0, $t1, -100 # comment")
	kinds := []TokenKind{TokIdentifier, TokRegister, TokComma, TokRegister, TokComma, TokNumber}
	if len(toks) != len(kinds) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(kinds), toks)
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Fatalf("token %d: got kind %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[3].Text != "t1" {
		t.Fatalf("register text: got %q", toks[3].Text)
	}
	if toks[5].IntVal != -100 {
		t.Fatalf("negative literal: got %d", toks[5].IntVal)
	}
}

func TestLexStripsLineCommentVariants(t *testing.T) {
	a := lexAll(t, "add $t0, $t1, $t2 // trailing")
	b := lexAll(t, "add $t0, $t1, $t2")
	if len(a) != len(b) {
		t.Fatalf("// comment not stripped: %+v vs %+v", a, b)
	}
}

func TestLexHashInsideStringIsNotAComment(t *testing.T) {
	toks := lexAll(t, `.ascii "a#b"`)
	if len(toks) != 2 || toks[1].Kind != TokString || toks[1].Str != "a#b" {
		t.Fatalf("string with '#' mis-lexed: %+v", toks)
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexAll(t, `.ascii "a\nb\t\"c\\d"`)
	if len(toks) != 2 || toks[1].Kind != TokString {
		t.Fatalf("expected one string token: %+v", toks)
	}
	want := "a\nb\t\"c\\d"
	if toks[1].Str != want {
		t.Fatalf("escape decoding: got %q, want %q", toks[1].Str, want)
	}
}

func TestLexHexAndShiftOperators(t *testing.T) {
	toks := lexAll(t, "0x10 << 2 >> 1")
	if len(toks) != 5 {
		t.Fatalf("got %d tokens: %+v", len(toks), toks)
	}
	if toks[0].IntVal != 16 {
		t.Fatalf("hex literal: got %d", toks[0].IntVal)
	}
	if toks[1].Kind != TokLShift || toks[3].Kind != TokRShift {
		t.Fatalf("shift operator kinds: %+v", toks)
	}
}

func TestLexFloatLiteral(t *testing.T) {
	toks := lexAll(t, ".float 3.25e1")
	if len(toks) != 2 || !toks[1].IsFlt || toks[1].FltVal != 32.5 {
		t.Fatalf("float literal: %+v", toks)
	}
}

func TestLexDirectiveToken(t *testing.T) {
	toks := lexAll(t, ".globl foo")
	if len(toks) != 2 || toks[0].Kind != TokDirective || toks[0].Text != ".globl" {
		t.Fatalf("directive token: %+v", toks)
	}
}

func TestLexUnknownCharacterIsLexicalError(t *testing.T) {
	_, err := NewLexer().LexLine(0, 1, "addi $t0, $t1, @")
	if err == nil {
		t.Fatal("expected a lexical error for '@'")
	}
}

func TestLexEmptyLine(t *testing.T) {
	line, err := NewLexer().LexLine(0, 1, "    # just a comment")
	if err != nil {
		t.Fatal(err)
	}
	if len(line.Tokens) != 0 {
		t.Fatalf("expected no tokens, got %+v", line.Tokens)
	}
}
