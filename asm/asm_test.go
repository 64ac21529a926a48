package asm

import "testing"

// Positive scenarios

func TestAssembleSimpleTextProgram(t *testing.T) {
	img := assembleOK(t, `
.globl main
main:
	addi $t0, $zero, 5
	addi $t1, $zero, 7
	add  $v0, $t0, $t1
	syscall
`)
	if len(img.Text) != 4 {
		t.Fatalf("expected 4 words, got %d", len(img.Text))
	}
	if img.Symbols["main"] != int32(textBase) {
		t.Fatalf("main: got %#x, want %#x", img.Symbols["main"], textBase)
	}
}

func TestAssembleDataAndTextSegments(t *testing.T) {
	img := assembleOK(t, `
.data
msg: .asciiz "hi"
count: .word 3

.text
.globl main
main:
	lui $a0, msg
	lw $t0, count($zero)
	syscall
`)
	if len(img.Data) == 0 {
		t.Fatal("expected non-empty data segment")
	}
	if _, ok := img.Symbols["msg"]; !ok {
		t.Fatal("expected 'msg' to be defined")
	}
	if _, ok := img.Symbols["count"]; !ok {
		t.Fatal("expected 'count' to be defined")
	}
}

func TestAssembleWithIncludeResolver(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeResolver = func(path string) (string, error) {
		if path == "macros.s" {
			return "addi $t0, $t0, 1", nil
		}
		return "", errAt(ErrInclude, span{}, "no such file")
	}
	img, err := Assemble(".include \"macros.s\"\n", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Text) != 1 {
		t.Fatalf("expected 1 word from the included line, got %d", len(img.Text))
	}
}

func TestAssembleWithMacroExpansion(t *testing.T) {
	img := assembleOK(t, `
.macro inc $r
	addi $r, $r, 1
.end_macro

main:
	inc $t0
	inc $t0
`)
	if len(img.Text) != 2 {
		t.Fatalf("expected 2 expanded words, got %d", len(img.Text))
	}
}

func TestAssembleModulesAndEquates(t *testing.T) {
	img := assembleOK(t, `
.eqv WORD_SIZE, 4
.module util
helper:
	addi $t0, $zero, WORD_SIZE
.endmodule
`)
	if img.Symbols["util::helper"] != int32(textBase) {
		t.Fatalf("expected module-qualified symbol, got: %+v", img.Symbols)
	}
}

func TestAssembleKTextAndKDataSegments(t *testing.T) {
	img := assembleOK(t, `
.kdata
handler_msg: .asciiz "trap"

.ktext
handler:
	syscall
`)
	if len(img.KText) != 1 {
		t.Fatalf("expected 1 ktext word, got %d", len(img.KText))
	}
	if len(img.KData) == 0 {
		t.Fatal("expected non-empty kdata segment")
	}
	base := ktextBase
	if img.Symbols["handler"] != int32(base) {
		t.Fatalf("handler: got %#x, want %#x", img.Symbols["handler"], ktextBase)
	}
}

// Negative scenarios

func TestAssembleLexicalErrorPropagates(t *testing.T) {
	_, err := Assemble("addi $t0, $t1, @\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected a lexical error")
	}
}

func TestAssembleParseErrorPropagates(t *testing.T) {
	_, err := Assemble(".bogus 1\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected a parse error for an unknown directive")
	}
}

func TestAssembleDataDirectiveInTextSegmentPropagates(t *testing.T) {
	_, err := Assemble(".text\n.word 1\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error for .word in .text")
	}
}

func TestAssembleUndefinedSymbolPropagates(t *testing.T) {
	_, err := Assemble("j nosuchlabel\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected an undefined-symbol error")
	}
}

func TestAssembleIncludeCycleErrorPropagates(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeResolver = func(path string) (string, error) {
		return ".include \"self.s\"", nil
	}
	_, err := Assemble(".include \"self.s\"\n", opts)
	if err == nil {
		t.Fatal("expected a recursive-include error")
	}
}

func TestAssembleDuplicateLabelErrorPropagates(t *testing.T) {
	_, err := Assemble("a: nop\na: nop\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected a duplicate-label error")
	}
}

// No-partial-image guarantee

func TestAssembleReturnsNoImageOnFailure(t *testing.T) {
	img, err := Assemble("j nosuchlabel\n", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error")
	}
	if img != nil {
		t.Fatal("expected a nil image on failure, per the no-partial-image guarantee")
	}
}

func TestAssembleErrorIncludesSourceFileName(t *testing.T) {
	opts := DefaultOptions()
	opts.SourceName = "prog.s"
	_, err := Assemble(".bogus 1\n", opts)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	ae, ok := err.(*asmError)
	if !ok {
		t.Fatalf("expected an *asmError, got %T", err)
	}
	if ae.pos.File != "prog.s" {
		t.Fatalf("expected the error to carry the source file name, got %q", ae.pos.File)
	}
}
