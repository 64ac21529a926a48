package asm

import "testing"

func instrNode(t *testing.T, text string) AstNode {
	t.Helper()
	lx := NewLexer()
	line, err := lx.LexLine(0, 1, text)
	if err != nil {
		t.Fatalf("lex %q: %v", text, err)
	}
	nodes, err := NewParser().Parse([]LexedLine{line})
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	if len(nodes) != 1 {
		t.Fatalf("parse %q: expected one node, got %d", text, len(nodes))
	}
	return nodes[0]
}

func TestExpandLiSmallFitsAsSingleAddi(t *testing.T) {
	n := instrNode(t, "li $t0, 5")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 1 || expanded[0].Mnemonic != "addi" {
		t.Fatalf("expected a single addi, got %+v", expanded)
	}
}

func TestExpandLiLargeExpandsToLuiOri(t *testing.T) {
	n := instrNode(t, "li $t0, 0x12345678")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 2 || expanded[0].Mnemonic != "lui" || expanded[1].Mnemonic != "ori" {
		t.Fatalf("expected lui+ori, got %+v", expanded)
	}
}

func TestExpandMove(t *testing.T) {
	n := instrNode(t, "move $t0, $t1")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 1 || expanded[0].Mnemonic != "addu" {
		t.Fatalf("expected a single addu, got %+v", expanded)
	}
	if expanded[0].Operands[2].RegIndex != 0 {
		t.Fatalf("move's third operand should be $zero, got %+v", expanded[0].Operands[2])
	}
}

func TestExpandMuli(t *testing.T) {
	n := instrNode(t, "muli $t0, $t1, 5")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 2 || expanded[0].Mnemonic != "addi" || expanded[1].Mnemonic != "mul" {
		t.Fatalf("expected addi (via li)+mul, got %+v", expanded)
	}
}

func TestExpandNop(t *testing.T) {
	n := instrNode(t, "nop")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 1 || expanded[0].Mnemonic != "sll" {
		t.Fatalf("expected a single sll, got %+v", expanded)
	}
}

func TestExpandNativeInstructionWithFittingOperandsPassesThrough(t *testing.T) {
	n := instrNode(t, "addi $t0, $t1, 100")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 1 || expanded[0].Mnemonic != "addi" {
		t.Fatalf("expected the instruction to pass through unchanged, got %+v", expanded)
	}
}

func TestExpandNativeLabelOperandBypassesFitCheck(t *testing.T) {
	n := instrNode(t, "addi $t0, $t1, somelabel")
	expanded, err := expandInstruction(n, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) != 1 {
		t.Fatalf("a label operand should never trigger pseudo-op delegation, got %+v", expanded)
	}
}

func TestExpandOversizedImmediateRequiresExpanderWhenPseudoEnabled(t *testing.T) {
	n := instrNode(t, "addi $t0, $t1, 100000")
	_, err := expandInstruction(n, nil, true, true)
	if err == nil {
		t.Fatal("expected an error: no PseudoExpander configured to handle the delegation")
	}
}

func TestExpandHardCodedPseudoWithPseudoDisabledIsError(t *testing.T) {
	n := instrNode(t, "li $t0, 5")
	_, err := expandInstruction(n, nil, true, false)
	if err == nil {
		t.Fatal("expected a pseudo-disabled error")
	}
}

func TestExpandOutOfRangeMemoryOffsetRequiresExpander(t *testing.T) {
	n := instrNode(t, "lw $t0, 100000($t1)")
	_, err := expandInstruction(n, nil, true, true)
	if err == nil {
		t.Fatal("expected an error: oversized memory offset needs pseudo-op delegation")
	}
}
