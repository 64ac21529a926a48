package pseudoop

import (
	"strings"
	"testing"

	"github.com/mipsasm/mipsasm/asm"
)

func instr(t *testing.T, line string) asm.AstNode {
	t.Helper()
	lexed, err := asm.NewLexer().LexLine(0, 1, line)
	if err != nil {
		t.Fatalf("lex %q: %v", line, err)
	}
	nodes, err := asm.NewParser().Parse([]asm.LexedLine{lexed})
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	if len(nodes) != 1 {
		t.Fatalf("parse %q: expected one node, got %d", line, len(nodes))
	}
	return nodes[0]
}

func TestDefaultCatalogCompiles(t *testing.T) {
	tbl := Default()
	if tbl.data.Load() == nil {
		t.Fatal("Default() produced a table with no data")
	}
}

func TestExpandBranchPseudo(t *testing.T) {
	tbl := Default()
	node := instr(t, "blt $t0, $t1, loop")

	expanded, matched, err := tbl.Expand(node, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Fatal("expected blt to match the catalog")
	}
	if len(expanded) != 2 {
		t.Fatalf("expected 2 native instructions, got %d: %+v", len(expanded), expanded)
	}
	if expanded[0].Mnemonic != "slt" || expanded[1].Mnemonic != "bne" {
		t.Fatalf("unexpected expansion: %s, %s", expanded[0].Mnemonic, expanded[1].Mnemonic)
	}
	if expanded[1].Operands[2].Kind != asm.OperandLabel || expanded[1].Operands[2].Label != "loop" {
		t.Fatalf("expected bne's target to remain the label 'loop': %+v", expanded[1].Operands[2])
	}
}

func TestExpandLoadAddress(t *testing.T) {
	tbl := Default()
	node := instr(t, "la $t0, buffer")

	expanded, matched, err := tbl.Expand(node, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched || len(expanded) != 2 {
		t.Fatalf("expected la to expand to lui+ori, got %+v", expanded)
	}
	if expanded[0].Mnemonic != "lui" || expanded[1].Mnemonic != "ori" {
		t.Fatalf("unexpected la expansion: %s, %s", expanded[0].Mnemonic, expanded[1].Mnemonic)
	}
}

func TestExpandOversizedImmediateDelegation(t *testing.T) {
	tbl := Default()
	node := instr(t, "addi $t0, $t1, 100000")

	expanded, matched, err := tbl.Expand(node, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched || len(expanded) != 3 {
		t.Fatalf("expected a 3-instruction expansion, got %+v", expanded)
	}
	if expanded[0].Mnemonic != "lui" || expanded[1].Mnemonic != "ori" || expanded[2].Mnemonic != "add" {
		t.Fatalf("unexpected oversized-immediate expansion: %v", []string{expanded[0].Mnemonic, expanded[1].Mnemonic, expanded[2].Mnemonic})
	}
}

func TestExpandSetConditionPseudo(t *testing.T) {
	tbl := Default()
	node := instr(t, "seq $t0, $t1, $t2")

	expanded, matched, err := tbl.Expand(node, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched || len(expanded) != 4 {
		t.Fatalf("expected seq to expand to 4 instructions, got %+v", expanded)
	}
}

func TestExpandUnknownMnemonic(t *testing.T) {
	tbl := Default()
	node := instr(t, "frobnicate $t0, $t1")

	_, matched, err := tbl.Expand(node, false)
	if err != nil {
		t.Fatal(err)
	}
	if matched {
		t.Fatal("expected no catalog entry to match an unknown mnemonic")
	}
}

func TestCompactGroupSelection(t *testing.T) {
	tbl := NewTable()
	err := tbl.Reload([]*PseudoOpDefinition{
		{
			Example: "pick $1, $2, 100000",
			Templates: []string{
				"lui $at, VHL3",
				"ori $at, $at, VL3U",
				"add RG1, RG2, $at",
				"COMPACT",
				"addi RG1, RG2, OP3",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	small := instr(t, "pick $t0, $t1, 5")
	expanded, matched, err := tbl.Expand(small, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched || len(expanded) != 1 || expanded[0].Mnemonic != "addi" {
		t.Fatalf("expected the compact group (single addi) for a small immediate, got %+v", expanded)
	}

	large := instr(t, "pick $t0, $t1, 100000")
	expanded, matched, err = tbl.Expand(large, false)
	if err != nil {
		t.Fatal(err)
	}
	if !matched || len(expanded) != 3 || expanded[2].Mnemonic != "add" {
		t.Fatalf("expected the default group for an out-of-range immediate, got %+v", expanded)
	}
}

func TestMatchExampleRejectsWrongShape(t *testing.T) {
	example := rawTokensOf(t, "blt $1, $2, LABEL")
	source := rawTokensOf(t, "blt $t0, 5, loop")
	if matchExample(example, source) {
		t.Fatal("expected a numeric third token to fail to match a register-example position")
	}
}

func TestLoadTextRejectsMalformedLine(t *testing.T) {
	_, err := LoadText(strings.NewReader("onlyonefield\n"))
	if err == nil {
		t.Fatal("expected an error for a line with fewer than two fields")
	}
}

// TestReloadRejectsUnknownTemplateSymbolAtLoadTime confirms a bad
// macro symbol in a definition's template is caught by Reload itself
// (which compiles every template once) rather than surfacing later,
// the first time Expand happens to render that definition.
func TestReloadRejectsUnknownTemplateSymbolAtLoadTime(t *testing.T) {
	tbl := NewTable()
	defs := []*PseudoOpDefinition{
		{
			Example:     "bogus $1, LABEL",
			Templates:   []string{"b FROBNICATE"},
			Description: "broken",
		},
	}
	if err := tbl.Reload(defs); err == nil {
		t.Fatal("expected Reload to reject an unrecognized template symbol")
	}
}
