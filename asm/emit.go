package asm

import (
	"math"
	"strings"
)

// Native opcode / funct constants (spec.md §4.6.4).
const (
	fAdd, fAddu, fSub, fSubu  = 0x20, 0x21, 0x22, 0x23
	fAnd, fOr, fSlt, fSll, fJr = 0x24, 0x25, 0x2a, 0x00, 0x08

	opSpecial, opSpecial2 = 0x00, 0x1c
	fMul                  = 0x02

	opAddi, opAddiu, opAndi, opOri, opXori, opLui = 0x08, 0x09, 0x0c, 0x0d, 0x0e, 0x0f
	opSlti, opSltiu                               = 0x0a, 0x0b
	opBeq, opBne                                  = 0x04, 0x05
	opLb, opLh, opLbu, opLhu, opLw                = 0x20, 0x21, 0x24, 0x25, 0x23
	opSb, opSh, opSw                              = 0x28, 0x29, 0x2b
	opJ, opJal                                    = 0x02, 0x03

	wordSyscall = 0x0000000c
)

func rWord(rs, rt, rd, shamt, funct int) uint32 {
	return uint32(rs&0x1f)<<21 | uint32(rt&0x1f)<<16 | uint32(rd&0x1f)<<11 | uint32(shamt&0x1f)<<6 | uint32(funct&0x3f)
}

func iWord(op, rs, rt int, imm uint32) uint32 {
	return uint32(op&0x3f)<<26 | uint32(rs&0x1f)<<21 | uint32(rt&0x1f)<<16 | (imm & 0xFFFF)
}

func jWord(op int, target uint32) uint32 {
	return uint32(op&0x3f)<<26 | (target & 0x03FFFFFF)
}

// Emitter is Pass 2: re-walks the AST, expanding pseudo-instructions,
// encoding native instructions, and recording relocations and source
// map entries (spec.md §4.6). It shares segmentCursor and the
// alignment helpers with SymbolTableBuilder so the two passes can
// never compute different offsets for the same input.
type Emitter struct {
	table       *SymbolTable
	cursor      segmentCursor
	moduleStack []string
	expander    PseudoExpander
	delayed     bool
	pseudoOn    bool
	fileNames   []string

	textWords, ktextWords   []uint32
	dataBytes, kdataBytes   []byte
	dataWords, kdataWords   []uint32
	relocations             []RelocationRecord
	sourceMap               []SourceMapEntry
}

// NewEmitter creates a Pass 2 emitter over an already-built SymbolTable.
func NewEmitter(table *SymbolTable, expander PseudoExpander, delayedBranching, pseudoEnabled bool, fileNames []string) *Emitter {
	return &Emitter{table: table, expander: expander, delayed: delayedBranching, pseudoOn: pseudoEnabled, fileNames: fileNames}
}

func (e *Emitter) modulePrefix() string { return strings.Join(e.moduleStack, "::") }

func (e *Emitter) fileName(idx int) string {
	if idx >= 0 && idx < len(e.fileNames) {
		return e.fileNames[idx]
	}
	return ""
}

// Emit walks nodes and produces the final BinaryImage.
func (e *Emitter) Emit(nodes []AstNode) (*BinaryImage, error) {
	for i, n := range nodes {
		if err := e.visit(nodes, i, n); err != nil {
			return nil, err
		}
	}

	return &BinaryImage{
		TextBase: textBase, Text: e.textWords,
		KTextBase: ktextBase, KText: e.ktextWords,
		DataBase: dataBase, Data: e.dataBytes, DataWords: e.dataWords,
		KDataBase: kdataBase, KData: e.kdataBytes, KDataWords: e.kdataWords,
		Symbols:          e.table.Symbols(),
		GlobalSymbols:    e.table.GlobalSymbols(),
		ExternSymbols:    e.table.ExternSymbols(),
		UndefinedSymbols: e.table.UndefinedSymbols(),
		SymbolEntries:    e.symbolEntries(),
		Relocations:      e.relocations,
		SourceMap:        e.sourceMap,
	}, nil
}

func (e *Emitter) symbolEntries() []SymbolEntry {
	entries := make([]SymbolEntry, 0, len(e.table.addr))
	for name, addr := range e.table.addr {
		entries = append(entries, SymbolEntry{Name: name, Address: addr, Segment: segmentForAddress(addr)})
	}
	return entries
}

func segmentForAddress(addr int32) Segment {
	a := int64(uint32(addr))
	switch {
	case a >= ktextBase && a < kdataBase:
		return SegKText
	case a >= kdataBase:
		return SegKData
	case a >= dataBase:
		return SegData
	default:
		return SegText
	}
}

func (e *Emitter) visit(nodes []AstNode, i int, n AstNode) error {
	switch n.Kind {
	case NodeLabel:
		if n.Segment.isData() {
			if align, found := lookaheadAlignment(nodes, i); found {
				e.padData(n.Segment, alignPadding(e.cursor.offset(n.Segment), align))
			}
		}
		return nil

	case NodeDirective:
		return e.visitDirective(nodes, i, n)

	case NodeInstruction:
		return e.visitInstruction(n)
	}
	return nil
}

func (e *Emitter) padData(seg Segment, n int) {
	if n <= 0 {
		return
	}
	zeros := make([]byte, n)
	e.appendBytes(seg, zeros)
}

func (e *Emitter) appendBytes(seg Segment, b []byte) {
	if seg == SegKData {
		e.kdataBytes = append(e.kdataBytes, b...)
	} else {
		e.dataBytes = append(e.dataBytes, b...)
	}
	e.cursor.advance(seg, len(b))
}

func appendBigEndian(v int64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[size-1-i] = byte(v >> (8 * uint(i)))
	}
	return out
}

func (e *Emitter) visitDirective(nodes []AstNode, i int, n AstNode) error {
	switch n.DirectiveName {
	case ".text", ".ktext", ".data", ".kdata":
		return nil

	case ".globl", ".extern", ".eqv", ".set":
		return nil

	case ".module":
		e.moduleStack = append(e.moduleStack, n.DirectiveArgs[0].Label)
		return nil

	case ".endmodule":
		if len(e.moduleStack) > 0 {
			e.moduleStack = e.moduleStack[:len(e.moduleStack)-1]
		}
		return nil

	case ".org":
		seg := n.Segment
		target, err := Eval(n.DirectiveArgs[0].Expr, e.modulePrefix(), e.table)
		if err != nil {
			return err
		}
		newOff := int(target - segmentBase(seg))
		if seg.isData() {
			e.padData(seg, newOff-e.cursor.offset(seg))
		} else {
			e.cursor.setOffset(seg, newOff)
		}
		return nil

	case ".space":
		seg := n.Segment
		if align, found := lookaheadAlignment(nodes, i); found {
			e.padData(seg, alignPadding(e.cursor.offset(seg), align))
		}
		n64, err := Eval(n.DirectiveArgs[0].Expr, e.modulePrefix(), e.table)
		if err != nil {
			return err
		}
		e.padData(seg, int(n64))
		return nil

	case ".align":
		seg := n.Segment
		k, err := Eval(n.DirectiveArgs[0].Expr, e.modulePrefix(), e.table)
		if err != nil {
			return err
		}
		align := 1 << uint(k)
		e.padData(seg, alignPadding(e.cursor.offset(seg), align))
		return nil

	case ".ascii", ".asciiz":
		seg := n.Segment
		if !seg.isData() {
			return errAt(ErrSymbol, posOf(n), "%s not in a data segment", n.DirectiveName)
		}
		if align, found := lookaheadAlignment(nodes, i); found {
			e.padData(seg, alignPadding(e.cursor.offset(seg), align))
		}
		bs := append([]byte{}, n.DirectiveArgs[0].Bytes...)
		if n.DirectiveName == ".asciiz" {
			bs = append(bs, 0)
		}
		e.appendBytes(seg, bs)
		return nil

	case ".byte", ".half", ".word", ".float", ".double":
		return e.emitDataWords(nodes, i, n)

	default:
		return errAt(ErrSymbol, posOf(n), "unknown directive %s", n.DirectiveName)
	}
}

func (e *Emitter) emitDataWords(nodes []AstNode, i int, n AstNode) error {
	seg := n.Segment
	if !seg.isData() {
		return errAt(ErrSymbol, posOf(n), "%s not in a data segment", n.DirectiveName)
	}
	if align, found := lookaheadAlignment(nodes, i); found {
		e.padData(seg, alignPadding(e.cursor.offset(seg), align))
	}
	size, _ := dataElemSize(n.DirectiveName)

	for _, arg := range n.DirectiveArgs {
		off := e.cursor.offset(seg)

		if n.DirectiveName == ".word" {
			val, sym, isRef, err := evalOperand(arg, e.modulePrefix(), e.table)
			if err != nil {
				return err
			}
			if isRef {
				e.relocations = append(e.relocations, RelocationRecord{Segment: seg, ByteOffset: off, Symbol: sym, Type: RelocMIPS32})
			}
			e.appendBytes(seg, appendBigEndian(val, 4))
			word := uint32(val)
			if seg == SegKData {
				e.kdataWords = append(e.kdataWords, word)
			} else {
				e.dataWords = append(e.dataWords, word)
			}
			continue
		}

		if n.DirectiveName == ".float" || n.DirectiveName == ".double" {
			e.appendBytes(seg, floatBytesOf(arg, size))
			continue
		}

		val, _, _, err := evalOperand(arg, e.modulePrefix(), e.table)
		if err != nil {
			return err
		}
		e.appendBytes(seg, appendBigEndian(val, size))
	}
	return nil
}

// floatBytesOf serializes a .float/.double operand to its IEEE-754
// big-endian byte representation. A non-float literal (plain integer
// given where a float is expected) is widened the same way a Go
// untyped constant would be.
func floatBytesOf(op Operand, size int) []byte {
	var f float64
	if op.Kind == OperandExpr && op.Expr != nil && op.Expr.Op == ExprNumber {
		if op.Expr.IsFlt {
			f = op.Expr.FltVal
		} else {
			f = float64(op.Expr.Number)
		}
	}
	if size == 4 {
		return appendBigEndian(int64(math.Float32bits(float32(f))), 4)
	}
	return appendBigEndian(int64(math.Float64bits(f)), 8)
}

func (e *Emitter) visitInstruction(n AstNode) error {
	seg := n.Segment
	expanded, err := expandInstruction(n, e.expander, e.delayed, e.pseudoOn)
	if err != nil {
		return err
	}
	for _, inst := range expanded {
		pc := segmentBase(seg) + int64(e.cursor.offset(seg))
		word, relocs, err := e.encodeInstruction(inst, pc, e.cursor.offset(seg), seg)
		if err != nil {
			return err
		}
		e.relocations = append(e.relocations, relocs...)

		var idx int
		if seg == SegKText {
			e.ktextWords = append(e.ktextWords, word)
			idx = len(e.ktextWords) - 1
		} else {
			e.textWords = append(e.textWords, word)
			idx = len(e.textWords) - 1
		}
		e.sourceMap = append(e.sourceMap, SourceMapEntry{
			Address: pc, File: e.fileName(inst.File), Line: inst.Line, Segment: seg, SegmentIndex: idx,
		})
		e.cursor.advance(seg, 4)
	}
	return nil
}

func evalOperand(op Operand, modulePrefix string, table *SymbolTable) (value int64, symbol string, isSymbolRef bool, err error) {
	switch op.Kind {
	case OperandImmediate:
		return op.ImmValue, "", false, nil
	case OperandLabel:
		v, ok := table.lookup(modulePrefix, op.Label)
		if !ok {
			return 0, "", false, errAt(ErrSymbol, op.pos, "undefined symbol '%s'", op.Label)
		}
		return v, op.Label, true, nil
	case OperandExpr:
		v, err := Eval(op.Expr, modulePrefix, table)
		if err != nil {
			return 0, "", false, err
		}
		if sym, ok := exprSoleSymbol(op.Expr); ok {
			return v, sym, true, nil
		}
		return v, "", false, nil
	default:
		return 0, "", false, errAt(ErrEncoding, op.pos, "operand kind mismatch")
	}
}

// exprSoleSymbol reports whether e contains exactly one ExprSymbol
// leaf, returning its name. Used to recognize pseudo-expanded
// hi16/lo16 expressions (and plain "label + k" expressions) as label
// references for relocation purposes.
func exprSoleSymbol(e *ExprNode) (string, bool) {
	name, count := "", 0
	var walk func(n *ExprNode)
	walk = func(n *ExprNode) {
		if n == nil {
			return
		}
		if n.Op == ExprSymbol {
			name = n.Symbol
			count++
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(e)
	if count == 1 {
		return name, true
	}
	return "", false
}

func (e *Emitter) encodeInstruction(n AstNode, pc int64, byteOffset int, seg Segment) (uint32, []RelocationRecord, error) {
	mp := e.modulePrefix()
	ops := n.Operands

	switch n.Mnemonic {
	case "add", "addu", "sub", "subu", "and", "or", "slt":
		rd, rs, rt := ops[0].RegIndex, ops[1].RegIndex, ops[2].RegIndex
		funct := map[string]int{"add": fAdd, "addu": fAddu, "sub": fSub, "subu": fSubu, "and": fAnd, "or": fOr, "slt": fSlt}[n.Mnemonic]
		return rWord(rs, rt, rd, 0, funct), nil, nil

	case "sll":
		rd, rt := ops[0].RegIndex, ops[1].RegIndex
		shamt, _, _, err := evalOperand(ops[2], mp, e.table)
		if err != nil {
			return 0, nil, err
		}
		if shamt < 0 || shamt > 31 {
			return 0, nil, errAt(ErrEncoding, posOf(n), "shift amount out of range")
		}
		return rWord(0, rt, rd, int(shamt), fSll), nil, nil

	case "mul":
		rd, rs, rt := ops[0].RegIndex, ops[1].RegIndex, ops[2].RegIndex
		return uint32(opSpecial2)<<26 | rWord(rs, rt, rd, 0, fMul), nil, nil

	case "jr":
		return rWord(ops[0].RegIndex, 0, 0, 0, fJr), nil, nil

	case "syscall":
		return wordSyscall, nil, nil

	case "addi", "addiu", "slti", "andi", "ori", "xori":
		rt, rs := ops[0].RegIndex, ops[1].RegIndex
		val, sym, isRef, err := evalOperand(ops[2], mp, e.table)
		if err != nil {
			return 0, nil, err
		}
		opcode := map[string]int{"addi": opAddi, "addiu": opAddiu, "slti": opSlti, "andi": opAndi, "ori": opOri, "xori": opXori}[n.Mnemonic]
		if !isRef {
			signed := n.Mnemonic == "addi" || n.Mnemonic == "addiu" || n.Mnemonic == "slti"
			if signed && !fitsSigned16(val) {
				return 0, nil, errAt(ErrEncoding, posOf(n), "immediate out of range for %s", n.Mnemonic)
			}
			if !signed && !fitsUnsigned16(val) {
				return 0, nil, errAt(ErrEncoding, posOf(n), "immediate out of range for %s", n.Mnemonic)
			}
		}
		word := iWord(opcode, rs, rt, uint32(val))
		if isRef {
			return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: sym, Type: RelocMIPSLO16}}, nil
		}
		return word, nil, nil

	case "lui":
		rt := ops[0].RegIndex
		if ops[1].Kind == OperandLabel {
			addr, ok := e.table.lookup(mp, ops[1].Label)
			if !ok {
				return 0, nil, errAt(ErrSymbol, posOf(n), "undefined symbol '%s'", ops[1].Label)
			}
			hi := uint32(addr>>16) & 0xFFFF
			return iWord(opLui, 0, rt, hi), []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: ops[1].Label, Type: RelocMIPSHI16}}, nil
		}
		val, sym, isRef, err := evalOperand(ops[1], mp, e.table)
		if err != nil {
			return 0, nil, err
		}
		word := iWord(opLui, 0, rt, uint32(val)&0xFFFF)
		if isRef {
			return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: sym, Type: RelocMIPSHI16}}, nil
		}
		return word, nil, nil

	case "lb", "lbu", "lh", "lhu", "lw", "sb", "sh", "sw":
		rt := ops[0].RegIndex
		mem := ops[1]
		opcode := map[string]int{"lb": opLb, "lbu": opLbu, "lh": opLh, "lhu": opLhu, "lw": opLw, "sb": opSb, "sh": opSh, "sw": opSw}[n.Mnemonic]
		switch mem.OffsetKind {
		case OffsetImmediate:
			if !fitsSigned16(mem.OffsetImm) {
				return 0, nil, errAt(ErrEncoding, posOf(n), "memory offset out of range")
			}
			return iWord(opcode, mem.BaseRegister, rt, uint32(mem.OffsetImm)), nil, nil
		case OffsetLabel:
			addr, ok := e.table.lookup(mp, mem.OffsetLabel)
			if !ok {
				return 0, nil, errAt(ErrSymbol, posOf(n), "undefined symbol '%s'", mem.OffsetLabel)
			}
			word := iWord(opcode, mem.BaseRegister, rt, uint32(addr)&0xFFFF)
			return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: mem.OffsetLabel, Type: RelocMIPSLO16}}, nil
		default:
			val, err := Eval(mem.OffsetExpr, mp, e.table)
			if err != nil {
				return 0, nil, err
			}
			word := iWord(opcode, mem.BaseRegister, rt, uint32(val)&0xFFFF)
			if sym, ok := exprSoleSymbol(mem.OffsetExpr); ok {
				return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: sym, Type: RelocMIPSLO16}}, nil
			}
			return word, nil, nil
		}

	case "beq", "bne":
		rs, rt := ops[0].RegIndex, ops[1].RegIndex
		target := ops[2]
		opcode := opBeq
		if n.Mnemonic == "bne" {
			opcode = opBne
		}
		if target.Kind == OperandLabel {
			addr, ok := e.table.lookup(mp, target.Label)
			if !ok {
				return 0, nil, errAt(ErrSymbol, posOf(n), "undefined symbol '%s'", target.Label)
			}
			offset := (addr - (pc + 4)) / 4
			return iWord(opcode, rs, rt, uint32(offset)&0xFFFF), []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: target.Label, Type: RelocMIPSPC16}}, nil
		}
		val, sym, isRef, err := evalOperand(target, mp, e.table)
		if err != nil {
			return 0, nil, err
		}
		if isRef {
			offset := (val - (pc + 4)) / 4
			return iWord(opcode, rs, rt, uint32(offset)&0xFFFF), []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: sym, Type: RelocMIPSPC16}}, nil
		}
		if !fitsSigned16(val) {
			return 0, nil, errAt(ErrEncoding, posOf(n), "branch offset out of range")
		}
		return iWord(opcode, rs, rt, uint32(val)&0xFFFF), nil, nil

	case "j", "jal":
		opcode := opJ
		if n.Mnemonic == "jal" {
			opcode = opJal
		}
		target := ops[0]
		if target.Kind == OperandLabel {
			addr, ok := e.table.lookup(mp, target.Label)
			if !ok {
				return 0, nil, errAt(ErrSymbol, posOf(n), "undefined symbol '%s'", target.Label)
			}
			word := jWord(opcode, uint32(addr)>>2)
			return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: target.Label, Type: RelocMIPS26}}, nil
		}
		val, sym, isRef, err := evalOperand(target, mp, e.table)
		if err != nil {
			return 0, nil, err
		}
		word := jWord(opcode, uint32(val)>>2)
		if isRef {
			return word, []RelocationRecord{{Segment: seg, ByteOffset: byteOffset, Symbol: sym, Type: RelocMIPS26}}, nil
		}
		return word, nil, nil

	default:
		return 0, nil, errAt(ErrEncoding, posOf(n), "unknown instruction '%s'", n.Mnemonic)
	}
}
