package asm

import "fmt"

// Error kind sentinels. Every error returned from the pipeline wraps
// exactly one of these via errors.Is/errors.As, mirroring the error
// taxonomy in spec.md §7.
var (
	ErrLexical        = fmt.Errorf("lexical error")
	ErrParse          = fmt.Errorf("parse error")
	ErrInclude        = fmt.Errorf("include error")
	ErrMacro          = fmt.Errorf("macro error")
	ErrSymbol         = fmt.Errorf("symbol error")
	ErrEncoding       = fmt.Errorf("encoding error")
	ErrPseudoDisabled = fmt.Errorf("pseudo instructions disabled")
	ErrExpression     = fmt.Errorf("expression error")
)

// Pos identifies a location in the original (pre-expansion) source,
// resolved through the include expander's origin map.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// asmError is the concrete error type returned by every pipeline stage.
// It carries a position, a human-readable detail message, and the
// sentinel kind it wraps, so callers can do errors.Is(err, asm.ErrParse).
//
// fileIdx indexes into the assemble-wide file table; Pos.File starts
// empty and is filled in by Assemble once the file table (built from
// IncludeExpander's origin map) is available, so every stage can
// construct errors without threading that table through every call.
type asmError struct {
	kind    error
	pos     Pos
	detail  string
	fileIdx int
}

func (e *asmError) Error() string {
	if e.pos.Line == 0 {
		return fmt.Sprintf("%s: %s", e.kind, e.detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.pos, e.kind, e.detail)
}

func (e *asmError) Unwrap() error { return e.kind }

func newError(kind error, pos Pos, format string, args ...interface{}) *asmError {
	return &asmError{kind: kind, pos: pos, detail: fmt.Sprintf(format, args...)}
}

func errAt(kind error, p span, format string, args ...interface{}) *asmError {
	e := newError(kind, Pos{Line: p.row, Column: p.column}, format, args...)
	e.fileIdx = p.file
	return e
}

// resolveFileName fills in e.pos.File from a file table built by the
// IncludeExpander, if one is available and e.fileIdx is in range.
func (e *asmError) resolveFileName(names []string) {
	if e.fileIdx >= 0 && e.fileIdx < len(names) {
		e.pos.File = names[e.fileIdx]
	}
}
