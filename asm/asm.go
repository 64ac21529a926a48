package asm

import log "github.com/sirupsen/logrus"

// Options configures a call to Assemble (spec.md §6).
type Options struct {
	// BaseDir anchors relative ".include" paths. Defaults to "." when empty.
	BaseDir string
	// SourceName is the logical name of the top-level source, used in
	// diagnostics and the emitted source map. Defaults to "<input>".
	SourceName string
	// IncludeResolver fetches an included file's contents by resolved
	// path. A nil resolver makes any ".include" directive an error.
	IncludeResolver IncludeResolver
	// EnablePseudoInstructions toggles pseudo-op expansion. Defaults to
	// true when the Options value is the zero value only if callers use
	// DefaultOptions; a literal Options{} disables pseudo support,
	// matching Go's zero-value conventions.
	EnablePseudoInstructions bool
	// DelayedBranchingEnabled controls whether branch/jump pseudo
	// expansions insert a nop delay slot.
	DelayedBranchingEnabled bool
	// PseudoExpander resolves table-driven pseudo-instructions not
	// hard-coded into the core (li/move/muli/nop). May be nil.
	//
	// This is an interface rather than a concrete *pseudoop.Table
	// (which is what SPEC_FULL.md's signature sketch names) so that
	// package asm never imports package pseudoop: pseudoop.Table
	// implements PseudoExpander by importing asm for Token/AstNode,
	// and the dependency only ever runs one way. Callers construct a
	// pseudoop.Table and assign it here.
	PseudoExpander PseudoExpander
	// Logger receives Debug-level structured events for each pipeline
	// stage (stage, segment, addr fields). A nil Logger assembles
	// silently, matching spec.md §7's "errors propagate unchanged,
	// never logged and swallowed" rule: Logger is diagnostic only.
	Logger *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

// DefaultOptions returns the Options spec.md §6 documents as defaults:
// pseudo-instructions and delayed-branch nop insertion both enabled.
func DefaultOptions() Options {
	return Options{
		BaseDir:                  ".",
		SourceName:               "<input>",
		EnablePseudoInstructions: true,
		DelayedBranchingEnabled:  true,
	}
}

// Assemble runs the full two-pass pipeline described in spec.md §4:
// include expansion, lexing, macro expansion, parsing, Pass 1 symbol
// table construction, and Pass 2 encoding, producing a BinaryImage or
// a fatal *asmError (spec.md §7: no partial image is ever returned).
func Assemble(source string, opts Options) (*BinaryImage, error) {
	logger := opts.logger()
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	sourceName := opts.SourceName
	if sourceName == "" {
		sourceName = "<input>"
	}

	logger.WithField("stage", "include").Debug("expanding includes")
	includer := NewIncludeExpander(baseDir, opts.IncludeResolver)
	rawLines, origins, err := includer.Expand(source, sourceName)
	if err != nil {
		return nil, err
	}

	fileNames, fileIndex := buildFileTable(origins)

	logger.WithField("stage", "lex").WithField("lines", len(rawLines)).Debug("lexing source")
	lexer := NewLexer()
	lexed := make([]LexedLine, 0, len(rawLines))
	for i, text := range rawLines {
		fi := fileIndex[origins[i].File]
		line, err := lexer.LexLine(fi, origins[i].Line, text)
		if err != nil {
			return nil, resolveErr(err, fileNames)
		}
		if len(line.Tokens) == 0 {
			continue
		}
		lexed = append(lexed, line)
	}

	logger.WithField("stage", "macro").Debug("expanding macros")
	macroExpander := NewMacroExpander()
	expandedLines, err := macroExpander.Expand(lexed)
	if err != nil {
		return nil, resolveErr(err, fileNames)
	}

	logger.WithField("stage", "parse").Debug("parsing")
	parser := NewParser()
	nodes, err := parser.Parse(expandedLines)
	if err != nil {
		return nil, resolveErr(err, fileNames)
	}

	logger.WithField("stage", "pass1").WithField("nodes", len(nodes)).Debug("building symbol table")
	builder := NewSymbolTableBuilder(opts.PseudoExpander, opts.DelayedBranchingEnabled, opts.EnablePseudoInstructions)
	table, err := builder.Build(nodes)
	if err != nil {
		return nil, resolveErr(err, fileNames)
	}

	logger.WithField("stage", "pass2").Debug("emitting")
	emitter := NewEmitter(table, opts.PseudoExpander, opts.DelayedBranchingEnabled, opts.EnablePseudoInstructions, fileNames)
	image, err := emitter.Emit(nodes)
	if err != nil {
		return nil, resolveErr(err, fileNames)
	}

	logger.WithField("stage", "done").
		WithField("text_words", len(image.Text)).
		WithField("data_bytes", len(image.Data)).
		Debug("assembly complete")
	return image, nil
}

// buildFileTable assigns each distinct origin filename a stable index
// in order of first appearance, for use as Token/AstNode.File and for
// resolving asmError positions back to human-readable names.
func buildFileTable(origins []Origin) (names []string, index map[string]int) {
	index = make(map[string]int)
	for _, o := range origins {
		if _, ok := index[o.File]; !ok {
			index[o.File] = len(names)
			names = append(names, o.File)
		}
	}
	return names, index
}

func resolveErr(err error, names []string) error {
	if ae, ok := err.(*asmError); ok {
		ae.resolveFileName(names)
	}
	return err
}
