package asm

import (
	"path"
	"strings"
)

// Origin records which source file and line a single expanded output
// line came from, so downstream diagnostics can point back at the
// file the user actually wrote instead of the flattened stream.
type Origin struct {
	File string
	Line int
}

// IncludeResolver fetches the contents of an included file given its
// resolved absolute (or resolver-defined) path. The core never
// performs file-system I/O itself (spec.md §4.3 / §9).
type IncludeResolver func(path string) (string, error)

// IncludeExpander resolves ".include \"PATH\"" directives, splicing
// the resolved file's lines in place of the directive, recursively,
// with cycle detection.
type IncludeExpander struct {
	resolver IncludeResolver
	baseDir  string
	guard    *cycleGuard
	nextID   uint
	ids      map[string]uint
}

// NewIncludeExpander creates an expander rooted at baseDir and backed
// by resolver. A nil resolver is permitted; encountering an
// ".include" with no resolver configured is an IncludeUnavailable
// error (spec.md §4.3).
func NewIncludeExpander(baseDir string, resolver IncludeResolver) *IncludeExpander {
	return &IncludeExpander{
		resolver: resolver,
		baseDir:  baseDir,
		guard:    newCycleGuard(),
		ids:      make(map[string]uint),
	}
}

// Expand resolves all includes reachable from source (logically
// located at sourceName, under baseDir), returning the flattened line
// list and a parallel origin map.
func (ie *IncludeExpander) Expand(source, sourceName string) ([]string, []Origin, error) {
	id := ie.idFor(sourceName)
	if ie.guard.enter(id, sourceName) {
		return nil, nil, newError(ErrInclude, Pos{}, "recursive include: %s", ie.guard.chain(id))
	}
	defer ie.guard.leave(id)

	lines, origin, err := ie.expandFile(source, sourceName)
	return lines, origin, err
}

func (ie *IncludeExpander) idFor(p string) uint {
	if id, ok := ie.ids[p]; ok {
		return id
	}
	id := ie.nextID
	ie.nextID++
	ie.ids[p] = id
	return id
}

func (ie *IncludeExpander) expandFile(source, filename string) ([]string, []Origin, error) {
	var outLines []string
	var outOrigin []Origin

	raw := strings.Split(source, "\n")
	dir := path.Dir(filename)

	for row, text := range raw {
		incPath, ok := matchInclude(text)
		if !ok {
			outLines = append(outLines, text)
			outOrigin = append(outOrigin, Origin{File: filename, Line: row + 1})
			continue
		}

		resolved := resolveIncludePath(dir, incPath)
		if ie.resolver == nil {
			return nil, nil, newError(ErrInclude, Pos{File: filename, Line: row + 1}, "no include resolver configured for %q", incPath)
		}

		id := ie.idFor(resolved)
		if ie.guard.enter(id, resolved) {
			return nil, nil, newError(ErrInclude, Pos{File: filename, Line: row + 1}, "recursive include: %s", ie.guard.chain(id))
		}

		contents, err := ie.resolver(resolved)
		if err != nil {
			ie.guard.leave(id)
			return nil, nil, newError(ErrInclude, Pos{File: filename, Line: row + 1}, "failed to resolve include %q: %v", incPath, err)
		}

		subLines, subOrigin, err := ie.expandFile(contents, resolved)
		ie.guard.leave(id)
		if err != nil {
			return nil, nil, err
		}

		outLines = append(outLines, subLines...)
		outOrigin = append(outOrigin, subOrigin...)
	}

	return outLines, outOrigin, nil
}

// matchInclude reports whether text (after stripping a trailing
// comment) is exactly an ".include \"PATH\"" directive, and if so
// returns PATH.
func matchInclude(text string) (string, bool) {
	s := stripComment(newSpan(0, 0, text))
	s = s.consumeWhitespace()
	if !s.startsWithString(".include") {
		return "", false
	}
	rest := s.consume(len(".include")).consumeWhitespace()
	if !rest.startsWithChar('"') {
		return "", false
	}
	body, remain := rest.consume(1).consumeUntilChar('"')
	remain = remain.consume(1).consumeWhitespace()
	if !remain.isEmpty() {
		return "", false
	}
	return body.str, true
}

// resolveIncludePath resolves an include path relative to dir, unless
// it is absolute (leading '/' or a drive letter like "C:").
func resolveIncludePath(dir, p string) string {
	if isAbsoluteIncludePath(p) {
		return p
	}
	return path.Join(dir, p)
}

func isAbsoluteIncludePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	if len(p) >= 2 && p[1] == ':' && isAlpha(p[0]) {
		return true
	}
	return false
}
