package asm

import "testing"

func TestIncludeSplicesResolvedFileInPlace(t *testing.T) {
	resolver := func(path string) (string, error) {
		if path == "lib.s" {
			return "addi $t0, $t0, 1", nil
		}
		return "", errAt(ErrInclude, span{}, "no such file %q", path)
	}
	ie := NewIncludeExpander(".", resolver)
	lines, origins, err := ie.Expand(".include \"lib.s\"\nnop", "main.s")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after splicing, got %d: %v", len(lines), lines)
	}
	if lines[0] != "addi $t0, $t0, 1" {
		t.Fatalf("spliced line: got %q", lines[0])
	}
	if origins[0].File != "lib.s" {
		t.Fatalf("spliced line should carry the included file's origin, got %q", origins[0].File)
	}
	if origins[1].File != "main.s" {
		t.Fatalf("line after the include should keep the original origin, got %q", origins[1].File)
	}
}

func TestIncludeWithoutResolverIsError(t *testing.T) {
	ie := NewIncludeExpander(".", nil)
	_, _, err := ie.Expand(".include \"lib.s\"", "main.s")
	if err == nil {
		t.Fatal("expected an error when no include resolver is configured")
	}
}

func TestIncludeCycleIsDetected(t *testing.T) {
	resolver := func(path string) (string, error) {
		switch path {
		case "a.s":
			return ".include \"b.s\"", nil
		case "b.s":
			return ".include \"a.s\"", nil
		}
		return "", errAt(ErrInclude, span{}, "no such file")
	}
	ie := NewIncludeExpander(".", resolver)
	_, _, err := ie.Expand(".include \"a.s\"", "main.s")
	if err == nil {
		t.Fatal("expected a cyclic-include error")
	}
}

func TestIncludeMissingFileIsError(t *testing.T) {
	resolver := func(path string) (string, error) {
		return "", errAt(ErrInclude, span{}, "not found")
	}
	ie := NewIncludeExpander(".", resolver)
	_, _, err := ie.Expand(".include \"missing.s\"", "main.s")
	if err == nil {
		t.Fatal("expected an error for a failing resolver")
	}
}

func TestIncludeResolvesPathRelativeToIncludingFile(t *testing.T) {
	var requested string
	resolver := func(path string) (string, error) {
		requested = path
		return "nop", nil
	}
	ie := NewIncludeExpander(".", resolver)
	_, _, err := ie.Expand(".include \"lib.s\"", "sub/main.s")
	if err != nil {
		t.Fatal(err)
	}
	if requested != "sub/lib.s" {
		t.Fatalf("expected the include path to resolve relative to the including file's directory, got %q", requested)
	}
}
