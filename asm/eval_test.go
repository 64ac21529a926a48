package asm

import "testing"

type fakeResolver map[string]int64

func (f fakeResolver) lookup(modulePrefix, name string) (int64, bool) {
	if modulePrefix != "" {
		if v, ok := f[modulePrefix+"::"+name]; ok {
			return v, true
		}
	}
	v, ok := f[name]
	return v, ok
}

func evalText(t *testing.T, text string, r resolver) int64 {
	t.Helper()
	toks := lexAll(t, text)
	e, remain, err := parseExpr(toks)
	if err != nil {
		t.Fatalf("parseExpr(%q): %v", text, err)
	}
	if len(remain) != 0 {
		t.Fatalf("parseExpr(%q) left tokens unconsumed: %+v", text, remain)
	}
	v, err := Eval(e, "", r)
	if err != nil {
		t.Fatalf("Eval(%q): %v", text, err)
	}
	return v
}

func TestEvalPrecedence(t *testing.T) {
	cases := map[string]int64{
		"2 + 3 * 4":      14,
		"(2 + 3) * 4":    20,
		"1 | 2 & 3":      3,
		"8 >> 1 << 1":    8,
		"10 - 2 - 3":     5,
		"2 * 3 + 4 * 5":  26,
		"~0":             -1,
		"-5 + 3":         -2,
		"1 << 4":         16,
		"0xFF & 0x0F":    0x0F,
	}
	for expr, want := range cases {
		got := evalText(t, expr, fakeResolver{})
		if got != want {
			t.Errorf("%q: got %d, want %d", expr, got, want)
		}
	}
}

func TestEvalSymbolLookup(t *testing.T) {
	r := fakeResolver{"buf": 0x1001_0000}
	got := evalText(t, "buf + 4", r)
	if got != 0x1001_0004 {
		t.Fatalf("buf+4: got %#x", got)
	}
}

func TestEvalUndefinedSymbolIsError(t *testing.T) {
	toks := lexAll(t, "missing")
	e, _, err := parseExpr(toks)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Eval(e, "", fakeResolver{}); err == nil {
		t.Fatal("expected an error for an undefined symbol")
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	toks := lexAll(t, "1 / 0")
	e, _, err := parseExpr(toks)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Eval(e, "", fakeResolver{}); err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestEvalModuleQualifiedLookup(t *testing.T) {
	r := fakeResolver{"mod::inner": 42, "inner": 7}
	got := evalText(t, "inner", r)
	if got != 7 {
		t.Fatalf("bare lookup outside any module: got %d, want 7", got)
	}

	toks := lexAll(t, "inner")
	e, _, err := parseExpr(toks)
	if err != nil {
		t.Fatal(err)
	}
	v, err := Eval(e, "mod", r)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("qualified lookup should win over the bare name: got %d, want 42", v)
	}
}

func TestFitsSigned16AndUnsigned16(t *testing.T) {
	if !fitsSigned16(-32768) || !fitsSigned16(32767) {
		t.Fatal("boundary values should fit signed 16")
	}
	if fitsSigned16(-32769) || fitsSigned16(32768) {
		t.Fatal("out-of-range values should not fit signed 16")
	}
	if !fitsUnsigned16(0) || !fitsUnsigned16(0xFFFF) {
		t.Fatal("boundary values should fit unsigned 16")
	}
	if fitsUnsigned16(-1) || fitsUnsigned16(0x10000) {
		t.Fatal("out-of-range values should not fit unsigned 16")
	}
}
