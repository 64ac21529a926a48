package asm

// registerAliases maps MIPS register mnemonics (without the leading
// '$') to their numeric index, per spec.md §6.
var registerAliases = map[string]int{
	"zero": 0,
	"at":   1,
	"v0":   2, "v1": 3,
	"a0": 4, "a1": 5, "a2": 6, "a3": 7,
	"t0": 8, "t1": 9, "t2": 10, "t3": 11, "t4": 12, "t5": 13, "t6": 14, "t7": 15,
	"s0": 16, "s1": 17, "s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"t8": 24, "t9": 25,
	"k0": 26, "k1": 27,
	"gp": 28,
	"sp": 29,
	"fp": 30, "s8": 30,
	"ra": 31,
}

// LookupRegisterIndex resolves a register name (the text following
// '$', lowercased) to its numeric index, for use by pseudoop's
// template substitution (NRn needs the alias table without
// duplicating it).
func LookupRegisterIndex(name string) (int, bool) { return lookupRegister(name) }

// lookupRegister resolves a register name (the text following '$',
// lowercased) to its numeric index. Numeric forms ("0".."31") and
// named aliases are both accepted.
func lookupRegister(name string) (int, bool) {
	if idx, ok := registerAliases[name]; ok {
		return idx, true
	}
	if len(name) == 0 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(name); i++ {
		if !isDecimal(name[i]) {
			return 0, false
		}
		n = n*10 + int(name[i]-'0')
	}
	if n < 0 || n > 31 {
		return 0, false
	}
	return n, true
}
