package host

import (
	"os"
	"sort"

	"github.com/beevik/term"

	"github.com/mipsasm/mipsasm/asm"
	"github.com/mipsasm/mipsasm/pseudoop"
)

// defaultReportWidth is used when the output isn't a terminal (piped
// to a file, or running under a test harness) and term.GetSize fails.
const defaultReportWidth = 80

// reportWidth queries the terminal attached to stdout for its column
// width, the way go6502's host/util.go sized its hex dumps to the
// user's window, generalized here since a symbol table or relocation
// list can run much wider than 64K of 6502 memory ever needed.
func reportWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultReportWidth
	}
	return w
}

func (h *Host) printPseudoopListing(entries []pseudoop.Entry) {
	width := reportWidth()
	h.println("Pseudo-instructions:")
	for _, e := range entries {
		line := "    " + padTo(e.Mnemonic, 10) + " " + e.Example
		if e.Description != "" {
			line += "  ; " + e.Description
		}
		h.println(truncate(line, width))
	}
}

func (h *Host) printSymbolTable(image *asm.BinaryImage) {
	entries := append([]asm.SymbolEntry(nil), image.SymbolEntries...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Segment != entries[j].Segment {
			return entries[i].Segment < entries[j].Segment
		}
		if entries[i].Address != entries[j].Address {
			return entries[i].Address < entries[j].Address
		}
		return entries[i].Name < entries[j].Name
	})

	if len(entries) == 0 {
		h.println("No symbols defined.")
		return
	}

	width := reportWidth()
	current := asm.Segment(255)
	for _, e := range entries {
		if e.Segment != current {
			current = e.Segment
			h.printf(".%s:\n", current)
		}
		line := padTo("    "+e.Name, 32) + addrString(e.Address)
		h.println(truncate(line, width))
	}
}

func (h *Host) printRelocations(image *asm.BinaryImage) {
	if len(image.Relocations) == 0 {
		h.println("No relocations recorded.")
		return
	}

	width := reportWidth()
	h.println("Relocations:")
	for _, r := range image.Relocations {
		line := "    " + padTo("."+r.Segment.String(), 8) +
			padTo(hex32(uint32(r.ByteOffset)), 12) +
			padTo(r.Type.String(), 12) +
			r.Symbol
		if r.Addend != 0 {
			line += signedSuffix(r.Addend)
		}
		h.println(truncate(line, width))
	}
}

func addrString(addr int32) string {
	return hex32(uint32(addr))
}

const hexDigits = "0123456789ABCDEF"

func hex32(v uint32) string {
	b := [10]byte{'0', 'x'}
	for i := 0; i < 8; i++ {
		shift := uint(28 - 4*i)
		b[2+i] = hexDigits[(v>>shift)&0xf]
	}
	return string(b[:])
}

func signedSuffix(addend int64) string {
	if addend < 0 {
		return " - " + hex32(uint32(-addend))
	}
	return " + " + hex32(uint32(addend))
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s + " "
	}
	return s + spaces(n-len(s))
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}
