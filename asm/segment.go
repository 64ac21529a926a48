package asm

// Default segment base addresses (spec.md §6).
const (
	textBase  int64 = 0x0040_0000
	dataBase  int64 = 0x1001_0000
	ktextBase int64 = 0x8000_0000
	kdataBase int64 = 0x9000_0000
)

func segmentBase(seg Segment) int64 {
	switch seg {
	case SegText:
		return textBase
	case SegData:
		return dataBase
	case SegKText:
		return ktextBase
	case SegKData:
		return kdataBase
	default:
		return 0
	}
}

// segmentCursor tracks the monotonically increasing per-segment byte
// offset. Pass 1 and Pass 2 share this type (and the alignment helpers
// below) so their offset arithmetic can never diverge (spec.md §9).
type segmentCursor struct {
	text, data, ktext, kdata int
}

func (c *segmentCursor) offset(seg Segment) int {
	switch seg {
	case SegText:
		return c.text
	case SegData:
		return c.data
	case SegKText:
		return c.ktext
	case SegKData:
		return c.kdata
	default:
		return 0
	}
}

func (c *segmentCursor) setOffset(seg Segment, v int) {
	switch seg {
	case SegText:
		c.text = v
	case SegData:
		c.data = v
	case SegKText:
		c.ktext = v
	case SegKData:
		c.kdata = v
	}
}

func (c *segmentCursor) advance(seg Segment, n int) {
	c.setOffset(seg, c.offset(seg)+n)
}

// dataElemSize reports the byte width of a single fixed-size
// data-directive argument (spec.md §4.5's sizing table). ok is false
// for directives whose size is not a fixed per-argument width
// (.ascii, .asciiz, .space, .align).
func dataElemSize(name string) (size int, ok bool) {
	switch name {
	case ".byte":
		return 1, true
	case ".half":
		return 2, true
	case ".word", ".float":
		return 4, true
	case ".double":
		return 8, true
	default:
		return 0, false
	}
}

// naturalAlignment reports the alignment a data-emitting directive
// imposes on the offset it is first emitted at.
func naturalAlignment(name string) int {
	if size, ok := dataElemSize(name); ok {
		return size
	}
	return 1
}

// isDataEmitting reports whether a directive name ever advances a
// data/kdata segment offset by something other than an explicit
// .space/.align amount.
func isDataEmitting(name string) bool {
	switch name {
	case ".byte", ".half", ".word", ".float", ".double", ".ascii", ".asciiz":
		return true
	default:
		return false
	}
}

// lookaheadAlignment implements spec.md §4.5's implicit alignment: walk
// forward from nodes[i] through labels and non-emitting directives,
// looking for the next data-emitting directive (or .space/.align,
// which need no induced padding since they set their own size), and
// return the alignment it requires. Any other node (an instruction, a
// segment directive, .space/.align/.org) stops the walk with align 1
// and found true; found is false only when the node list ends first.
func lookaheadAlignment(nodes []AstNode, i int) (align int, found bool) {
	for j := i; j < len(nodes); j++ {
		n := nodes[j]
		switch n.Kind {
		case NodeLabel:
			continue
		case NodeDirective:
			switch n.DirectiveName {
			case ".globl", ".extern", ".eqv", ".module", ".endmodule", ".set":
				continue
			case ".space", ".align", ".org":
				return 1, true
			default:
				if isDataEmitting(n.DirectiveName) {
					return naturalAlignment(n.DirectiveName), true
				}
				return 1, true
			}
		default:
			return 1, true
		}
	}
	return 1, false
}

// alignPadding returns the number of zero bytes needed to bring off up
// to a multiple of align.
func alignPadding(off, align int) int {
	if align <= 1 {
		return 0
	}
	r := off % align
	if r == 0 {
		return 0
	}
	return align - r
}
