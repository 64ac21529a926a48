package asm

import "math"

// resolver looks up a symbol's value given the qualified-name prefix
// active at the point of reference. It implements spec.md §3's
// two-level lookup: try modulePrefix+"::"+name, then the bare name.
type resolver interface {
	lookup(modulePrefix, name string) (int64, bool)
}

// Eval evaluates an expression tree to a signed 64-bit value, which
// callers truncate to int32 at the point of use (spec.md §4.6.3 /
// §9's resolution of the i32/u32 Open Question). modulePrefix is the
// module-qualification scope active where the expression appears.
func Eval(e *ExprNode, modulePrefix string, r resolver) (int64, error) {
	switch e.Op {
	case ExprNumber:
		return e.Number, nil

	case ExprSymbol:
		if v, ok := r.lookup(modulePrefix, e.Symbol); ok {
			return v, nil
		}
		return 0, errAt(ErrSymbol, e.pos, "undefined symbol '%s'", e.Symbol)

	case ExprUnaryPlus:
		return Eval(e.Children[0], modulePrefix, r)

	case ExprUnaryMinus:
		v, err := Eval(e.Children[0], modulePrefix, r)
		return -v, err

	case ExprUnaryNot:
		v, err := Eval(e.Children[0], modulePrefix, r)
		if err != nil {
			return 0, err
		}
		return int64(^int32(v)), nil

	default:
		return evalBinary(e, modulePrefix, r)
	}
}

func evalBinary(e *ExprNode, modulePrefix string, r resolver) (int64, error) {
	a, err := Eval(e.Children[0], modulePrefix, r)
	if err != nil {
		return 0, err
	}
	b, err := Eval(e.Children[1], modulePrefix, r)
	if err != nil {
		return 0, err
	}
	a32, b32 := int32(a), int32(b)
	switch e.Op {
	case ExprAdd:
		return int64(a32 + b32), nil
	case ExprSub:
		return int64(a32 - b32), nil
	case ExprMul:
		return int64(a32 * b32), nil
	case ExprDiv:
		if b32 == 0 {
			return 0, errAt(ErrExpression, e.pos, "division by zero")
		}
		return int64(a32 / b32), nil
	case ExprMod:
		if b32 == 0 {
			return 0, errAt(ErrExpression, e.pos, "division by zero")
		}
		return int64(a32 % b32), nil
	case ExprLShift:
		return int64(a32 << uint32(b32&31)), nil
	case ExprRShift:
		return int64(uint32(a32) >> uint32(b32&31)), nil
	case ExprAnd:
		return int64(a32 & b32), nil
	case ExprOr:
		return int64(a32 | b32), nil
	case ExprXor:
		return int64(a32 ^ b32), nil
	default:
		return 0, errAt(ErrExpression, e.pos, "unsupported operator")
	}
}

// fitsSigned16 reports whether v fits in a signed 16-bit field.
func fitsSigned16(v int64) bool { return v >= math.MinInt16 && v <= math.MaxInt16 }

// fitsUnsigned16 reports whether v fits in an unsigned 16-bit field.
func fitsUnsigned16(v int64) bool { return v >= 0 && v <= 0xFFFF }
