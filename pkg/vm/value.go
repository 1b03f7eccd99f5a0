package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type identifies the runtime type of a Value.
type Type uint8

const (
	TypeNull    Type = iota // SQL-style NULL
	TypeInteger             // 64-bit signed integer
	TypeReal                // 64-bit float
	TypeText                // UTF-8 text
	TypeBlob                // opaque bytes
)

// String returns the string representation of a value type.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is the tagged cell stored in registers and returned from result rows.
// It holds exactly one of: integer, real, text, blob, or null. The zero Value
// is null, so a freshly allocated register file reads as all-null.
//
// Values copy by assignment; text and blob payloads are kept in an immutable
// string so two registers never alias a mutable buffer. Float payloads are
// stored as bits in n (math.Float64bits) to keep the struct allocation-free
// for numeric values.
type Value struct {
	typ Type
	n   int64
	s   string
}

// Null returns the null Value.
func Null() Value { return Value{} }

// NewInteger returns an integer Value.
func NewInteger(n int64) Value { return Value{typ: TypeInteger, n: n} }

// NewReal returns a real (float) Value.
func NewReal(f float64) Value { return Value{typ: TypeReal, n: int64(math.Float64bits(f))} }

// NewText returns a text Value.
func NewText(s string) Value { return Value{typ: TypeText, s: s} }

// NewBlob returns a blob Value. The bytes are copied.
func NewBlob(b []byte) Value { return Value{typ: TypeBlob, s: string(b)} }

// Type returns the value's type tag.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// Int returns the value as an int64, coercing reals (truncated) and numeric
// text. Null, blobs and non-numeric text yield 0.
func (v Value) Int() int64 {
	switch v.typ {
	case TypeInteger:
		return v.n
	case TypeReal:
		return int64(v.float())
	case TypeText:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Float returns the value as a float64, coercing integers and numeric text.
// Null, blobs and non-numeric text yield 0.
func (v Value) Float() float64 {
	switch v.typ {
	case TypeReal:
		return v.float()
	case TypeInteger:
		return float64(v.n)
	case TypeText:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f
		}
	}
	return 0
}

// Text returns the text payload. Blobs are returned as their raw bytes;
// other types yield "".
func (v Value) Text() string {
	if v.typ == TypeText || v.typ == TypeBlob {
		return v.s
	}
	return ""
}

// Bytes returns a copy of the blob payload, or nil for non-blob values.
func (v Value) Bytes() []byte {
	if v.typ != TypeBlob {
		return nil
	}
	return []byte(v.s)
}

// Truthy reports whether the value counts as true in conditional jumps:
// non-zero numbers are true, text is true when it parses to a non-zero
// number, null and blobs are false.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeInteger:
		return v.n != 0
	case TypeReal:
		return v.float() != 0
	case TypeText:
		return v.Float() != 0
	}
	return false
}

// String renders the value for listings and error messages.
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return strconv.FormatInt(v.n, 10)
	case TypeReal:
		return strconv.FormatFloat(v.float(), 'g', -1, 64)
	case TypeText:
		return strconv.Quote(v.s)
	case TypeBlob:
		return fmt.Sprintf("x'%X'", v.s)
	default:
		return "?"
	}
}

func (v Value) float() float64 { return math.Float64frombits(uint64(v.n)) }

// isNumeric reports whether the value participates in numeric comparison.
func (v Value) isNumeric() bool { return v.typ == TypeInteger || v.typ == TypeReal }

// typeRank orders value classes for cross-type comparison:
// null < numeric < text < blob. This order is a pinned contract, relied on
// by the comparison opcodes and by callers sorting mixed values.
func (v Value) typeRank() int {
	switch v.typ {
	case TypeNull:
		return 0
	case TypeInteger, TypeReal:
		return 1
	case TypeText:
		return 2
	default:
		return 3
	}
}

// Compare totally orders two values: -1, 0 or 1 for a <, ==, > b.
// Values of different classes order by class rank (null < number < text <
// blob); numbers compare numerically across integer/real, text and blobs
// compare bytewise.
func Compare(a, b Value) int {
	ra, rb := a.typeRank(), b.typeRank()
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch {
	case ra == 0: // both null
		return 0
	case ra == 1: // both numeric
		if a.typ == TypeInteger && b.typ == TypeInteger {
			switch {
			case a.n < b.n:
				return -1
			case a.n > b.n:
				return 1
			}
			return 0
		}
		af, bf := a.Float(), b.Float()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	default: // text or blob, bytewise
		return strings.Compare(a.s, b.s)
	}
}

// Add returns a+b with numeric promotion; null operands propagate null.
func Add(a, b Value) Value {
	return arith(a, b,
		func(x, y int64) int64 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Subtract returns a-b with numeric promotion; null operands propagate null.
func Subtract(a, b Value) Value {
	return arith(a, b,
		func(x, y int64) int64 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Multiply returns a*b with numeric promotion; null operands propagate null.
func Multiply(a, b Value) Value {
	return arith(a, b,
		func(x, y int64) int64 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Divide returns a/b. Division by zero yields null, never a fault.
func Divide(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return Null()
	}
	if a.typ == TypeInteger && b.typ == TypeInteger {
		if b.n == 0 {
			return Null()
		}
		return NewInteger(a.n / b.n)
	}
	bf := b.Float()
	if bf == 0 {
		return Null()
	}
	return NewReal(a.Float() / bf)
}

// Remainder returns a%b. A zero divisor yields null.
func Remainder(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return Null()
	}
	if a.typ == TypeInteger && b.typ == TypeInteger {
		if b.n == 0 {
			return Null()
		}
		return NewInteger(a.n % b.n)
	}
	bf := b.Float()
	if bf == 0 {
		return Null()
	}
	return NewReal(math.Mod(a.Float(), bf))
}

// Negate returns -v for numeric values; null propagates, text and blobs
// coerce through Float.
func Negate(v Value) Value {
	switch v.typ {
	case TypeNull:
		return Null()
	case TypeInteger:
		return NewInteger(-v.n)
	case TypeReal:
		return NewReal(-v.float())
	default:
		return NewReal(-v.Float())
	}
}

// Concat returns the text concatenation of a and b; null propagates.
func Concat(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return Null()
	}
	return NewText(a.asText() + b.asText())
}

// arith applies an integer or float operation depending on operand types.
func arith(a, b Value, fi func(int64, int64) int64, ff func(float64, float64) float64) Value {
	if a.IsNull() || b.IsNull() {
		return Null()
	}
	if a.typ == TypeInteger && b.typ == TypeInteger {
		return NewInteger(fi(a.n, b.n))
	}
	return NewReal(ff(a.Float(), b.Float()))
}

// asText renders the value for concatenation (unquoted, unlike String).
func (v Value) asText() string {
	switch v.typ {
	case TypeText, TypeBlob:
		return v.s
	case TypeInteger:
		return strconv.FormatInt(v.n, 10)
	case TypeReal:
		return strconv.FormatFloat(v.float(), 'g', -1, 64)
	}
	return ""
}
