package half

// Comparisons promote both operands to float32 and use the native IEEE
// comparison: any comparison involving a NaN is unordered, so Equal,
// Less, LessEqual, Greater and GreaterEqual report false and NotEqual
// reports true.
//
// The NoNaN variants have an unchecked precondition that neither operand
// is NaN. They exist for call sites that can guarantee the precondition
// and want the comparison without a NaN filter in front of it; violating
// the precondition gives an unspecified result. No hidden NaN checks are
// added on this path.

// Equal reports whether x == y by value. Signed zeros compare equal.
func (x Half) Equal(y Half) bool { return x.Float32() == y.Float32() }

// NotEqual reports whether x != y by value. Always true if either
// operand is NaN.
func (x Half) NotEqual(y Half) bool { return x.Float32() != y.Float32() }

// Less reports whether x < y by value.
func (x Half) Less(y Half) bool { return x.Float32() < y.Float32() }

// LessEqual reports whether x <= y by value.
func (x Half) LessEqual(y Half) bool { return x.Float32() <= y.Float32() }

// Greater reports whether x > y by value.
func (x Half) Greater(y Half) bool { return x.Float32() > y.Float32() }

// GreaterEqual reports whether x >= y by value.
func (x Half) GreaterEqual(y Half) bool { return x.Float32() >= y.Float32() }

// EqualNoNaN is Equal under the precondition that neither operand is NaN.
func (x Half) EqualNoNaN(y Half) bool { return x.Float32() == y.Float32() }

// LessNoNaN is Less under the precondition that neither operand is NaN.
func (x Half) LessNoNaN(y Half) bool { return x.Float32() < y.Float32() }

// LessEqualNoNaN is LessEqual under the precondition that neither
// operand is NaN.
func (x Half) LessEqualNoNaN(y Half) bool { return x.Float32() <= y.Float32() }

// GreaterNoNaN is Greater under the precondition that neither operand
// is NaN.
func (x Half) GreaterNoNaN(y Half) bool { return x.Float32() > y.Float32() }

// GreaterEqualNoNaN is GreaterEqual under the precondition that neither
// operand is NaN.
func (x Half) GreaterEqualNoNaN(y Half) bool { return x.Float32() >= y.Float32() }
