package ctypes

// Limits are the encoding budgets the compiler enforces. Exceeding any of
// them is a capacity error.
type Limits struct {
	MaxTypeSize           int // largest sizeof/alignof, in bytes
	MaxArrayLen           int // largest array element count
	MaxBranchDisplacement int // farthest forward or backward rel8 jump, in bytes
	MaxRegisterArgs       int // parameters passed in registers
}

// DefaultLimits matches the 8-bit size budget and the six SysV argument registers.
func DefaultLimits() Limits {
	return Limits{
		MaxTypeSize:           255,
		MaxArrayLen:           255,
		MaxBranchDisplacement: 127,
		MaxRegisterArgs:       6,
	}
}
