package ir

// InstructionKind tags the closed sum type of instructions, generic
// and x86 alike. A single enum keeps Instruction a tagged union rather
// than an open interface hierarchy, per the "prefer a single closed
// sum type per hierarchy" note.
type InstructionKind int

const (
	InstructionInvalid InstructionKind = iota

	// Generic kinds, consumed by the lowering pass.
	InstLoadConst
	InstLoadOffset
	InstUnaryMathNegate
	InstBinaryMathAdd
	InstBinaryMathAnd
	InstInvoke

	// x86 kinds, produced by lowering and consumed by the allocator
	// and emitter.
	InstMovMC
	InstMovMR
	InstMovRM
	InstXchgMR
	InstNegM
	InstAddMR
	InstAndMR
	InstCall
	InstDefineOffset
	InstPushSave
	InstPopRestore
	InstDecrementStack
	InstIncrementStack
	InstNop
	InstPseudoMoveSingle
	InstPseudoMoveMultiple
)

func (k InstructionKind) String() string {
	switch k {
	case InstLoadConst:
		return "LoadConst"
	case InstLoadOffset:
		return "LoadOffset"
	case InstUnaryMathNegate:
		return "UnaryMath{negate}"
	case InstBinaryMathAdd:
		return "BinaryMath{add}"
	case InstBinaryMathAnd:
		return "BinaryMath{bitwiseAnd}"
	case InstInvoke:
		return "Invoke"
	case InstMovMC:
		return "MovMC"
	case InstMovMR:
		return "MovMR"
	case InstMovRM:
		return "MovRM"
	case InstXchgMR:
		return "XchgMR"
	case InstNegM:
		return "NegM"
	case InstAddMR:
		return "AddMR"
	case InstAndMR:
		return "AndMR"
	case InstCall:
		return "Call"
	case InstDefineOffset:
		return "DefineOffset"
	case InstPushSave:
		return "PushSave"
	case InstPopRestore:
		return "PopRestore"
	case InstDecrementStack:
		return "DecrementStack"
	case InstIncrementStack:
		return "IncrementStack"
	case InstNop:
		return "Nop"
	case InstPseudoMoveSingle:
		return "PseudoMoveSingle"
	case InstPseudoMoveMultiple:
		return "PseudoMoveMultiple"
	default:
		return "invalid"
	}
}

// IsX86 reports whether the kind belongs to the x86 IR, i.e. is a
// legal kind for a BasicBlock after lowering.
func (k InstructionKind) IsX86() bool {
	return k >= InstMovMC && k <= InstPseudoMoveMultiple
}

type (
	// Instruction is any IR instruction, generic or x86. Kind
	// discriminates which of the payload fields below are valid; the
	// payload types themselves are never embedded, to keep a single
	// struct shape cheap to allocate and walk.
	Instruction struct {
		Kind InstructionKind

		// order is a fractional sort key maintained by BasicBlock so
		// that two instructions can be compared in O(1) and located
		// by binary search in O(log n) without renumbering the whole
		// block on every insertion.
		order float64

		Result ValueOrigin // every kind other than pure side-effecting ones produces at most one result

		// Generic payloads. Const also carries the physical register
		// operand of PushSave/PopRestore, which move a fixed GPR
		// rather than an SSA value.
		Const    int64
		Base     ValueUse
		Offset   int64
		Operand  ValueUse
		Left     ValueUse
		Right    ValueUse
		Callee   string
		Operands []ValueUse

		// x86 payloads. M/R naming follows the mnemonic's operand
		// order (MovMR: move Register into Memory-or-register M).
		M        ValueUse
		R        ValueUse
		Disp     int32
		StackAdj int64

		// Pseudo-move payloads: the N (operand, result) pairs of a
		// PseudoMoveMultiple. PseudoMoveSingle uses Operand and Result.
		MoveOperands []ValueUse
		MoveResults  []ValueOrigin
	}
)

// NewInstruction allocates an instruction of the given kind with an
// unbound Result origin.
func NewInstruction(kind InstructionKind) *Instruction {
	return &Instruction{Kind: kind}
}

// Order exposes the block-local fractional sort key assigned by
// BasicBlock; CompareInstructions orders instructions by the same key.
func (i *Instruction) Order() float64 { return i.order }

// Uses reports every operand slot that currently points at a value,
// generic or x86, in a fixed canonical order.
func (i *Instruction) Uses() []*ValueUse {
	var uses []*ValueUse

	consider := func(u *ValueUse) {
		if u.Value() != nil {
			uses = append(uses, u)
		}
	}

	consider(&i.Base)
	consider(&i.Operand)
	consider(&i.Left)
	consider(&i.Right)
	consider(&i.M)
	consider(&i.R)

	for idx := range i.Operands {
		consider(&i.Operands[idx])
	}

	for idx := range i.MoveOperands {
		consider(&i.MoveOperands[idx])
	}

	return uses
}

// Results reports every origin slot on the instruction, generic,
// x86, or belonging to a multi-result pseudo-move.
func (i *Instruction) Results() []*ValueOrigin {
	results := []*ValueOrigin{&i.Result}

	for idx := range i.MoveResults {
		results = append(results, &i.MoveResults[idx])
	}

	return results
}

// IsInPlace reports whether the instruction's result is written into
// the same register as one of its operands, the class of instruction
// the allocator prefixes with a PseudoMoveSingle.
func (i *Instruction) IsInPlace() bool {
	switch i.Kind {
	case InstNegM, InstAddMR, InstAndMR, InstDefineOffset:
		return true
	default:
		return false
	}
}
