// Package ir implements the machine-independent and x86-64 intermediate
// representations used by the back end: SSA values and their def-use
// graph, instructions, control-flow blocks, phis and branches.
package ir

import (
	"tlog.app/go/errors"
)

type (
	// OperandSize is the width an x86 operand occupies.
	OperandSize int

	// ValueKind classifies a Value. Generic IR values are always
	// LocalValue; after lowering every surviving Value is either
	// RegisterMode or BaseDispMemoryMode.
	ValueKind int

	// Type is a singleton per kind, held in the package-level
	// PointerType, Int64Type and Int32Type variables. It exposes the operand size a Value of
	// this type lowers to.
	Type struct {
		name string
		size OperandSize
	}

	// Value is an SSA result. It is produced by exactly one ValueOrigin
	// and consumed by zero or more ValueUses, tracked as an intrusive
	// use-list (here: a slice of back-pointers, each aware of its own
	// index, giving O(1) unlink).
	Value struct {
		Kind ValueKind
		Type *Type

		Origin *ValueOrigin
		uses   []*ValueUse

		// x86 mode fields, populated by lowering and mutated by the
		// register allocator via SetRegister.
		ModeRegister int // RegisterMode: the assigned GPR index (0..15)
		BaseRegister int // BaseDispMemoryMode: the assigned base GPR index
		Displacement int32
	}

	// ValueOrigin is the exclusive producer slot on an instruction or
	// phi. It owns the Value: Set binds it once.
	ValueOrigin struct {
		value *Value
	}

	// ValueUse is a consumer slot. It points to at most one Value and
	// is linked into that Value's use-list.
	ValueUse struct {
		value *Value
		index int
	}
)

const (
	ValueKindInvalid ValueKind = iota
	LocalValue
	RegisterMode
	BaseDispMemoryMode
)

const (
	SizeInvalid OperandSize = iota
	Byte
	Word
	Dword
	Qword
)

var (
	PointerType = &Type{name: "pointer", size: Qword}
	Int64Type   = &Type{name: "int64", size: Qword}
	Int32Type   = &Type{name: "int32", size: Dword}
)

func (t *Type) String() string { return t.name }

// OperandSize returns the x86 operand size a value of this type lowers
// to, or an error if the type has no machine representation.
func (t *Type) OperandSize() (OperandSize, error) {
	switch t {
	case PointerType, Int64Type:
		return Qword, nil
	case Int32Type:
		return Dword, nil
	default:
		return SizeInvalid, errors.New("type %v has no operand size", t)
	}
}

func (k ValueKind) String() string {
	switch k {
	case LocalValue:
		return "local"
	case RegisterMode:
		return "register"
	case BaseDispMemoryMode:
		return "base+disp"
	default:
		return "invalid"
	}
}

// NewValue constructs an unbound Value of the given kind and type. The
// caller must bind it to a ValueOrigin via Set before use.
func NewValue(kind ValueKind, tp *Type) *Value {
	return &Value{Kind: kind, Type: tp}
}

// Uses returns the live use-list. The slice is owned by Value; callers
// must not retain it across mutation.
func (v *Value) Uses() []*ValueUse { return v.uses }

func (v *Value) addUse(u *ValueUse) {
	u.index = len(v.uses)
	v.uses = append(v.uses, u)
}

func (v *Value) removeUse(u *ValueUse) {
	last := len(v.uses) - 1
	v.uses[u.index] = v.uses[last]
	v.uses[u.index].index = u.index
	v.uses = v.uses[:last]
}

// ReplaceAllUses rewrites every use of v to point at w instead. After
// it returns v.Uses() is empty.
func (v *Value) ReplaceAllUses(w *Value) {
	for len(v.uses) != 0 {
		v.uses[len(v.uses)-1].Set(w)
	}
}

// SetRegister propagates an allocated register to the Value's mode
// field, per ValueKind.
func (v *Value) SetRegister(reg int) error {
	switch v.Kind {
	case RegisterMode:
		v.ModeRegister = reg
	case BaseDispMemoryMode:
		v.BaseRegister = reg
	default:
		return errors.New("SetRegister: value kind %v is not a physical mode", v.Kind)
	}

	return nil
}

// Register returns the register assigned by SetRegister.
func (v *Value) Register() (int, error) {
	switch v.Kind {
	case RegisterMode:
		return v.ModeRegister, nil
	case BaseDispMemoryMode:
		return v.BaseRegister, nil
	default:
		return 0, errors.New("Register: value kind %v has no register", v.Kind)
	}
}

// Set binds the origin to v, transferring ownership. It must only be
// called once per origin.
func (o *ValueOrigin) Set(v *Value) error {
	if o.value != nil {
		return errors.New("ValueOrigin already bound")
	}

	o.value = v
	v.Origin = o

	return nil
}

// Value returns the bound value, or nil if Set has not been called.
func (o *ValueOrigin) Value() *Value { return o.value }

// Set points the use at v, unlinking it from any previous value first.
// Passing nil clears the use.
func (u *ValueUse) Set(v *Value) {
	if u.value != nil {
		u.value.removeUse(u)
		u.value = nil
	}

	if v == nil {
		return
	}

	u.value = v
	v.addUse(u)
}

// Value returns the value this use currently points at, or nil.
func (u *ValueUse) Value() *Value { return u.value }
