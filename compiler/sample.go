package compiler

import "github.com/managarm/lewis/compiler/ir"

// ExitSample builds a single-function package equivalent to:
//
//	func main() { exit(code) }
//
// It exists for the CLI's demo subcommands and for the pipeline tests;
// there is no front end in this repository to parse a richer input.
func ExitSample(code int64) []*ir.Function {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	codeValue := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(code, codeValue))

	// exit never returns, but Invoke always produces a result slot;
	// this one simply has no uses.
	discard := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewInvoke("exit", []*ir.Value{codeValue}, discard))
	entry.Branch = ir.NewFunctionReturn(nil)

	return []*ir.Function{fn}
}
