package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/managarm/lewis/compiler"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

func main() {
	emitCmd := &cli.Command{
		Name:        "emit-object",
		Description: "emit a demo ELF64 shared object to the given path",
		Action:      emitObjectAct,
		Args:        cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:        "dump-ir",
		Description: "print the demo function's IR before lowering",
		Action:      dumpIRAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "lewis",
		Description: "lewis is an ahead-of-time x86-64 ELF back end",
		Commands: []*cli.Command{
			emitCmd,
			dumpCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

// emitObjectAct compiles the built-in demo function (there is no front
// end in this repository to parse a richer input) and writes the
// resulting object to c.Args[0], or stdout if no path is given.
func emitObjectAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	code := int64(0)
	if len(c.Args) > 1 {
		code, err = strconv.ParseInt(c.Args[1], 10, 64)
		if err != nil {
			return errors.Wrap(err, "parse exit code %v", c.Args[1])
		}
	}

	buf, err := compiler.CompilePackage(ctx, compiler.ExitSample(code))
	if err != nil {
		return errors.Wrap(err, "compile package")
	}

	if len(c.Args) == 0 {
		if _, err := os.Stdout.Write(buf); err != nil {
			return errors.Wrap(err, "write stdout")
		}

		return nil
	}

	if err := os.WriteFile(c.Args[0], buf, 0o755); err != nil {
		return errors.Wrap(err, "write %v", c.Args[0])
	}

	return nil
}

func dumpIRAct(c *cli.Command) (err error) {
	for _, fn := range compiler.ExitSample(0) {
		fmt.Printf("func %v\n", fn.Name)

		for _, block := range fn.Blocks {
			fmt.Printf("  block %v\n", block.Name)

			for _, inst := range block.Instructions() {
				fmt.Printf("    %v\n", inst.Kind)
			}

			if block.Branch != nil {
				fmt.Printf("    branch %v\n", block.Branch.Kind)
			}
		}
	}

	return nil
}
