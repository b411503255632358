package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/miniscript/lang/intrinsic"
	"github.com/mna/miniscript/lang/parser"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// Run compiles and executes the script named by args[0] to completion
// (spec.md §6 CLI item b), writing `print` output to stdio.Stdout and any
// compile or runtime error to stdio.Stderr.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	p := parser.New()
	if err := p.Parse(string(src)); err != nil {
		printErrs(stdio, p.Errs())
		return err
	}
	if err := p.FinalizeProgram(); err != nil {
		printErrs(stdio, p.Errs())
		return err
	}

	reg := intrinsic.Install(vm.NewRegistry())
	m := vm.NewMachine(ctx, p.Program(), reg)
	m.MaxSteps = cfg.MaxSteps
	intrinsic.BindPrototypes(reg, m)

	out := bufio.NewWriter(stdio.Stdout)
	m.Stdout = out
	defer out.Flush()

	for !m.Done() {
		if err := m.Step(); err != nil {
			out.Flush()
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
	}
	return nil
}

func printErrs(stdio mainer.Stdio, errs []*value.Error) {
	for _, e := range errs {
		fmt.Fprintln(stdio.Stderr, e)
	}
}
