package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/miniscript/internal/replio"
	"github.com/mna/miniscript/lang/intrinsic"
	"github.com/mna/miniscript/lang/parser"
	"github.com/mna/miniscript/lang/vm"
)

// REPL drives an interactive read-compile-run loop over stdio (spec.md §6
// CLI item c, taken when no command is given): one line of input at a
// time, fed through internal/replio's Driver, printing cfg's continuation
// prompt while a block or statement is left open and the primary prompt
// once it's ready for the next line.
func (c *Cmd) REPL(ctx context.Context, stdio mainer.Stdio, cfg Config) error {
	p := parser.New()
	reg := intrinsic.Install(vm.NewRegistry())
	m := vm.NewMachine(ctx, p.Program(), reg)
	m.MaxSteps = cfg.MaxSteps
	intrinsic.BindPrototypes(reg, m)
	m.Stdout = stdio.Stdout

	d := replio.New(p, m, stdio.Stdout)

	scan := bufio.NewScanner(stdio.Stdin)
	for {
		if d.Continuation() {
			fmt.Fprint(stdio.Stdout, cfg.ContPrompt)
		} else {
			fmt.Fprint(stdio.Stdout, cfg.Prompt)
		}
		if !scan.Scan() {
			return scan.Err()
		}

		if _, err := d.Feed(scan.Text()); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}
	}
}
