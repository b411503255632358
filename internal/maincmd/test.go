package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/miniscript/internal/scripttest"
)

// Test runs the built-in unit-test pass (spec.md §6 CLI item a): every .ms
// fixture under the configured testdata directory, compared against its
// .want golden file, printed as a PASS/FAIL report.
func (c *Cmd) Test(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	dir := cfg.TestDataDir
	if len(args) > 0 {
		dir = args[0]
	}

	results, err := scripttest.CheckAll(ctx, dir)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	summary, allPass := scripttest.Summary(results)
	fmt.Fprint(stdio.Stdout, summary)
	if !allPass {
		return fmt.Errorf("test: one or more fixtures failed")
	}
	return nil
}
