package scripttest_test

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/mna/miniscript/internal/scripttest"
)

var updateTests = flag.Bool("test.update-tests", false, "If set, updates the golden files for this package's tests.")

// TestFixtures runs every testdata/*.ms fixture and diffs its output
// against the matching .want golden file, covering the end-to-end
// scenarios named as testable properties of the language.
func TestFixtures(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata")
	for _, fi := range scripttest.SourceFiles(t, dir) {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			out, err := scripttest.RunFile(context.Background(), filepath.Join(dir, fi.Name()))
			if err != nil {
				t.Fatalf("run %s: %s", fi.Name(), err)
			}
			scripttest.DiffOutput(t, fi, out, dir, updateTests)
		})
	}
}

func TestCheckAllReportsEveryFixture(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata")
	results, err := scripttest.CheckAll(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one fixture")
	}
	summary, allPass := scripttest.Summary(results)
	if !allPass {
		t.Fatalf("fixtures failed:\n%s", summary)
	}
}
