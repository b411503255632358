package vm

import (
	"strings"
	"testing"
)

func TestOpcodeString(t *testing.T) {
	for op := Opcode(0); op < maxOpcode; op++ {
		if s := op.String(); strings.HasPrefix(s, "Opcode(") {
			t.Errorf("missing string representation of opcode %d", op)
		}
	}
}

func TestOpcodeStringUnknown(t *testing.T) {
	if s := maxOpcode.String(); !strings.HasPrefix(s, "Opcode(") {
		t.Errorf("expected fallback representation, got %q", s)
	}
}
