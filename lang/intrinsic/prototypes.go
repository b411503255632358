package intrinsic

import (
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// BindPrototypes wires the intrinsics that make sense as methods into m's
// per-type prototype maps, so that e.g. `"hi".upper` resolves through the
// normal __isa dot-dispatch instead of requiring `upper("hi")` (spec.md
// §4.7: "After registration, selected intrinsics are bound into the
// per-type prototype maps"). Must run once per Machine, after reg has been
// built by Install.
func BindPrototypes(reg *vm.Registry, m *vm.Machine) {
	bind(reg, &m.StringProto,
		"len", "upper", "lower", "val", "split", "replace", "indexOf",
		"code", "hasIndex", "indexes", "slice", "remove")
	bind(reg, &m.ListProto,
		"len", "push", "pop", "pull", "insert", "remove", "indexOf",
		"indexes", "sort", "shuffle", "sum", "join", "slice", "hasIndex", "values")
	bind(reg, &m.MapProto,
		"len", "hasIndex", "indexes", "remove", "values", "sum")
	bind(reg, &m.NumberProto, "abs", "sign", "round")
}

func bind(reg *vm.Registry, proto **value.Map, names ...string) {
	if *proto == nil {
		*proto = value.NewMap(len(names))
	}
	for _, name := range names {
		if fn, ok := reg.Lookup(name); ok {
			(*proto).Set(value.String(name), fn)
		}
	}
}
