package value

// Null is the absence-of-a-value singleton (spec.md §3), distinct from the
// absence of a map key.
type Null struct{}

// Nil is the single Null instance; Null carries no state so every instance
// compares equal and there is never a reason to allocate more than one.
var Nil = Null{}

func (Null) Kind() Kind     { return KindNull }
func (Null) Truth() bool    { return false }
func (Null) String() string { return "null" }
