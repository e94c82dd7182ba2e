package bytecode

// ParamSpec is one declared parameter: name, type annotation, optional
// default, and whether it binds by reference (spec.md §4.1 item 3,
// §4.4).
type ParamSpec struct {
	Name      string
	Type      string // one of the annotation set in spec.md §4.4, or "" for untyped
	HasDefault bool
	Default   int // constant-pool index of the default value, if HasDefault
	ByRef     bool
}

// FuncEntry is one function-table entry: everything the image's function
// table carries per spec.md §4.1 item 3.
type FuncEntry struct {
	ID       uint64
	Name     string
	Category string
	Signature string
	Params   []ParamSpec
	Return   string
	Code     *Chunk
	Locals   []string // local-variable table (names, in slot order)

	// Optional documentation fields, also the fields document_function
	// is allowed to append to post-load (spec.md §4.4, §5).
	Short   string
	Desc    string
	Example string

	// Hidden marks functions whose name begins with "__": excluded from
	// `help`/LSTFN listing but otherwise ordinary (spec.md §4.4).
	Hidden bool
}
