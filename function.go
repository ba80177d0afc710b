package callrec

// CallKind identifies how a traced callable is declared.
type CallKind string

const (
	// KindFunction is a plain top-level function.
	KindFunction CallKind = "function"

	// KindMethod is a function declared with a receiver.
	KindMethod CallKind = "method"
)

// FuncInfo is the identity and metadata of one traced callable declaration,
// captured at instrumentation time from the original, un-rewritten source.
// Identity is the (Module, QualName, Filename, Line) tuple; the store
// deduplicates on exactly those four fields.
type FuncInfo struct {
	Module     string // import path of the defining package
	QualName   string // "Name" for functions, "Type.Name" for methods
	Filename   string // defining file, relative to the module root
	Line       int    // line of the declaration
	Signature  string // declaration text up to the opening brace
	TypeParams string // type parameter list, empty when not generic
	Results    string // result list text, empty when none
	Receiver   string // receiver declaration, e.g. "(s *Server)", empty for functions
	TypeName   string // receiver base type, e.g. "Server", empty for functions
	Source     string // complete declaration source text

	// ErrResult reports whether the final result is an error. When set, a
	// non-nil final result completes the call as a failure rather than a
	// return value.
	ErrResult bool
}

// Kind returns KindMethod when the declaration has a receiver.
func (fi FuncInfo) Kind() CallKind {
	if fi.Receiver != "" {
		return KindMethod
	}
	return KindFunction
}

//
//
//

// Func is the registered handle for one traced callable declaration. Handles
// are created once per declaration, typically by a package-level var in
// rewritten source, and are immutable. The recorder resolves and caches the
// persisted identity behind each handle on first use.
type Func struct {
	info FuncInfo
}

// NewFunc returns a handle for the given declaration metadata.
func NewFunc(info FuncInfo) *Func {
	return &Func{info: info}
}

// Info returns the declaration metadata.
func (f *Func) Info() FuncInfo {
	return f.info
}
