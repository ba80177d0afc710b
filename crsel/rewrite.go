package crsel

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
)

// markerImport is the import path injected into every rewritten file. Its
// presence marks a file as already instrumented, so rewriting is idempotent.
const markerImport = "github.com/callrec/callrec/ezrec"

// markerName is the local name the injected import binds. Underscore-prefixed
// to stay clear of anything the target program plausibly declares.
const markerName = "_crrt"

// FileRewrite identifies the file being instrumented.
type FileRewrite struct {
	// Filename is the path baked into function identities: the file's path
	// in the original tree, not the staged copy.
	Filename string

	// ImportPath is the import path of the file's package.
	ImportPath string
}

// funcMeta is the identity captured for one declaration, sliced out of the
// original source before any edit shifts positions.
type funcMeta struct {
	qualName   string
	line       int
	signature  string
	typeParams string
	results    string
	receiver   string
	typeName   string
	source     string
	errResult  bool
}

// Rewrite instruments every function and method declaration in src that has a
// body: the file gains the marker import, one registration var per
// declaration, and a body prologue that begins a call and defers its end.
// Everything else in the file is preserved byte-for-byte, edits are pure
// insertions except for blank result names. It returns the rewritten source
// and the number of declarations instrumented; already-instrumented files and
// files with nothing to instrument come back unchanged.
func Rewrite(src []byte, file FileRewrite) ([]byte, int, error) {
	fset := token.NewFileSet()

	f, err := parser.ParseFile(fset, file.Filename, src, parser.ParseComments)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", file.Filename, err)
	}

	for _, imp := range f.Imports {
		if path, err := strconv.Unquote(imp.Path.Value); err == nil && path == markerImport {
			return src, 0, nil
		}
	}

	offset := func(pos token.Pos) int { return fset.Position(pos).Offset }
	slice := func(from, to token.Pos) string { return string(src[offset(from):offset(to)]) }

	type edit struct {
		start, end int
		text       string
	}

	var edits []edit
	insert := func(at int, text string) { edits = append(edits, edit{at, at, text}) }
	replace := func(start, end int, text string) { edits = append(edits, edit{start, end, text}) }

	var (
		registrations []string
		count         int
	)

	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil || fd.Name.Name == "_" {
			continue
		}

		meta := funcMeta{
			qualName:  fd.Name.Name,
			line:      fset.Position(fd.Pos()).Line,
			signature: strings.TrimRight(slice(fd.Pos(), fd.Body.Lbrace), " \t\n"),
			source:    slice(fd.Pos(), fd.End()),
		}

		if fd.Recv != nil && len(fd.Recv.List) > 0 {
			recv := fd.Recv.List[0]
			meta.receiver = slice(recv.Pos(), recv.End())
			meta.typeName = receiverBase(recv.Type)
			meta.qualName = meta.typeName + "." + fd.Name.Name
		}

		if tp := fd.Type.TypeParams; tp != nil {
			meta.typeParams = slice(tp.Pos(), tp.End())
		}

		var resultNames []string
		if rs := fd.Type.Results; rs != nil && len(rs.List) > 0 {
			meta.results = slice(rs.Pos(), rs.End())

			if last := rs.List[len(rs.List)-1]; isErrorType(last.Type) {
				meta.errResult = true
			}

			// Result lists are all-named or all-unnamed; unnamed and blank
			// results get generated names so the deferred end can observe
			// them.
			idx := 0
			switch {
			case len(rs.List[0].Names) == 0 && !rs.Opening.IsValid():
				name := genName(idx)
				resultNames = append(resultNames, name)
				insert(offset(rs.Pos()), "("+name+" ")
				insert(offset(rs.End()), ")")
			case len(rs.List[0].Names) == 0:
				for _, field := range rs.List {
					name := genName(idx)
					resultNames = append(resultNames, name)
					insert(offset(field.Type.Pos()), name+" ")
					idx++
				}
			default:
				for _, field := range rs.List {
					for _, ident := range field.Names {
						name := ident.Name
						if name == "_" {
							name = genName(idx)
							replace(offset(ident.Pos()), offset(ident.End()), name)
						}
						resultNames = append(resultNames, name)
						idx++
					}
				}
			}
		}

		var args []string
		if fd.Recv != nil && len(fd.Recv.List) > 0 {
			if names := fd.Recv.List[0].Names; len(names) > 0 && names[0].Name != "_" {
				args = append(args, argLiteral(names[0].Name))
			}
		}
		for _, field := range fd.Type.Params.List {
			for _, ident := range field.Names {
				if ident.Name == "_" {
					continue
				}
				args = append(args, argLiteral(ident.Name))
			}
		}

		fnVar := fmt.Sprintf("_crFn%d", count)
		callVar := fmt.Sprintf("_crCall%d", count)

		var prologue strings.Builder
		fmt.Fprintf(&prologue, "\n\t%s := %s.Begin(%s", callVar, markerName, fnVar)
		for _, a := range args {
			prologue.WriteString(", ")
			prologue.WriteString(a)
		}
		prologue.WriteString(")\n")
		if isMain(f, fd) {
			fmt.Fprintf(&prologue, "\tdefer %s.Close()\n", markerName)
		}
		fmt.Fprintf(&prologue, "\tdefer func() { %s.End(recover()", callVar)
		for _, name := range resultNames {
			prologue.WriteString(", ")
			prologue.WriteString(name)
		}
		prologue.WriteString(") }()\n")

		insert(offset(fd.Body.Lbrace)+1, prologue.String())

		registrations = append(registrations, registration(fnVar, file, meta))
		count++
	}

	if count == 0 {
		return src, 0, nil
	}

	// The import goes immediately before the first declaration (and its doc
	// comment), which is always a legal position for an import.
	first := f.Decls[0]
	at := first.Pos()
	switch d := first.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil {
			at = d.Doc.Pos()
		}
	case *ast.GenDecl:
		if d.Doc != nil {
			at = d.Doc.Pos()
		}
	}
	insert(offset(at), fmt.Sprintf("import %s %q\n\n", markerName, markerImport))

	var tail bytes.Buffer
	for _, reg := range registrations {
		tail.WriteString("\n")
		tail.WriteString(reg)
	}
	insert(len(src), tail.String())

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start > edits[j].start })

	out := append([]byte(nil), src...)
	for _, e := range edits {
		out = append(out[:e.start], append([]byte(e.text), out[e.end:]...)...)
	}

	return out, count, nil
}

// registration renders the package-level var that bakes one declaration's
// identity. Empty fields are omitted.
func registration(varName string, file FileRewrite, meta funcMeta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "var %s = %s.Register(%s.FuncInfo{\n", varName, markerName, markerName)
	fmt.Fprintf(&b, "\tModule: %q,\n", file.ImportPath)
	fmt.Fprintf(&b, "\tQualName: %q,\n", meta.qualName)
	fmt.Fprintf(&b, "\tFilename: %q,\n", file.Filename)
	fmt.Fprintf(&b, "\tLine: %d,\n", meta.line)
	fmt.Fprintf(&b, "\tSignature: %q,\n", meta.signature)
	if meta.typeParams != "" {
		fmt.Fprintf(&b, "\tTypeParams: %q,\n", meta.typeParams)
	}
	if meta.results != "" {
		fmt.Fprintf(&b, "\tResults: %q,\n", meta.results)
	}
	if meta.receiver != "" {
		fmt.Fprintf(&b, "\tReceiver: %q,\n", meta.receiver)
	}
	if meta.typeName != "" {
		fmt.Fprintf(&b, "\tTypeName: %q,\n", meta.typeName)
	}
	fmt.Fprintf(&b, "\tSource: %q,\n", meta.source)
	if meta.errResult {
		fmt.Fprintf(&b, "\tErrResult: true,\n")
	}
	fmt.Fprintf(&b, "})\n")

	return b.String()
}

func argLiteral(name string) string {
	return fmt.Sprintf("%s.Arg{Name: %q, Value: %s}", markerName, name, name)
}

func genName(idx int) string {
	return fmt.Sprintf("cr%d", idx)
}

// receiverBase returns the base type name of a method receiver, unwrapping
// pointers, parens, and type-parameter lists.
func receiverBase(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.ParenExpr:
			expr = t.X
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

func isErrorType(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "error"
}

// isMain reports whether fd is the program entry point, which additionally
// defers the recorder's shutdown so the last write lands before exit.
func isMain(f *ast.File, fd *ast.FuncDecl) bool {
	return f.Name.Name == "main" && fd.Name.Name == "main" && fd.Recv == nil
}
