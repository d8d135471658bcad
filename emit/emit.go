// Package emit writes the two output artifacts: a parser module that
// reconstructs the packed tables at load time, and a terms module
// exporting the numeric term ids under their source names.
package emit

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/nihei9/urartu/grammar"
)

type Options struct {
	// module path the generated parser imports the runtime from
	RuntimeImport string
	// also emit the term-name table for debugging builds
	TermNames bool
}

const defaultRuntimeImport = "urartu/runtime"

func joinU16(vals []uint16) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

var parserTmpl = template.Must(template.New("parser").Parse(`// Generated automatically - do not edit.
import {Parser} from {{printf "%q" .Runtime}}

export const parser = Parser.deserialize({
  states: [{{.States}}],
  data: [{{.Data}}],
  goto: [{{.Goto}}],
  tagNames: [{{.TagNames}}],
  tokenData: [{{.TokenData}}],
  tokenizerRefs: [{{.TokenizerRefs}}],
  nestedRefs: [{{.NestedRefs}}],
  specializeTable: {{"{"}}{{.SpecializeTable}}{{"}"}},
  specializations: [{{.Specializations}}],
  tokenPrecTable: [{{.TokenPrec}}],
  skipTable: [{{.SkipTable}}]{{if .TermNames}},
  termNames: {{"{"}}{{.TermNames}}{{"}"}}{{end}}
})
`))

type parserData struct {
	Runtime         string
	States          string
	Data            string
	Goto            string
	TagNames        string
	TokenData       string
	TokenizerRefs   string
	NestedRefs      string
	SpecializeTable string
	Specializations string
	TokenPrec       string
	SkipTable       string
	TermNames       string
}

// WriteParser serializes the compiled grammar into the parser module.
func WriteParser(w io.Writer, cg *grammar.CompiledGrammar, opts Options) error {
	runtime := opts.RuntimeImport
	if runtime == "" {
		runtime = defaultRuntimeImport
	}

	d := parserData{
		Runtime:   runtime,
		States:    joinU16(cg.Tables.States),
		Data:      joinU16(cg.Tables.Data),
		Goto:      joinU16(cg.Tables.Goto),
		TokenData: joinU16(cg.Tables.TokenData),
	}

	var tags []string
	for _, t := range cg.Terms {
		tags = append(tags, fmt.Sprintf("%q", t.Tag))
	}
	d.TagNames = strings.Join(tags, ",")

	var refs []string
	for i, off := range cg.Tables.GroupOffsets {
		refs = append(refs, fmt.Sprintf("{group: %v, start: %v}", i, off))
	}
	for _, ext := range cg.Externals {
		refs = append(refs, fmt.Sprintf("{external: %q, source: %q}", ext.Name, ext.Source))
	}
	d.TokenizerRefs = strings.Join(refs, ", ")

	var nested []string
	for i, n := range cg.Nested {
		nested = append(nested, fmt.Sprintf("{name: %q, term: %v, end: %v}",
			n.Name, n.Placeholder.ID, cg.Tables.NestedOffsets[i]))
	}
	d.NestedRefs = strings.Join(nested, ", ")

	specTable := map[grammar.TermID][]string{}
	var baseOrder []grammar.TermID
	for _, sp := range cg.Specials {
		if _, ok := specTable[sp.Base.ID]; !ok {
			baseOrder = append(baseOrder, sp.Base.ID)
		}
		mode := 0
		if sp.Extend {
			mode = 1
		}
		specTable[sp.Base.ID] = append(specTable[sp.Base.ID],
			fmt.Sprintf("{value: %q, term: %v, mode: %v}", sp.Value, sp.Term.ID, mode))
	}
	var specEntries, specGroups []string
	offset := 0
	for _, base := range baseOrder {
		specEntries = append(specEntries, fmt.Sprintf("%v: %v", base, offset))
		specGroups = append(specGroups, specTable[base]...)
		offset += len(specTable[base])
	}
	d.SpecializeTable = strings.Join(specEntries, ", ")
	d.Specializations = strings.Join(specGroups, ", ")

	var prec []string
	for _, id := range cg.TokenPrec {
		prec = append(prec, fmt.Sprintf("%v", id))
	}
	d.TokenPrec = strings.Join(prec, ",")

	var skips []string
	for _, off := range cg.Tables.SkipOffsets {
		skips = append(skips, fmt.Sprintf("%v", off))
	}
	d.SkipTable = strings.Join(skips, ",")

	if opts.TermNames {
		var names []string
		for _, t := range cg.Terms {
			names = append(names, fmt.Sprintf("%v: %q", t.ID, t.Name))
		}
		d.TermNames = strings.Join(names, ", ")
	}

	return parserTmpl.Execute(w, d)
}

// reservedIdents are identifiers of the output syntax that cannot name
// an exported constant; colliding names get prefixed with an
// underscore.
var reservedIdents = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true,
	"for": true, "function": true, "if": true, "import": true,
	"in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true,
	"throw": true, "true": true, "try": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true,
	"yield": true, "let": true, "static": true,
}

func exportName(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for i, c := range name {
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		if i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return "", false
	}
	if reservedIdents[name] {
		return "_" + name, true
	}
	return name, true
}

// WriteTerms emits the term-id constants for every exportable term
// name.
func WriteTerms(w io.Writer, cg *grammar.CompiledGrammar) error {
	fmt.Fprintf(w, "// Generated automatically - do not edit.\n\nexport const\n")
	var lines []string
	for _, t := range cg.Terms {
		name, ok := exportName(t.Name)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %v = %v", name, t.ID))
	}
	if len(lines) == 0 {
		fmt.Fprintf(w, "  _eof = %v\n", cg.EOFID)
		return nil
	}
	fmt.Fprintf(w, "%v\n", strings.Join(lines, ",\n"))
	return nil
}
