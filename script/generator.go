package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BodyMode selects how GenerateUnit wraps a caller body.
type BodyMode int

const (
	// ModeCode wraps a statement block into an ExecuteCode method taking a
	// variadic parameter slice, with the first parameter prebound as Model.
	ModeCode BodyMode = iota
	// ModeMethods treats the body as complete func and method declarations.
	// Methods use the stable receiver type Script, an alias of the
	// generated type.
	ModeMethods
	// ModeType treats the body as a self-contained type declaration plus
	// its methods. The generated type name follows the body's first
	// declared type unless the context overrides it.
	ModeType
)

// GeneratedUnit is a complete compilable wrapper built around a caller body.
type GeneratedUnit struct {
	// Source is the full unit text handed to the toolchain.
	Source string
	// Package and TypeName are the unit's generated names.
	Package  string
	TypeName string
	// Body is the residual body after directive extraction.
	Body string
}

// referenceDirective marks a line that loads a code reference inline.
// It deliberately looks like a compiler directive so editors leave it alone.
const referenceDirective = "//go:reference"

var firstTypeRe = regexp.MustCompile(`(?m)^\s*type\s+([A-Za-z_][A-Za-z0-9_]*)\s+struct\b`)

// GenerateUnit wraps body into a complete compilable unit for ctx. The
// directive pre-pass runs first and may fold imports and references into
// the context; its residual body is what the unit embeds. Unset generated
// names default here, but a later cache hit may override them with the
// cached artifact's names.
func GenerateUnit(body string, mode BodyMode, ctx *ExecutionContext) GeneratedUnit {
	residual := extractDirectives(body, ctx)

	if ctx.GeneratedPackage == "" {
		ctx.GeneratedPackage = randomIdent()
	}
	if ctx.GeneratedType == "" {
		if mode == ModeType {
			if m := firstTypeRe.FindStringSubmatch(residual); m != nil {
				ctx.GeneratedType = m[1]
			}
		}
		if ctx.GeneratedType == "" {
			ctx.GeneratedType = randomTypeName()
		}
	}

	cls := ctx.GeneratedType
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", ctx.GeneratedPackage)
	writeImports(&b, ctx.Imports)

	switch mode {
	case ModeCode:
		fmt.Fprintf(&b, "type %s struct{}\n\n", cls)
		fmt.Fprintf(&b, "func (s *%s) ExecuteCode(params ...any) any {\n", cls)
		b.WriteString("\tvar Model any\n")
		b.WriteString("\tif len(params) > 0 {\n\t\tModel = params[0]\n\t}\n")
		b.WriteString("\t_ = Model\n")
		b.WriteString(indentBlock(residual))
		b.WriteString("\n\treturn nil\n}\n\n")
	case ModeMethods:
		fmt.Fprintf(&b, "type %s struct{}\n\n", cls)
		fmt.Fprintf(&b, "type Script = %s\n\n", cls)
		b.WriteString(strings.TrimSpace(residual))
		b.WriteString("\n\n")
	case ModeType:
		b.WriteString(strings.TrimSpace(residual))
		b.WriteString("\n\n")
	}

	// Activation scaffold: instances live inside the unit so the host can
	// address them by handle and resolve members on them by name.
	fmt.Fprintf(&b, "var (\n\tScriptInstances = map[int]*%s{}\n\tscriptNextID    int\n)\n\n", cls)
	fmt.Fprintf(&b, "func NewScriptInstance() int {\n\tscriptNextID++\n\tScriptInstances[scriptNextID] = &%s{}\n\treturn scriptNextID\n}\n", cls)

	return GeneratedUnit{
		Source:   b.String(),
		Package:  ctx.GeneratedPackage,
		TypeName: cls,
		Body:     residual,
	}
}

// extractDirectives runs the line-oriented pre-pass over a body. Inline
// reference directives and import lines are replaced with comments and
// folded into the context. Detection is trimmed-prefix matching only, so
// directive-looking text inside a line never triggers.
func extractDirectives(body string, ctx *ExecutionContext) string {
	if !strings.Contains(body, referenceDirective) && !strings.Contains(body, "import") {
		return body
	}
	lines := strings.Split(body, "\n")
	inImportBlock := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, referenceDirective):
			path := strings.TrimSpace(strings.TrimPrefix(trimmed, referenceDirective))
			if !ctx.Policy.AllowInlineReferences {
				// Inline references load arbitrary files; without the
				// policy flag the directive is neutralized, not honored.
				lines[i] = "// reference ignored by policy: " + path
			} else if ctx.AddReferencePath(path) {
				lines[i] = "// reference: " + path
			} else {
				lines[i] = "// reference not resolved: " + path
			}
		case inImportBlock:
			if strings.HasPrefix(trimmed, ")") {
				inImportBlock = false
				lines[i] = "// end imports"
				continue
			}
			if spec, ok := parseImportSpec(trimmed); ok {
				ctx.AddImport(spec)
				lines[i] = "// import: " + spec
			}
		case strings.HasPrefix(trimmed, "import ("):
			// Grouped imports are still import declarations in Go; they are
			// hoisted into the unit header line by line.
			inImportBlock = true
			lines[i] = "// imports"
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, `import"`):
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import"))
			if spec, ok := parseImportSpec(rest); ok {
				ctx.AddImport(spec)
				lines[i] = "// import: " + spec
			}
		}
	}
	return strings.Join(lines, "\n")
}

// parseImportSpec parses one import spec, `"path"` or `alias "path"`, and
// returns it in AddImport form (unquoted path, optional leading alias).
func parseImportSpec(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, `"`) {
		return "", false
	}
	q := strings.Index(s, `"`)
	alias := strings.TrimSpace(s[:q])
	path, err := strconv.Unquote(strings.TrimSpace(s[q:]))
	if err != nil || path == "" {
		return "", false
	}
	if alias != "" {
		return alias + " " + path, true
	}
	return path, true
}

// writeImports emits the unit's import block from AddImport-form entries.
func writeImports(b *strings.Builder, imports []string) {
	if len(imports) == 0 {
		return
	}
	b.WriteString("import (\n")
	for _, entry := range imports {
		if i := strings.LastIndex(entry, " "); i >= 0 {
			fmt.Fprintf(b, "\t%s %s\n", entry[:i], strconv.Quote(strings.TrimSpace(entry[i+1:])))
		} else {
			fmt.Fprintf(b, "\t%s\n", strconv.Quote(entry))
		}
	}
	b.WriteString(")\n\n")
}

func indentBlock(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "\t" + line
		}
	}
	return strings.Join(lines, "\n")
}
