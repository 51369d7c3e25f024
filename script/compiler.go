package script

import (
	"fmt"
	"strings"
)

// Diagnostic is one structured message from the toolchain. Line refers to
// the generated unit, not the caller's original snippet; see
// ExecutionContext.GeneratedSourceWithLineNumbers for correlation.
type Diagnostic struct {
	Message string
	Line    int // 0 when unknown
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%d: %s", d.Line, d.Message)
	}
	return d.Message
}

// Compiler is the external toolchain boundary: it turns a generated unit
// plus the context's references into a loadable artifact, or a diagnostic
// list. Compilers are invoked synchronously as black boxes and must be safe
// for concurrent use by independent contexts.
type Compiler interface {
	Compile(unit GeneratedUnit, ctx *ExecutionContext) (*Artifact, []Diagnostic)
}

// joinDiagnostics concatenates every diagnostic into the one message a
// Compilation ErrorRecord carries.
func joinDiagnostics(diags []Diagnostic) string {
	if len(diags) == 0 {
		return "compilation failed"
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\n")
}
