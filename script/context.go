package script

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Policy holds the behavior flags of an ExecutionContext.
type Policy struct {
	// AllowInlineReferences permits //go:reference directives in source text
	// to load code. Inline directives let source text pull in arbitrary
	// files, so they are off unless the host explicitly trusts its callers.
	AllowInlineReferences bool
	// ThrowOnError makes runtime faults come back as errors from public
	// calls. Compilation faults are recorded only, regardless of this flag.
	ThrowOnError bool
	// PersistGeneratedSource writes each generated unit to OutputDir so
	// compilation diagnostics can be correlated with the emitted code.
	PersistGeneratedSource bool
	// DisableCaching bypasses the artifact cache and the per-context
	// instance cache.
	DisableCaching bool
	// DebugSymbols additionally persists a line-numbered copy of the
	// generated unit, matching the line numbers diagnostics refer to.
	DebugSymbols bool
}

// Symbols maps exported names to host values made visible to compiled units
// under a reference's import path.
type Symbols map[string]any

// Stage names how far the current call has progressed through the pipeline.
type Stage int

const (
	StageFresh Stage = iota
	StageGenerated
	StageCompiled
	StageActivated
	StageInvoked
	StageFaulted
)

func (s Stage) String() string {
	switch s {
	case StageGenerated:
		return "generated"
	case StageCompiled:
		return "compiled"
	case StageActivated:
		return "activated"
	case StageInvoked:
		return "invoked"
	case StageFaulted:
		return "faulted"
	default:
		return "fresh"
	}
}

// ExecutionContext carries per-owner configuration for the pipeline:
// imports and references for generated units, generated-name overrides,
// policy flags, the cached instance, and the single live ErrorRecord.
//
// A context belongs to one logical owner and is not goroutine-safe;
// concurrent calls against the same context must be externally serialized.
// The artifact cache behind the engine is shared process-wide regardless.
type ExecutionContext struct {
	// ID correlates log lines across the calls of one owner.
	ID string

	// Imports are folded into every generated unit's import block. Order is
	// kept only for stable output; membership is what matters.
	Imports []string

	// GeneratedPackage and GeneratedType name the generated unit. Empty
	// values default to short random identifiers at generation time. On a
	// cache hit the cached artifact's names win over these.
	GeneratedPackage string
	GeneratedType    string

	Policy Policy

	// OutputDir receives persisted generated source. Empty means in-memory
	// only.
	OutputDir string

	// LibraryDir is the fallback directory for path references that do not
	// resolve literally.
	LibraryDir string

	symbolRefs map[string]Symbols // import path -> exported symbols
	pathRefs   map[string]string  // resolved absolute path -> path as added

	instance   *Instance
	errRecord  ErrorRecord
	stage      Stage
	lastSource string
}

// NewExecutionContext returns an empty context with a fresh correlation id.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		ID:         uuid.NewString(),
		symbolRefs: make(map[string]Symbols),
		pathRefs:   make(map[string]string),
	}
}

// AddImport records an import for generated units. Entries are the import
// path, optionally preceded by an alias and a space. Duplicates are no-ops.
// An empty name clears the whole import set; that is the documented way to
// reset imports, not an error.
func (c *ExecutionContext) AddImport(name string) {
	if name == "" {
		c.Imports = nil
		return
	}
	for _, im := range c.Imports {
		if im == name {
			return
		}
	}
	c.Imports = append(c.Imports, name)
}

// AddDefaultImports records the minimal standard-library import set most
// generated code wants.
func (c *ExecutionContext) AddDefaultImports() {
	for _, im := range []string{"fmt", "strings", "strconv", "math", "time"} {
		c.AddImport(im)
	}
}

// AddReference makes a host symbol map importable by generated units under
// importPath. Re-adding an already registered path is a no-op reporting
// true. Nothing here fails fatally.
func (c *ExecutionContext) AddReference(importPath string, syms Symbols) bool {
	if importPath == "" || len(syms) == 0 {
		return false
	}
	if _, ok := c.symbolRefs[importPath]; ok {
		return true
	}
	c.symbolRefs[importPath] = syms
	return true
}

// AddReferenceType exports the dynamic type of v to generated units under
// the type's defining package path.
func (c *ExecutionContext) AddReferenceType(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return false
	}
	// Nil-pointer convention: the toolchain exposes it as a type binding.
	marker := reflect.Zero(reflect.PointerTo(t)).Interface()
	return c.AddReference(t.PkgPath(), Symbols{t.Name(): marker})
}

// AddReferencePath records a directory of Go source importable by generated
// units. The literal path is checked first, then LibraryDir. Unresolvable
// paths fail to add and report false; duplicate resolved paths are no-ops.
func (c *ExecutionContext) AddReferencePath(path string) bool {
	resolved, ok := c.resolvePath(path)
	if !ok {
		return false
	}
	if _, dup := c.pathRefs[resolved]; dup {
		return true
	}
	c.pathRefs[resolved] = path
	return true
}

func (c *ExecutionContext) resolvePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		if abs, err := filepath.Abs(path); err == nil {
			return abs, true
		}
	}
	if c.LibraryDir != "" {
		cand := filepath.Join(c.LibraryDir, path)
		if st, err := os.Stat(cand); err == nil && st.IsDir() {
			if abs, err := filepath.Abs(cand); err == nil {
				return abs, true
			}
		}
	}
	return "", false
}

// Err returns the live ErrorRecord of the most recent call.
func (c *ExecutionContext) Err() *ErrorRecord { return &c.errRecord }

// Stage reports how far the most recent call progressed.
func (c *ExecutionContext) Stage() Stage { return c.stage }

// ClearErrors resets the visible error state. Every public engine call does
// this first, so the record always describes the most recent call only. The
// context stays fully reusable after a fault.
func (c *ExecutionContext) ClearErrors() {
	c.errRecord = ErrorRecord{}
	c.stage = StageFresh
}

// RecordFault sets the live ErrorRecord. Collaborators feeding the pipeline
// (such as template transpilation) classify their faults through this.
func (c *ExecutionContext) RecordFault(kind ErrorKind, message string, cause error) {
	c.errRecord = ErrorRecord{Kind: kind, Message: message, Cause: cause}
	c.stage = StageFaulted
}

// GeneratedSource returns the full unit text produced by the most recent
// call. It is the primary aid for correlating compilation diagnostics, which
// refer to generated line numbers, back to the original snippet.
func (c *ExecutionContext) GeneratedSource() string { return c.lastSource }

// GeneratedSourceWithLineNumbers returns the generated unit with each line
// prefixed by its number, matching diagnostic references.
func (c *ExecutionContext) GeneratedSourceWithLineNumbers() string {
	if c.lastSource == "" {
		return ""
	}
	lines := strings.Split(c.lastSource, "\n")
	width := len(strconv.Itoa(len(lines)))
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%*d: %s\n", width, i+1, line)
	}
	return sb.String()
}

// Instance returns the context's cached activated instance, nil when none
// exists yet.
func (c *ExecutionContext) Instance() *Instance { return c.instance }
