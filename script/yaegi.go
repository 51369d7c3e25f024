package script

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"scriptkit/scriptrt"
)

// YaegiCompiler runs generated units through the yaegi interpreter. Each
// artifact owns a dedicated interpreter: evaluating the unit is the
// compile+load step, and the live interpreter is the loaded binary. The
// per-artifact interpreter doubles as the isolated loading boundary from
// the resource model; artifacts cannot see each other's types.
type YaegiCompiler struct{}

// NewYaegiCompiler returns the production toolchain.
func NewYaegiCompiler() *YaegiCompiler { return &YaegiCompiler{} }

func (yc *YaegiCompiler) Compile(unit GeneratedUnit, ctx *ExecutionContext) (*Artifact, []Diagnostic) {
	opts := interp.Options{}
	if ctx.LibraryDir != "" {
		opts.GoPath = ctx.LibraryDir
	}
	i := interp.New(opts)
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, []Diagnostic{{Message: fmt.Sprintf("stdlib bootstrap: %v", err)}}
	}
	if err := i.Use(runtimeExports()); err != nil {
		return nil, []Diagnostic{{Message: fmt.Sprintf("runtime bootstrap: %v", err)}}
	}
	for path, syms := range ctx.symbolRefs {
		if err := i.Use(exportsFor(path, syms)); err != nil {
			return nil, []Diagnostic{{Message: fmt.Sprintf("reference %s: %v", path, err)}}
		}
	}
	if diags := loadPathReferences(i, ctx); diags != nil {
		return nil, diags
	}

	if _, err := i.Eval(unit.Source); err != nil {
		return nil, diagnosticsFrom(err)
	}

	// The interpreter is not safe for concurrent evaluation; member and
	// constructor lookups serialize on the artifact. The calls themselves
	// run outside the lock on the caller's goroutine.
	var mu sync.Mutex
	newExpr := unit.Package + ".NewScriptInstance()"
	memberFmt := unit.Package + ".ScriptInstances[%d].%s"

	art := &Artifact{
		Package:  unit.Package,
		TypeName: unit.TypeName,
		Source:   unit.Source,
	}
	art.activate = func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		v, err := i.Eval(newExpr)
		if err != nil {
			return 0, err
		}
		id, ok := v.Interface().(int)
		if !ok {
			return 0, fmt.Errorf("constructor returned %T, want int handle", v.Interface())
		}
		return id, nil
	}
	art.member = func(id int, name string) (reflect.Value, error) {
		mu.Lock()
		defer mu.Unlock()
		return i.Eval(fmt.Sprintf(memberFmt, id, name))
	}
	return art, nil
}

// loadPathReferences evaluates the Go source files of every path reference
// into the interpreter before the unit itself. Path resolution already
// happened when the reference was added; failures here are toolchain
// diagnostics.
func loadPathReferences(i *interp.Interpreter, ctx *ExecutionContext) []Diagnostic {
	if len(ctx.pathRefs) == 0 {
		return nil
	}
	dirs := make([]string, 0, len(ctx.pathRefs))
	for dir := range ctx.pathRefs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return []Diagnostic{{Message: fmt.Sprintf("reference %s: %v", dir, err)}}
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			src, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return []Diagnostic{{Message: fmt.Sprintf("reference %s: %v", name, err)}}
			}
			if _, err := i.Eval(string(src)); err != nil {
				return append([]Diagnostic{{Message: fmt.Sprintf("reference %s:", name)}}, diagnosticsFrom(err)...)
			}
		}
	}
	return nil
}

// runtimeExports exposes the scriptrt helpers to every generated unit under
// the import path "scriptkit/scriptrt".
func runtimeExports() interp.Exports {
	return interp.Exports{
		"scriptkit/scriptrt/scriptrt": {
			"RawString":    reflect.ValueOf((*scriptrt.RawString)(nil)),
			"Raw":          reflect.ValueOf(scriptrt.Raw),
			"Stringify":    reflect.ValueOf(scriptrt.Stringify),
			"HTMLEncode":   reflect.ValueOf(scriptrt.HTMLEncode),
			"Write":        reflect.ValueOf(scriptrt.Write),
			"WriteEncoded": reflect.ValueOf(scriptrt.WriteEncoded),
		},
	}
}

// exportsFor converts a registered symbol map into yaegi export form. The
// map key convention is "importPath/packageName".
func exportsFor(importPath string, syms Symbols) interp.Exports {
	pkg := importPath
	if i := strings.LastIndex(importPath, "/"); i >= 0 {
		pkg = importPath[i+1:]
	}
	values := make(map[string]reflect.Value, len(syms))
	for name, v := range syms {
		values[name] = reflect.ValueOf(v)
	}
	return interp.Exports{importPath + "/" + pkg: values}
}

var diagLineRe = regexp.MustCompile(`^(\d+):\d+:\s*(.*)$`)

// diagnosticsFrom splits a yaegi evaluation error into per-line
// diagnostics, recovering generated-unit line numbers where the error
// message carries them.
func diagnosticsFrom(err error) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := diagLineRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			out = append(out, Diagnostic{Line: n, Message: m[2]})
		} else {
			out = append(out, Diagnostic{Message: line})
		}
	}
	if len(out) == 0 {
		out = []Diagnostic{{Message: err.Error()}}
	}
	return out
}
