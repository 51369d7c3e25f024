package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(base, name string) error {
	return os.MkdirAll(filepath.Join(base, name), 0o755)
}

func TestRandomIdentifiers(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := randomIdent()
		require.Len(t, id, identLength)
		for _, r := range id {
			require.True(t, r >= 'a' && r <= 'z', "unexpected rune %q in %q", r, id)
		}
		seen[id] = true
	}
	// 50 draws from 26^8 must not collide.
	assert.Len(t, seen, 50)

	tn := randomTypeName()
	assert.True(t, tn[0] >= 'A' && tn[0] <= 'Z')
}

func TestAddImportEmptyClearsSet(t *testing.T) {
	ctx := NewExecutionContext()
	ctx.AddImport("strings")
	ctx.AddImport("fmt")
	ctx.AddImport("strings") // duplicate is a no-op
	require.Equal(t, []string{"strings", "fmt"}, ctx.Imports)

	ctx.AddImport("")
	assert.Empty(t, ctx.Imports)
}

func TestGenerateUnitModeCode(t *testing.T) {
	ctx := NewExecutionContext()
	ctx.GeneratedPackage = "demo"
	ctx.GeneratedType = "Runner"
	ctx.AddImport("strings")

	unit := GenerateUnit(`return strings.ToUpper("hi")`, ModeCode, ctx)

	assert.Equal(t, "demo", unit.Package)
	assert.Equal(t, "Runner", unit.TypeName)
	assert.Contains(t, unit.Source, "package demo\n")
	assert.Contains(t, unit.Source, "\t\"strings\"\n")
	assert.Contains(t, unit.Source, "func (s *Runner) ExecuteCode(params ...any) any {")
	assert.Contains(t, unit.Source, "var Model any")
	assert.Contains(t, unit.Source, `return strings.ToUpper("hi")`)
	assert.Contains(t, unit.Source, "return nil\n}")
	assert.Contains(t, unit.Source, "func NewScriptInstance() int {")
}

func TestGenerateUnitDefaultsNames(t *testing.T) {
	ctx := NewExecutionContext()
	unit := GenerateUnit("return 1", ModeCode, ctx)
	require.Len(t, unit.Package, identLength)
	require.Len(t, unit.TypeName, identLength)
	assert.Equal(t, ctx.GeneratedPackage, unit.Package)
	assert.Equal(t, ctx.GeneratedType, unit.TypeName)
}

func TestGenerateUnitModeTypeTakesDeclaredName(t *testing.T) {
	body := `type Counter struct {
	N int
}

func (c *Counter) Add() int {
	c.N++
	return c.N
}`
	ctx := NewExecutionContext()
	unit := GenerateUnit(body, ModeType, ctx)
	assert.Equal(t, "Counter", unit.TypeName)
	assert.Contains(t, unit.Source, "ScriptInstances = map[int]*Counter{}")
}

func TestDirectiveImportFolding(t *testing.T) {
	ctx := NewExecutionContext()
	body := "import \"strings\"\nimport s2 \"strconv\"\nreturn strings.ToUpper(s2.Itoa(1))"
	residual := extractDirectives(body, ctx)

	assert.Equal(t, []string{"strings", "s2 strconv"}, ctx.Imports)
	assert.Contains(t, residual, "// import: strings")
	assert.Contains(t, residual, "// import: s2 strconv")
	assert.NotContains(t, residual, "\nimport ")
}

func TestDirectiveImportBlockFolding(t *testing.T) {
	ctx := NewExecutionContext()
	body := "import (\n\t\"fmt\"\n\t\"strings\"\n)\nreturn fmt.Sprint(strings.TrimSpace(\" x \"))"
	extractDirectives(body, ctx)
	assert.Equal(t, []string{"fmt", "strings"}, ctx.Imports)
}

func TestDirectiveDetectionIsPrefixOnly(t *testing.T) {
	ctx := NewExecutionContext()
	body := `msg := "do not import \"os\" here"
return msg`
	residual := extractDirectives(body, ctx)
	assert.Empty(t, ctx.Imports)
	assert.Equal(t, body, residual)
}

func TestInlineReferenceGatedByPolicy(t *testing.T) {
	dir := t.TempDir()
	body := referenceDirective + " " + dir + "\nreturn 1"

	// Without the policy flag the directive is neutralized and no
	// reference is added.
	ctx := NewExecutionContext()
	residual := extractDirectives(body, ctx)
	assert.Contains(t, residual, "// reference ignored by policy:")
	assert.Empty(t, ctx.pathRefs)

	// With the flag it resolves through the same logic as AddReferencePath.
	ctx = NewExecutionContext()
	ctx.Policy.AllowInlineReferences = true
	residual = extractDirectives(body, ctx)
	assert.Contains(t, residual, "// reference: "+dir)
	assert.Len(t, ctx.pathRefs, 1)
}

func TestAddReferencePath(t *testing.T) {
	dir := t.TempDir()
	ctx := NewExecutionContext()

	assert.False(t, ctx.AddReferencePath("/does/not/exist"), "bad paths fail to add, never fatally")
	assert.True(t, ctx.AddReferencePath(dir))
	assert.True(t, ctx.AddReferencePath(dir), "duplicate resolved path is a no-op")
	assert.Len(t, ctx.pathRefs, 1)
}

func TestAddReferencePathLibraryFallback(t *testing.T) {
	lib := t.TempDir()
	require.NoError(t, mkdir(lib, "mylib"))

	ctx := NewExecutionContext()
	ctx.LibraryDir = lib
	assert.True(t, ctx.AddReferencePath("mylib"))
}

func TestAddReferenceType(t *testing.T) {
	type sample struct{ A int }
	ctx := NewExecutionContext()
	require.True(t, ctx.AddReferenceType(sample{}))
	require.False(t, ctx.AddReferenceType(42), "predeclared types carry no package path")
}

func TestGeneratedSourceWithLineNumbers(t *testing.T) {
	ctx := NewExecutionContext()
	ctx.lastSource = "package p\n\nvar x = 1"
	numbered := ctx.GeneratedSourceWithLineNumbers()
	assert.True(t, strings.HasPrefix(numbered, "1: package p\n"))
	assert.Contains(t, numbered, "3: var x = 1\n")
}
