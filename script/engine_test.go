package script

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// countingCompiler wraps the real toolchain and counts invocations, so
// caching behavior is assertable.
type countingCompiler struct {
	inner Compiler
	mu    sync.Mutex
	calls int
}

func newCountingCompiler() *countingCompiler {
	return &countingCompiler{inner: NewYaegiCompiler()}
}

func (c *countingCompiler) Compile(unit GeneratedUnit, ctx *ExecutionContext) (*Artifact, []Diagnostic) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Compile(unit, ctx)
}

func (c *countingCompiler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// newTestEngine builds an engine with a private cache so tests never touch
// the process-wide one.
func newTestEngine(t *testing.T) (*Engine, *countingCompiler) {
	t.Helper()
	cc := newCountingCompiler()
	return NewEngine(WithCompiler(cc), WithCache(NewMemoryCache())), cc
}

func TestExecuteCodeReturnsValue(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	ctx.AddImport("strings")

	out, err := e.ExecuteCode(ctx, `return strings.ToUpper("hello")`)
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, "HELLO", out)
	assert.Equal(t, StageInvoked, ctx.Stage())
}

func TestEvaluateExpression(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()

	out, err := e.EvaluateExpression(ctx, "1 + 2;")
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, 3, out)
}

func TestIdenticalSourceCompilesOnce(t *testing.T) {
	e, cc := newTestEngine(t)
	body := `return 40 + 2`

	ctx1 := NewExecutionContext()
	out, err := e.ExecuteCode(ctx1, body)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	ctx2 := NewExecutionContext()
	out, err = e.ExecuteCode(ctx2, body)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	assert.Equal(t, 1, cc.count(), "identical source must hit the cache")
}

func TestChangedCharacterForcesRecompilation(t *testing.T) {
	e, cc := newTestEngine(t)
	ctx := NewExecutionContext()

	_, err := e.ExecuteCode(ctx, `return 40 + 2`)
	require.NoError(t, err)
	_, err = e.ExecuteCode(ctx, `return 40 + 3`)
	require.NoError(t, err)

	assert.Equal(t, 2, cc.count())
}

func TestCacheHitKeepsFirstWriterNames(t *testing.T) {
	e, _ := newTestEngine(t)
	body := `return "shared"`

	ctx1 := NewExecutionContext()
	_, err := e.ExecuteCode(ctx1, body)
	require.NoError(t, err)

	ctx2 := NewExecutionContext()
	ctx2.GeneratedPackage = "wanted"
	ctx2.GeneratedType = "Wanted"
	_, err = e.ExecuteCode(ctx2, body)
	require.NoError(t, err)

	// The cached artifact's names silently win over the requested ones.
	assert.Equal(t, ctx1.GeneratedPackage, ctx2.GeneratedPackage)
	assert.Equal(t, ctx1.GeneratedType, ctx2.GeneratedType)
}

func TestDisableCachingCompilesEveryCall(t *testing.T) {
	e, cc := newTestEngine(t)
	ctx := NewExecutionContext()
	ctx.Policy.DisableCaching = true

	_, err := e.ExecuteCode(ctx, `return 1`)
	require.NoError(t, err)
	_, err = e.ExecuteCode(ctx, `return 1`)
	require.NoError(t, err)

	assert.Equal(t, 2, cc.count())
}

func TestCompilationFaultIsRecordedNeverThrown(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	ctx.Policy.ThrowOnError = true // must make no difference for compilation

	out, err := e.ExecuteCode(ctx, `x := `)
	require.NoError(t, err, "compilation faults are recorded, never thrown")
	assert.Nil(t, out)
	assert.Equal(t, ErrorCompilation, ctx.Err().Kind)
	assert.NotEmpty(t, ctx.Err().Message)
	assert.Nil(t, ctx.Instance(), "no instance may exist after a failed compile")
	assert.Equal(t, StageFaulted, ctx.Stage())

	// The context stays reusable and the record clears on the next call.
	out, err = e.ExecuteCode(ctx, `return 5`)
	require.NoError(t, err)
	assert.Equal(t, 5, out)
	assert.Equal(t, ErrorNone, ctx.Err().Kind)
}

func TestRuntimeFaultClassification(t *testing.T) {
	e, _ := newTestEngine(t)
	body := `panic("kaput")`

	// Recorded only by default.
	ctx := NewExecutionContext()
	out, err := e.ExecuteCode(ctx, body)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, ErrorRuntime, ctx.Err().Kind)
	assert.Contains(t, ctx.Err().Message, "kaput")

	// Re-raised as the call's error under ThrowOnError.
	ctx = NewExecutionContext()
	ctx.Policy.ThrowOnError = true
	_, err = e.ExecuteCode(ctx, body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
	assert.Equal(t, ErrorRuntime, ctx.Err().Kind)
}

func TestInstanceReuseObservesMutation(t *testing.T) {
	e, _ := newTestEngine(t)
	body := `type Counter struct {
	N int
}

func (c *Counter) Add() int {
	c.N++
	return c.N
}`

	ctx := NewExecutionContext()
	out, err := e.ExecuteType(ctx, body, "Add")
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, 1, out)

	// The second call reuses the same activated instance, so it observes
	// the first call's mutation.
	out, err = e.ExecuteType(ctx, body, "Add")
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestForceRecreateDropsState(t *testing.T) {
	e, _ := newTestEngine(t)
	body := `type Counter struct {
	N int
}

func (c *Counter) Add() int {
	c.N++
	return c.N
}`
	ctx := NewExecutionContext()
	_, err := e.ExecuteType(ctx, body, "Add")
	require.NoError(t, err)

	art := ctx.Instance().Artifact()
	inst, err := e.CreateInstance(ctx, art, true)
	require.NoError(t, err)

	out, err := e.Invoke(ctx, inst, "Add")
	require.NoError(t, err)
	assert.Equal(t, 1, out, "forced recreation starts from fresh state")
}

func TestExecuteMethod(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	ctx.AddImport("strings")
	body := `func (s *Script) Greet(name string) string {
	return "hello " + strings.TrimSpace(name)
}`

	out, err := e.ExecuteMethod(ctx, body, "Greet", "  world ")
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, "hello world", out)
}

func TestInvokeMissingMemberIsRuntimeFault(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	_, err := e.ExecuteCode(ctx, `return 1`)
	require.NoError(t, err)

	_, err = e.Invoke(ctx, ctx.Instance(), "NoSuchMember")
	require.NoError(t, err)
	assert.Equal(t, ErrorRuntime, ctx.Err().Kind)
}

func TestAwaitChannelResult(t *testing.T) {
	// A channel-typed member result passes through Invoke opaquely and the
	// typed helpers receive from it.
	got, err := Await(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	ch := make(chan any, 1)
	ch <- "done"
	got, err = Await(ch)
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	errCh := make(chan any, 1)
	errCh <- assert.AnError
	_, err = Await(errCh)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestInvokeStringAwaitsAsyncMember(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	body := `func (s *Script) Later() chan any {
	ch := make(chan any, 1)
	go func() {
		ch <- "eventually"
	}()
	return ch
}`
	_, err := e.ExecuteMethod(ctx, body, "Later")
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)

	out, err := e.InvokeString(ctx, ctx.Instance(), "Later")
	require.NoError(t, err)
	assert.Equal(t, "eventually", out)
}

func TestInvokeIntShapesResult(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	_, err := e.ExecuteCode(ctx, `return 7`)
	require.NoError(t, err)

	n, err := e.InvokeInt(ctx, ctx.Instance(), "ExecuteCode")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestWarmup(t *testing.T) {
	defer goleak.VerifyNone(t)
	e, cc := newTestEngine(t)

	done := e.Warmup()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("warmup did not finish")
	}
	assert.Equal(t, 1, cc.count())
}

func TestSymbolReference(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	require.True(t, ctx.AddReference("hostlib", Symbols{
		"Double": func(n int) int { return n * 2 },
	}))
	ctx.AddImport("hostlib")

	out, err := e.ExecuteCode(ctx, `return hostlib.Double(21)`)
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, 42, out)
}

func writeReferenceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := `package mathx

func Triple(n int) int {
	return n * 3
}
`
	require.NoError(t, os.WriteFile(dir+"/mathx.go", []byte(src), 0o644))
	return dir
}

func TestPathReferenceLoadsIntoUnit(t *testing.T) {
	e, _ := newTestEngine(t)
	dir := writeReferenceDir(t)

	ctx := NewExecutionContext()
	require.True(t, ctx.AddReferencePath(dir))
	ctx.AddImport("mathx")

	out, err := e.ExecuteCode(ctx, `return mathx.Triple(14)`)
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, 42, out)
}

func TestInlineReferenceDirectiveEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t)
	dir := writeReferenceDir(t)

	ctx := NewExecutionContext()
	ctx.Policy.AllowInlineReferences = true
	ctx.AddImport("mathx")

	body := "//go:reference " + dir + "\nreturn mathx.Triple(7)"
	out, err := e.ExecuteCode(ctx, body)
	require.NoError(t, err)
	require.False(t, ctx.Err().HasError(), "unexpected fault: %s", ctx.Err().Message)
	assert.Equal(t, 21, out)
}

func TestPersistGeneratedSource(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := NewExecutionContext()
	ctx.OutputDir = t.TempDir()
	ctx.Policy.PersistGeneratedSource = true
	ctx.Policy.DebugSymbols = true

	_, err := e.ExecuteCode(ctx, `return 9`)
	require.NoError(t, err)

	entries, err := readDirNames(ctx.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "expected source plus line-numbered listing")
	assert.NotEmpty(t, ctx.GeneratedSource())
}
