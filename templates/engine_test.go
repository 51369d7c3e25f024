package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptkit/script"
)

func newTestTemplateEngine() *Engine {
	// Private cache keeps the process-wide one out of test runs.
	se := script.NewEngine(script.WithCache(script.NewMemoryCache()))
	return NewEngine(WithScriptEngine(se))
}

func TestRenderPlainText(t *testing.T) {
	e := newTestTemplateEngine()
	out, err := e.RenderString("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestRenderExpression(t *testing.T) {
	e := newTestTemplateEngine()
	out, err := e.RenderString("{{ 1 + 2 }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}

func TestRenderLoopWithoutStrayWhitespace(t *testing.T) {
	e := newTestTemplateEngine()
	out, err := e.RenderString("{{% for i := 1; i < 3; i++ { %}}{{ i }}{{% } %}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "12", out)
}

func TestRenderEncodesByDefault(t *testing.T) {
	e := newTestTemplateEngine()

	out, err := e.RenderString(`{{ "<b>" }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;", out)

	out, err = e.RenderString(`{{! "<b>" }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "<b>", out)
}

func TestRenderRawMarkerBypassesEncoding(t *testing.T) {
	e := newTestTemplateEngine()
	out, err := e.RenderString(`{{ scriptrt.Raw("<i>") }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "<i>", out)
}

func TestRenderModelBinding(t *testing.T) {
	e := newTestTemplateEngine()
	out, err := e.RenderString("Hello {{ Model }}!", "world")
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", out)
}

func TestRenderMixedLiteralAndCode(t *testing.T) {
	e := newTestTemplateEngine()
	tpl := "Items:{{% for i := 0; i < 2; i++ { %}} #{{ i }}{{% } %}}."
	out, err := e.RenderString(tpl, nil)
	require.NoError(t, err)
	assert.Equal(t, "Items: #0 #1.", out)
}

func TestRenderParseFaultIsCompilationRecord(t *testing.T) {
	e := newTestTemplateEngine()
	ctx := script.NewExecutionContext()

	out, err := e.Render(ctx, "broken }} template", nil)
	require.NoError(t, err, "parse faults surface through the record, not the error")
	assert.Empty(t, out)
	assert.Equal(t, script.ErrorCompilation, ctx.Err().Kind)
	assert.NotEmpty(t, ctx.Err().Message)
}

func TestRenderBadExpressionIsCompilationRecord(t *testing.T) {
	e := newTestTemplateEngine()
	ctx := script.NewExecutionContext()

	_, err := e.Render(ctx, "{{ not valid go ! }}", nil)
	require.NoError(t, err)
	assert.Equal(t, script.ErrorCompilation, ctx.Err().Kind)
}

func TestRenderStringSurfacesFaults(t *testing.T) {
	e := newTestTemplateEngine()
	_, err := e.RenderString("broken }} template", nil)
	require.Error(t, err)
	var rerr *RenderError
	assert.ErrorAs(t, err, &rerr)
}

func TestRenderReusesCompiledTemplate(t *testing.T) {
	cc := &countingScriptCompiler{inner: script.NewYaegiCompiler()}
	se := script.NewEngine(script.WithCompiler(cc), script.WithCache(script.NewMemoryCache()))
	e := NewEngine(WithScriptEngine(se))

	for i := 0; i < 3; i++ {
		out, err := e.RenderString("{{ 2 * 3 }}", nil)
		require.NoError(t, err)
		assert.Equal(t, "6", out)
	}
	assert.Equal(t, 1, cc.calls, "the same template must compile once")
}

type countingScriptCompiler struct {
	inner script.Compiler
	calls int
}

func (c *countingScriptCompiler) Compile(unit script.GeneratedUnit, ctx *script.ExecutionContext) (*script.Artifact, []script.Diagnostic) {
	c.calls++
	return c.inner.Compile(unit, ctx)
}
