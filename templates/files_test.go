package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scriptkit/script"
)

func writeTemplate(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func TestResolvePlainFile(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "hello.html", "Hello {{ Model }}!")

	r := NewFileResolver(root)
	text, err := r.Resolve("hello.html")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{ Model }}!", text)
}

func TestResolveLayoutAndSections(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "shared/layout.html",
		"<head>\n@rendersection head\n</head>\n<body>\n@renderbody\n</body>")
	writeTemplate(t, root, "page.html",
		"@layout \"shared/layout.html\"\n@section head\n<title>Hi</title>\n@end\n<p>content</p>")

	r := NewFileResolver(root)
	text, err := r.Resolve("page.html")
	require.NoError(t, err)
	assert.Equal(t, "<head>\n<title>Hi</title>\n</head>\n<body>\n<p>content</p>\n</body>", text)
}

func TestResolveMissingSectionRendersNothing(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "layout.html", "a\n@rendersection extras\nb\n@renderbody")
	writeTemplate(t, root, "page.html", "@layout \"layout.html\"\nbody")

	r := NewFileResolver(root)
	text, err := r.Resolve("page.html")
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb\nbody", text)
}

func TestResolveInlinesPartials(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "partials/header.html", "<h1>Title</h1>")
	writeTemplate(t, root, "page.html", "{{> partials/header.html}}\n<p>body</p>")

	r := NewFileResolver(root)
	text, err := r.Resolve("page.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Title</h1>\n<p>body</p>", text)
}

func TestResolveNestedPartialsRelativeToIncluder(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "partials/outer.html", "[{{> inner.html}}]")
	writeTemplate(t, root, "partials/inner.html", "inner")
	writeTemplate(t, root, "page.html", "{{> partials/outer.html}}")

	r := NewFileResolver(root)
	text, err := r.Resolve("page.html")
	require.NoError(t, err)
	assert.Equal(t, "[inner]", text)
}

func TestResolveRootRelativePartial(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "shared/nav.html", "nav")
	writeTemplate(t, root, "pages/deep/page.html", "{{> ~/shared/nav.html}}")

	r := NewFileResolver(root)
	text, err := r.Resolve("pages/deep/page.html")
	require.NoError(t, err)
	assert.Equal(t, "nav", text)
}

func TestResolvePartialCycleFails(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "a.html", "{{> b.html}}")
	writeTemplate(t, root, "b.html", "{{> a.html}}")

	r := NewFileResolver(root)
	_, err := r.Resolve("a.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting")
}

func TestResolveRejectsRootEscape(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "page.html", "{{> ../secret.html}}")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.html"), []byte("x"), 0o644))

	r := NewFileResolver(root)
	_, err := r.Resolve("page.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes root")
}

func TestResolveMissingFile(t *testing.T) {
	r := NewFileResolver(t.TempDir())
	_, err := r.Resolve("nope.html")
	require.Error(t, err)
}

func TestTemplateCacheServesAndInvalidates(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	path := writeTemplate(t, root, "page.html", "v1")

	cache, err := NewTemplateCache()
	require.NoError(t, err)
	defer cache.Stop()

	r := NewFileResolver(root).WithCache(cache)

	text, err := r.Resolve("page.html")
	require.NoError(t, err)
	assert.Equal(t, "v1", text)
	assert.Equal(t, 1, cache.Len())

	// A rewrite must drop the entry, through the watcher or the mtime check.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.Eventually(t, func() bool {
		text, err := r.Resolve("page.html")
		return err == nil && text == "v2"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestTemplateCacheStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache, err := NewTemplateCache()
	require.NoError(t, err)
	cache.Stop()
	cache.Stop()
}

func TestRenderFileEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "layout.html", "<<\n@renderbody\n>>")
	writeTemplate(t, root, "greet.html", "@layout \"layout.html\"\nHi {{ Model }}")

	e := NewEngine(
		WithScriptEngine(script.NewEngine(script.WithCache(script.NewMemoryCache()))),
		WithFileResolver(NewFileResolver(root)),
	)

	out, err := e.RenderFileString("greet.html", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "<<\nHi Ana\n>>", out)
}
