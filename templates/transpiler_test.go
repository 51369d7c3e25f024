package templates

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transpileOK(t *testing.T, template string, d Delimiters) string {
	t.Helper()
	body, err := Transpile(template, d)
	require.NoError(t, err)
	return body
}

func TestTranspilePlainText(t *testing.T) {
	body := transpileOK(t, "plain text", Delimiters{})
	want := "var __sb strings.Builder\n" +
		"__sb.WriteString(\"plain text\")\n" +
		"return __sb.String()"
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestTranspileBareExpression(t *testing.T) {
	body := transpileOK(t, "{{ 1 + 2 }}", DefaultDelimiters())
	want := "var __sb strings.Builder\n" +
		"scriptrt.WriteEncoded(&__sb, 1 + 2)\n" +
		"return __sb.String()"
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestTranspileEncodePolicy(t *testing.T) {
	d := DefaultDelimiters()

	body := transpileOK(t, `{{ "<b>" }}`, d)
	assert.Contains(t, body, `scriptrt.WriteEncoded(&__sb, "<b>")`)

	// The raw indicator always bypasses encoding.
	body = transpileOK(t, `{{! "<b>" }}`, d)
	assert.Contains(t, body, `scriptrt.Write(&__sb, "<b>")`)

	// The encode indicator forces encoding even with the default off.
	d.EncodeByDefault = false
	body = transpileOK(t, `{{ v }}{{: v }}`, d)
	assert.Contains(t, body, "scriptrt.Write(&__sb, v)\n")
	assert.Contains(t, body, "scriptrt.WriteEncoded(&__sb, v)\n")
}

func TestTranspileCodeBlocks(t *testing.T) {
	body := transpileOK(t, "{{% for i := 1; i < 3; i++ { %}}{{ i }}{{% } %}}", DefaultDelimiters())
	want := "var __sb strings.Builder\n" +
		"for i := 1; i < 3; i++ {\n" +
		"scriptrt.WriteEncoded(&__sb, i)\n" +
		"}\n" +
		"return __sb.String()"
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestTranspileSwallowsOneNewlineAfterCodeBlock(t *testing.T) {
	body := transpileOK(t, "{{% x := 1 %}}\n{{ x }}!", DefaultDelimiters())
	// The newline after the block tag is layout, not output.
	assert.NotContains(t, body, `"\n"`)
	assert.Contains(t, body, "x := 1\n")
	assert.Contains(t, body, `__sb.WriteString("!")`)

	body = transpileOK(t, "{{% y := 2 %}}\r\nZ", DefaultDelimiters())
	assert.Contains(t, body, `__sb.WriteString("Z")`)
}

func TestTranspileCommentsStripped(t *testing.T) {
	body := transpileOK(t, "A{{@ not rendered, not code @}}B", DefaultDelimiters())
	assert.Contains(t, body, `__sb.WriteString("AB")`)
	assert.NotContains(t, body, "not rendered")
}

func TestTranspileEscapedDelimiters(t *testing.T) {
	body := transpileOK(t, `use \{\{ tags \}\} here`, DefaultDelimiters())
	assert.Contains(t, body, `__sb.WriteString("use {{ tags }} here")`)
}

func TestTranspileMalformedNesting(t *testing.T) {
	_, err := Transpile("oops }} here", DefaultDelimiters())
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 5, perr.Offset)

	_, err = Transpile("{{ a }} then }}", DefaultDelimiters())
	require.ErrorAs(t, err, &perr)

	_, err = Transpile("{{ never closed", DefaultDelimiters())
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "unterminated")
}

func TestTranspileCustomDelimiters(t *testing.T) {
	d := Delimiters{Start: "<%", End: "%>", CodeBlockIndicator: "#", EncodeByDefault: true}
	body := transpileOK(t, "<%# n := 5 #%><% n %>", d)
	assert.Contains(t, body, "n := 5\n")
	assert.Contains(t, body, "scriptrt.WriteEncoded(&__sb, n)")
}

func TestTranspileLiteralAroundTags(t *testing.T) {
	body := transpileOK(t, "a {{ x }} b", DefaultDelimiters())
	want := "var __sb strings.Builder\n" +
		"__sb.WriteString(\"a \")\n" +
		"scriptrt.WriteEncoded(&__sb, x)\n" +
		"__sb.WriteString(\" b\")\n" +
		"return __sb.String()"
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}
