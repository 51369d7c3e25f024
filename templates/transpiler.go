// Package templates layers a small templating language over the script
// pipeline: literal text interleaved with embedded expressions and code
// blocks is transpiled into a statement body the script generator wraps,
// so rendering a template reduces to generate, compile, invoke.
package templates

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiters configures the tag syntax of the transpiler.
type Delimiters struct {
	Start               string // opens a tag
	End                 string // closes a tag
	CodeBlockIndicator  string // {{% ... %}} emits raw statements
	HTMLEncodeIndicator string // {{: expr }} forces an encoded write
	RawIndicator        string // {{! expr }} forces an unencoded write
	CommentIndicator    string // {{@ ... @}} regions are stripped
	EncodeByDefault     bool   // encode bare {{ expr }} writes
}

// DefaultDelimiters returns the stock {{ ... }} syntax with encoding on.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Start:               "{{",
		End:                 "}}",
		CodeBlockIndicator:  "%",
		HTMLEncodeIndicator: ":",
		RawIndicator:        "!",
		CommentIndicator:    "@",
		EncodeByDefault:     true,
	}
}

func (d Delimiters) withDefaults() Delimiters {
	def := DefaultDelimiters()
	if d.Start == "" {
		d.Start = def.Start
	}
	if d.End == "" {
		d.End = def.End
	}
	if d.CodeBlockIndicator == "" {
		d.CodeBlockIndicator = def.CodeBlockIndicator
	}
	if d.HTMLEncodeIndicator == "" {
		d.HTMLEncodeIndicator = def.HTMLEncodeIndicator
	}
	if d.RawIndicator == "" {
		d.RawIndicator = def.RawIndicator
	}
	if d.CommentIndicator == "" {
		d.CommentIndicator = def.CommentIndicator
	}
	return d
}

// ParseError reports malformed template structure. It surfaces through the
// context's ErrorRecord, never as a panic.
type ParseError struct {
	Offset int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("template parse error at offset %d: %s", e.Offset, e.Detail)
}

// Transpile lowers a template into a statement body for the script
// generator: literal chunks become buffer writes, tags become expression
// writes or verbatim statements. The emitted body declares its own output
// buffer and ends by returning the built string, so it composes directly as
// a ModeCode body. The body imports "strings" and "scriptkit/scriptrt".
func Transpile(template string, d Delimiters) (string, error) {
	d = d.withDefaults()
	tpl := stripComments(template, d)

	var b strings.Builder
	b.WriteString("var __sb strings.Builder\n")

	writeLiteral := func(lit string) {
		if lit == "" {
			return
		}
		fmt.Fprintf(&b, "__sb.WriteString(%s)\n", strconv.Quote(unescapeDelims(lit, d)))
	}

	if !strings.Contains(tpl, d.Start) {
		if e := strings.Index(tpl, d.End); e >= 0 {
			return "", &ParseError{Offset: e, Detail: d.End + " without matching " + d.Start}
		}
		writeLiteral(tpl)
		b.WriteString("return __sb.String()")
		return b.String(), nil
	}

	pos := 0
	for pos <= len(tpl) {
		rel := strings.Index(tpl[pos:], d.Start)
		if rel < 0 {
			tail := tpl[pos:]
			if e := strings.Index(tail, d.End); e >= 0 {
				return "", &ParseError{Offset: pos + e, Detail: d.End + " without matching " + d.Start}
			}
			writeLiteral(tail)
			break
		}
		lit := tpl[pos : pos+rel]
		if e := strings.Index(lit, d.End); e >= 0 {
			return "", &ParseError{Offset: pos + e, Detail: d.End + " without matching " + d.Start}
		}
		writeLiteral(lit)

		tagStart := pos + rel + len(d.Start)
		endRel := strings.Index(tpl[tagStart:], d.End)
		if endRel < 0 {
			return "", &ParseError{Offset: pos + rel, Detail: "unterminated " + d.Start + " tag"}
		}
		tag := tpl[tagStart : tagStart+endRel]
		pos = tagStart + endRel + len(d.End)

		switch {
		case strings.HasPrefix(tag, d.CodeBlockIndicator):
			code := strings.TrimPrefix(tag, d.CodeBlockIndicator)
			code = strings.TrimSuffix(code, d.CodeBlockIndicator)
			b.WriteString(strings.TrimSpace(code))
			b.WriteString("\n")
			// Swallow exactly one line break after a code-block tag so
			// template-readability newlines don't leak into output.
			pos = skipOneNewline(tpl, pos)
		case strings.HasPrefix(tag, d.HTMLEncodeIndicator):
			expr := strings.TrimSpace(strings.TrimPrefix(tag, d.HTMLEncodeIndicator))
			fmt.Fprintf(&b, "scriptrt.WriteEncoded(&__sb, %s)\n", expr)
		case strings.HasPrefix(tag, d.RawIndicator):
			expr := strings.TrimSpace(strings.TrimPrefix(tag, d.RawIndicator))
			fmt.Fprintf(&b, "scriptrt.Write(&__sb, %s)\n", expr)
		default:
			expr := strings.TrimSpace(tag)
			if d.EncodeByDefault {
				fmt.Fprintf(&b, "scriptrt.WriteEncoded(&__sb, %s)\n", expr)
			} else {
				fmt.Fprintf(&b, "scriptrt.Write(&__sb, %s)\n", expr)
			}
		}
	}

	b.WriteString("return __sb.String()")
	return b.String(), nil
}

// stripComments removes {{@ ... @}} regions before the main scan; they
// contribute nothing to output or code. An unterminated comment swallows
// the rest of the template.
func stripComments(tpl string, d Delimiters) string {
	open := d.Start + d.CommentIndicator
	clos := d.CommentIndicator + d.End
	for {
		i := strings.Index(tpl, open)
		if i < 0 {
			return tpl
		}
		j := strings.Index(tpl[i+len(open):], clos)
		if j < 0 {
			return tpl[:i]
		}
		tpl = tpl[:i] + tpl[i+len(open)+j+len(clos):]
	}
}

// unescapeDelims turns backslash-escaped delimiter sequences back into
// literal delimiter text inside a literal chunk.
func unescapeDelims(s string, d Delimiters) string {
	s = strings.ReplaceAll(s, escapedForm(d.Start), d.Start)
	return strings.ReplaceAll(s, escapedForm(d.End), d.End)
}

// escapedForm of "{{" is `\{\{`: every delimiter byte backslash-prefixed.
func escapedForm(delim string) string {
	var sb strings.Builder
	for _, r := range delim {
		sb.WriteByte('\\')
		sb.WriteRune(r)
	}
	return sb.String()
}

func skipOneNewline(s string, pos int) int {
	if pos < len(s) && s[pos] == '\r' {
		pos++
	}
	if pos < len(s) && s[pos] == '\n' {
		pos++
	}
	return pos
}
