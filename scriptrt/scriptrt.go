// Package scriptrt holds the runtime support symbols that generated script
// units call. The script bootstrap exports this package into every
// interpreter under the import path "scriptkit/scriptrt", so transpiled
// template bodies can write encoded and raw output without the host wiring
// anything per call.
package scriptrt

import (
	"fmt"
	"html"
	"strings"
)

// RawString marks a value that must never be HTML-encoded when written by
// generated template code, regardless of the encode-by-default policy.
type RawString string

func (r RawString) String() string { return string(r) }

// Raw wraps a value so template output writes it without encoding.
func Raw(v any) RawString { return RawString(Stringify(v)) }

// Stringify renders an arbitrary value the way generated units print it.
// Nil renders as the empty string, not "<nil>".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case RawString:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}

// HTMLEncode escapes v for HTML output. Values carrying the raw marker pass
// through untouched.
func HTMLEncode(v any) string {
	if r, ok := v.(RawString); ok {
		return string(r)
	}
	return html.EscapeString(Stringify(v))
}

// Write appends v to the output buffer without encoding.
func Write(sb *strings.Builder, v any) {
	sb.WriteString(Stringify(v))
}

// WriteEncoded appends v to the output buffer, HTML-escaped unless v carries
// the raw marker.
func WriteEncoded(sb *strings.Builder, v any) {
	sb.WriteString(HTMLEncode(v))
}
