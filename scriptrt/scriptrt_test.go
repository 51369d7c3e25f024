package scriptrt

import (
	"errors"
	"strings"
	"testing"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"int", 42, "42"},
		{"raw", RawString("<b>"), "<b>"},
		{"error", errors.New("boom"), "boom"},
		{"float", 1.5, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.in); got != tt.want {
				t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHTMLEncode(t *testing.T) {
	if got := HTMLEncode(`<b>&"</b>`); got != "&lt;b&gt;&amp;&#34;&lt;/b&gt;" {
		t.Errorf("HTMLEncode = %q", got)
	}
	if got := HTMLEncode(Raw("<b>")); got != "<b>" {
		t.Errorf("raw marker must bypass encoding, got %q", got)
	}
}

func TestWriteHelpers(t *testing.T) {
	var sb strings.Builder
	Write(&sb, "<a>")
	WriteEncoded(&sb, "<a>")
	WriteEncoded(&sb, Raw("<a>"))
	if got := sb.String(); got != "<a>&lt;a&gt;<a>" {
		t.Errorf("buffer = %q", got)
	}
}
