package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the file-loadable configuration a host applies to its
// contexts: default policy flags, directories, imports, and the template
// tag syntax (consumed by the templates package).
type Settings struct {
	Policy struct {
		AllowInlineReferences  bool `yaml:"allow_inline_references"`
		ThrowOnError           bool `yaml:"throw_on_error"`
		PersistGeneratedSource bool `yaml:"persist_generated_source"`
		DisableCaching         bool `yaml:"disable_caching"`
		DebugSymbols           bool `yaml:"debug_symbols"`
	} `yaml:"policy"`

	LibraryDir string   `yaml:"library_dir"`
	OutputDir  string   `yaml:"output_dir"`
	Imports    []string `yaml:"imports"`

	Template struct {
		Start               string `yaml:"start"`
		End                 string `yaml:"end"`
		CodeBlockIndicator  string `yaml:"code_block_indicator"`
		HTMLEncodeIndicator string `yaml:"html_encode_indicator"`
		RawIndicator        string `yaml:"raw_indicator"`
		CommentIndicator    string `yaml:"comment_indicator"`
		EncodeByDefault     bool   `yaml:"encode_by_default"`
	} `yaml:"template"`
}

// DefaultSettings returns the stock configuration: everything off except
// encode-by-default, stock delimiters.
func DefaultSettings() Settings {
	var s Settings
	s.Template.Start = "{{"
	s.Template.End = "}}"
	s.Template.CodeBlockIndicator = "%"
	s.Template.HTMLEncodeIndicator = ":"
	s.Template.RawIndicator = "!"
	s.Template.CommentIndicator = "@"
	s.Template.EncodeByDefault = true
	return s
}

// LoadSettings reads a YAML settings file over the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyTo copies policy, paths and imports onto a context.
func (s Settings) ApplyTo(ctx *ExecutionContext) {
	ctx.Policy = Policy{
		AllowInlineReferences:  s.Policy.AllowInlineReferences,
		ThrowOnError:           s.Policy.ThrowOnError,
		PersistGeneratedSource: s.Policy.PersistGeneratedSource,
		DisableCaching:         s.Policy.DisableCaching,
		DebugSymbols:           s.Policy.DebugSymbols,
	}
	ctx.LibraryDir = s.LibraryDir
	ctx.OutputDir = s.OutputDir
	for _, im := range s.Imports {
		ctx.AddImport(im)
	}
}
