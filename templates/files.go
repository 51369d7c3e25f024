package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"scriptkit/internal/logging"
)

// FileResolver loads template files from a root directory and splices
// layouts, sections and partials into a single template before
// transpilation. Resolution is convention-based text substitution, fully
// independent of the pipeline itself.
//
// Conventions inside a content template:
//
//	@layout "shared/layout.html"    declares the parent layout
//	@section name ... @end          defines a named region
//
// Inside a layout:
//
//	@renderbody                     receives the content body
//	@rendersection name             receives the named region, or nothing
//
// Anywhere:
//
//	{{> path}}                      inlines a partial file
//
// Paths starting with "~/" resolve against the root; other relative paths
// resolve against the including file's directory.
type FileResolver struct {
	Root string
	// MaxPartialDepth bounds partial nesting; 0 means the default of 10.
	MaxPartialDepth int

	cache *TemplateCache
	log   *zap.Logger
}

// NewFileResolver returns a resolver rooted at dir, without caching.
func NewFileResolver(dir string) *FileResolver {
	return &FileResolver{
		Root: dir,
		log:  logging.L(logging.CategoryFiles),
	}
}

// WithCache attaches a watching cache so repeated resolutions of unchanged
// files skip disk and splicing work.
func (r *FileResolver) WithCache(c *TemplateCache) *FileResolver {
	r.cache = c
	return r
}

var (
	layoutRe        = regexp.MustCompile(`(?m)^[ \t]*@layout[ \t]+"([^"]+)"[ \t]*\r?$`)
	sectionRe       = regexp.MustCompile(`(?ms)^[ \t]*@section[ \t]+(\w+)[ \t]*\r?$(.*?)^[ \t]*@end[ \t]*\r?$`)
	renderBodyRe    = regexp.MustCompile(`(?m)^[ \t]*@renderbody[ \t]*\r?$`)
	renderSectionRe = regexp.MustCompile(`(?m)^[ \t]*@rendersection[ \t]+(\w+)[ \t]*\r?$`)
	partialRe       = regexp.MustCompile(`\{\{>[ \t]*([^\s}]+)[ \t]*\}\}`)
)

// Resolve loads path, applies its declared layout and named sections, and
// inlines partials. The returned text is ready for Transpile.
func (r *FileResolver) Resolve(path string) (string, error) {
	full, err := r.resolvePath(path, r.Root)
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		if text, ok := r.cache.Get(full); ok {
			return text, nil
		}
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("template %s: %w", path, err)
	}
	text, err := r.splice(string(content), filepath.Dir(full))
	if err != nil {
		return "", err
	}
	text, err = r.inlinePartials(text, filepath.Dir(full), r.maxDepth())
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		r.cache.Put(full, text)
	}
	r.log.Debug("resolved template", zap.String("path", full))
	return text, nil
}

// splice applies the content's declared layout: sections are lifted out of
// the content and substituted into the layout's render points, and the
// remaining body replaces @renderbody.
func (r *FileResolver) splice(content, baseDir string) (string, error) {
	m := layoutRe.FindStringSubmatch(content)
	if m == nil {
		return content, nil
	}
	layoutPath, err := r.resolvePath(m[1], baseDir)
	if err != nil {
		return "", err
	}
	layout, err := os.ReadFile(layoutPath)
	if err != nil {
		return "", fmt.Errorf("layout %s: %w", m[1], err)
	}

	content = layoutRe.ReplaceAllString(content, "")
	sections := make(map[string]string)
	content = sectionRe.ReplaceAllStringFunc(content, func(region string) string {
		sm := sectionRe.FindStringSubmatch(region)
		sections[sm[1]] = strings.Trim(sm[2], "\r\n")
		return ""
	})
	body := strings.Trim(content, "\r\n")

	out := renderSectionRe.ReplaceAllStringFunc(string(layout), func(point string) string {
		pm := renderSectionRe.FindStringSubmatch(point)
		return sections[pm[1]] // missing sections render as nothing
	})
	out = renderBodyRe.ReplaceAllStringFunc(out, func(string) string { return body })
	return out, nil
}

// inlinePartials replaces {{> path}} tags with the referenced file's
// content, depth-limited against inclusion cycles.
func (r *FileResolver) inlinePartials(text, baseDir string, depth int) (string, error) {
	if depth <= 0 {
		return "", fmt.Errorf("partial nesting exceeds %d levels", r.maxDepth())
	}
	var ferr error
	out := partialRe.ReplaceAllStringFunc(text, func(tag string) string {
		if ferr != nil {
			return tag
		}
		path := partialRe.FindStringSubmatch(tag)[1]
		full, err := r.resolvePath(path, baseDir)
		if err != nil {
			ferr = err
			return tag
		}
		content, err := os.ReadFile(full)
		if err != nil {
			ferr = fmt.Errorf("partial %s: %w", path, err)
			return tag
		}
		inlined, err := r.inlinePartials(string(content), filepath.Dir(full), depth-1)
		if err != nil {
			ferr = err
			return tag
		}
		return inlined
	})
	if ferr != nil {
		return "", ferr
	}
	return out, nil
}

// resolvePath maps a template reference to an absolute file path. "~/"
// prefixes are root-relative; everything else resolves against baseDir,
// then the root. The result must stay under the root.
func (r *FileResolver) resolvePath(path, baseDir string) (string, error) {
	var cand string
	switch {
	case strings.HasPrefix(path, "~/"):
		cand = filepath.Join(r.Root, path[2:])
	case filepath.IsAbs(path):
		cand = path
	default:
		cand = filepath.Join(baseDir, path)
		if _, err := os.Stat(cand); err != nil {
			cand = filepath.Join(r.Root, path)
		}
	}
	cand = filepath.Clean(cand)
	root := filepath.Clean(r.Root)
	if root != "" && cand != root && !strings.HasPrefix(cand, root+string(filepath.Separator)) {
		return "", fmt.Errorf("template path %s escapes root", path)
	}
	if _, err := os.Stat(cand); err != nil {
		return "", fmt.Errorf("template %s: %w", path, err)
	}
	return cand, nil
}

func (r *FileResolver) maxDepth() int {
	if r.MaxPartialDepth > 0 {
		return r.MaxPartialDepth
	}
	return 10
}
