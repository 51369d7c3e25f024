package templates

import (
	"go.uber.org/zap"

	"scriptkit/internal/logging"
	"scriptkit/script"
)

// Engine renders templates by lowering them to script bodies and pushing
// them through the compile-cache-invoke pipeline. It is the simplified
// "render template with data" entry point; the script engine behind it is
// reachable for anything beyond that.
type Engine struct {
	scripts  *script.Engine
	delims   Delimiters
	resolver *FileResolver
	log      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScriptEngine substitutes the backing script engine.
func WithScriptEngine(se *script.Engine) Option {
	return func(e *Engine) { e.scripts = se }
}

// WithDelimiters substitutes the tag syntax.
func WithDelimiters(d Delimiters) Option {
	return func(e *Engine) { e.delims = d }
}

// WithFileResolver enables RenderFile against a template root.
func WithFileResolver(r *FileResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithSettings maps the template section of a settings file onto the
// engine's delimiters.
func WithSettings(s script.Settings) Option {
	return func(e *Engine) {
		e.delims = Delimiters{
			Start:               s.Template.Start,
			End:                 s.Template.End,
			CodeBlockIndicator:  s.Template.CodeBlockIndicator,
			HTMLEncodeIndicator: s.Template.HTMLEncodeIndicator,
			RawIndicator:        s.Template.RawIndicator,
			CommentIndicator:    s.Template.CommentIndicator,
			EncodeByDefault:     s.Template.EncodeByDefault,
		}
	}
}

// NewEngine returns a template engine over a fresh script engine with the
// stock delimiters.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scripts: script.NewEngine(),
		delims:  DefaultDelimiters(),
		log:     logging.L(logging.CategoryTemplates),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scripts returns the backing script engine.
func (e *Engine) Scripts() *script.Engine { return e.scripts }

// Render transpiles template and executes it with model bound as Model.
// Transpile and compile faults are classified Compilation on ctx and never
// returned as errors; execution faults are Runtime and follow the context's
// throw policy.
func (e *Engine) Render(ctx *script.ExecutionContext, template string, model any) (string, error) {
	ctx.ClearErrors()
	body, err := Transpile(template, e.delims)
	if err != nil {
		ctx.RecordFault(script.ErrorCompilation, err.Error(), err)
		e.log.Debug("transpile failed", zap.String("context", ctx.ID), zap.Error(err))
		return "", nil
	}
	ctx.AddImport("strings")
	ctx.AddImport("scriptkit/scriptrt")
	out, rerr := e.scripts.ExecuteCode(ctx, body, model)
	if rerr != nil {
		return "", rerr
	}
	if ctx.Err().HasError() {
		return "", nil
	}
	s, _ := out.(string)
	return s, nil
}

// RenderString renders template against model with a throwaway context
// whose throw policy is on, so every fault comes back as the error.
func (e *Engine) RenderString(template string, model any) (string, error) {
	ctx := script.NewExecutionContext()
	ctx.Policy.ThrowOnError = true
	out, err := e.Render(ctx, template, model)
	if err != nil {
		return "", err
	}
	if rec := ctx.Err(); rec.HasError() {
		// Compilation faults are recorded only; surface them here since a
		// throwaway context gives the caller nothing else to inspect.
		return "", &RenderError{Record: *rec}
	}
	return out, nil
}

// RenderFile resolves path through the file resolver, splicing layout,
// sections and partials, then renders the result.
func (e *Engine) RenderFile(ctx *script.ExecutionContext, path string, model any) (string, error) {
	ctx.ClearErrors()
	if e.resolver == nil {
		ctx.RecordFault(script.ErrorCompilation, "no file resolver configured", nil)
		return "", nil
	}
	text, err := e.resolver.Resolve(path)
	if err != nil {
		ctx.RecordFault(script.ErrorCompilation, err.Error(), err)
		return "", nil
	}
	return e.Render(ctx, text, model)
}

// RenderFileString is RenderFile with a throwaway throwing context, like
// RenderString.
func (e *Engine) RenderFileString(path string, model any) (string, error) {
	ctx := script.NewExecutionContext()
	ctx.Policy.ThrowOnError = true
	out, err := e.RenderFile(ctx, path, model)
	if err != nil {
		return "", err
	}
	if rec := ctx.Err(); rec.HasError() {
		return "", &RenderError{Record: *rec}
	}
	return out, nil
}

// RenderError carries a recorded fault out of the throwaway-context entry
// points.
type RenderError struct {
	Record script.ErrorRecord
}

func (e *RenderError) Error() string {
	return e.Record.Kind.String() + ": " + e.Record.Message
}
