package script

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"scriptkit/internal/logging"
)

// Engine drives the generate, compile, activate and invoke pipeline for one
// ExecutionContext at a time. The pipeline is synchronous end to end and
// runs on the caller's goroutine; no cancellation or timeout facility
// exists, so hosts needing bounded latency impose their own.
//
// Engines are cheap to create. The artifact cache behind them is the
// process-wide one unless a private cache is injected, which tests do to
// stay isolated.
type Engine struct {
	compiler Compiler
	cache    ArtifactCache
	log      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCompiler substitutes the toolchain. Tests inject counting or faking
// compilers through this.
func WithCompiler(c Compiler) EngineOption {
	return func(e *Engine) { e.compiler = c }
}

// WithCache substitutes the artifact cache.
func WithCache(c ArtifactCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// NewEngine returns an engine backed by the yaegi toolchain and the
// process-wide artifact cache.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		compiler: NewYaegiCompiler(),
		cache:    defaultCache,
		log:      logging.L(logging.CategoryEngine),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompileBody generates a unit for body and compiles it under ctx,
// consulting the cache first. A nil return means compilation failed; the
// fault is recorded on ctx and never returned as an error, whatever the
// throw policy says.
func (e *Engine) CompileBody(body string, mode BodyMode, ctx *ExecutionContext) *Artifact {
	unit := GenerateUnit(body, mode, ctx)
	ctx.lastSource = unit.Source
	ctx.stage = StageGenerated
	if ctx.Policy.PersistGeneratedSource {
		e.persistSource(unit, ctx)
	}

	key := SourceKey(body)
	if !ctx.Policy.DisableCaching {
		if art, ok := e.cache.Lookup(key); ok {
			// First writer wins: the cached artifact keeps the names it was
			// first compiled under, silently overriding any different names
			// requested this call.
			ctx.GeneratedPackage = art.Package
			ctx.GeneratedType = art.TypeName
			ctx.stage = StageCompiled
			e.log.Debug("artifact cache hit",
				zap.Uint64("key", key),
				zap.String("context", ctx.ID))
			return art
		}
	}

	// No lock is held across the toolchain call; concurrent first-time
	// compiles of the same new key may duplicate work, never results.
	started := time.Now()
	art, diags := e.compiler.Compile(unit, ctx)
	if art == nil {
		msg := joinDiagnostics(diags)
		ctx.RecordFault(ErrorCompilation, msg, nil)
		e.log.Debug("compilation failed",
			zap.Uint64("key", key),
			zap.String("context", ctx.ID),
			zap.Int("diagnostics", len(diags)))
		return nil
	}
	art.Key = key
	if !ctx.Policy.DisableCaching {
		art = e.cache.Store(key, art)
	}
	ctx.stage = StageCompiled
	e.log.Debug("compiled",
		zap.Uint64("key", key),
		zap.String("package", art.Package),
		zap.String("context", ctx.ID),
		zap.Duration("elapsed", time.Since(started)))
	return art
}

// CreateInstance returns ctx's cached instance for art unless force is set,
// caching is disabled, or no matching instance exists; otherwise it
// activates a fresh one through the artifact's constructor hook and caches
// it on the context.
func (e *Engine) CreateInstance(ctx *ExecutionContext, art *Artifact, force bool) (*Instance, error) {
	if !force && !ctx.Policy.DisableCaching &&
		ctx.instance != nil && ctx.instance.artifact == art {
		ctx.stage = StageActivated
		return ctx.instance, nil
	}
	id, err := art.activate()
	if err != nil {
		return nil, fmt.Errorf("activate %s.%s: %w", art.Package, art.TypeName, err)
	}
	inst := &Instance{artifact: art, id: id, members: make(map[string]reflect.Value)}
	ctx.instance = inst
	ctx.stage = StageActivated
	return inst, nil
}

// ExecuteCode compiles a statement block and invokes its ExecuteCode method
// with params. The first parameter is visible to the body as Model.
func (e *Engine) ExecuteCode(ctx *ExecutionContext, body string, params ...any) (any, error) {
	ctx.ClearErrors()
	return e.run(ctx, body, ModeCode, "ExecuteCode", params...)
}

// ExecuteMethod compiles full method declarations and invokes methodName.
// Methods declare themselves on the receiver type Script.
func (e *Engine) ExecuteMethod(ctx *ExecutionContext, body, methodName string, args ...any) (any, error) {
	ctx.ClearErrors()
	return e.run(ctx, body, ModeMethods, methodName, args...)
}

// ExecuteType compiles a self-contained type declaration and invokes
// methodName on an activated instance of it.
func (e *Engine) ExecuteType(ctx *ExecutionContext, body, methodName string, args ...any) (any, error) {
	ctx.ClearErrors()
	return e.run(ctx, body, ModeType, methodName, args...)
}

// EvaluateExpression wraps a single expression into a return statement and
// executes it.
func (e *Engine) EvaluateExpression(ctx *ExecutionContext, expr string, params ...any) (any, error) {
	expr = strings.TrimSuffix(strings.TrimSpace(expr), ";")
	ctx.ClearErrors()
	return e.run(ctx, "return "+expr, ModeCode, "ExecuteCode", params...)
}

// Invoke dispatches member on inst by name. Runtime faults are unwrapped to
// their innermost cause and recorded; they come back as errors only under
// ThrowOnError. A channel-returning member yields its channel opaquely; see
// Await and the typed helpers.
func (e *Engine) Invoke(ctx *ExecutionContext, inst *Instance, member string, args ...any) (any, error) {
	ctx.ClearErrors()
	return e.invoke(ctx, inst, member, args...)
}

// Warmup pushes one trivial snippet through the full pipeline on a
// background goroutine, forcing early toolchain initialization without
// blocking the caller. The returned channel closes when warmup finishes.
func (e *Engine) Warmup() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := NewExecutionContext()
		ctx.AddImport("strings")
		_, _ = e.ExecuteCode(ctx, `return strings.ToUpper("ready")`)
		e.log.Debug("warmup complete", zap.String("context", ctx.ID))
	}()
	return done
}

func (e *Engine) run(ctx *ExecutionContext, body string, mode BodyMode, member string, args ...any) (any, error) {
	art := e.CompileBody(body, mode, ctx)
	if art == nil {
		return nil, nil // compilation faults are recorded, never thrown
	}
	inst, err := e.CreateInstance(ctx, art, false)
	if err != nil {
		return nil, e.runtimeFault(ctx, err)
	}
	return e.invoke(ctx, inst, member, args...)
}

// runtimeFault records a Runtime fault on ctx. The error goes back to the
// caller only under ThrowOnError.
func (e *Engine) runtimeFault(ctx *ExecutionContext, err error) error {
	cause := innermost(err)
	ctx.RecordFault(ErrorRuntime, cause.Error(), cause)
	e.log.Debug("runtime fault",
		zap.String("context", ctx.ID),
		zap.Error(cause))
	if ctx.Policy.ThrowOnError {
		return cause
	}
	return nil
}

// persistSource writes the generated unit under ctx.OutputDir for
// diagnostics correlation, with a line-numbered copy under DebugSymbols.
func (e *Engine) persistSource(unit GeneratedUnit, ctx *ExecutionContext) {
	dir := ctx.OutputDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.log.Warn("persist generated source", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s_%s.go", unit.Package, unit.TypeName)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(unit.Source), 0o644); err != nil {
		e.log.Warn("persist generated source", zap.Error(err))
		return
	}
	if ctx.Policy.DebugSymbols {
		numbered := ctx.GeneratedSourceWithLineNumbers()
		_ = os.WriteFile(filepath.Join(dir, name+".lst"), []byte(numbered), 0o644)
	}
}
