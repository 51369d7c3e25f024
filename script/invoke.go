package script

import (
	"fmt"
	"reflect"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// invoke is the fault boundary around user code: panics raised inside the
// member are recovered here and classified Runtime.
func (e *Engine) invoke(ctx *ExecutionContext, inst *Instance, member string, args ...any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = e.runtimeFault(ctx, faultFromPanic(r))
		}
	}()
	fn, ferr := inst.member(member)
	if ferr != nil {
		return nil, e.runtimeFault(ctx, ferr)
	}
	out, cerr := callReflected(fn, args)
	if cerr != nil {
		return nil, e.runtimeFault(ctx, cerr)
	}
	ctx.stage = StageInvoked
	return out, nil
}

func faultFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// callReflected invokes a reflected callable with loosely typed arguments,
// converting where assignability allows. A trailing error return is split
// off as the call's fault; the first remaining return value is the result.
func callReflected(fn reflect.Value, args []any) (any, error) {
	t := fn.Type()
	in, err := buildArgs(t, args)
	if err != nil {
		return nil, err
	}
	return splitResults(fn.Call(in))
}

func buildArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("member takes at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("member takes %d arguments, got %d", fixed, len(args))
	}
	in := make([]reflect.Value, 0, len(args))
	for i, a := range args {
		want := t.In(min(i, t.NumIn()-1))
		if t.IsVariadic() && i >= fixed {
			want = t.In(t.NumIn() - 1).Elem()
		}
		v, err := coerce(a, want)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}
	return in, nil
}

func coerce(a any, want reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch want.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil not assignable to %s", want)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%s not assignable to %s", v.Type(), want)
}

func splitResults(outs []reflect.Value) (any, error) {
	if len(outs) == 0 {
		return nil, nil
	}
	last := outs[len(outs)-1]
	if last.Type().Implements(errType) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		outs = outs[:len(outs)-1]
	}
	if len(outs) == 0 {
		return nil, nil
	}
	return outs[0].Interface(), nil
}

// Await resolves a possibly asynchronous result. A channel-typed value is
// received from on the caller's goroutine; an error arriving on the channel
// is the call's fault, exactly like a synchronous one. Non-channel values
// pass through unchanged.
func Await(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Chan {
		return v, nil
	}
	out, ok := rv.Recv()
	if !ok {
		return nil, nil
	}
	res := out.Interface()
	if err, isErr := res.(error); isErr {
		return nil, err
	}
	return res, nil
}

// InvokeAs invokes member on inst and shapes the result as T, awaiting
// channel results first. Any fault, including one surfacing during the
// await, is classified Runtime and yields the zero value of T.
func InvokeAs[T any](e *Engine, ctx *ExecutionContext, inst *Instance, member string, args ...any) (T, error) {
	var zero T
	out, err := e.Invoke(ctx, inst, member, args...)
	if err != nil {
		return zero, err
	}
	if ctx.errRecord.HasError() {
		return zero, nil
	}
	res, aerr := Await(out)
	if aerr != nil {
		return zero, e.runtimeFault(ctx, aerr)
	}
	if res == nil {
		return zero, nil
	}
	if t, ok := res.(T); ok {
		return t, nil
	}
	rv := reflect.ValueOf(res)
	tt := reflect.TypeOf(zero)
	if tt != nil && rv.Type().ConvertibleTo(tt) {
		return rv.Convert(tt).Interface().(T), nil
	}
	return zero, e.runtimeFault(ctx, fmt.Errorf("result %T does not shape to %T", res, zero))
}

// InvokeString is InvokeAs[string].
func (e *Engine) InvokeString(ctx *ExecutionContext, inst *Instance, member string, args ...any) (string, error) {
	return InvokeAs[string](e, ctx, inst, member, args...)
}

// InvokeInt is InvokeAs[int].
func (e *Engine) InvokeInt(ctx *ExecutionContext, inst *Instance, member string, args ...any) (int, error) {
	return InvokeAs[int](e, ctx, inst, member, args...)
}
