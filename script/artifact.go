package script

import (
	"fmt"
	"reflect"
)

// Artifact is a loaded compiled unit: the unit's names and source plus the
// hooks the toolchain installed for activating instances and resolving
// members on them. Artifacts are immutable once produced and live for the
// process lifetime; the interpreter behind a yaegi artifact is its isolated
// loading boundary, so symbols from one artifact are invisible to every
// other.
type Artifact struct {
	Package  string
	TypeName string
	// Source is the generated unit text the artifact was produced from.
	Source string
	// Key is the content hash of the originating body, set when cached.
	Key uint64

	activate func() (int, error)
	member   func(id int, name string) (reflect.Value, error)
}

// Instance is an activated object from an artifact's constructor hook,
// owned and reused by its ExecutionContext. Member lookups are introspected
// once and cached per instance; there is no explicit teardown.
type Instance struct {
	artifact *Artifact
	id       int
	members  map[string]reflect.Value
}

// Artifact returns the artifact the instance was activated from.
func (in *Instance) Artifact() *Artifact { return in.artifact }

func (in *Instance) member(name string) (reflect.Value, error) {
	if fn, ok := in.members[name]; ok {
		return fn, nil
	}
	fn, err := in.artifact.member(in.id, name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("member %s: %w", name, err)
	}
	if fn.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("member %s is not callable", name)
	}
	in.members[name] = fn
	return fn, nil
}
