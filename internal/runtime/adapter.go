package runtime

import (
	"github.com/dop251/goja"

	"github.com/sandveil/sandveil/internal/domain/sandbox"
	"github.com/sandveil/sandveil/internal/shared/types"
)

// globalAdapter presents a sandbox as a goja dynamic object. Every property
// operation hosted code performs on window delegates to the corresponding
// trap, so the VM never holds its own copy of the application's global
// state.
type globalAdapter struct {
	vm     *goja.Runtime
	sb     *sandbox.Sandbox
	window *goja.Object
}

var _ goja.DynamicObject = (*globalAdapter)(nil)

func (a *globalAdapter) Get(key string) goja.Value {
	if selfRef(key) {
		return a.window
	}
	v, ok := a.sb.Get(key)
	if !ok {
		return goja.Undefined()
	}
	return a.toVM(v)
}

// selfRef reports the global names that refer back to the global itself.
func selfRef(key string) bool {
	switch key {
	case "window", "self", "globalThis", "top", "parent":
		return true
	}
	return false
}

func (a *globalAdapter) Set(key string, val goja.Value) bool {
	return a.sb.Set(key, a.fromVM(val))
}

func (a *globalAdapter) Has(key string) bool {
	return selfRef(key) || a.sb.Has(key)
}

func (a *globalAdapter) Delete(key string) bool {
	return a.sb.Delete(key)
}

func (a *globalAdapter) Keys() []string {
	return a.sb.OwnKeys()
}

// toVM converts a stored value to a VM value. The sandbox's self reference
// maps back to the dynamic object so window.window === window holds, VM
// values pass through untouched, and host functions become callables whose
// results convert on the way out.
func (a *globalAdapter) toVM(v types.Value) goja.Value {
	if v == nil {
		return goja.Null()
	}
	if sb, ok := v.(*sandbox.Sandbox); ok && sb == a.sb {
		return a.window
	}
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	if fn, ok := v.(types.Fn); ok {
		return a.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			args := make([]types.Value, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			return a.vm.ToValue(fn(nil, args...))
		})
	}
	return a.vm.ToValue(v)
}

// fromVM converts a VM value for storage. Callables and objects stay as
// opaque VM values so identity and closures survive the round trip;
// primitives export to plain Go values.
func (a *globalAdapter) fromVM(val goja.Value) types.Value {
	if val == nil || goja.IsUndefined(val) {
		return nil
	}
	if _, ok := goja.AssertFunction(val); ok {
		return val
	}
	if _, ok := val.(*goja.Object); ok {
		return val
	}
	return val.Export()
}
