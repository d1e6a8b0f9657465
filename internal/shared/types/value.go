package types

// Value is any value storable on a global object. Values cross the
// virtual/real boundary unwrapped; only callables get special handling.
type Value = interface{}

// Fn is a callable global value. The receiver is the object the call was
// resolved through. Callables read through from the shared global layer are
// rebound so their receiver is always that shared layer, mirroring native
// methods that reject foreign receivers.
type Fn func(recv Value, args ...Value) Value

// Bind returns a copy of f whose receiver is pinned to recv regardless of
// what the caller passes.
func (f Fn) Bind(recv Value) Fn {
	return func(_ Value, args ...Value) Value {
		return f(recv, args...)
	}
}
