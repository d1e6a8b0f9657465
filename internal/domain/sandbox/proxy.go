package sandbox

import (
	"reflect"

	"github.com/sandveil/sandveil/internal/domain/global"
	"github.com/sandveil/sandveil/internal/domain/policy"
	"github.com/sandveil/sandveil/internal/shared/types"
)

// Get resolves key against the virtual object first; scoped and reserved
// keys never fall through. Callables owned by the real global are returned
// rebound so invocation keeps the real global as receiver.
func (s *Sandbox) Get(key string) (types.Value, bool) {
	s.trap("get")
	s.env.noteRead(s.cfg.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.virtual.Has(key) || s.classifier.Scoped(key) {
		return s.virtual.Get(key)
	}

	v, ok := s.env.real.Get(key)
	if !ok {
		return nil, false
	}

	if fn, isFn := v.(types.Fn); isFn {
		return s.rebound(key, fn), true
	}
	return v, true
}

// rebound returns a cached receiver-pinned wrapper for fn. The cache is
// invalidated when the underlying raw callable changes. Must hold s.mu.
func (s *Sandbox) rebound(key string, fn types.Fn) types.Fn {
	ptr := reflect.ValueOf(fn).Pointer()
	if cached, ok := s.bound[key]; ok && cached.raw == ptr {
		return cached.bound
	}

	bound := s.env.real.BindFn(fn)
	s.bound[key] = boundFn{raw: ptr, bound: bound}
	return bound
}

// Set stores value per the classification rules. Writes while inactive are
// no-ops that still report success, satisfying the object-model contract.
func (s *Sandbox) Set(key string, value types.Value) bool {
	s.trap("set")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return true
	}

	s.setLocked(key, value)
	return true
}

func (s *Sandbox) setLocked(key string, value types.Value) {
	if s.classifier.Classify(key) == policy.TreatSetterForced {
		s.env.real.Set(key, value)
		return
	}

	if !s.virtual.Has(key) && s.env.real.Has(key) && !s.classifier.Scoped(key) {
		// First shadow of a real-global key: preserve its descriptor shape
		// on the virtual copy.
		rd, _ := s.env.real.Descriptor(key)
		s.virtual.Define(key, global.Descriptor{
			Value:        value,
			Writable:     rd.EffectiveWritable(),
			Enumerable:   rd.Enumerable,
			Configurable: rd.Configurable,
		})
		s.injected[key] = struct{}{}
	} else {
		s.virtual.Set(key, value)
		s.injected[key] = struct{}{}
	}

	if s.classifier.Escapes(key) || (s.classifier.StaticEscapes(key) && !s.env.real.Has(key)) {
		_, tracked := s.escaped[key]
		preOwned := s.env.real.Has(key)
		s.env.real.Set(key, value)
		if !preOwned || tracked {
			// Never claim keys the real global owned independently, or
			// stop would strip state that predates this sandbox.
			s.escaped[key] = struct{}{}
		}
	}
}

// Has reports containment. Scoped keys are visible only when the virtual
// object owns them.
func (s *Sandbox) Has(key string) bool {
	s.trap("has")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classifier.Scoped(key) {
		return s.virtual.Has(key)
	}
	return s.virtual.Has(key) || s.env.real.Has(key)
}

// GetOwnDescriptor prefers the virtual object's own descriptor, falling
// back to the real global's with configurability coerced true. The origin
// is recorded for the next DefineProperty on the same key.
func (s *Sandbox) GetOwnDescriptor(key string) (global.Descriptor, bool) {
	s.trap("descriptor")

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.virtual.Descriptor(key); ok {
		s.bridge.Record(key, global.OriginTarget)
		return d, true
	}
	if d, ok := s.env.real.Descriptor(key); ok {
		s.bridge.Record(key, global.OriginReal)
		return global.CoerceConfigurable(d), true
	}
	return global.Descriptor{}, false
}

// DefineProperty applies the descriptor to whichever layer the bridge last
// recorded as origin for key, defaulting to the virtual object.
func (s *Sandbox) DefineProperty(key string, d global.Descriptor) bool {
	s.trap("define")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bridge.Lookup(key) == global.OriginReal {
		s.env.real.Define(key, d)
	} else {
		s.virtual.Define(key, d)
	}
	return true
}

// OwnKeys returns the deduplicated union of both layers' own keys:
// real-global keys first, then remaining target-only keys.
func (s *Sandbox) OwnKeys() []string {
	s.trap("keys")

	s.mu.Lock()
	defer s.mu.Unlock()

	realKeys := s.env.real.OwnKeys()
	seen := make(map[string]struct{}, len(realKeys))
	out := make([]string, 0, len(realKeys)+s.virtual.Len())

	for _, k := range realKeys {
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range s.virtual.OwnKeys() {
		if _, dup := seen[k]; !dup {
			out = append(out, k)
		}
	}
	return out
}

// Delete removes the key from the virtual object (and from the real global
// when this sandbox escaped it there). Deletes of keys the virtual object
// does not own are successful no-ops: one sandbox's delete never strips a
// shared real-global key it merely perceived as inherited.
func (s *Sandbox) Delete(key string) bool {
	s.trap("delete")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.virtual.Has(key) {
		return true
	}

	delete(s.injected, key)
	if _, tracked := s.escaped[key]; tracked {
		s.env.real.Delete(key)
		delete(s.escaped, key)
	}
	s.virtual.Delete(key)
	s.bridge.Forget(key)
	return true
}
