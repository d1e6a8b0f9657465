package global

import (
	"sync"

	"github.com/sandveil/sandveil/internal/shared/types"
)

// Descriptor describes one own property of a global-like object.
// Accessor properties carry Getter/Setter; for those, writability is
// inferred from the presence of a Setter.
type Descriptor struct {
	Value        types.Value
	Writable     bool
	Enumerable   bool
	Configurable bool

	Getter func() types.Value
	Setter func(types.Value)
}

// Accessor reports whether the descriptor is an accessor property.
func (d Descriptor) Accessor() bool {
	return d.Getter != nil || d.Setter != nil
}

// EffectiveWritable reports writability, inferring true when a setter exists.
func (d Descriptor) EffectiveWritable() bool {
	if d.Accessor() {
		return d.Setter != nil
	}
	return d.Writable
}

// Object is an insertion-ordered property map with descriptor semantics.
// It backs both the shared real global store and each sandbox's private
// virtual global object.
type Object struct {
	mu    sync.RWMutex
	props map[string]Descriptor
	order []string
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{
		props: make(map[string]Descriptor),
	}
}

// Has reports whether the object owns key.
func (o *Object) Has(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, ok := o.props[key]
	return ok
}

// Get returns the value of key, invoking the getter for accessor properties.
func (o *Object) Get(key string) (types.Value, bool) {
	o.mu.RLock()
	d, ok := o.props[key]
	o.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if d.Accessor() {
		if d.Getter == nil {
			return nil, true
		}
		// Getter runs outside the lock; it may read back into the object.
		return d.Getter(), true
	}
	return d.Value, true
}

// Set stores a data value under key. New keys get fully permissive
// attributes; existing accessor properties route through their setter.
func (o *Object) Set(key string, v types.Value) {
	o.mu.Lock()
	d, ok := o.props[key]
	if ok && d.Accessor() {
		setter := d.Setter
		o.mu.Unlock()
		if setter != nil {
			setter(v)
		}
		return
	}

	if ok {
		d.Value = v
		o.props[key] = d
	} else {
		o.props[key] = Descriptor{
			Value:        v,
			Writable:     true,
			Enumerable:   true,
			Configurable: true,
		}
		o.order = append(o.order, key)
	}
	o.mu.Unlock()
}

// Define installs a full descriptor under key, replacing any existing one.
func (o *Object) Define(key string, d Descriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.props[key]; !ok {
		o.order = append(o.order, key)
	}
	o.props[key] = d
}

// Descriptor returns the own descriptor of key.
func (o *Object) Descriptor(key string) (Descriptor, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	d, ok := o.props[key]
	return d, ok
}

// Delete removes key. Deleting an absent key is a successful no-op.
func (o *Object) Delete(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.props[key]; !ok {
		return
	}
	delete(o.props, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// OwnKeys returns the object's own keys in insertion order.
func (o *Object) OwnKeys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	keys := make([]string, len(o.order))
	copy(keys, o.order)
	return keys
}

// Len returns the number of own keys.
func (o *Object) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.props)
}
