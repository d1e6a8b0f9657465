package global

import "sync"

// Origin identifies which layer a descriptor was last resolved from.
type Origin int

const (
	// OriginTarget is the sandbox's private virtual global object. Zero
	// value: unrecorded keys default to the target.
	OriginTarget Origin = iota

	// OriginReal is the shared real global store.
	OriginReal
)

// String returns the string representation of an Origin.
func (o Origin) String() string {
	switch o {
	case OriginTarget:
		return "target"
	case OriginReal:
		return "real-global"
	default:
		return "unknown"
	}
}

// Bridge memoizes per-key descriptor origins. Descriptor queries record
// where a key resolved; the next property definition for the same key is
// applied to that layer. This mirrors the query/define pairing used by
// generic property-definition utilities.
type Bridge struct {
	mu      sync.RWMutex
	origins map[string]Origin
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{origins: make(map[string]Origin)}
}

// Record stores the origin a key's descriptor resolved from.
func (b *Bridge) Record(key string, origin Origin) {
	b.mu.Lock()
	b.origins[key] = origin
	b.mu.Unlock()
}

// Lookup returns the recorded origin for key, defaulting to OriginTarget.
func (b *Bridge) Lookup(key string) Origin {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.origins[key]
}

// Forget drops the record for key.
func (b *Bridge) Forget(key string) {
	b.mu.Lock()
	delete(b.origins, key)
	b.mu.Unlock()
}

// CoerceConfigurable presents a real-global descriptor to application code
// as configurable. The storage target never truly owns such a property, so
// reporting the real non-configurable attribute would violate invariant
// checks that compare the reported descriptor against the target's actual
// one. A deliberate relaxation, not a faithful mirror of immutability.
func CoerceConfigurable(d Descriptor) Descriptor {
	d.Configurable = true
	return d
}
