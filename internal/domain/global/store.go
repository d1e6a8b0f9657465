package global

import "github.com/sandveil/sandveil/internal/shared/types"

// Store is the real global object: the single shared property layer used by
// the host page and read through by every sandbox. Writes land here only via
// the escape rules; sandboxes otherwise treat it as read-mostly.
type Store struct {
	*Object
}

// NewStore creates an empty real global store.
func NewStore() *Store {
	return &Store{Object: NewObject()}
}

// BindFn returns fn rebound so that invoking it later uses this store as
// receiver. Native-style callables reject foreign receivers, so every
// callable read through from the shared layer must be wrapped this way.
func (s *Store) BindFn(fn types.Fn) types.Fn {
	return fn.Bind(s)
}
