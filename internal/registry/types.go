package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var ErrUnknownType = errors.New("registry: unknown type")

// Types maps logical type names, as used in delegate-class, to Go types.
type Types struct {
	mutex sync.RWMutex
	types map[string]reflect.Type
}

func NewTypes() *Types {
	return &Types{types: make(map[string]reflect.Type)}
}

// Register binds name to t. Re-registering a name replaces it.
func (ts *Types) Register(name string, t reflect.Type) error {
	if name == "" {
		return fmt.Errorf("registry: type name must not be empty")
	}
	if t == nil {
		return fmt.Errorf("registry: type for %q must not be nil", name)
	}

	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	ts.types[name] = t
	return nil
}

// ResolveType returns the type registered under name.
func (ts *Types) ResolveType(name string) (reflect.Type, error) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	t, ok := ts.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}
