package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrEmptyKey     = errors.New("registry: component key must not be empty")
	ErrNilComponent = errors.New("registry: component must not be nil")
	ErrDuplicateKey = errors.New("registry: component key already registered")
)

type entry struct {
	key       string
	component any
}

// Container holds components by key, in registration order, and falls back
// to its parent for anything it does not hold itself. It is safe for
// concurrent use.
type Container struct {
	parent *Container

	mutex   sync.RWMutex
	byKey   map[string]any
	entries []entry
}

// NewContainer creates an empty container. parent may be nil.
func NewContainer(parent *Container) *Container {
	return &Container{
		parent: parent,
		byKey:  make(map[string]any),
	}
}

// Parent returns the enclosing container, or nil.
func (c *Container) Parent() *Container {
	return c.parent
}

// Register adds a component under key.
func (c *Container) Register(key string, component any) error {
	if key == "" {
		return ErrEmptyKey
	}
	if component == nil {
		return ErrNilComponent
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.byKey[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	c.byKey[key] = component
	c.entries = append(c.entries, entry{key: key, component: component})
	return nil
}

// RegisterInstance adds a component keyed by its dynamic type name.
func (c *Container) RegisterInstance(component any) error {
	if component == nil {
		return ErrNilComponent
	}
	return c.Register(reflect.TypeOf(component).String(), component)
}

// Component returns the component registered under key here or in a parent.
func (c *Container) Component(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mutex.RLock()
		component, ok := cur.byKey[key]
		cur.mutex.RUnlock()

		if ok {
			return component, true
		}
	}
	return nil, false
}

// ComponentOfType returns the first registered component whose type is t or,
// for an interface t, implements it. Parents are searched after c.
func (c *Container) ComponentOfType(t reflect.Type) (any, bool) {
	if t == nil {
		return nil, false
	}

	for cur := c; cur != nil; cur = cur.parent {
		if component, ok := cur.localOfType(t); ok {
			return component, true
		}
	}
	return nil, false
}

func (c *Container) localOfType(t reflect.Type) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, e := range c.entries {
		if reflect.TypeOf(e.component).AssignableTo(t) {
			return e.component, true
		}
	}
	return nil, false
}

// Len returns the number of components held directly by c.
func (c *Container) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
