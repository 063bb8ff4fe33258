package ecs

import (
	"fmt"
	"sync"
)

// EntityFactory builds a zero-value Entity for its Kind, ready to receive
// a cbor-decoded payload. Concrete GameLogic implementations register one
// factory per variant at startup.
type EntityFactory func() Entity

// SystemFactory is the System equivalent of EntityFactory.
type SystemFactory func() System

// Registry maps Kind/SystemKind tags to the factories that construct
// them, adapted from the teacher's system.Registry (Key+Module pattern):
// here the "module" is just a constructor function, since Go has no
// closed sum types and dispatch on a wire tag is the idiomatic
// substitute (spec.md §9, "no generics-based closed sum types").
type Registry struct {
	mu       sync.RWMutex
	entities map[Kind]EntityFactory
	systems  map[SystemKind]SystemFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[Kind]EntityFactory),
		systems:  make(map[SystemKind]SystemFactory),
	}
}

// RegisterEntity binds kind to factory. Registering the same kind twice
// is a programmer error and panics at startup rather than silently
// shadowing the earlier registration.
func (r *Registry) RegisterEntity(kind Kind, factory EntityFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[kind]; exists {
		panic(fmt.Sprintf("ecs: entity kind %d already registered", kind))
	}
	r.entities[kind] = factory
}

// RegisterSystem binds kind to factory.
func (r *Registry) RegisterSystem(kind SystemKind, factory SystemFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.systems[kind]; exists {
		panic(fmt.Sprintf("ecs: system kind %d already registered", kind))
	}
	r.systems[kind] = factory
}

// NewEntity constructs a blank Entity for kind, for the decoder to fill
// in. The second return is false if kind was never registered.
func (r *Registry) NewEntity(kind Kind) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.entities[kind]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// NewSystem constructs a blank System for kind.
func (r *Registry) NewSystem(kind SystemKind) (System, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.systems[kind]
	if !ok {
		return nil, false
	}
	return factory(), true
}
