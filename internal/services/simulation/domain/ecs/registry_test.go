package ecs

import "testing"

type stubEntity struct {
	BaseState
	systems []System
}

func (s *stubEntity) Kind() Kind                    { return 1 }
func (s *stubEntity) Base() BaseState               { return s.BaseState }
func (s *stubEntity) WithBase(b BaseState) Entity    { c := *s; c.BaseState = b; return &c }
func (s *stubEntity) Systems() []System             { return s.systems }
func (s *stubEntity) WithSystems(sys []System) Entity { c := *s; c.systems = sys; return &c }
func (s *stubEntity) Clone() Entity                  { c := *s; return &c }
func (s *stubEntity) Prestep(View) bool              { return false }
func (s *stubEntity) Step(View, Entity)              {}

func TestRegistry_EntityRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.RegisterEntity(1, func() Entity { return &stubEntity{} })

	e, ok := r.NewEntity(1)
	if !ok {
		t.Fatal("expected kind 1 to be registered")
	}
	if e.Kind() != 1 {
		t.Fatalf("got kind %d, want 1", e.Kind())
	}

	if _, ok := r.NewEntity(99); ok {
		t.Fatal("expected unregistered kind to miss")
	}
}

func TestRegistry_RegisterEntityTwicePanics(t *testing.T) {
	r := NewRegistry()
	r.RegisterEntity(1, func() Entity { return &stubEntity{} })

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.RegisterEntity(1, func() Entity { return &stubEntity{} })
}
