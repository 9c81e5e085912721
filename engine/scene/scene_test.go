package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSimpleScene(t *testing.T) {
	s := NewSimpleScene()
	a := s.Spawn("a", mgl32.Ident4())
	s.Spawn("b", mgl32.Translate3D(1, 2, 3))
	s.Spawn("c", mgl32.Ident4())

	var names []string
	s.Entities(func(e *Entity) bool {
		names = append(names, e.Name)
		return len(names) < 2
	})
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("iteration stopped at %v", names)
	}

	if !s.Despawn(a.ID) || s.Despawn(a.ID) {
		t.Errorf("Despawn(%d) mismatch", a.ID)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestCameraViewProjection(t *testing.T) {
	c := NewCamera()
	p := c.ViewProjection(16.0 / 9.0).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if p.W() <= 0 {
		t.Errorf("origin is behind the camera: %v", p)
	}
	ndc := p.Vec3().Mul(1 / p.W())
	if !mgl32.FloatEqual(ndc.X(), 0) || !mgl32.FloatEqual(ndc.Y(), 0) {
		t.Errorf("origin not centred: %v", ndc)
	}
}
