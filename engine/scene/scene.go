// Package scene is the renderer's view of the game world: a flat list of
// entities with world transforms and a main camera.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Entity struct {
	ID        uint32
	Name      string
	Transform mgl32.Mat4
	// Color is used by passes that tint entities.
	Color mgl32.Vec4
}

type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	FovY     float32
	Near     float32
	Far      float32
}

func NewCamera() *Camera {
	return &Camera{
		Position: mgl32.Vec3{0, 0, 10},
		Target:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		FovY:     mgl32.DegToRad(45),
		Near:     0.1,
		Far:      1000,
	}
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

func (c *Camera) Projection(aspectRatio float32) mgl32.Mat4 {
	return mgl32.Perspective(c.FovY, aspectRatio, c.Near, c.Far)
}

func (c *Camera) ViewProjection(aspectRatio float32) mgl32.Mat4 {
	return c.Projection(aspectRatio).Mul4(c.View())
}

// Scene is what the renderer reads every frame.
type Scene interface {
	// Entities calls yield for every entity until it returns false.
	Entities(yield func(*Entity) bool)
	MainCamera() *Camera
}

// SimpleScene keeps its entities in a slice.
type SimpleScene struct {
	entities []*Entity
	camera   *Camera
	nextID   uint32
}

func NewSimpleScene() *SimpleScene {
	return &SimpleScene{
		camera: NewCamera(),
	}
}

func (s *SimpleScene) Spawn(name string, transform mgl32.Mat4) *Entity {
	e := &Entity{
		ID:        s.nextID,
		Name:      name,
		Transform: transform,
		Color:     mgl32.Vec4{1, 1, 1, 1},
	}
	s.nextID++
	s.entities = append(s.entities, e)
	return e
}

func (s *SimpleScene) Despawn(id uint32) bool {
	for i, e := range s.entities {
		if e.ID == id {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			return true
		}
	}
	return false
}

func (s *SimpleScene) Entities(yield func(*Entity) bool) {
	for _, e := range s.entities {
		if !yield(e) {
			return
		}
	}
}

func (s *SimpleScene) Len() int {
	return len(s.entities)
}

func (s *SimpleScene) MainCamera() *Camera {
	return s.camera
}
