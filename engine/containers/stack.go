package containers

// Stack is a LIFO container backed by a slice.
type Stack[T any] struct {
	data []T
}

// Create a new Stack with room for capacity elements before growing
func NewStack[T any](capacity int) *Stack[T] {
	return &Stack[T]{
		data: make([]T, 0, capacity),
	}
}

// Push adds an element on top of the stack
func (s *Stack[T]) Push(value T) {
	s.data = append(s.data, value)
}

// Pop removes and returns the top element. ok is false when the stack is empty.
func (s *Stack[T]) Pop() (value T, ok bool) {
	if s.IsEmpty() {
		return value, false
	}
	last := len(s.data) - 1
	value = s.data[last]
	s.data = s.data[:last]
	return value, true
}

// Peek returns the top element without removing it
func (s *Stack[T]) Peek() (value T, ok bool) {
	if s.IsEmpty() {
		return value, false
	}
	return s.data[len(s.data)-1], true
}

// Len returns the number of elements in the stack
func (s *Stack[T]) Len() int {
	return len(s.data)
}

// IsEmpty checks if the stack is empty
func (s *Stack[T]) IsEmpty() bool {
	return len(s.data) == 0
}

// Clear drops every element and keeps the allocated storage
func (s *Stack[T]) Clear() {
	s.data = s.data[:0]
}
