package model

// ResourceState is the delivery state of a UI-facing operation.
type ResourceState int

const (
	StateLoading ResourceState = iota
	StateSuccess
	StateError
)

// Resource is the uniform shape every repository operation is delivered in:
// a Loading emission first, then Success with data or Error with a
// human-readable message. UI-facing callers never see a raw error value.
type Resource[T any] struct {
	State   ResourceState
	Data    T
	Message string
}

func Loading[T any]() Resource[T] {
	return Resource[T]{State: StateLoading}
}

func Success[T any](data T) Resource[T] {
	return Resource[T]{State: StateSuccess, Data: data}
}

func Failure[T any](message string) Resource[T] {
	return Resource[T]{State: StateError, Message: message}
}
