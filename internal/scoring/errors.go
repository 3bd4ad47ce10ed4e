package scoring

import "errors"

// Configuration errors.
var (
	ErrInvalidCriterion  = errors.New("invalid criterion")
	ErrInvalidWeight     = errors.New("invalid weight scheme")
	ErrUnsupportedMethod = errors.New("unsupported normalization method")
)

// Precondition violations.
var (
	ErrEmptyInput    = errors.New("empty input")
	ErrShapeMismatch = errors.New("layer shapes differ")
	ErrInvalidRange  = errors.New("value out of range")
)
