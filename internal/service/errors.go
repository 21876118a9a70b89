package service

import "errors"

var (
	ErrWorldNotFound         = errors.New("world not found")
	ErrLevelNotFound         = errors.New("level not found")
	ErrLevelAlreadyCompleted = errors.New("level already completed")
	ErrSequenceViolation     = errors.New("previous level must be completed first")
	ErrInternalServer        = errors.New("internal server error")
	ErrInvalidEvent          = errors.New("invalid event data")
)
