package services

import (
	"errors"
	"fmt"
)

var (
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrUnknownRelation    = errors.New("unknown relation")
)

// RelationError reports tag or ingredient ids that do not exist for the recipe owner.
type RelationError struct {
	Field string
	IDs   []uint
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("%s: %s %v", ErrUnknownRelation, e.Field, e.IDs)
}

func (e *RelationError) Unwrap() error { return ErrUnknownRelation }
