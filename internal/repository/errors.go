package repository

import "github.com/pkg/errors"

var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("row was modified by a concurrent writer")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)
