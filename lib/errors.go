package lib

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrEmptyValue    = errors.New("empty value")

	ErrMalformedRecord    = errors.New("malformed record")
	ErrDanglingReference  = errors.New("dangling reference")
	ErrConsistencyDrift   = errors.New("consistency drift")
	ErrInvalidMaildir     = errors.New("invalid maildir")
	ErrFolderNotFound     = errors.New("folder not found")
	ErrCancelled          = errors.New("operation cancelled")
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
)
