package storage

import (
	"fmt"
	"strings"
)

// KV is a content-addressed map: content hash to serialized index record
type KV interface {
	// Get returns lib.ErrNotFound when the key doesn't exist
	Get(key string) (string, error)
	// Create inserts a new key, or returns lib.ErrAlreadyExists
	Create(key, value string) error
	// Set inserts or replaces the value of the key
	Set(key, value string) error
	// Delete returns lib.ErrNotFound when the key doesn't exist
	Delete(key string) error
	// Keys returns all the keys in order
	Keys() ([]string, error)
}

type Store interface {
	KV
	// Transaction runs fn with a view of the store where writes are only made
	// visible when fn returns without error.
	Transaction(fn func(tx KV) error) error
	// SupportConcurrentHandles is true when more than one handle
	// can be opened and written to at the same time on the same location.
	SupportConcurrentHandles() bool
	Close() error
}

// Backuper is implemented by the stores able to write a consistent copy of themselves
type Backuper interface {
	Backup(filename string) error
}

type Type string

const (
	TypeBolt    Type = "bolt"
	TypeSQLite  Type = "sqlite"
	TypeSymlink Type = "symlink"
	TypeMemory  Type = "memory"
)

// Types lists the available backends
func Types() []Type {
	return []Type{TypeBolt, TypeSQLite, TypeSymlink, TypeMemory}
}

func ParseType(value string) (Type, error) {
	for _, storeType := range Types() {
		if strings.EqualFold(value, string(storeType)) {
			return storeType, nil
		}
	}
	return "", fmt.Errorf("unknown storage type %q", value)
}

// Filename is the file or directory name used by the backend inside the archive
func (t Type) Filename() string {
	switch t {
	case TypeBolt:
		return "archive.db"
	case TypeSQLite:
		return "archive.sqlite3"
	case TypeSymlink:
		return "archive.symdb"
	default:
		return ""
	}
}
