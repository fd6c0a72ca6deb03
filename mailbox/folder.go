package mailbox

import "time"

// Reader is a source of messages
type Reader interface {
	// Name of the folder
	Name() string
	// Keys of all the messages, in no particular order
	Keys() ([]string, error)
	// Get returns lib.ErrNotFound when the key doesn't exist.
	// With metadataOnly, neither the content nor the header are loaded.
	Get(key string, metadataOnly bool) (*Message, error)
}

// Folder is a writable collection of messages keyed by a folder-scoped key
type Folder interface {
	Reader
	Path() string
	// Add files a new message and returns its key
	Add(msg *Message) (string, error)
	Remove(key string) error
	// Move the message into another folder of the same tree; the returned key is its key in dest
	Move(key string, dest Folder) (string, error)
	// Update writes the flags and mtime of msg onto the message with that key
	Update(key string, msg *Message) error
	Contains(key string) bool
}

// Tree is a hierarchy of folders
type Tree interface {
	Name() string
	ListFolders() ([]string, error)
	// GetFolder returns lib.ErrFolderNotFound when the folder doesn't exist
	GetFolder(name string) (Folder, error)
	// CreateFolder returns the existing folder if any
	CreateFolder(name string) (Folder, error)
}

// MinTime returns the earliest non-zero time
func MinTime(first, second time.Time) time.Time {
	if first.IsZero() {
		return second
	}
	if second.IsZero() || first.Before(second) {
		return first
	}
	return second
}
