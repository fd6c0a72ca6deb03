package symlink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
)

const tempPrefix = ".tmp-"

var tempCounter atomic.Uint64

// SymlinkStore keeps each key as a symbolic link in a directory: the link target is the value.
// Creating a link is atomic, so concurrent handles detect an existing key.
// Empty values cannot be stored.
type SymlinkStore struct {
	dir string
	log lib.Logger

	mu         sync.Mutex
	cache      []string
	cacheAsOf  time.Time
	cacheValid bool
}

func NewSymlinkStore(dir string) (*SymlinkStore, error) {
	return NewSymlinkStoreWithLogger(dir, nil)
}

func NewSymlinkStoreWithLogger(dir string, logger lib.Logger) (*SymlinkStore, error) {
	logger = lib.OrNoLog(logger)
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", dir, err)
	}
	logger.Printf("opened symlink store %q", dir)
	return &SymlinkStore{
		dir: dir,
		log: logger,
	}, nil
}

func (s *SymlinkStore) SupportConcurrentHandles() bool {
	return true
}

func (s *SymlinkStore) Close() error {
	s.invalidate()
	return nil
}

func (s *SymlinkStore) Get(key string) (string, error) {
	filename, err := s.filename(key)
	if err != nil {
		return "", err
	}
	value, err := os.Readlink(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return "", lib.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cannot read key %q: %w", key, err)
	}
	return value, nil
}

func (s *SymlinkStore) Create(key, value string) error {
	if value == "" {
		return lib.ErrEmptyValue
	}
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	err = os.Symlink(value, filename)
	if errors.Is(err, fs.ErrExist) {
		return lib.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("cannot create key %q: %w", key, err)
	}
	s.invalidate()
	return nil
}

// Set replaces the link atomically by renaming a temporary link over it
func (s *SymlinkStore) Set(key, value string) error {
	if value == "" {
		return lib.ErrEmptyValue
	}
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	temp := fmt.Sprintf("%s/%s%d-%d", s.dir, tempPrefix, os.Getpid(), tempCounter.Add(1))
	err = os.Symlink(value, temp)
	if err != nil {
		return fmt.Errorf("cannot set key %q: %w", key, err)
	}
	err = os.Rename(temp, filename)
	if err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("cannot set key %q: %w", key, err)
	}
	s.invalidate()
	return nil
}

func (s *SymlinkStore) Delete(key string) error {
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	err = os.Remove(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return lib.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("cannot delete key %q: %w", key, err)
	}
	s.invalidate()
	return nil
}

// Keys are read from the directory only when it was modified since the last listing
func (s *SymlinkStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list keys: %w", err)
	}
	if s.cacheValid && !info.ModTime().After(s.cacheAsOf) {
		return s.copyCache(), nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list keys: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		keys = append(keys, entry.Name())
	}
	sort.Strings(keys)
	s.log.Printf("symlink store: listed %d keys as of %s", len(keys), info.ModTime())

	s.cache = keys
	s.cacheAsOf = info.ModTime()
	s.cacheValid = true
	return s.copyCache(), nil
}

// Transaction stages the writes of fn and applies them when fn succeeds
func (s *SymlinkStore) Transaction(fn func(tx storage.KV) error) error {
	journal := storage.NewJournal(s, false)
	err := fn(journal)
	if err != nil {
		journal.Rollback()
		return err
	}
	return journal.Commit()
}

func (s *SymlinkStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheValid = false
}

func (s *SymlinkStore) copyCache() []string {
	keys := make([]string, len(s.cache))
	copy(keys, s.cache)
	return keys
}

func (s *SymlinkStore) filename(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return s.dir + string(os.PathSeparator) + key, nil
}
