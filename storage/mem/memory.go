package mem

import (
	"sort"
	"sync"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
)

// Store keeps the index in memory. Every handle has its own data.
type Store struct {
	mu   sync.Mutex
	data map[string]string
	log  lib.Logger
}

func New() *Store {
	return NewWithLogger(nil)
}

func NewWithLogger(logger lib.Logger) *Store {
	return &Store{
		data: make(map[string]string),
		log:  lib.OrNoLog(logger),
	}
}

func (m *Store) SupportConcurrentHandles() bool {
	return false
}

func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *Store) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return "", lib.ErrNotFound
	}
	return value, nil
}

func (m *Store) Create(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return lib.ErrAlreadyExists
	}
	m.data[key] = value
	return nil
}

func (m *Store) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Store) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return lib.ErrNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *Store) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Store) Transaction(fn func(tx storage.KV) error) error {
	journal := storage.NewJournal(m, true)
	err := fn(journal)
	if err != nil {
		journal.Rollback()
		return err
	}
	return journal.Commit()
}

// Len returns the number of keys
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
