package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/creativeprojects/mailarchive/lib"
)

type journalEntry struct {
	value   string
	deleted bool
	// the key was present in the underlying store when first staged
	inBase bool
}

// Journal stages the writes of a transaction on a store without native transactions.
// Reads see the staged writes; nothing reaches the underlying store before Commit.
type Journal struct {
	base       KV
	allowEmpty bool
	entries    map[string]*journalEntry
	order      []string
}

func NewJournal(base KV, allowEmpty bool) *Journal {
	return &Journal{
		base:       base,
		allowEmpty: allowEmpty,
		entries:    make(map[string]*journalEntry),
	}
}

func (j *Journal) Get(key string) (string, error) {
	if entry, ok := j.entries[key]; ok {
		if entry.deleted {
			return "", lib.ErrNotFound
		}
		return entry.value, nil
	}
	return j.base.Get(key)
}

func (j *Journal) Create(key, value string) error {
	if err := j.checkValue(value); err != nil {
		return err
	}
	_, err := j.Get(key)
	if err == nil {
		return lib.ErrAlreadyExists
	}
	if !errors.Is(err, lib.ErrNotFound) {
		return err
	}
	return j.stage(key, value, false)
}

func (j *Journal) Set(key, value string) error {
	if err := j.checkValue(value); err != nil {
		return err
	}
	return j.stage(key, value, false)
}

func (j *Journal) Delete(key string) error {
	_, err := j.Get(key)
	if err != nil {
		return err
	}
	return j.stage(key, "", true)
}

func (j *Journal) Keys() ([]string, error) {
	keys, err := j.base.Keys()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(keys)+len(j.entries))
	for _, key := range keys {
		present[key] = true
	}
	for key, entry := range j.entries {
		present[key] = !entry.deleted
	}
	output := make([]string, 0, len(present))
	for key, ok := range present {
		if ok {
			output = append(output, key)
		}
	}
	sort.Strings(output)
	return output, nil
}

// Commit applies the staged writes in order. Keys created during the transaction
// are inserted with Create so a concurrent writer is detected.
func (j *Journal) Commit() error {
	for _, key := range j.order {
		entry := j.entries[key]
		var err error
		switch {
		case entry.deleted && entry.inBase:
			err = j.base.Delete(key)
			if errors.Is(err, lib.ErrNotFound) {
				err = nil
			}
		case entry.deleted:
			// created then deleted: nothing to do
		case entry.inBase:
			err = j.base.Set(key, entry.value)
		default:
			err = j.base.Create(key, entry.value)
		}
		if err != nil {
			return fmt.Errorf("cannot commit key %q: %w", key, err)
		}
	}
	j.Rollback()
	return nil
}

// Rollback discards all the staged writes
func (j *Journal) Rollback() {
	j.entries = make(map[string]*journalEntry)
	j.order = nil
}

func (j *Journal) stage(key, value string, deleted bool) error {
	entry, ok := j.entries[key]
	if !ok {
		_, err := j.base.Get(key)
		if err != nil && !errors.Is(err, lib.ErrNotFound) {
			return err
		}
		entry = &journalEntry{inBase: err == nil}
		j.entries[key] = entry
		j.order = append(j.order, key)
	}
	entry.value = value
	entry.deleted = deleted
	return nil
}

func (j *Journal) checkValue(value string) error {
	if value == "" && !j.allowEmpty {
		return lib.ErrEmptyValue
	}
	return nil
}
