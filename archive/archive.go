// Package archive files messages into a maildir tree indexed by content hash.
// There is at most one archived copy of each content hash: a message already
// known only brings its flags and its earliest timestamp to the archived copy.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/record"
	"github.com/creativeprojects/mailarchive/storage"
)

// Outcome of filing a message into the archive
type Outcome string

const (
	Added    Outcome = "+"
	Updated  Outcome = "^"
	Existing Outcome = "."
)

func (o Outcome) String() string {
	return string(o)
}

type Config struct {
	// Path of the archive maildir. It is created when missing.
	Path   string
	Layout mdir.Layout
	Store  storage.Type
	Logger lib.Logger
}

type Archive struct {
	tree    mailbox.Tree
	store   storage.Store
	log     lib.Logger
	mu      sync.Mutex
	folders map[string]mailbox.Folder
	// backup is the file receiving a copy of the index before a repair
	backup string
}

// Open the archive maildir and its index. Each call returns a new handle.
func Open(config Config) (*Archive, error) {
	logger := lib.OrNoLog(config.Logger)
	tree, err := mdir.New(config.Path, config.Layout)
	if err != nil {
		return nil, err
	}
	if !record.ValidField(tree.Name()) {
		return nil, fmt.Errorf("%w: archive name %q", lib.ErrMalformedRecord, tree.Name())
	}
	tree.DebugLogger(logger)
	if config.Store == "" {
		config.Store = storage.TypeBolt
	}
	store, err := openStore(config.Store, tree.Root(), logger)
	if err != nil {
		return nil, err
	}
	archive := New(tree, store, logger)
	if filename := config.Store.Filename(); filename != "" {
		archive.backup = filepath.Join(tree.Root(), filename+".bak")
	}
	return archive, nil
}

// New archive over a folder tree and an index store
func New(tree mailbox.Tree, store storage.Store, logger lib.Logger) *Archive {
	return &Archive{
		tree:    tree,
		store:   store,
		log:     lib.OrNoLog(logger),
		folders: make(map[string]mailbox.Folder),
	}
}

// DebugLogger sets a logger to send debug information to
func (a *Archive) DebugLogger(logger lib.Logger) {
	a.log = lib.OrNoLog(logger)
}

func (a *Archive) Name() string {
	return a.tree.Name()
}

func (a *Archive) Tree() mailbox.Tree {
	return a.tree
}

func (a *Archive) Store() storage.Store {
	return a.store
}

// SupportConcurrentHandles is true when more than one handle can write to this archive at the same time
func (a *Archive) SupportConcurrentHandles() bool {
	return a.store.SupportConcurrentHandles()
}

func (a *Archive) Close() error {
	return a.store.Close()
}

// HistoryFile is where the runs on this archive are recorded
func (a *Archive) HistoryFile() string {
	if tree, ok := a.tree.(*mdir.Maildir); ok {
		return filepath.Join(tree.Root(), mailbox.HistoryFilename)
	}
	return ""
}

// BackupIndex copies the index next to it, for the backends able to do so.
// It returns the name of the copy, or an empty string when the backend has no backup.
func (a *Archive) BackupIndex() (string, error) {
	backuper, ok := a.store.(storage.Backuper)
	if !ok || a.backup == "" {
		return "", nil
	}
	filename := a.backup
	// sqlite refuses to overwrite an existing file
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("cannot remove previous index backup: %w", err)
	}
	if err := backuper.Backup(filename); err != nil {
		return "", fmt.Errorf("cannot backup index: %w", err)
	}
	a.log.Printf("index saved into %q", filename)
	return filename, nil
}

// Lookup returns the record of a content hash: lib.ErrNotFound when the hash is unknown,
// lib.ErrMalformedRecord when the value cannot be read.
func (a *Archive) Lookup(hash string) (*record.Record, error) {
	return lookup(a.store, hash)
}

func lookup(kv storage.KV, hash string) (*record.Record, error) {
	value, err := kv.Get(hash)
	if err != nil {
		return nil, err
	}
	return record.Parse(value)
}

// Add files a message not seen before. When the content hash is already indexed,
// the message is merged into the archived copy instead.
func (a *Archive) Add(msg *mailbox.Message) (Outcome, error) {
	return a.add(a.store, msg)
}

// Update merges the flags and the time of msg into the archived copy of the same content.
// It returns lib.ErrNotFound when the content hash is not indexed.
func (a *Archive) Update(msg *mailbox.Message) (Outcome, error) {
	return a.update(a.store, msg)
}

func (a *Archive) add(kv storage.KV, msg *mailbox.Message) (Outcome, error) {
	if msg.Hash == "" {
		return "", fmt.Errorf("%w: message %s has no content hash", lib.ErrEmptyValue, msg)
	}
	name := a.Classify(msg)
	if !record.ValidField(name) {
		return "", fmt.Errorf("%w: folder %q", lib.ErrMalformedRecord, name)
	}
	folder, err := a.createFolder(name)
	if err != nil {
		return "", err
	}
	key, err := folder.Add(msg)
	if err != nil {
		if key != "" && folder.Contains(key) {
			_ = folder.Remove(key)
		}
		return "", fmt.Errorf("cannot file message %s: %w", msg.Hash, err)
	}
	value, err := record.FromMessage(folder.Name(), key, msg).Format()
	if err == nil {
		err = kv.Create(msg.Hash, value)
	}
	if err == nil {
		a.log.Printf("added %s as %s/%s", msg.Hash, folder.Name(), key)
		return Added, nil
	}

	// the copy we just filed is not indexed
	if folder.Contains(key) {
		if removeErr := folder.Remove(key); removeErr != nil {
			a.log.Printf("cannot remove duplicate %s/%s: %v", folder.Name(), key, removeErr)
		}
	}
	if errors.Is(err, lib.ErrAlreadyExists) {
		a.log.Printf("%s was added concurrently: updating", msg.Hash)
		return a.update(kv, msg)
	}
	return "", fmt.Errorf("cannot index message %s: %w", msg.Hash, err)
}

func (a *Archive) update(kv storage.KV, msg *mailbox.Message) (Outcome, error) {
	rec, err := lookup(kv, msg.Hash)
	if err != nil {
		return "", err
	}
	if !rec.ShouldUpdate(msg) {
		return Existing, nil
	}
	folder, err := a.getFolder(rec.Folder)
	if err != nil {
		return "", fmt.Errorf("cannot update %s: %w", msg.Hash, err)
	}
	archived, err := folder.Get(rec.MessageID, true)
	if err != nil {
		return "", fmt.Errorf("cannot update %s: %w", msg.Hash, err)
	}
	rec.MergeFlags(archived.Flags)
	rec.MergeFlags(msg.Flags)
	rec.MergeMtime(msg.Mtime)
	value, err := rec.Format()
	if err != nil {
		return "", err
	}
	merged := &mailbox.Message{
		Hash:  msg.Hash,
		Key:   rec.MessageID,
		Flags: rec.Flags,
		Mtime: rec.Mtime,
	}
	err = folder.Update(rec.MessageID, merged)
	if err != nil {
		return "", fmt.Errorf("cannot update %s: %w", msg.Hash, err)
	}
	err = kv.Set(msg.Hash, value)
	if err != nil {
		return "", fmt.Errorf("cannot update record %s: %w", msg.Hash, err)
	}
	a.log.Printf("updated %s in %s/%s: flags=%q", msg.Hash, rec.Folder, rec.MessageID, rec.Flags)
	return Updated, nil
}

// createFolder is memoized
func (a *Archive) createFolder(name string) (mailbox.Folder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if folder, ok := a.folders[name]; ok {
		return folder, nil
	}
	folder, err := a.tree.CreateFolder(name)
	if err != nil {
		return nil, fmt.Errorf("cannot create archive folder %q: %w", name, err)
	}
	a.folders[name] = folder
	return folder, nil
}

// getFolder never creates a folder: it returns lib.ErrFolderNotFound instead
func (a *Archive) getFolder(name string) (mailbox.Folder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if folder, ok := a.folders[name]; ok {
		return folder, nil
	}
	folder, err := a.tree.GetFolder(name)
	if err != nil {
		return nil, err
	}
	a.folders[name] = folder
	return folder, nil
}
