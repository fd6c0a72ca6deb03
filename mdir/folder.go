package mdir

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/limitio"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/emersion/go-maildir"
)

const (
	readBurst = 32 * 1024
	// separates the key from the flags in a maildir filename
	infoSeparator = ":"
)

// Folder is a single maildir. Messages are kept in cur/ with their flags in the filename,
// the modification time of the file is the message mtime. Messages delivered in new/
// by other programs are read in place.
type Folder struct {
	name string
	dir  maildir.Dir
	tree *Maildir
}

func (f *Folder) Name() string {
	return f.name
}

func (f *Folder) Path() string {
	return string(f.dir)
}

// Keys lists the messages of cur/ and new/. Nothing is moved: a message stays in new/
// until it is updated or moved.
func (f *Folder) Keys() ([]string, error) {
	messages, err := f.dir.Messages()
	if err != nil {
		return nil, fmt.Errorf("cannot list messages in %q: %w", f.name, err)
	}
	unseen, err := f.newMessages()
	if err != nil {
		return nil, fmt.Errorf("cannot list new messages in %q: %w", f.name, err)
	}
	keys := make([]string, 0, len(messages)+len(unseen))
	for _, msg := range messages {
		keys = append(keys, msg.Key())
		delete(unseen, msg.Key())
	}
	for key := range unseen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *Folder) Get(key string, metadataOnly bool) (*mailbox.Message, error) {
	found, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(found.filename)
	if err != nil {
		return nil, fmt.Errorf("cannot stat message %q: %w", key, err)
	}
	if metadataOnly {
		return &mailbox.Message{
			Key:    key,
			Folder: f.name,
			Flags:  found.flags,
			Mtime:  info.ModTime(),
			Date:   info.ModTime(),
		}, nil
	}

	content, err := f.read(found)
	if err != nil {
		return nil, err
	}
	message := mailbox.NewMessage(content, found.flags, info.ModTime(), lib.ContentHash)
	message.Key = key
	message.Folder = f.name
	return message, nil
}

func (f *Folder) read(found *entry) ([]byte, error) {
	file, err := os.Open(found.filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open message %q: %w", found.key, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if f.tree.readLimit > 0 {
		limited := limitio.NewReaderWithContext(f.tree.readContext(), file)
		limited.SetRateLimit(f.tree.readLimit, readBurst)
		reader = limited
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read message %q: %w", found.key, err)
	}
	return content, nil
}

// Add files the content of msg with its flags and mtime. Nothing is left behind on error.
func (f *Folder) Add(msg *mailbox.Message) (string, error) {
	created, writer, err := f.dir.Create(msg.Flags.Maildir())
	if err != nil {
		return "", fmt.Errorf("cannot create message in %q: %w", f.name, err)
	}
	_, err = io.Copy(writer, bytes.NewReader(msg.Content))
	closeErr := writer.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		f.discard(created)
		return "", fmt.Errorf("cannot write message in %q: %w", f.name, err)
	}
	key := created.Key()
	err = f.setMtime(key, msg.Mtime)
	if err != nil {
		f.discard(created)
		return "", err
	}
	f.tree.log.Printf("message saved: folder=%q key=%q size=%d flags=%q", f.name, key, len(msg.Content), msg.Flags)
	return key, nil
}

// discard removes a message that failed to be delivered, wherever the delivery stopped
func (f *Folder) discard(created *maildir.Message) {
	_ = os.Remove(filepath.Join(f.Path(), "tmp", created.Key()))
	_ = created.Remove()
}

func (f *Folder) Remove(key string) error {
	found, err := f.lookup(key)
	if err != nil {
		return err
	}
	if found.message != nil {
		return found.message.Remove()
	}
	return os.Remove(found.filename)
}

func (f *Folder) Contains(key string) bool {
	_, err := f.lookup(key)
	return err == nil
}

// Update sets the flags and the mtime of msg on the message
func (f *Folder) Update(key string, msg *mailbox.Message) error {
	existing, err := f.accept(key)
	if err != nil {
		return err
	}
	err = existing.SetFlags(msg.Flags.Maildir())
	if err != nil {
		return fmt.Errorf("cannot set flags of message %q: %w", key, err)
	}
	return f.setMtime(key, msg.Mtime)
}

// Move keeps the key when dest is a folder of the same tree
func (f *Folder) Move(key string, dest mailbox.Folder) (string, error) {
	if target, ok := dest.(*Folder); ok {
		msg, err := f.accept(key)
		if err != nil {
			return "", err
		}
		err = msg.MoveTo(target.dir)
		if err != nil {
			return "", fmt.Errorf("cannot move message %q from %q to %q: %w", key, f.name, target.name, err)
		}
		f.tree.log.Printf("message moved: key=%q from=%q to=%q", key, f.name, target.name)
		return key, nil
	}
	msg, err := f.Get(key, false)
	if err != nil {
		return "", err
	}
	newKey, err := dest.Add(msg)
	if err != nil {
		return "", err
	}
	return newKey, f.Remove(key)
}

func (f *Folder) setMtime(key string, mtime time.Time) error {
	if mtime.IsZero() {
		return nil
	}
	// flags are part of the filename: find it again
	found, err := f.lookup(key)
	if err != nil {
		return err
	}
	err = os.Chtimes(found.filename, mtime, mtime)
	if err != nil {
		return fmt.Errorf("cannot set time of message %q: %w", key, err)
	}
	return nil
}

// entry is a message found in cur/ or in new/
type entry struct {
	key      string
	filename string
	flags    mailbox.Flags
	// message is nil while the message is in new/
	message *maildir.Message
}

// lookup returns lib.ErrNotFound when no message has this key
func (f *Folder) lookup(key string) (*entry, error) {
	msg, err := f.lookupCur(key)
	if err == nil {
		return &entry{
			key:      key,
			filename: msg.Filename(),
			flags:    mailbox.FlagsFromMaildir(msg.Flags()),
			message:  msg,
		}, nil
	}
	if !errors.Is(err, lib.ErrNotFound) {
		return nil, err
	}
	if filename, ok := f.findNew(key); ok {
		return &entry{key: key, filename: filename}, nil
	}
	return nil, err
}

func (f *Folder) lookupCur(key string) (*maildir.Message, error) {
	msg, err := f.dir.MessageByKey(key)
	if err != nil {
		var keyErr *maildir.KeyError
		if errors.As(err, &keyErr) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: message %q in %q", lib.ErrNotFound, key, f.name)
		}
		return nil, fmt.Errorf("cannot find message %q in %q: %w", key, f.name, err)
	}
	return msg, nil
}

// accept moves the message from new/ to cur/ when needed. Only the paths modifying a message call it.
func (f *Folder) accept(key string) (*maildir.Message, error) {
	if filename, ok := f.findNew(key); ok {
		name := filepath.Base(filename)
		if !strings.Contains(name, infoSeparator) {
			name += infoSeparator + "2,"
		}
		err := os.Rename(filename, filepath.Join(f.Path(), "cur", name))
		if err != nil {
			return nil, fmt.Errorf("cannot move new message %q to cur: %w", key, err)
		}
	}
	return f.lookupCur(key)
}

// newMessages returns the files in new/ by key
func (f *Folder) newMessages() (map[string]string, error) {
	dir := filepath.Join(f.Path(), "new")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	messages := make(map[string]string, len(entries))
	for _, dirEntry := range entries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		key, _, _ := strings.Cut(name, infoSeparator)
		messages[key] = filepath.Join(dir, name)
	}
	return messages, nil
}

func (f *Folder) findNew(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, infoSeparator+string(filepath.Separator)) {
		return "", false
	}
	filename := filepath.Join(f.Path(), "new", key)
	if info, err := os.Stat(filename); err == nil && !info.IsDir() {
		return filename, true
	}
	messages, err := f.newMessages()
	if err != nil {
		return "", false
	}
	filename, ok := messages[key]
	return filename, ok
}

// verify interface
var _ mailbox.Folder = &Folder{}
