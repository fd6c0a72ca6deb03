// Package mbox reads the messages of an mbox file as an import source.
package mbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	mboxlib "github.com/emersion/go-mbox"
)

const (
	headerStatus  = "Status"
	headerXStatus = "X-Status"
	keyFormat     = "%06d"
)

// statusFlags converts the letters of the Status and X-Status headers
var statusFlags = map[rune]byte{
	'R': mailbox.FlagSeen,
	'A': mailbox.FlagReplied,
	'F': mailbox.FlagFlagged,
	'D': mailbox.FlagTrashed,
	'T': mailbox.FlagDraft,
}

// Reader loads the whole mbox file the first time the keys are listed.
type Reader struct {
	path     string
	name     string
	mtime    time.Time
	messages [][]byte
	loaded   bool
	log      lib.Logger
}

func New(path string) (*Reader, error) {
	return NewWithLogger(path, nil)
}

func NewWithLogger(path string, logger lib.Logger) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open mbox file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open mbox file: %q is a directory", path)
	}
	return &Reader{
		path:  path,
		name:  filepath.Base(path),
		mtime: info.ModTime(),
		log:   lib.OrNoLog(logger),
	}, nil
}

func (r *Reader) Name() string {
	return r.name
}

// Keys are the zero-padded positions of the messages in the file
func (r *Reader) Keys() ([]string, error) {
	err := r.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(r.messages))
	for i := range r.messages {
		keys[i] = fmt.Sprintf(keyFormat, i)
	}
	return keys, nil
}

func (r *Reader) Get(key string, metadataOnly bool) (*mailbox.Message, error) {
	err := r.load()
	if err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(key)
	if err != nil || index < 0 || index >= len(r.messages) {
		return nil, fmt.Errorf("%w: message %q in %q", lib.ErrNotFound, key, r.name)
	}
	content := r.messages[index]
	header, err := mailbox.ParseHeader(content)
	if err != nil {
		return nil, fmt.Errorf("message %q in %q: %w", key, r.name, err)
	}
	flags := parseStatus(header.Get(headerStatus) + header.Get(headerXStatus))
	mtime := r.mtime
	if date, err := header.Date(); err == nil && !date.IsZero() {
		mtime = date
	}

	var msg *mailbox.Message
	if metadataOnly {
		msg = &mailbox.Message{Flags: flags, Mtime: mtime, Date: mtime}
	} else {
		msg = mailbox.NewMessage(content, flags, mtime, lib.ContentHash)
	}
	msg.Key = key
	msg.Folder = r.name
	return msg, nil
}

func (r *Reader) load() error {
	if r.loaded {
		return nil
	}
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("cannot open mbox file: %w", err)
	}
	defer file.Close()

	messages := make([][]byte, 0)
	reader := mboxlib.NewReader(file)
	for {
		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("cannot read message %d of %q: %w", len(messages), r.name, err)
		}
		content, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("cannot read message %d of %q: %w", len(messages), r.name, err)
		}
		messages = append(messages, content)
	}
	r.log.Printf("loaded %d messages from %q", len(messages), r.path)
	r.messages = messages
	r.loaded = true
	return nil
}

func parseStatus(status string) mailbox.Flags {
	flags := make([]byte, 0, len(status))
	for _, letter := range strings.TrimSpace(status) {
		if flag, ok := statusFlags[letter]; ok {
			flags = append(flags, flag)
		}
	}
	return mailbox.NewFlags(string(flags))
}

// verify interface
var _ mailbox.Reader = &Reader{}
