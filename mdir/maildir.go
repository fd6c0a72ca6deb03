package mdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/emersion/go-maildir"
)

// Layout of the subfolders of a maildir
type Layout string

const (
	// LayoutMaildirPlusPlus keeps subfolders as hidden siblings of cur/new/tmp: ".2021.Sent"
	LayoutMaildirPlusPlus Layout = "maildir++"
	// LayoutFS keeps subfolders as nested directories: "2021/Sent"
	LayoutFS Layout = "fs"
)

const (
	// Delimiter of the folder names
	Delimiter = "/"
	// delimiter of the maildir++ directory names
	plusDelimiter = "."
)

func ParseLayout(value string) (Layout, error) {
	switch Layout(value) {
	case LayoutMaildirPlusPlus, "":
		return LayoutMaildirPlusPlus, nil
	case LayoutFS:
		return LayoutFS, nil
	default:
		return "", fmt.Errorf("unknown maildir layout %q", value)
	}
}

// Maildir is a tree of maildir folders. The root folder is named after the directory,
// its subfolders are named root/sub/folder whatever the layout on disk.
type Maildir struct {
	root      string
	name      string
	layout    Layout
	log       lib.Logger
	readLimit float64
	ctx       context.Context
}

// New opens the maildir, creating it when needed
func New(root string, layout Layout) (*Maildir, error) {
	m := newMaildir(root, layout)
	err := maildir.Dir(m.root).Init()
	if err != nil {
		return nil, fmt.Errorf("cannot create maildir %q: %w", root, err)
	}
	return m, nil
}

// Open an existing maildir. It returns lib.ErrInvalidMaildir when root is not a maildir.
func Open(root string, layout Layout) (*Maildir, error) {
	m := newMaildir(root, layout)
	if !IsMaildir(m.root) {
		return nil, fmt.Errorf("%w: %s", lib.ErrInvalidMaildir, root)
	}
	return m, nil
}

func newMaildir(root string, layout Layout) *Maildir {
	root = filepath.Clean(root)
	return &Maildir{
		root:   root,
		name:   strings.TrimPrefix(filepath.Base(root), plusDelimiter),
		layout: layout,
		log:    &lib.NoLog{},
	}
}

// IsMaildir returns true when the directory has a cur subdirectory
func IsMaildir(path string) bool {
	info, err := os.Stat(filepath.Join(path, "cur"))
	return err == nil && info.IsDir()
}

// DebugLogger sets a logger to send debug information to
func (m *Maildir) DebugLogger(logger lib.Logger) {
	m.log = lib.OrNoLog(logger)
}

// SetReadLimit limits the bandwidth used to read message contents (bytes per second, 0 is no limit)
func (m *Maildir) SetReadLimit(bytesPerSec float64) {
	m.readLimit = bytesPerSec
}

// SetContext stops the bandwidth limited reads once ctx is done
func (m *Maildir) SetContext(ctx context.Context) {
	m.ctx = ctx
}

func (m *Maildir) readContext() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *Maildir) Name() string {
	return m.name
}

func (m *Maildir) Root() string {
	return m.root
}

func (m *Maildir) Layout() Layout {
	return m.layout
}

// ListFolders returns the sorted names of all the folders, the root folder included
func (m *Maildir) ListFolders() ([]string, error) {
	var (
		names []string
		err   error
	)
	switch m.layout {
	case LayoutFS:
		names, err = m.listFS()
	default:
		names, err = m.listMaildirPlusPlus()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot list folders of %q: %w", m.root, err)
	}
	if IsMaildir(m.root) {
		names = append(names, m.name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Maildir) listMaildirPlusPlus() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), plusDelimiter) || len(entry.Name()) == 1 {
			continue
		}
		if !IsMaildir(filepath.Join(m.root, entry.Name())) {
			continue
		}
		parts := lib.SplitDelimited(entry.Name()[1:], plusDelimiter)
		names = append(names, m.name+Delimiter+strings.Join(parts, Delimiter))
	}
	return names, nil
}

func (m *Maildir) listFS() ([]string, error) {
	names := make([]string, 0)
	err := filepath.WalkDir(m.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() || path == m.root {
			return nil
		}
		if isReserved(entry.Name()) {
			return filepath.SkipDir
		}
		if IsMaildir(path) {
			relative, err := filepath.Rel(m.root, path)
			if err != nil {
				return err
			}
			names = append(names, m.name+Delimiter+filepath.ToSlash(relative))
		}
		return nil
	})
	return names, err
}

// isReserved is true for the directories that cannot contain subfolders in the FS layout
func isReserved(name string) bool {
	switch name {
	case "cur", "new", "tmp":
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".symdb")
}

// GetFolder returns lib.ErrFolderNotFound when the folder doesn't exist
func (m *Maildir) GetFolder(name string) (mailbox.Folder, error) {
	path, err := m.path(name)
	if err != nil {
		return nil, err
	}
	if !IsMaildir(path) {
		return nil, fmt.Errorf("%w: %s", lib.ErrFolderNotFound, name)
	}
	return m.folder(name, path), nil
}

// CreateFolder is idempotent
func (m *Maildir) CreateFolder(name string) (mailbox.Folder, error) {
	path, err := m.path(name)
	if err != nil {
		return nil, err
	}
	if !IsMaildir(path) {
		m.log.Printf("creating folder %q in %q", name, path)
		err = os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, fmt.Errorf("cannot create folder %q: %w", name, err)
		}
		err = maildir.Dir(path).Init()
		if err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("cannot create folder %q: %w", name, err)
		}
	}
	return m.folder(name, path), nil
}

func (m *Maildir) folder(name, path string) *Folder {
	return &Folder{
		name: name,
		dir:  maildir.Dir(path),
		tree: m,
	}
}

// path converts a folder name into its directory
func (m *Maildir) path(name string) (string, error) {
	if name == m.name {
		return m.root, nil
	}
	sub := strings.TrimPrefix(name, m.name+Delimiter)
	if sub == name || sub == "" {
		return "", fmt.Errorf("%w: %q is not a folder of %q", lib.ErrFolderNotFound, name, m.name)
	}
	for _, part := range strings.Split(sub, Delimiter) {
		if part == "" || part == "." || part == ".." || isReserved(part) {
			return "", fmt.Errorf("%w: invalid folder name %q", lib.ErrFolderNotFound, name)
		}
	}
	if m.layout == LayoutFS {
		return filepath.Join(m.root, filepath.FromSlash(sub)), nil
	}
	return filepath.Join(m.root, plusDelimiter+lib.VerifyDelimiter(sub, Delimiter, plusDelimiter)), nil
}

// verify interface
var _ mailbox.Tree = &Maildir{}
