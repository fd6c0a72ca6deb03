package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = map[string]string{mailbox.HeaderReceived: "from mx.example.org by localhost"}

func archiveConfig(t *testing.T, storeType storage.Type) archive.Config {
	return archive.Config{
		Path:   filepath.Join(t.TempDir(), "Archive"),
		Layout: mdir.LayoutMaildirPlusPlus,
		Store:  storeType,
		Logger: lib.NewTestLogger(t, "archive"),
	}
}

func openArchive(t *testing.T, config archive.Config) *archive.Archive {
	t.Helper()
	handle, err := archive.Open(config)
	require.NoError(t, err)
	t.Cleanup(func() {
		handle.Close()
	})
	return handle
}

func newMessage(date time.Time, flags string) *mailbox.Message {
	content := lib.GenerateEmail(lib.Email{Date: date, Headers: received})
	return mailbox.NewMessage(content, mailbox.NewFlags(flags), date, lib.ContentHash)
}

// sourceMaildir creates a maildir with count random messages
func sourceMaildir(t *testing.T, name string, count int) *mdir.Folder {
	t.Helper()
	tree, err := mdir.New(filepath.Join(t.TempDir(), name), mdir.LayoutMaildirPlusPlus)
	require.NoError(t, err)
	folder, err := tree.GetFolder(tree.Name())
	require.NoError(t, err)
	for n := 0; n < count; n++ {
		date := lib.GenerateDateFrom(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
		_, err = folder.Add(newMessage(date, lib.GenerateFlags(4)))
		require.NoError(t, err)
	}
	return folder.(*mdir.Folder)
}

func countKeys(t *testing.T, handle *archive.Archive) int {
	t.Helper()
	keys, err := handle.Store().Keys()
	require.NoError(t, err)
	return len(keys)
}

// memorySource is a reader with an optional failing key
type memorySource struct {
	name     string
	messages map[string]*mailbox.Message
	failing  string
}

func (s *memorySource) Name() string {
	return s.name
}

func (s *memorySource) Keys() ([]string, error) {
	keys := make([]string, 0, len(s.messages))
	for key := range s.messages {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *memorySource) Get(key string, metadataOnly bool) (*mailbox.Message, error) {
	if key == s.failing {
		return nil, errors.New("unreadable message")
	}
	msg, ok := s.messages[key]
	if !ok {
		return nil, lib.ErrNotFound
	}
	return msg, nil
}

type failingSource struct {
	memorySource
}

func (s *failingSource) Keys() ([]string, error) {
	return nil, errors.New("cannot list")
}

func TestImportSynchronously(t *testing.T) {
	for _, storeType := range []storage.Type{storage.TypeBolt, storage.TypeSymlink} {
		t.Run(string(storeType), func(t *testing.T) {
			into := openArchive(t, archiveConfig(t, storeType))
			sources := []mailbox.Reader{sourceMaildir(t, "Inbox", 10), sourceMaildir(t, "Other", 5)}

			summary, err := New(into, nil, Options{}).Import(nil, sources)
			require.NoError(t, err)
			assert.Equal(t, Summary{Added: 15}, summary)
			assert.Equal(t, 15, countKeys(t, into))

			// second time round
			summary, err = New(into, nil, Options{}).Import(nil, sources)
			require.NoError(t, err)
			assert.Equal(t, Summary{Existing: 15}, summary)
		})
	}
}

func TestImportDryRun(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeBolt))
	source := sourceMaildir(t, "Inbox", 8)

	summary, err := New(into, nil, Options{DryRun: true}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 8}, summary)
	assert.Equal(t, 0, countKeys(t, into))
	folders, err := into.Tree().ListFolders()
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive"}, folders)

	// the real import gives the same outcomes
	summary, err = New(into, nil, Options{}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 8}, summary)

	// a new flag on one message
	keys, err := source.Keys()
	require.NoError(t, err)
	msg, err := source.Get(keys[0], true)
	require.NoError(t, err)
	for _, flag := range "FPRS" {
		if !msg.Flags.Has(byte(flag)) {
			msg.Flags = msg.Flags.Union(mailbox.Flags(flag))
			break
		}
	}
	require.NoError(t, source.Update(keys[0], msg))

	before, err := into.Store().Keys()
	require.NoError(t, err)
	summary, err = New(into, nil, Options{DryRun: true}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Existing: 7}, summary)
	after, err := into.Store().Keys()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// the real run agrees
	summary, err = New(into, nil, Options{}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Existing: 7}, summary)
}

func TestImportLeavesNewMessagesInPlace(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeBolt))
	source := sourceMaildir(t, "Inbox", 0)
	delivered := filepath.Join(source.Path(), "new", "1614852000.M1P2.host")
	content := lib.GenerateEmail(lib.Email{Date: time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC), Headers: received})
	require.NoError(t, os.WriteFile(delivered, content, 0600))

	summary, err := New(into, nil, Options{DryRun: true}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 1}, summary)
	assert.FileExists(t, delivered)

	summary, err = New(into, nil, Options{}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 1}, summary)
	// a source is only ever read
	assert.FileExists(t, delivered)
	assert.Equal(t, 1, countKeys(t, into))
}

func TestImportWithWorkers(t *testing.T) {
	for _, storeType := range []storage.Type{storage.TypeSQLite, storage.TypeSymlink} {
		t.Run(string(storeType), func(t *testing.T) {
			config := archiveConfig(t, storeType)
			into := openArchive(t, config)
			sources := []mailbox.Reader{sourceMaildir(t, "Inbox", 30), sourceMaildir(t, "Sent", 10)}
			opened := 0
			opener := func() (*archive.Archive, error) {
				opened++
				config.Logger = nil
				return archive.Open(config)
			}

			summary, err := New(into, opener, Options{Workers: 4}).Import(nil, sources)
			require.NoError(t, err)
			assert.Equal(t, 4, opened)
			assert.Equal(t, Summary{Added: 40}, summary)
			assert.Equal(t, 40, countKeys(t, into))

			// same outcomes as a synchronous run
			summary, err = New(into, opener, Options{Workers: 1}).Import(nil, sources)
			require.NoError(t, err)
			assert.Equal(t, Summary{Existing: 40}, summary)
			assert.Equal(t, 4, opened)
		})
	}
}

func TestImportDuplicatesWithWorkers(t *testing.T) {
	config := archiveConfig(t, storage.TypeSQLite)
	into := openArchive(t, config)
	opener := func() (*archive.Archive, error) {
		return archive.Open(config)
	}

	messages := make(map[string]*mailbox.Message)
	original := newMessage(time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC), "S")
	for n := 0; n < 20; n++ {
		flags := mailbox.Flags("S")
		if n%2 == 1 {
			flags = "RS"
		}
		messages[fmt.Sprintf("%03d", n)] = mailbox.NewMessage(original.Content, flags, original.Mtime, lib.ContentHash)
	}

	summary, err := New(into, opener, Options{Workers: 4}).Import(nil, []mailbox.Reader{
		&memorySource{name: "duplicates", messages: messages},
	})
	require.NoError(t, err)
	// concurrent updates of the same archived copy can fail: the next import would catch up
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 20, summary.Total())

	rec, err := into.Lookup(original.Hash)
	require.NoError(t, err)
	assert.Equal(t, mailbox.Flags("RS"), rec.Flags)
	folder, err := into.Tree().GetFolder(rec.Folder)
	require.NoError(t, err)
	keys, err := folder.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestImportWithoutConcurrentHandles(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeBolt))
	opener := func() (*archive.Archive, error) {
		return nil, errors.New("should not be called")
	}
	summary, err := New(into, opener, Options{Workers: 4}).Import(nil, []mailbox.Reader{sourceMaildir(t, "Inbox", 5)})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 5}, summary)
}

func TestImportWorkerCannotOpen(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeSQLite))
	opener := func() (*archive.Archive, error) {
		return nil, errors.New("no archive")
	}
	_, err := New(into, opener, Options{Workers: 2}).Import(nil, []mailbox.Reader{sourceMaildir(t, "Inbox", 5)})
	assert.Error(t, err)
}

func TestImportCountsErrors(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeMemory))
	date := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	source := &memorySource{
		name: "source",
		messages: map[string]*mailbox.Message{
			"1": newMessage(date, "S"),
			"2": newMessage(date, "S"),
			"3": newMessage(date, "S"),
		},
		failing: "2",
	}
	failed := make([]string, 0)
	summary, err := New(into, nil, Options{
		OnError: func(source, key string, err error) {
			failed = append(failed, source+"/"+key)
		},
	}).Import(nil, []mailbox.Reader{source})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 2, Errors: 1}, summary)
	assert.Equal(t, []string{"source/2"}, failed)
}

func TestImportStopsOnUnreadableSource(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeMemory))
	_, err := New(into, nil, Options{}).Import(nil, []mailbox.Reader{&failingSource{memorySource{name: "broken"}}})
	assert.Error(t, err)
}

func TestImportCancelled(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeBolt))
	token := lib.NewCancelToken()
	token.Cancel()

	summary, err := New(into, nil, Options{}).Import(token, []mailbox.Reader{sourceMaildir(t, "Inbox", 5)})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 0, summary.Total())
	assert.Equal(t, 0, countKeys(t, into))
}

type cancellingProgress struct {
	token *lib.CancelToken
	after int
	count int
}

func (p *cancellingProgress) Start(name string, total int) {}
func (p *cancellingProgress) Stop()                        {}
func (p *cancellingProgress) Increment(mark string) {
	p.count++
	if p.count == p.after {
		p.token.Cancel()
	}
}

func TestImportCancelledWhileRunning(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			config := archiveConfig(t, storage.TypeSQLite)
			into := openArchive(t, config)
			token := lib.NewCancelToken()
			progress := &cancellingProgress{token: token, after: 3}

			summary, err := New(into, func() (*archive.Archive, error) {
				return archive.Open(config)
			}, Options{Workers: workers, Progress: progress}).Import(token, []mailbox.Reader{sourceMaildir(t, "Inbox", 50)})
			require.NoError(t, err)
			assert.True(t, summary.Cancelled)
			assert.Less(t, summary.Total(), 50)
			assert.Equal(t, summary.Added, countKeys(t, into))
		})
	}
}

func TestImportThrottle(t *testing.T) {
	into := openArchive(t, archiveConfig(t, storage.TypeMemory))
	start := time.Now()
	summary, err := New(into, nil, Options{Throttle: 50}).Import(nil, []mailbox.Reader{sourceMaildir(t, "Inbox", 6)})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Added)
	// the first message is free
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestSourcesAreSortedByName(t *testing.T) {
	sources := sortSources([]mailbox.Reader{
		&memorySource{name: "c"},
		&memorySource{name: "a"},
		&memorySource{name: "b"},
	})
	names := make([]string, len(sources))
	for n, source := range sources {
		names[n] = source.Name()
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
