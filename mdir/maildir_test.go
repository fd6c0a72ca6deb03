package mdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestTree(t *testing.T, layout Layout) *Maildir {
	t.Helper()
	tree, err := New(filepath.Join(t.TempDir(), "Mail"), layout)
	require.NoError(t, err)
	tree.DebugLogger(lib.NewTestLogger(t, "maildir"))
	return tree
}

func newTestMessage(body string, flags string) *mailbox.Message {
	content := lib.GenerateEmail(lib.Email{Date: testTime, Body: body})
	return mailbox.NewMessage(content, mailbox.NewFlags(flags), testTime, lib.ContentHash)
}

// deliver drops a message in new/ the way a delivery agent does
func deliver(t *testing.T, folder *Folder, name string, content []byte) string {
	t.Helper()
	filename := filepath.Join(folder.Path(), "new", name)
	require.NoError(t, os.WriteFile(filename, content, 0600))
	return filename
}

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutMaildirPlusPlus, layout)

	layout, err = ParseLayout("fs")
	require.NoError(t, err)
	assert.Equal(t, LayoutFS, layout)

	_, err = ParseLayout("mh")
	assert.Error(t, err)
}

func TestOpenNotAMaildir(t *testing.T) {
	_, err := Open(t.TempDir(), LayoutFS)
	assert.ErrorIs(t, err, lib.ErrInvalidMaildir)
}

func TestMaildirPlusPlusName(t *testing.T) {
	tree, err := New(filepath.Join(t.TempDir(), ".Archive"), LayoutMaildirPlusPlus)
	require.NoError(t, err)
	assert.Equal(t, "Archive", tree.Name())
	assert.True(t, IsMaildir(tree.Root()))
}

func TestListFolders(t *testing.T) {
	testData := []struct {
		layout Layout
		paths  []string
	}{
		{LayoutMaildirPlusPlus, []string{".2021", ".2021.Sent", ".v1\\.2"}},
		{LayoutFS, []string{"2021", "2021/Sent", "v1.2"}},
	}
	for _, testItem := range testData {
		t.Run(string(testItem.layout), func(t *testing.T) {
			tree := newTestTree(t, testItem.layout)
			for _, name := range []string{"Mail/2021/Sent", "Mail/2021", "Mail/v1.2"} {
				_, err := tree.CreateFolder(name)
				require.NoError(t, err)
			}
			// not a maildir
			require.NoError(t, os.MkdirAll(filepath.Join(tree.Root(), "notes"), 0700))

			names, err := tree.ListFolders()
			require.NoError(t, err)
			assert.Equal(t, []string{"Mail", "Mail/2021", "Mail/2021/Sent", "Mail/v1.2"}, names)

			for _, path := range testItem.paths {
				assert.True(t, IsMaildir(filepath.Join(tree.Root(), filepath.FromSlash(path))), path)
			}
		})
	}
}

func TestCreateFolderIsIdempotent(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	first, err := tree.CreateFolder("Mail/2021")
	require.NoError(t, err)
	key, err := first.Add(newTestMessage("", "S"))
	require.NoError(t, err)

	second, err := tree.CreateFolder("Mail/2021")
	require.NoError(t, err)
	assert.True(t, second.Contains(key))
}

func TestInvalidFolderNames(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	for _, name := range []string{"Other/2021", "Mail/", "Mail/../x", "Mail/cur", "Mail//x", "Mail/.hidden"} {
		t.Run(name, func(t *testing.T) {
			_, err := tree.CreateFolder(name)
			assert.ErrorIs(t, err, lib.ErrFolderNotFound)
			_, err = tree.GetFolder(name)
			assert.ErrorIs(t, err, lib.ErrFolderNotFound)
		})
	}
	_, err := tree.GetFolder("Mail/missing")
	assert.ErrorIs(t, err, lib.ErrFolderNotFound)
}

func TestAddAndGet(t *testing.T) {
	tree := newTestTree(t, LayoutMaildirPlusPlus)
	folder, err := tree.CreateFolder("Mail/2021")
	require.NoError(t, err)
	msg := newTestMessage("hello", "SR")

	key, err := folder.Add(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.True(t, folder.Contains(key))

	keys, err := folder.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	full, err := folder.Get(key, false)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, full.Content)
	assert.Equal(t, msg.Hash, full.Hash)
	assert.Equal(t, mailbox.Flags("RS"), full.Flags)
	assert.True(t, testTime.Equal(full.Mtime))
	assert.Equal(t, key, full.Key)
	assert.Equal(t, "Mail/2021", full.Folder)

	metadata, err := folder.Get(key, true)
	require.NoError(t, err)
	assert.Empty(t, metadata.Content)
	assert.Equal(t, mailbox.Flags("RS"), metadata.Flags)
	assert.True(t, testTime.Equal(metadata.Mtime))

	// nothing left in tmp/
	entries, err := os.ReadDir(filepath.Join(folder.Path(), "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnknownKey(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	folder, err := tree.GetFolder("Mail")
	require.NoError(t, err)

	_, err = folder.Get("unknown", false)
	assert.ErrorIs(t, err, lib.ErrNotFound)
	assert.ErrorIs(t, folder.Remove("unknown"), lib.ErrNotFound)
	assert.ErrorIs(t, folder.Update("unknown", newTestMessage("", "S")), lib.ErrNotFound)
	assert.False(t, folder.Contains("unknown"))
}

func TestUpdateFlagsAndMtime(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	folder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	key, err := folder.Add(newTestMessage("", "S"))
	require.NoError(t, err)

	earlier := testTime.AddDate(-1, 0, 0)
	err = folder.Update(key, &mailbox.Message{Flags: "FS", Mtime: earlier})
	require.NoError(t, err)

	msg, err := folder.Get(key, true)
	require.NoError(t, err)
	assert.Equal(t, mailbox.Flags("FS"), msg.Flags)
	assert.True(t, earlier.Equal(msg.Mtime))
}

func TestRemove(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	folder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	key, err := folder.Add(newTestMessage("", ""))
	require.NoError(t, err)

	require.NoError(t, folder.Remove(key))
	assert.False(t, folder.Contains(key))
	keys, err := folder.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMoveInsideTheTreeKeepsTheKey(t *testing.T) {
	tree := newTestTree(t, LayoutMaildirPlusPlus)
	source, err := tree.CreateFolder("Mail/Inbox")
	require.NoError(t, err)
	dest, err := tree.CreateFolder("Mail/2021")
	require.NoError(t, err)
	msg := newTestMessage("moving", "S")
	key, err := source.Add(msg)
	require.NoError(t, err)

	newKey, err := source.Move(key, dest)
	require.NoError(t, err)
	assert.Equal(t, key, newKey)
	assert.False(t, source.Contains(key))

	moved, err := dest.Get(newKey, false)
	require.NoError(t, err)
	assert.Equal(t, msg.Hash, moved.Hash)
	assert.Equal(t, mailbox.Flags("S"), moved.Flags)
}

// copyingFolder hides the maildir folder so a move has to copy the message
type copyingFolder struct {
	mailbox.Folder
}

func TestMoveToAnotherKindOfFolder(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	source, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	other := newTestTree(t, LayoutFS)
	folder, err := other.GetFolder("Mail")
	require.NoError(t, err)
	dest := copyingFolder{folder}

	msg := newTestMessage("elsewhere", "RS")
	key, err := source.Add(msg)
	require.NoError(t, err)

	newKey, err := source.Move(key, dest)
	require.NoError(t, err)
	assert.NotEmpty(t, newKey)
	assert.NotEqual(t, key, newKey)
	assert.False(t, source.Contains(key))

	moved, err := dest.Get(newKey, false)
	require.NoError(t, err)
	assert.Equal(t, msg.Hash, moved.Hash)
	assert.Equal(t, mailbox.Flags("RS"), moved.Flags)
	assert.True(t, testTime.Equal(moved.Mtime))
}

func TestNewMessagesAreReadInPlace(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	mailFolder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	folder := mailFolder.(*Folder)
	content := newTestMessage("delivered", "").Content
	filename := deliver(t, folder, "1614852000.M1P2.host", content)

	keys, err := folder.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"1614852000.M1P2.host"}, keys)
	assert.FileExists(t, filename)

	msg, err := folder.Get("1614852000.M1P2.host", false)
	require.NoError(t, err)
	assert.Equal(t, content, msg.Content)
	assert.Empty(t, msg.Flags)
	assert.True(t, folder.Contains("1614852000.M1P2.host"))
	// still waiting in new/
	assert.FileExists(t, filename)
	entries, err := os.ReadDir(filepath.Join(folder.Path(), "cur"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateAcceptsNewMessage(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	mailFolder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	folder := mailFolder.(*Folder)
	filename := deliver(t, folder, "1614852000.M1P2.host", newTestMessage("", "").Content)

	err = folder.Update("1614852000.M1P2.host", &mailbox.Message{Flags: "S", Mtime: testTime})
	require.NoError(t, err)
	assert.NoFileExists(t, filename)

	msg, err := folder.Get("1614852000.M1P2.host", true)
	require.NoError(t, err)
	assert.Equal(t, mailbox.Flags("S"), msg.Flags)
	keys, err := folder.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"1614852000.M1P2.host"}, keys)
}

func TestRemoveNewMessage(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	mailFolder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	folder := mailFolder.(*Folder)
	filename := deliver(t, folder, "1614852000.M1P2.host", newTestMessage("", "").Content)

	require.NoError(t, folder.Remove("1614852000.M1P2.host"))
	assert.NoFileExists(t, filename)
	assert.False(t, folder.Contains("1614852000.M1P2.host"))
}

func TestMoveNewMessage(t *testing.T) {
	tree := newTestTree(t, LayoutMaildirPlusPlus)
	mailFolder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	dest, err := tree.CreateFolder("Mail/2021")
	require.NoError(t, err)
	folder := mailFolder.(*Folder)
	filename := deliver(t, folder, "1614852000.M1P2.host", newTestMessage("", "").Content)

	key, err := folder.Move("1614852000.M1P2.host", dest)
	require.NoError(t, err)
	assert.NoFileExists(t, filename)
	assert.True(t, dest.Contains(key))
}

func TestReadLimit(t *testing.T) {
	tree := newTestTree(t, LayoutFS)
	folder, err := tree.GetFolder("Mail")
	require.NoError(t, err)
	msg := newTestMessage("throttled", "S")
	key, err := folder.Add(msg)
	require.NoError(t, err)

	tree.SetReadLimit(1024 * 1024)
	read, err := folder.Get(key, false)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, read.Content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree.SetContext(ctx)
	_, err = folder.Get(key, false)
	assert.ErrorIs(t, err, context.Canceled)

	// metadata never reads the content
	_, err = folder.Get(key, true)
	assert.NoError(t, err)
}
