package archive

import (
	"fmt"

	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/mdir"
)

const (
	FolderDrafts = "Drafts"
	FolderTrash  = "Trash"
	FolderNotes  = "Notes"
	FolderToDo   = "To Do"
	FolderSent   = "Sent"

	appleMailNote = "com.apple.mail-note"
	appleMailToDo = "com.apple.mail-todo"
)

// Classify returns the name of the canonical folder of the message in this archive
func (a *Archive) Classify(msg *mailbox.Message) string {
	return Classify(a.tree.Name(), msg)
}

// Classify returns the canonical folder of the message under root.
// The first matching rule wins: drafts, trash, then the year of the message
// with a suffix for notes, to-dos and sent messages.
func Classify(root string, msg *mailbox.Message) string {
	if msg.Flags.Has(mailbox.FlagDraft) {
		return join(root, FolderDrafts)
	}
	if msg.Flags.Has(mailbox.FlagTrashed) {
		return join(root, FolderTrash)
	}
	date := msg.Date
	if date.IsZero() {
		date = msg.Mtime
	}
	name := join(root, fmt.Sprintf("%04d", date.Year()))
	if !msg.HasHeader() {
		return name
	}
	switch msg.Header.Get(mailbox.HeaderUniformTypeIdentifier) {
	case appleMailNote:
		return join(name, FolderNotes)
	case appleMailToDo:
		return join(name, FolderToDo)
	}
	if msg.Header.Get(mailbox.HeaderDeliveredTo) == "" && msg.Header.Get(mailbox.HeaderReceived) == "" {
		return join(name, FolderSent)
	}
	return name
}

func join(parent, child string) string {
	return parent + mdir.Delimiter + child
}
