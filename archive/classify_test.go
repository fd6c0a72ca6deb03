package archive

import (
	"testing"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	received := map[string]string{mailbox.HeaderReceived: "from mx.example.org by localhost"}
	deliveredTo := map[string]string{mailbox.HeaderDeliveredTo: "contact@example.org"}
	day2020 := time.Date(2020, 6, 1, 10, 0, 0, 0, time.UTC)
	day2021 := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)

	testData := []struct {
		name     string
		email    lib.Email
		flags    string
		expected string
	}{
		{"draft before year", lib.Email{Date: day2020, Headers: received}, "DS", "Archive/Drafts"},
		{"trash before year", lib.Email{Date: day2020, Headers: received}, "ST", "Archive/Trash"},
		{"draft before trash", lib.Email{Date: day2020}, "DT", "Archive/Drafts"},
		{"received", lib.Email{Date: day2021, Headers: received}, "S", "Archive/2021"},
		{"delivered", lib.Email{Date: day2021, Headers: deliveredTo}, "", "Archive/2021"},
		{"sent", lib.Email{Date: day2021}, "S", "Archive/2021/Sent"},
		{"note", lib.Email{Date: day2020, Headers: map[string]string{
			mailbox.HeaderUniformTypeIdentifier: "com.apple.mail-note",
		}}, "", "Archive/2020/Notes"},
		{"todo", lib.Email{Date: day2020, Headers: map[string]string{
			mailbox.HeaderUniformTypeIdentifier: "com.apple.mail-todo",
			mailbox.HeaderReceived:              "from localhost",
		}}, "", "Archive/2020/To Do"},
	}

	for _, testItem := range testData {
		t.Run(testItem.name, func(t *testing.T) {
			msg := mailbox.NewMessage(lib.GenerateEmail(testItem.email), mailbox.NewFlags(testItem.flags), time.Now(), lib.ContentHash)
			assert.Equal(t, testItem.expected, Classify("Archive", msg))
		})
	}
}

func TestClassifyWithoutHeader(t *testing.T) {
	msg := &mailbox.Message{
		Flags: "S",
		Mtime: time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	assert.Equal(t, "Archive/2019", Classify("Archive", msg))
}

func TestClassifyWithUnreadableDate(t *testing.T) {
	content := []byte("Subject: no date\r\nReceived: from localhost\r\nDate: someday\r\n\r\nbody")
	mtime := time.Date(2018, 3, 4, 5, 6, 7, 0, time.UTC)
	msg := mailbox.NewMessage(content, "", mtime, lib.ContentHash)
	assert.Equal(t, "Mail/2018", Classify("Mail", msg))
}
