package mailbox

import (
	"bufio"
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

const (
	HeaderUniformTypeIdentifier = "X-Uniform-Type-Identifier"
	HeaderDeliveredTo           = "Delivered-To"
	HeaderReceived              = "Received"
)

type Message struct {
	// Content hash of the raw message, empty when only the metadata was loaded.
	Hash string
	// Key of the message inside its folder.
	Key string
	// Name of the folder containing the message.
	Folder string
	Flags  Flags
	// Earliest known timestamp of the message.
	Mtime time.Time
	// Header is empty when only the metadata was loaded.
	Header mail.Header
	// Date of the message from its header, or Mtime when not available.
	Date    time.Time
	Content []byte
}

// NewMessage builds a message from its raw content: hash, header and date are computed from it.
func NewMessage(content []byte, flags Flags, mtime time.Time, hash func([]byte) string) *Message {
	msg := &Message{
		Flags:   flags,
		Mtime:   mtime,
		Date:    mtime,
		Content: content,
	}
	if hash != nil {
		msg.Hash = hash(content)
	}
	header, err := ParseHeader(content)
	if err != nil {
		return msg
	}
	msg.Header = header
	if date, err := header.Date(); err == nil && !date.IsZero() {
		msg.Date = date
	}
	return msg
}

// HasHeader returns false when the message has no header loaded
func (m *Message) HasHeader() bool {
	return m.Header.Len() > 0
}

func (m *Message) String() string {
	return fmt.Sprintf("%s/%s", m.Folder, m.Key)
}

// ParseHeader reads the header section of a raw message
func ParseHeader(content []byte) (mail.Header, error) {
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(content)))
	if err != nil {
		return mail.Header{}, fmt.Errorf("cannot read message header: %w", err)
	}
	return mail.Header{Header: message.Header{Header: header}}, nil
}
