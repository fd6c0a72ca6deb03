// Package remote reads the mailboxes of an IMAP account as import sources.
package remote

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/emersion/go-imap"
	compress "github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/client"
	"github.com/zalando/go-keyring"
)

// KeyringService is the service name of the passwords saved in the keyring of the OS
const KeyringService = "mailarchive"

const keyFormat = "%010d"

type Config struct {
	ServerURL string
	Username  string
	// Password is read from the keyring when empty
	Password            string
	DebugLogger         lib.Logger
	NoTLS               bool
	SkipTLSVerification bool
	// Compress asks for the COMPRESS=DEFLATE extension when the server supports it
	Compress bool
}

// Imap is a connection to an account. Only one mailbox can be read at a time.
type Imap struct {
	client   *client.Client
	log      lib.Logger
	selected string
}

func NewImap(cfg Config) (*Imap, error) {
	log := lib.OrNoLog(cfg.DebugLogger)
	if cfg.ServerURL == "" || cfg.Username == "" {
		return nil, errors.New("missing server or username")
	}
	password := cfg.Password
	if password == "" {
		var err error
		password, err = keyring.Get(KeyringService, cfg.Username)
		if err != nil {
			return nil, fmt.Errorf("no password for %q in the keyring: %w", cfg.Username, err)
		}
	}

	var imapClient *client.Client
	var err error
	log.Printf("connecting to server %s...", cfg.ServerURL)
	if cfg.NoTLS {
		imapClient, err = client.Dial(cfg.ServerURL)
	} else {
		tlsConfig := &tls.Config{}
		if cfg.SkipTLSVerification {
			tlsConfig.InsecureSkipVerify = true
		}
		imapClient, err = client.DialTLS(cfg.ServerURL, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot connect to server %s: %w", cfg.ServerURL, err)
	}

	if err := imapClient.Login(cfg.Username, password); err != nil {
		_ = imapClient.Logout()
		return nil, fmt.Errorf("authentication failure: %w", err)
	}
	log.Printf("logged in as %s", cfg.Username)

	if cfg.Compress {
		compression := compress.NewClient(imapClient)
		if supported, err := compression.SupportCompress(compress.Deflate); err == nil && supported {
			if err := compression.Compress(compress.Deflate); err != nil {
				log.Printf("cannot enable compression: %v", err)
			} else {
				log.Print("compression enabled")
			}
		} else {
			log.Print("IMAP server does NOT support compression")
		}
	}

	return &Imap{
		client: imapClient,
		log:    log,
	}, nil
}

func (i *Imap) Close() error {
	i.log.Print("closing connection")
	return i.client.Logout()
}

// Mailboxes returns a reader per selectable mailbox, sorted by name
func (i *Imap) Mailboxes() ([]*Mailbox, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- i.client.List("", "*", mailboxes)
	}()

	output := make([]*Mailbox, 0, 10)
	for m := range mailboxes {
		i.log.Printf("* %q: %+v (delimiter = %q)", m.Name, m.Attributes, m.Delimiter)
		if hasAttribute(m.Attributes, imap.NoSelectAttr) {
			continue
		}
		output = append(output, &Mailbox{
			imap:      i,
			name:      m.Name,
			delimiter: m.Delimiter,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("cannot list mailboxes: %w", err)
	}
	sort.Slice(output, func(a, b int) bool {
		return output[a].name < output[b].name
	})
	return output, nil
}

func (i *Imap) selectMailbox(name string) error {
	if i.selected == name {
		return nil
	}
	status, err := i.client.Select(name, true)
	if err != nil {
		return fmt.Errorf("cannot select mailbox %q: %w", name, err)
	}
	i.log.Printf("selected mailbox %q: %d messages", status.Name, status.Messages)
	i.selected = name
	return nil
}

// Mailbox is a read-only view of an IMAP mailbox, keyed by UID
type Mailbox struct {
	imap      *Imap
	name      string
	delimiter string
}

// Name uses "/" as a delimiter whatever the server uses
func (m *Mailbox) Name() string {
	return lib.VerifyDelimiter(m.name, m.delimiter, "/")
}

// Keys are the zero-padded UIDs of the messages
func (m *Mailbox) Keys() ([]string, error) {
	err := m.imap.selectMailbox(m.name)
	if err != nil {
		return nil, err
	}
	uids, err := m.imap.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("cannot search mailbox %q: %w", m.name, err)
	}
	keys := make([]string, len(uids))
	for n, uid := range uids {
		keys[n] = fmt.Sprintf(keyFormat, uid)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Mailbox) Get(key string, metadataOnly bool) (*mailbox.Message, error) {
	uid, err := strconv.ParseUint(key, 10, 32)
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("%w: message %q in %q", lib.ErrNotFound, key, m.name)
	}
	err = m.imap.selectMailbox(m.name)
	if err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate}
	if !metadataOnly {
		items = append(items, section.FetchItem())
	}

	receiver := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.imap.client.UidFetch(seqset, items, receiver)
	}()
	var fetched *imap.Message
	var content []byte
	var readErr error
	for msg := range receiver {
		if fetched != nil || msg.Uid != uint32(uid) {
			continue
		}
		fetched = msg
		if !metadataOnly {
			if body := msg.GetBody(section); body != nil {
				content, readErr = io.ReadAll(body)
			}
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("cannot fetch message %q in %q: %w", key, m.name, err)
	}
	if fetched == nil {
		return nil, fmt.Errorf("%w: message %q in %q", lib.ErrNotFound, key, m.name)
	}
	if readErr != nil {
		return nil, fmt.Errorf("cannot read message %q in %q: %w", key, m.name, readErr)
	}

	flags := mailbox.FlagsFromIMAP(fetched.Flags)
	var msg *mailbox.Message
	if metadataOnly {
		msg = &mailbox.Message{Flags: flags, Mtime: fetched.InternalDate, Date: fetched.InternalDate}
	} else {
		msg = mailbox.NewMessage(content, flags, fetched.InternalDate, lib.ContentHash)
	}
	msg.Key = key
	msg.Folder = m.Name()
	return msg, nil
}

func hasAttribute(attributes []string, attribute string) bool {
	for _, value := range attributes {
		if value == attribute {
			return true
		}
	}
	return false
}

// verify interface
var _ mailbox.Reader = &Mailbox{}
