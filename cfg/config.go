// Package cfg loads the configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/record"
	"github.com/creativeprojects/mailarchive/storage"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename = "mailarchive.yaml"
	DefaultArchive  = "Archive"
	// MaildirEnv is the environment variable with the default maildir
	MaildirEnv = "MAILDIR"
)

type Config struct {
	// Maildir receiving the archive folder
	Maildir string `yaml:"maildir"`
	// Archive is the name of the archive folder in the maildir
	Archive string `yaml:"archive"`
	Layout  string `yaml:"layout"`
	Store   string `yaml:"store"`
	Workers int    `yaml:"workers"`
	// Throttle is the maximum number of messages imported per second
	Throttle float64 `yaml:"throttle"`
	// BWLimit is the maximum bandwidth used to read local messages, in KiB per second
	BWLimit  int                `yaml:"bwlimit"`
	Accounts map[string]Account `yaml:"accounts"`
}

// Account is an IMAP account used as an import source
type Account struct {
	ServerURL string `yaml:"serverURL"`
	Username  string `yaml:"username"`
	// Password is looked up in the keyring when empty
	Password            string `yaml:"password"`
	NoTLS               bool   `yaml:"noTLS"`
	SkipTLSVerification bool   `yaml:"skipTLSVerification"`
	Compress            bool   `yaml:"compress"`
}

func NewConfig() *Config {
	return &Config{
		Maildir:  DefaultMaildir(),
		Archive:  DefaultArchive,
		Layout:   string(mdir.LayoutMaildirPlusPlus),
		Store:    string(storage.TypeBolt),
		Accounts: make(map[string]Account),
	}
}

// LoadFromFile loads the configuration from the file. A missing file gives the default configuration.
func LoadFromFile(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return loadConfig(file)
}

// loadConfig from a io.ReadCloser
func loadConfig(reader io.ReadCloser) (*Config, error) {
	defer reader.Close()
	decoder := yaml.NewDecoder(reader)
	config := NewConfig()
	err := decoder.Decode(config)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	err = config.Validate()
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values and cleans up the paths
func (c *Config) Validate() error {
	if _, err := mdir.ParseLayout(c.Layout); err != nil {
		return err
	}
	if _, err := storage.ParseType(c.Store); err != nil {
		return err
	}
	if c.Archive == "" {
		c.Archive = DefaultArchive
	}
	if !record.ValidField(c.Archive) {
		return fmt.Errorf("archive name %q: no %q and no leading or trailing colon", c.Archive, record.Delimiter)
	}
	if c.Maildir == "" {
		c.Maildir = DefaultMaildir()
	}
	c.Maildir = CleanPath(c.Maildir)
	if c.Workers < 0 || c.BWLimit < 0 || c.Throttle < 0 {
		return errors.New("workers, throttle and bwlimit cannot be negative")
	}
	for name, account := range c.Accounts {
		if account.ServerURL == "" || account.Username == "" {
			return fmt.Errorf("account %q: missing serverURL or username", name)
		}
	}
	return nil
}

// DefaultMaildir is $MAILDIR when it exists, ~/Maildir otherwise
func DefaultMaildir() string {
	if env := os.Getenv(MaildirEnv); env != "" {
		path := CleanPath(env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return CleanPath("~/Maildir")
}

// CleanPath expands the ~ token and removes the redundant parts of the path
func CleanPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	path = filepath.Clean(path)
	if absolute, err := filepath.Abs(path); err == nil {
		path = absolute
	}
	return path
}
