package cmd

import (
	"fmt"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/cfg"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/storage"
	"github.com/creativeprojects/mailarchive/term"
)

// archiveConfig returns where the archive lives: a folder of the main maildir
func archiveConfig(config *cfg.Config, logger lib.Logger) (archive.Config, error) {
	layout, err := mdir.ParseLayout(config.Layout)
	if err != nil {
		return archive.Config{}, err
	}
	storeType, err := storage.ParseType(config.Store)
	if err != nil {
		return archive.Config{}, err
	}
	tree, err := mdir.New(config.Maildir, layout)
	if err != nil {
		return archive.Config{}, err
	}
	folder, err := tree.CreateFolder(tree.Name() + mdir.Delimiter + config.Archive)
	if err != nil {
		return archive.Config{}, fmt.Errorf("cannot create archive folder: %w", err)
	}
	return archive.Config{
		Path:   folder.Path(),
		Layout: layout,
		Store:  storeType,
		Logger: logger,
	}, nil
}

// openArchive returns the archive and an opener for more handles on the same archive
func openArchive(config *cfg.Config) (*archive.Archive, func() (*archive.Archive, error), error) {
	archiveCfg, err := archiveConfig(config, debugLogger())
	if err != nil {
		return nil, nil, err
	}
	opener := func() (*archive.Archive, error) {
		return archive.Open(archiveCfg)
	}
	into, err := opener()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open archive: %w", err)
	}
	return into, opener, nil
}

// backupIndex saves a copy of the index before a repair
func backupIndex(into *archive.Archive) error {
	filename, err := into.BackupIndex()
	if err != nil {
		return err
	}
	if filename != "" {
		term.Verbosef("index saved into %q", filename)
	}
	return nil
}
