package archive

import (
	"fmt"
	"path/filepath"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
	"github.com/creativeprojects/mailarchive/storage/local"
	"github.com/creativeprojects/mailarchive/storage/mem"
	"github.com/creativeprojects/mailarchive/storage/sqlite"
	"github.com/creativeprojects/mailarchive/storage/symlink"
)

// openStore opens the index of the archive in dir
func openStore(storeType storage.Type, dir string, logger lib.Logger) (storage.Store, error) {
	if storeType == "" {
		storeType = storage.TypeBolt
	}
	filename := filepath.Join(dir, storeType.Filename())
	switch storeType {
	case storage.TypeBolt:
		store, err := local.NewBoltStoreWithLogger(filename, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case storage.TypeSQLite:
		store, err := sqlite.NewSQLiteStoreWithLogger(filename, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case storage.TypeSymlink:
		store, err := symlink.NewSymlinkStoreWithLogger(filename, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case storage.TypeMemory:
		return mem.NewWithLogger(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", lib.ErrUnsupportedBackend, storeType)
	}
}
