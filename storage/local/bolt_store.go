package local

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket  = "metadata"
	recordsBucket   = "records"
	versionKey      = "version"
	boltFileVersion = 1
)

// BoltStore keeps the index in a single bbolt bucket. Keys are ordered by bbolt.
// The file is locked while opened: only one handle can be used at a time.
type BoltStore struct {
	dbFile string
	db     *bolt.DB
	log    lib.Logger
}

func NewBoltStore(filename string) (*BoltStore, error) {
	return NewBoltStoreWithLogger(filename, nil)
}

func NewBoltStoreWithLogger(filename string, logger lib.Logger) (*BoltStore, error) {
	logger = lib.OrNoLog(logger)
	options := *bolt.DefaultOptions
	options.Timeout = 10 * time.Second

	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	db, err := bolt.Open(filename, 0600, &options)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	store := &BoltStore{
		dbFile: filename,
		db:     db,
		log:    logger,
	}
	err = store.init()
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Printf("opened bolt store %q", filename)
	return store, nil
}

func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if version := bucket.Get([]byte(versionKey)); version != nil {
			if string(version) != strconv.Itoa(boltFileVersion) {
				return fmt.Errorf("unsupported store version %q in %q", version, s.dbFile)
			}
		} else {
			err = bucket.Put([]byte(versionKey), []byte(strconv.Itoa(boltFileVersion)))
			if err != nil {
				return err
			}
		}
		_, err = tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
}

func (s *BoltStore) SupportConcurrentHandles() bool {
	return false
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		value, err = (&boltTx{tx: tx}).Get(key)
		return err
	})
	return value, err
}

func (s *BoltStore) Create(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&boltTx{tx: tx}).Create(key, value)
	})
}

func (s *BoltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&boltTx{tx: tx}).Set(key, value)
	})
}

func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return (&boltTx{tx: tx}).Delete(key)
	})
}

func (s *BoltStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		keys, err = (&boltTx{tx: tx}).Keys()
		return err
	})
	return keys, err
}

// Transaction runs fn inside a single bolt read-write transaction
func (s *BoltStore) Transaction(fn func(tx storage.KV) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Backup writes a consistent copy of the store into filename
func (s *BoltStore) Backup(filename string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filename, 0600)
	})
}

// boltTx is the KV view of a bolt transaction
type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) bucket() (*bolt.Bucket, error) {
	bucket := t.tx.Bucket([]byte(recordsBucket))
	if bucket == nil {
		return nil, errors.New("records bucket not found")
	}
	return bucket, nil
}

func (t *boltTx) Get(key string) (string, error) {
	bucket, err := t.bucket()
	if err != nil {
		return "", err
	}
	// a cursor makes the difference between a missing key and an empty value
	k, v := bucket.Cursor().Seek([]byte(key))
	if k == nil || !bytes.Equal(k, []byte(key)) {
		return "", lib.ErrNotFound
	}
	return string(v), nil
}

func (t *boltTx) Create(key, value string) error {
	_, err := t.Get(key)
	if err == nil {
		return lib.ErrAlreadyExists
	}
	if !errors.Is(err, lib.ErrNotFound) {
		return err
	}
	return t.Set(key, value)
}

func (t *boltTx) Set(key, value string) error {
	bucket, err := t.bucket()
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), []byte(value))
}

func (t *boltTx) Delete(key string) error {
	_, err := t.Get(key)
	if err != nil {
		return err
	}
	bucket, err := t.bucket()
	if err != nil {
		return err
	}
	return bucket.Delete([]byte(key))
}

func (t *boltTx) Keys() ([]string, error) {
	bucket, err := t.bucket()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	err = bucket.ForEach(func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys, err
}
