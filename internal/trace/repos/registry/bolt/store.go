package bolt

import (
	"encoding/binary"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/repos/registry"
)

var (
	bucketTrackers = []byte("trackers")
	bucketMeta     = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements registry.Store as an on-disk index. It is rebuilt from
// the registry source on every load and holds no session data.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (registry.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTrackers); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Lookup walks host and its parents, most specific first, inside one read transaction.
func (s *boltStore) Lookup(host string) (string, bool, error) {
	var match string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrackers)
		if b == nil {
			return nil
		}
		for _, candidate := range utils.Suffixes(host) {
			if b.Get([]byte(candidate)) != nil {
				match = candidate
				return nil
			}
		}
		return nil
	})
	return match, match != "", err
}

// RebuildAll drops and refills the trackers bucket in a single write
// transaction, so concurrent readers see either the old or the new set.
func (s *boltStore) RebuildAll(entries []string, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketTrackers); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketTrackers)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.Put([]byte(e), []byte{1}); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		vbuf := make([]byte, 8)
		ubuf := make([]byte, 8)
		binary.BigEndian.PutUint64(vbuf, version)
		binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
		if err := meta.Put(keyVersion, vbuf); err != nil {
			return err
		}
		return meta.Put(keyUpdated, ubuf)
	})
}

func (s *boltStore) Stats() registry.StoreStats {
	st := registry.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketTrackers); b != nil {
			st.Entries = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}
