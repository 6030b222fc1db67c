// Package cache persists the state incremental builds depend on.
//
// The compile database maps the hash of each source path to the command that
// last compiled it, plus a fingerprint of the toolchain. It answers "did the
// command change" during staleness checks and is exported as
// compile_commands.json for editors. Everything here is an optimization: a
// missing or unreadable cache only costs a rebuild.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultFile is the database file name inside a profile's output dir
	DefaultFile = "compile.db"

	recordsBucket  = "records"
	metaBucket     = "meta"
	fingerprintKey = "fingerprint"
)

// CompileDB holds compile records keyed by path hash. It is not safe for
// concurrent mutation; the build only touches it from one goroutine.
type CompileDB struct {
	records     map[string]CompileRecord
	fingerprint Fingerprint
}

// NewCompileDB returns an empty database
func NewCompileDB() *CompileDB {
	return &CompileDB{records: make(map[string]CompileRecord)}
}

// Load reads the database at path. It always returns a usable database: on
// any failure the result is empty and the error says why.
func Load(path string) (*CompileDB, error) {
	db := NewCompileDB()

	if _, err := os.Stat(path); err != nil {
		return db, fmt.Errorf("failed to stat compile database: %w", err)
	}

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return db, fmt.Errorf("failed to open compile database: %w", err)
	}
	defer bdb.Close()

	err = bdb.View(func(tx *bbolt.Tx) error {
		if meta := tx.Bucket([]byte(metaBucket)); meta != nil {
			if data := meta.Get([]byte(fingerprintKey)); data != nil {
				if err := json.Unmarshal(data, &db.fingerprint); err != nil {
					return err
				}
			}
		}

		b := tx.Bucket([]byte(recordsBucket))
		if b == nil {
			return errors.New("records bucket missing")
		}

		return b.ForEach(func(k, v []byte) error {
			var record CompileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}

			db.records[string(k)] = record
			return nil
		})
	})
	if err != nil {
		return NewCompileDB(), fmt.Errorf("failed to read compile database: %w", err)
	}

	return db, nil
}

// Save replaces the database at path in a single transaction, so readers see
// either the old contents or the new ones.
func (db *CompileDB) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open compile database: %w", err)
	}
	defer bdb.Close()

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordsBucket, metaBucket} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
			}
		}

		meta, err := tx.CreateBucket([]byte(metaBucket))
		if err != nil {
			return err
		}

		data, err := json.Marshal(db.fingerprint)
		if err != nil {
			return err
		}

		if err := meta.Put([]byte(fingerprintKey), data); err != nil {
			return err
		}

		b, err := tx.CreateBucket([]byte(recordsBucket))
		if err != nil {
			return err
		}

		for key, record := range db.records {
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store compile database: %w", err)
	}

	return nil
}

// Find returns the record for a path hash key
func (db *CompileDB) Find(key string) (CompileRecord, bool) {
	r, ok := db.records[key]
	return r, ok
}

// Update inserts or supersedes the record for r.Hash
func (db *CompileDB) Update(r CompileRecord) {
	db.records[r.Hash] = r
}

// Len returns the number of records
func (db *CompileDB) Len() int {
	return len(db.records)
}

// Records returns all records ordered by key
func (db *CompileDB) Records() []CompileRecord {
	keys := slices.Sorted(maps.Keys(db.records))

	out := make([]CompileRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, db.records[k])
	}

	return out
}

// Snapshot copies the records into a map the caller may mutate
func (db *CompileDB) Snapshot() map[string]CompileRecord {
	return maps.Clone(db.records)
}

func (db *CompileDB) Fingerprint() Fingerprint {
	return db.fingerprint
}

func (db *CompileDB) SetFingerprint(fp Fingerprint) {
	db.fingerprint = fp
}

// FingerprintMatches reports whether the records were produced by fp
func (db *CompileDB) FingerprintMatches(fp Fingerprint) bool {
	return db.fingerprint == fp
}

// MergeOld copies records from old whose keys are not present in db.
func (db *CompileDB) MergeOld(old *CompileDB) {
	if old == nil {
		return
	}

	for key, record := range old.records {
		if _, ok := db.records[key]; !ok {
			db.records[key] = record
		}
	}
}
