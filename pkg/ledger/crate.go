package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// CrateTable is the "crate" bucket: one row per crate name, merging in
// each newly-seen version (spec.md §3's Crate.MergeVersion rule).
type CrateTable struct {
	db *DB
}

// Count returns the number of crates known to the ledger.
func (t *CrateTable) Count() (uint64, error) {
	var n uint64
	err := t.db.view(func(tx *bolt.Tx) error {
		n = bucketCount(tx, bucketCrate)
		return nil
	})
	return n, err
}

// Get returns the stored Crate for key, or ok=false if absent.
func (t *CrateTable) Get(key string) (item model.Crate, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCrate).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &item)
	})
	return item, ok, err
}

// Insert replaces the row wholesale with merge(cv, nil) — i.e. a fresh
// Crate containing only cv.Version.
func (t *CrateTable) Insert(key string, cv model.CrateVersion) error {
	item := mergeCrate(cv, nil)
	return t.db.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCrate), key, item)
	})
}

// Upsert reads the existing Crate (or zero value), merges in cv's
// version per spec.md §3, and writes the result back — all inside one
// transaction, retried on lock contention.
func (t *CrateTable) Upsert(key string, cv model.CrateVersion) (model.Crate, error) {
	var result model.Crate
	err := t.db.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCrate)
		var existing *model.Crate
		data := b.Get([]byte(key))
		if data != nil {
			var c model.Crate
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("decode crate %q: %w", key, err)
			}
			existing = &c
		}
		result = mergeCrate(cv, existing)
		return putJSON(b, key, result)
	})
	return result, err
}

// ForEach calls f with every (name, Crate) row in the table, in key
// order. Iteration stops and returns f's error as soon as f returns
// one.
func (t *CrateTable) ForEach(f func(name string, crate model.Crate) error) error {
	return t.db.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCrate).ForEach(func(k, v []byte) error {
			var c model.Crate
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode crate %q: %w", string(k), err)
			}
			return f(string(k), c)
		})
	})
}

func mergeCrate(new model.CrateVersion, existing *model.Crate) model.Crate {
	if existing == nil {
		return model.Crate{Versions: []string{new.Version}}
	}
	c := model.Crate{Versions: append([]string(nil), existing.Versions...)}
	c.MergeVersion(new.Version)
	return c
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
