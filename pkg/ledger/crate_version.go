package ledger

import (
	"encoding/json"

	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// CrateVersionTable is the "crate_version" bucket: immutable once
// written for a given (name, version); a later write simply overwrites
// (spec.md §4.2: "overwrite, new wins").
type CrateVersionTable struct {
	db *DB
}

// Count returns the number of crate-version rows known to the ledger.
func (t *CrateVersionTable) Count() (uint64, error) {
	var n uint64
	err := t.db.view(func(tx *bolt.Tx) error {
		n = bucketCount(tx, bucketCrateVersion)
		return nil
	})
	return n, err
}

// Get returns the stored CrateVersion for key, or ok=false if absent.
func (t *CrateVersionTable) Get(key string) (item model.CrateVersion, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCrateVersion).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &item)
	})
	return item, ok, err
}

// Insert writes cv, overwriting any prior row at key.
func (t *CrateVersionTable) Insert(key string, cv model.CrateVersion) error {
	return t.db.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCrateVersion), key, cv)
	})
}

// Upsert has the same overwrite semantics as Insert; it exists to keep
// a uniform table surface with the other tables.
func (t *CrateVersionTable) Upsert(key string, cv model.CrateVersion) (model.CrateVersion, error) {
	return cv, t.Insert(key, cv)
}
