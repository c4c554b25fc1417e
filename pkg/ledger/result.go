package ledger

import (
	"encoding/json"

	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// ResultTable is the "result" bucket. A new result always overwrites
// whatever was there before (spec.md §4.2: "result: overwrite").
type ResultTable struct {
	db *DB
}

// Count returns the number of result rows in the ledger.
func (t *ResultTable) Count() (uint64, error) {
	var n uint64
	err := t.db.view(func(tx *bolt.Tx) error {
		n = bucketCount(tx, bucketResult)
		return nil
	})
	return n, err
}

// Get returns the stored TaskResult for key, or ok=false if absent.
func (t *ResultTable) Get(key string) (item model.TaskResult, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResult).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &item)
	})
	return item, ok, err
}

// Insert writes r, overwriting any prior row at key.
func (t *ResultTable) Insert(key string, r model.TaskResult) error {
	return t.db.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketResult), key, r)
	})
}

// Upsert has the same overwrite semantics as Insert.
func (t *ResultTable) Upsert(key string, r model.TaskResult) (model.TaskResult, error) {
	return r, t.Insert(key, r)
}

// ForEach calls f with every (key, TaskResult) row in the table, in
// key order. Iteration stops and returns f's error as soon as f
// returns one.
func (t *ResultTable) ForEach(f func(key string, r model.TaskResult) error) error {
	return t.db.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResult).ForEach(func(k, v []byte) error {
			var r model.TaskResult
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			return f(string(k), r)
		})
	})
}
