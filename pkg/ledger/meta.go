package ledger

import (
	"encoding/json"
	"time"

	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// dateKeyLayout keys meta rows by calendar day so they sort
// lexicographically in the same order as chronologically.
const dateKeyLayout = "2006-01-02"

// TodayKey returns the meta-table key for the current day.
func TodayKey() string { return time.Now().Format(dateKeyLayout) }

// MetaTable is the "meta" bucket: one Context row per day, merged by
// field-wise addition across the running day (spec.md §3/§4.2).
type MetaTable struct {
	db *DB
}

// Get returns the stored Context for key, or ok=false if absent.
func (t *MetaTable) Get(key string) (item model.Context, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &item)
	})
	return item, ok, err
}

// Upsert adds delta to the existing Context at key (or stores delta
// verbatim if absent) and returns the new total.
func (t *MetaTable) Upsert(key string, delta model.Context) (model.Context, error) {
	var result model.Context
	err := t.db.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		var existing model.Context
		hadExisting := false
		if data := b.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			hadExisting = true
		}
		if hadExisting {
			result = existing.Add(delta)
		} else {
			result = delta
		}
		return putJSON(b, key, result)
	})
	return result, err
}

// UpdateToday is a convenience wrapper around Upsert keyed by today's
// date: it lets a caller build a Context delta with a closure.
func (t *MetaTable) UpdateToday(f func(*model.Context)) (model.Context, error) {
	var delta model.Context
	f(&delta)
	return t.Upsert(TodayKey(), delta)
}

// MostRecent returns the most recently-dated Context row, if any.
// Meta keys are calendar dates in "2006-01-02" form, so the
// lexicographically-last key is also the most recent.
func (t *MetaTable) MostRecent() (key string, item model.Context, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		ok = true
		key = string(k)
		return json.Unmarshal(v, &item)
	})
	return key, item, ok, err
}
