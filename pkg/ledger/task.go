package ledger

import (
	"encoding/json"
	"time"

	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// TaskTable is the "task" bucket. Insert and Upsert stamp
// StoredAt = now(); Upsert also merges State against whatever was
// already there via model.Merge, per spec.md §4.2. Update writes its
// closure's result verbatim.
type TaskTable struct {
	db *DB
}

// Count returns the number of task rows in the ledger.
func (t *TaskTable) Count() (uint64, error) {
	var n uint64
	err := t.db.view(func(tx *bolt.Tx) error {
		n = bucketCount(tx, bucketTask)
		return nil
	})
	return n, err
}

// Get returns the stored Task for key, or ok=false if absent.
func (t *TaskTable) Get(key string) (item model.Task, ok bool, err error) {
	err = t.db.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTask).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &item)
	})
	return item, ok, err
}

// Insert replaces the row wholesale with merge(task, nil).
func (t *TaskTable) Insert(key string, task model.Task) error {
	item := mergeTask(task, nil)
	return t.db.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTask), key, item)
	})
}

// Update performs a transactional read-modify-write: reads the
// existing row (or a zero-value Task), applies f, writes the result
// verbatim (no state-merge — f is trusted to produce the final value),
// and returns what was written.
func (t *TaskTable) Update(key string, f func(model.Task) model.Task) (model.Task, error) {
	var result model.Task
	err := t.db.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTask)
		var existing model.Task
		if data := b.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
		}
		result = f(existing)
		return putJSON(b, key, result)
	})
	return result, err
}

// Upsert reads the existing Task (or zero value), merges task's state
// in via the state-merge rule, and writes the result — the write path
// every processor driver loop uses, so failure histories accumulate
// across attempts automatically.
func (t *TaskTable) Upsert(key string, task model.Task) (model.Task, error) {
	var result model.Task
	err := t.db.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTask)
		var existing *model.Task
		if data := b.Get([]byte(key)); data != nil {
			var e model.Task
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			existing = &e
		}
		result = mergeTask(task, existing)
		return putJSON(b, key, result)
	})
	return result, err
}

// ForEach calls f with every (key, Task) row in the table, in key
// order. Iteration stops and returns f's error as soon as f returns
// one.
func (t *TaskTable) ForEach(f func(key string, task model.Task) error) error {
	return t.db.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTask).ForEach(func(k, v []byte) error {
			var task model.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			return f(string(k), task)
		})
	})
}

func mergeTask(new model.Task, existing *model.Task) model.Task {
	merged := new
	merged.StoredAt = time.Now()
	if existing != nil {
		merged.State = model.Merge(existing.State, new.State)
	}
	return merged
}
