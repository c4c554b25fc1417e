// Package ledger is the durable, content-addressed store: one bbolt
// bucket per spec.md table (crate, crate_version, task, result, meta,
// report_done), each wrapped in a small table type with its own
// hardwired merge policy — the explicit, non-generic redesign of the
// original TreeAccess trait (spec.md §9). The surfaces differ per
// table: Get and Upsert exist on every table except report_done;
// Insert only on crate, crate_version, task and result; Update only on
// task; report_done has only IsDone and SetDone.
package ledger

import (
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCrate        = []byte("crate")
	bucketCrateVersion = []byte("crate_version")
	bucketTask         = []byte("task")
	bucketResult       = []byte("result")
	bucketMeta         = []byte("meta")
	bucketReportDone   = []byte("report_done")
)

// DB is the single opened handle shared by every worker. bbolt already
// serializes writers through Update, which is the real-world analogue
// of the single-writer transaction spec.md describes.
type DB struct {
	bolt *bolt.DB

	Crates        *CrateTable
	CrateVersions *CrateVersionTable
	Tasks         *TaskTable
	Results       *ResultTable
	Meta          *MetaTable
	ReportDone    *ReportDoneTable
}

// Open opens (creating if absent) the bbolt file at dataDir/criner.db
// and ensures all six tables' buckets exist.
func Open(dataDir string) (*DB, error) {
	return OpenFile(filepath.Join(dataDir, "criner.db"))
}

// OpenFile opens the database at an exact path, bypassing the
// data-dir/criner.db convention (used by `export` and tests).
func OpenFile(path string) (*DB, error) {
	b, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = b.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketCrate, bucketCrateVersion, bucketTask,
			bucketResult, bucketMeta, bucketReportDone,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	db := &DB{bolt: b}
	db.Crates = &CrateTable{db: db}
	db.CrateVersions = &CrateVersionTable{db: db}
	db.Tasks = &TaskTable{db: db}
	db.Results = &ResultTable{db: db}
	db.Meta = &MetaTable{db: db}
	db.ReportDone = &ReportDoneTable{db: db}
	return db, nil
}

// Close closes the underlying file.
func (d *DB) Close() error {
	return d.bolt.Close()
}

func (d *DB) view(f func(tx *bolt.Tx) error) error {
	return withRetry(func() error { return d.bolt.View(f) })
}

func (d *DB) update(f func(tx *bolt.Tx) error) error {
	return withRetry(func() error { return d.bolt.Update(f) })
}

func bucketCount(tx *bolt.Tx, name []byte) uint64 {
	b := tx.Bucket(name)
	stats := b.Stats()
	return uint64(stats.KeyN)
}
