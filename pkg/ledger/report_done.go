package ledger

import bolt "go.etcd.io/bbolt"

// reportDoneMarker is the value stored for a done key; its content
// carries no meaning, only the key's presence does.
var reportDoneMarker = []byte{1}

// ReportDoneTable is the "report_done" bucket: a presence set recording
// which (crate, version, report, report_version) keys have already had
// a waste report generated for them, so pkg/report never regenerates
// the same file twice.
type ReportDoneTable struct {
	db *DB
}

// IsDone reports whether key has already been marked done.
func (t *ReportDoneTable) IsDone(key string) (bool, error) {
	var done bool
	err := t.db.view(func(tx *bolt.Tx) error {
		done = tx.Bucket(bucketReportDone).Get([]byte(key)) != nil
		return nil
	})
	return done, err
}

// SetDone marks key as done. Idempotent.
func (t *ReportDoneTable) SetDone(key string) error {
	return t.db.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReportDone).Put([]byte(key), reportDoneMarker)
	})
}
