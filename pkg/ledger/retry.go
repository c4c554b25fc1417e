package ledger

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// maxBusyAttempts bounds the busy-retry loop at a ~1s worst case
// (1000 attempts * 1ms sleep), tuned for the miner's short transactions
// rather than general OLTP contention.
const maxBusyAttempts = 1000

const busyRetrySleep = time.Millisecond

// withRetry runs f, retrying when bbolt reports the file lock could not
// be acquired (its analogue of "database busy") — the real condition
// that can arise under contention for the exclusive write lock. Any
// other error propagates immediately.
func withRetry(f func() error) error {
	var err error
	for attempt := 1; attempt <= maxBusyAttempts; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !errors.Is(err, bolt.ErrTimeout) {
			return err
		}
		time.Sleep(busyRetrySleep)
	}
	return err
}
