package history

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Run is one recorded ingestion pass over a source.
type Run struct {
	Source string    `json:"source"`
	At     time.Time `json:"at"`
	Files  int       `json:"files"`
	Rows   int       `json:"rows"`
}

// Ledger keeps a durable per-source history of ingestion runs in bbolt.
// It backs the status command and caps retained runs per source.
type Ledger struct {
	db *bbolt.DB
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Record appends a run under its source. Keys are nanosecond timestamps,
// so bucket order is chronological.
func (l *Ledger) Record(run Run) error {
	if run.At.IsZero() {
		run.At = time.Now().UTC()
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketRuns).CreateBucketIfNotExists([]byte(run.Source))
		if err != nil {
			return err
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%020d", run.At.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// Runs returns the recorded runs for a source, oldest first.
func (l *Ledger) Runs(source string) ([]Run, error) {
	var runs []Run
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns).Bucket([]byte(source))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Sources lists every source with at least one recorded run.
func (l *Ledger) Sources() ([]string, error) {
	var out []string
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEachBucket(func(name []byte) error {
			out = append(out, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Trim drops the oldest runs of a source beyond keepLast and returns how
// many were removed.
func (l *Ledger) Trim(source string, keepLast int) (int, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	removed := 0
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns).Bucket([]byte(source))
		if b == nil {
			return nil
		}
		var keys [][]byte
		_ = b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
		excess := len(keys) - keepLast
		for i := 0; i < excess; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (l *Ledger) Close() error { return l.db.Close() }
