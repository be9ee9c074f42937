package harmonize

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var runsBucket = []byte("runs")

// Run is the record of one harmonization run kept in a Manifest.
type Run struct {
	ID       string         `json:"id"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Format   string         `json:"format"`
	Strict   bool           `json:"strict"`
	SpecDir  string         `json:"spec_dir"`
	DataDir  string         `json:"data_dir"`
	Entities []EntityResult `json:"entities"`
	// Error is the failure which ended the run, if any.
	Error string `json:"error,omitempty"`
}

// EntityResult summarizes the output of one entity.
type EntityResult struct {
	Entity     string        `json:"entity"`
	Output     string        `json:"output,omitempty"`
	Documents  int           `json:"documents"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Records    int64         `json:"records"`
	Reconciled bool          `json:"reconciled"`
	Duration   time.Duration `json:"duration"`
	// NoSpecs is set when no document defines the entity, in which case
	// no output is written.
	NoSpecs bool `json:"no_specs,omitempty"`
}

// Manifest stores run records in a bolt database, keyed by run id. Run ids
// are time ordered so iteration order is start order.
type Manifest struct {
	db *bolt.DB
}

// OpenManifest opens or creates the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest '%v'", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return errors.Wrap(err, "creating runs bucket")
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Manifest{db: db}, nil
}

// Close closes the underlying database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Record stores run, replacing any run with the same id.
func (m *Manifest) Record(run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "marshaling run")
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return errors.Wrap(tx.Bucket(runsBucket).Put([]byte(run.ID), data), "putting run")
	})
}

// Run returns the run with id, or nil if there is none.
func (m *Manifest) Run(id string) (*Run, error) {
	var run *Run
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(runsBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		run = &Run{}
		return errors.Wrapf(json.Unmarshal(data, run), "unmarshaling run %s", id)
	})
	return run, err
}

// ListRuns returns every recorded run in start order.
func (m *Manifest) ListRuns() ([]*Run, error) {
	var runs []*Run
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
			run := &Run{}
			if err := json.Unmarshal(v, run); err != nil {
				return errors.Wrapf(err, "unmarshaling run %s", k)
			}
			runs = append(runs, run)
			return nil
		})
	})
	return runs, err
}
