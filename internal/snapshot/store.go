package snapshot

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	snapshotsBucket = "snapshots" // version -> snapshot JSON, write-once
	metaBucket      = "meta"      // activation pointer
	decisionsBucket = "decisions" // audit trail, key "id_timestamp"

	activeKey = "active_version"
)

// Store persists snapshots and the decision audit trail in BoltDB.
// Snapshot records are write-once; saving an existing version fails.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the snapshot database under dataPath.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "fraud-snapshots.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{snapshotsBucket, metaBucket, decisionsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists a new snapshot version. Existing versions are immutable, so
// a duplicate version is an error rather than an overwrite.
func (s *Store) Save(snap *Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket))
		if b.Get([]byte(snap.Version)) != nil {
			return fmt.Errorf("snapshot %s already exists", snap.Version)
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return b.Put([]byte(snap.Version), data)
	})
}

// Activate points serving at the given version.
func (s *Store) Activate(version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(snapshotsBucket)).Get([]byte(version)) == nil {
			return fmt.Errorf("snapshot %s not found", version)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(version))
	})
}

// Active loads the currently activated snapshot, or nil when none has been
// activated yet.
func (s *Store) Active() (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		version := tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))
		if version == nil {
			return nil
		}
		data := tx.Bucket([]byte(snapshotsBucket)).Get(version)
		if data == nil {
			return fmt.Errorf("active snapshot %s missing from store", version)
		}
		snap = &Snapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Get loads one snapshot by version.
func (s *Store) Get(version string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(version))
		if data == nil {
			return fmt.Errorf("snapshot %s not found", version)
		}
		snap = &Snapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns all stored snapshot versions in key order (chronological,
// since versions are timestamp-prefixed).
func (s *Store) List() ([]string, error) {
	var versions []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotsBucket)).ForEach(func(k, _ []byte) error {
			versions = append(versions, string(k))
			return nil
		})
	})
	return versions, err
}

// AppendDecision writes one served decision to the audit trail. Keys are
// "id_unixnano" so range scans come back in time order per decision id.
func (s *Store) AppendDecision(id string, ts time.Time, payload []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := fmt.Sprintf("%s_%d", id, ts.UnixNano())
		return tx.Bucket([]byte(decisionsBucket)).Put([]byte(key), payload)
	})
}
