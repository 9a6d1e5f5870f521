// Package boltstore archives evidence packs in a bbolt file so past runs can
// be listed and retrieved.
package boltstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
)

// Buckets.
const (
	BucketRuns  = "runs"  // run_id -> evidence JSON
	BucketIndex = "index" // started_at/run_id -> run_id
)

// indexLayout sorts lexicographically in time order.
const indexLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the run history.
type RunRecord struct {
	RunID        string         `json:"run_id"`
	CampaignName string         `json:"campaign_name"`
	StartedAt    time.Time      `json:"started_at"`
	Score        float64        `json:"score"`
	Summary      domain.Summary `json:"summary"`
	Signed       bool           `json:"signed"`
}

// Store is a bbolt-backed domain.EvidenceRepo.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex
}

// Open creates or opens the archive at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func indexKey(pack domain.EvidencePack) []byte {
	return []byte(pack.StartedAt.UTC().Format(indexLayout) + "/" + pack.RunID)
}

// Save stores pack under its run id, replacing any earlier pack with the same id.
func (s *Store) Save(pack domain.EvidencePack) error {
	if pack.RunID == "" {
		return fmt.Errorf("save evidence: empty run id")
	}
	data, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		index := tx.Bucket([]byte(BucketIndex))

		if old := runs.Get([]byte(pack.RunID)); old != nil {
			var prev domain.EvidencePack
			if err := canonical.Unmarshal(old, &prev); err == nil {
				if err := index.Delete(indexKey(prev)); err != nil {
					return err
				}
			}
		}
		if err := runs.Put([]byte(pack.RunID), data); err != nil {
			return err
		}
		return index.Put(indexKey(pack), []byte(pack.RunID))
	})
}

// Get returns the archived pack for runID.
func (s *Store) Get(runID string) (domain.EvidencePack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pack domain.EvidencePack
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketRuns)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return canonical.Unmarshal(data, &pack)
	})
	if err != nil {
		return domain.EvidencePack{}, err
	}
	return pack, nil
}

// List returns every archived run, newest first.
func (s *Store) List() ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []RunRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		c := tx.Bucket([]byte(BucketIndex)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			data := runs.Get(v)
			if data == nil {
				continue
			}
			var pack domain.EvidencePack
			if err := canonical.Unmarshal(data, &pack); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", string(v), err)
			}
			out = append(out, RunRecord{
				RunID:        pack.RunID,
				CampaignName: pack.CampaignName,
				StartedAt:    pack.StartedAt,
				Score:        pack.Score,
				Summary:      pack.Summary,
				Signed:       pack.Signed(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
