package merger

import (
	"os"

	bolt "go.etcd.io/bbolt"

	"jaytaylor.com/shardpress/domain"
)

const seenBucket = "seen"

// seenSet is a disk-backed (project_name, file_path) key set, so dedupe
// memory stays bounded no matter how large the corpus is.
type seenSet struct {
	db *bolt.DB
}

func openSeenSet(path string) (*seenSet, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(seenBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	s := &seenSet{
		db: db,
	}
	return s, nil
}

// filter returns the subset of recs not seen before, marking them seen.  One
// batch is one transaction.
func (s *seenSet) filter(recs []domain.FileRecord) ([]domain.FileRecord, error) {
	kept := make([]domain.FileRecord, 0, len(recs))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(seenBucket))
		for _, rec := range recs {
			key := []byte(rec.Key())
			if b.Get(key) != nil {
				continue
			}
			if err := b.Put(key, []byte{}); err != nil {
				return err
			}
			kept = append(kept, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kept, nil
}

func (s *seenSet) Close() error {
	path := s.db.Path()
	if err := s.db.Close(); err != nil {
		return err
	}
	// The seen-set is scratch state, not a pipeline artifact.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
