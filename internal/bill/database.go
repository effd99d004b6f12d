package bill

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "extractions"

// ErrNotFound is returned when an extraction does not exist
var ErrNotFound = errors.New("extraction not found")

// DB defines the interface for database operations
type DB interface {
	// SaveExtraction saves an extraction to the database
	SaveExtraction(extraction *Extraction) error

	// GetExtraction retrieves an extraction by ID
	GetExtraction(id string) (*Extraction, error)

	// ListExtractions returns all extractions, newest first
	ListExtractions() ([]*Extraction, error)

	// DeleteExtraction removes an extraction from the database
	DeleteExtraction(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveExtraction saves an extraction to the database
func (b *BoltDB) SaveExtraction(extraction *Extraction) error {
	if extraction.ID == "" {
		return fmt.Errorf("extraction id is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(extraction)
		if err != nil {
			return fmt.Errorf("marshaling extraction: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(extraction.ID), data)
	})
}

// GetExtraction retrieves an extraction by ID
func (b *BoltDB) GetExtraction(id string) (*Extraction, error) {
	var extraction *Extraction
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &extraction)
	})
	if err != nil {
		return nil, err
	}
	return extraction, nil
}

// ListExtractions returns all extractions, newest first
func (b *BoltDB) ListExtractions() ([]*Extraction, error) {
	extractions := make([]*Extraction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var extraction Extraction
			if err := json.Unmarshal(v, &extraction); err != nil {
				return fmt.Errorf("unmarshaling extraction %s: %w", k, err)
			}
			extractions = append(extractions, &extraction)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(extractions, func(i, j int) bool {
		return extractions[i].CreatedAt.After(extractions[j].CreatedAt)
	})
	return extractions, nil
}

// DeleteExtraction removes an extraction from the database
func (b *BoltDB) DeleteExtraction(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
