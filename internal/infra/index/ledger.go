package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const toolsBucketName = "tools"

var ErrLedgerClosed = errors.New("install ledger is closed")

// Record is one downloaded package known to this machine.
type Record struct {
	Author       string    `json:"author"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	License      string    `json:"license,omitempty"`
	Entry        string    `json:"entry,omitempty"`
	CachePath    string    `json:"cachePath"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

func (r Record) key() []byte {
	return []byte(r.Author + "/" + r.Name + "/" + r.Version)
}

// Ledger is a persistent index of every package the cache has ever received,
// so listings survive restarts without rescanning the cache tree.
type Ledger struct {
	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
}

func OpenLedger(path string) (*Ledger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}
	options := &bolt.Options{Timeout: time.Second}
	db, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(toolsBucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func (l *Ledger) Record(rec Record) error {
	if rec.Author == "" || rec.Name == "" || rec.Version == "" {
		return fmt.Errorf("record requires author, name and version")
	}
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(toolsBucketName)).Put(rec.key(), value)
	})
}

func (l *Ledger) Get(author, name, version string) (Record, bool, error) {
	var rec Record
	found := false
	err := l.view(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(toolsBucketName)).Get(Record{Author: author, Name: name, Version: version}.key())
		if value == nil {
			return nil
		}
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		found = true
		return nil
	})
	return rec, found, err
}

// List returns every recorded package in key order.
func (l *Ledger) List() ([]Record, error) {
	var records []Record
	err := l.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(toolsBucketName)).ForEach(func(_, value []byte) error {
			var rec Record
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func (l *Ledger) Delete(author, name, version string) error {
	return l.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(toolsBucketName)).Delete(Record{Author: author, Name: name, Version: version}.key())
	})
}

func (l *Ledger) view(fn func(*bolt.Tx) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLedgerClosed
	}
	return l.db.View(fn)
}

func (l *Ledger) update(fn func(*bolt.Tx) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLedgerClosed
	}
	return l.db.Update(fn)
}
