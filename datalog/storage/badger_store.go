package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-incremental/datalog"
)

// BadgerProvider shares one in-memory badger database between the stores
// of an engine. Each store owns a 4-byte key prefix.
type BadgerProvider struct {
	db *badger.DB

	mu     sync.Mutex
	nextID uint32
}

// NewBadgerProvider opens an in-memory badger database
func NewBadgerProvider() (*BadgerProvider, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable BadgerDB logs

	// Small tables; keep memtables modest
	opts.MemTableSize = 16 << 20
	opts.DetectConflicts = false
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerProvider{db: db}, nil
}

// NewStore allocates a fresh prefix for a table
func (p *BadgerProvider) NewStore(name string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	prefix := binary.BigEndian.AppendUint32(nil, p.nextID)
	return &BadgerStore{db: p.db, prefix: prefix, name: name}, nil
}

// Close closes the shared database
func (p *BadgerProvider) Close() error {
	return p.db.Close()
}

// BadgerStore implements Store on a prefix of a shared badger database.
// Facts are recovered from keys alone; values are empty.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
	name   string
	count  int
}

func (s *BadgerStore) fullKey(key []byte) []byte {
	full := make([]byte, 0, len(s.prefix)+len(key))
	full = append(full, s.prefix...)
	return append(full, key...)
}

// Put adds a fact if its key is absent
func (s *BadgerStore) Put(key []byte, _ datalog.Fact) (bool, error) {
	added := false
	err := s.db.Update(func(txn *badger.Txn) error {
		full := s.fullKey(key)
		_, err := txn.Get(full)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return txn.Set(full, nil)
	})
	if err != nil {
		return false, fmt.Errorf("badger put %s: %w", s.name, err)
	}
	if added {
		s.count++
	}
	return added, nil
}

// Delete removes a key if present
func (s *BadgerStore) Delete(key []byte) (bool, error) {
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		full := s.fullKey(key)
		_, err := txn.Get(full)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true
		return txn.Delete(full)
	})
	if err != nil {
		return false, fmt.Errorf("badger delete %s: %w", s.name, err)
	}
	if removed {
		s.count--
	}
	return removed, nil
}

// Has reports whether a key is present
func (s *BadgerStore) Has(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.fullKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Scan visits facts in key order, decoding each from its key
func (s *BadgerStore) Scan(fn func(datalog.Fact) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY - facts live in the key
		opts.Prefix = s.prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			key := it.Item().Key()
			fact, err := datalog.DecodeRecord(key[len(s.prefix):])
			if err != nil {
				return fmt.Errorf("badger scan %s: %w", s.name, err)
			}
			if !fn(fact) {
				return nil
			}
		}
		return nil
	})
}

// Len returns the number of facts
func (s *BadgerStore) Len() int {
	return s.count
}

// Close drops the store's keys; the shared database stays open
func (s *BadgerStore) Close() error {
	if s.count == 0 {
		return nil
	}
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger close %s: %w", s.name, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("badger close %s: %w", s.name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badger close %s: %w", s.name, err)
	}
	s.count = 0
	return nil
}
