// Package storage holds the facts of each table behind a small ordered
// key/value contract. Keys are canonical record encodings, so a store is
// a set: putting an existing key reports added=false.
package storage

import (
	"fmt"

	"github.com/wbrown/janus-incremental/datalog"
)

// Store is the interface for per-table fact storage
type Store interface {
	// Put adds a fact under its canonical key, reporting whether it was new
	Put(key []byte, fact datalog.Fact) (bool, error)
	// Delete removes a key, reporting whether it was present
	Delete(key []byte) (bool, error)
	// Has reports whether the key is present
	Has(key []byte) (bool, error)
	// Scan visits facts in key order until fn returns false
	Scan(fn func(datalog.Fact) bool) error
	// Len returns the number of facts
	Len() int
	// Close releases the store
	Close() error
}

// Backend selects a Store implementation
type Backend int

const (
	// MemoryBackend stores facts in an ordered B-tree (default)
	MemoryBackend Backend = iota
	// BadgerBackend stores facts in an in-memory badger database
	BadgerBackend
)

func (b Backend) String() string {
	switch b {
	case MemoryBackend:
		return "memory"
	case BadgerBackend:
		return "badger"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend converts a backend name into a Backend
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "memory":
		return MemoryBackend, nil
	case "badger":
		return BadgerBackend, nil
	}
	return 0, fmt.Errorf("unknown storage backend %q", s)
}

// Provider hands out one Store per table and owns any shared resources
type Provider interface {
	NewStore(name string) (Store, error)
	Close() error
}

// NewProvider creates the provider for a backend
func NewProvider(b Backend) (Provider, error) {
	switch b {
	case MemoryBackend:
		return memoryProvider{}, nil
	case BadgerBackend:
		return NewBadgerProvider()
	}
	return nil, fmt.Errorf("unknown storage backend %v", b)
}

type memoryProvider struct{}

func (memoryProvider) NewStore(string) (Store, error) { return NewMemoryStore(), nil }
func (memoryProvider) Close() error                  { return nil }
