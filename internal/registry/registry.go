// Package registry tracks bootstrap-key residency metadata: which key ids
// are distributed, with which dimensions and width, across which devices.
// Key material itself never passes through here.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common errors.
var (
	ErrNotFound = errors.New("key record not found")
	ErrExists   = errors.New("key record already exists")
)

// Record describes one resident bootstrap key.
type Record struct {
	KeyID                   string    `json:"key_id"`
	WidthBits               int       `json:"width_bits"`
	InputLWEDimension       int       `json:"input_lwe_dimension"`
	GLWEDimension           int       `json:"glwe_dimension"`
	PolynomialSize          int       `json:"polynomial_size"`
	DecompositionLevelCount int       `json:"decomposition_level_count"`
	DecompositionBaseLog    int       `json:"decomposition_base_log"`
	DeviceIDs               []int     `json:"device_ids"`
	CreatedAt               time.Time `json:"created_at"`
}

// Registry defines the interface for residency metadata storage.
type Registry interface {
	// Put stores a record. Fails with ErrExists for a duplicate key id.
	Put(ctx context.Context, rec *Record) error
	// Get retrieves a record by key id.
	Get(ctx context.Context, keyID string) (*Record, error)
	// Delete removes a record.
	Delete(ctx context.Context, keyID string) error
	// List returns all key ids.
	List(ctx context.Context) ([]string, error)
	// Close closes the registry.
	Close() error
}

// MemoryRegistry implements Registry in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]*Record)}
}

func (r *MemoryRegistry) Put(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.KeyID]; exists {
		return ErrExists
	}

	cp := *rec
	cp.DeviceIDs = append([]int(nil), rec.DeviceIDs...)
	r.records[rec.KeyID] = &cp
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, keyID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[keyID]
	if !exists {
		return nil, ErrNotFound
	}

	cp := *rec
	cp.DeviceIDs = append([]int(nil), rec.DeviceIDs...)
	return &cp, nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[keyID]; !exists {
		return ErrNotFound
	}
	delete(r.records, keyID)
	return nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MemoryRegistry) Close() error { return nil }
