package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

// memStore is an in-memory MetadataStore for scheduler tests; it does not
// need bbolt's durability, only the interface's semantics.
type memStore struct {
	mu        sync.Mutex
	results   map[dag.TaskID]any
	refcounts map[dag.TaskID]int
}

func newMemStore() *memStore {
	return &memStore{results: make(map[dag.TaskID]any), refcounts: make(map[dag.TaskID]int)}
}

func (m *memStore) HasResult(ctx context.Context, id dag.TaskID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.results[id]
	return ok, nil
}

func (m *memStore) GetResult(ctx context.Context, id dag.TaskID) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[id]
	if !ok {
		return nil, fmt.Errorf("get %x: %w", id, schederr.ErrMetaMissing)
	}
	return v, nil
}

func (m *memStore) SetResult(ctx context.Context, id dag.TaskID, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; ok {
		return nil
	}
	m.results[id] = value
	return nil
}

func (m *memStore) ExportResult(ctx context.Context, id dag.TaskID, value any, initialRefcount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; !ok {
		m.results[id] = value
	}
	m.refcounts[id] = initialRefcount
	return nil
}

func (m *memStore) DecrResultRefcount(ctx context.Context, id dag.TaskID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.refcounts[id]
	if !ok {
		return 0, fmt.Errorf("decr %x: %w", id, schederr.ErrMetaMissing)
	}
	if n > 0 {
		n--
	}
	m.refcounts[id] = n
	return n, nil
}

func (m *memStore) Reset(ctx context.Context, dropdb bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dropdb {
		m.results = make(map[dag.TaskID]any)
		m.refcounts = make(map[dag.TaskID]int)
	}
	return nil
}

func (m *memStore) Close() error { return nil }

// memPool is an in-memory chunkpool.Pool for scheduler tests.
type memPool struct {
	mu      sync.Mutex
	next    int
	values  map[string]any
	deleted map[string]bool
}

func newMemPool() *memPool {
	return &memPool{values: make(map[string]any), deleted: make(map[string]bool)}
}

func (p *memPool) ToChunk(value any, persist, cache bool) (*dag.Chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	handle := fmt.Sprintf("chunk-%d", p.next)
	p.values[handle] = value
	return &dag.Chunk{Handle: handle, Persist: persist, Cache: cache}, nil
}

func (p *memPool) Collect(ctx context.Context, c *dag.Chunk) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[c.Handle]
	if !ok {
		return nil, fmt.Errorf("collect %s: %w", c.Handle, schederr.ErrPoolMissing)
	}
	return v, nil
}

func (p *memPool) ChunkToDisk(ctx context.Context, c *dag.Chunk) (*dag.Chunk, error) {
	return c, nil
}

func (p *memPool) PoolDelete(handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[handle]; !ok {
		return fmt.Errorf("delete %s: %w", handle, schederr.ErrPoolMissing)
	}
	delete(p.values, handle)
	p.deleted[handle] = true
	return nil
}

func (p *memPool) isDeleted(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted[handle]
}
