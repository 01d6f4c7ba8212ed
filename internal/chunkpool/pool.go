// Package chunkpool implements the off-heap chunk store: a content-handle
// pool that can hold values in-process or migrate them to disk when a
// result must become visible across a steal boundary.
package chunkpool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

// Pool is the external interface for the off-heap chunk store. Its
// storage engine is out of scope here; only the operations a scheduler
// needs against it are defined.
type Pool interface {
	ToChunk(value any, persist, cache bool) (*dag.Chunk, error)
	Collect(ctx context.Context, c *dag.Chunk) (any, error)
	ChunkToDisk(ctx context.Context, c *dag.Chunk) (*dag.Chunk, error)
	PoolDelete(handle string) error
}

// DiskPool holds in-process values in memory, keyed by a UUID handle, and
// spills individual chunks to JSON files under baseDir on migration: a
// JSON-serialized copy is written under the handle before the live
// in-process entry is released.
type DiskPool struct {
	baseDir string

	mu     sync.Mutex
	inproc map[string]any
	onDisk map[string]bool

	migrations metric.Int64Counter
	deletes    metric.Int64Counter
}

// NewDiskPool returns a pool that spills to baseDir, which must already
// exist and be writable.
func NewDiskPool(baseDir string, meter metric.Meter) *DiskPool {
	migrations, _ := meter.Int64Counter("dagcore_chunkpool_migrations_total")
	deletes, _ := meter.Int64Counter("dagcore_chunkpool_deletes_total")
	return &DiskPool{
		baseDir:    baseDir,
		inproc:     make(map[string]any),
		onDisk:     make(map[string]bool),
		migrations: migrations,
		deletes:    deletes,
	}
}

// ToChunk materializes value into a new in-process chunk handle.
func (p *DiskPool) ToChunk(value any, persist, cache bool) (*dag.Chunk, error) {
	handle := uuid.NewString()
	p.mu.Lock()
	p.inproc[handle] = value
	p.mu.Unlock()
	return &dag.Chunk{Handle: handle, Persist: persist, Cache: cache}, nil
}

// Collect materializes c's value, reading through to disk if it was
// migrated.
func (p *DiskPool) Collect(ctx context.Context, c *dag.Chunk) (any, error) {
	p.mu.Lock()
	v, inMem := p.inproc[c.Handle]
	onDisk := p.onDisk[c.Handle]
	p.mu.Unlock()

	if inMem {
		return v, nil
	}
	if !onDisk {
		return nil, fmt.Errorf("collect %s: %w", c.Handle, schederr.ErrPoolMissing)
	}
	data, err := os.ReadFile(p.diskPath(c.Handle))
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", c.Handle, schederr.ErrPoolMissing)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode chunk %s: %w", c.Handle, err)
	}
	return out, nil
}

// ChunkToDisk migrates an in-process handle to disk-backed storage,
// required before a stolen task's result is exported cluster-wide: an
// in-process Go value has no meaning in another executor's address space.
func (p *DiskPool) ChunkToDisk(ctx context.Context, c *dag.Chunk) (*dag.Chunk, error) {
	p.mu.Lock()
	v, inMem := p.inproc[c.Handle]
	p.mu.Unlock()
	if !inMem {
		// already disk-backed, or missing; either way nothing to do here.
		return c, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk %s: %w", c.Handle, err)
	}
	if err := os.WriteFile(p.diskPath(c.Handle), data, 0o600); err != nil {
		return nil, fmt.Errorf("spill chunk %s: %w", c.Handle, err)
	}

	p.mu.Lock()
	delete(p.inproc, c.Handle)
	p.onDisk[c.Handle] = true
	p.mu.Unlock()

	p.migrations.Add(ctx, 1)
	return c, nil
}

// PoolDelete reclaims a chunk's storage. Called exactly once, when the
// chunk's refcount reaches zero; a second call for the same handle finds
// nothing to delete and returns ErrPoolMissing.
func (p *DiskPool) PoolDelete(handle string) error {
	p.mu.Lock()
	_, inMem := p.inproc[handle]
	onDisk := p.onDisk[handle]
	delete(p.inproc, handle)
	delete(p.onDisk, handle)
	p.mu.Unlock()

	p.deletes.Add(context.Background(), 1)

	if onDisk {
		if err := os.Remove(p.diskPath(handle)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete chunk %s: %w", handle, err)
		}
		return nil
	}
	if !inMem {
		return fmt.Errorf("delete %s: %w", handle, schederr.ErrPoolMissing)
	}
	return nil
}

func (p *DiskPool) diskPath(handle string) string {
	return filepath.Join(p.baseDir, handle+".chunk.json")
}
