package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/schederr"
)

var (
	bucketResults   = []byte("results")
	bucketRefcounts = []byte("refcounts")
)

// resultEnvelope tags a stored result with whether it was a *dag.Chunk, so
// GetResult can reconstruct the original type instead of handing back a
// generic map[string]interface{} once a value falls out of the hot cache.
// Every other value type round-trips through json's default any-decoding,
// which is fine: only *dag.Chunk is ever type-asserted downstream.
type resultEnvelope struct {
	Chunk *dag.Chunk `json:"chunk,omitempty"`
	Value any        `json:"value,omitempty"`
}

// BoltStore is a bbolt-backed MetadataStore with a read-through,
// write-through in-memory hot cache in front of it. BoltDB was chosen for
// pure-Go, no cgo, easy single-binary deployment.
type BoltStore struct {
	db  *bbolt.DB
	hot *hotCache

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Open creates or opens a bbolt-backed metadata store at dbPath.
func Open(dbPath string, meter metric.Meter, cacheSize int, cacheTTL time.Duration) (*BoltStore, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		NoSync:       false,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(dbPath, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketResults, bucketRefcounts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	readLatency, _ := meter.Float64Histogram("dagcore_store_read_ms")
	writeLatency, _ := meter.Float64Histogram("dagcore_store_write_ms")
	cacheHits, _ := meter.Int64Counter("dagcore_store_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("dagcore_store_cache_misses_total")

	return &BoltStore{
		db:           db,
		hot:          newHotCache(cacheSize, cacheTTL),
		readLatency:  readLatency,
		writeLatency: writeLatency,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
	}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// HasResult reports whether a result has been published for id, local
// cache first then the database, never instantiating the value itself.
func (s *BoltStore) HasResult(ctx context.Context, id dag.TaskID) (bool, error) {
	if _, ok := s.hot.get(id); ok {
		s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "has_result")))
		return true, nil
	}
	s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "has_result")))

	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketResults).Get(id[:]) != nil
		return nil
	})
	return found, err
}

// GetResult materializes the value stored for id.
func (s *BoltStore) GetResult(ctx context.Context, id dag.TaskID) (any, error) {
	start := time.Now()
	defer func() {
		s.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	if v, ok := s.hot.get(id); ok {
		s.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get_result")))
		return v, nil
	}
	s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get_result")))

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketResults).Get(id[:])
		if data == nil {
			return fmt.Errorf("get result %x: %w", id, schederr.ErrMetaMissing)
		}
		raw = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode result %x: %w", id, err)
	}
	var v any = env.Value
	if env.Chunk != nil {
		v = env.Chunk
	}
	s.hot.put(id, v)
	return v, nil
}

// SetResult publishes value for id locally only. Idempotent: a second
// writer for the same id observes the first publication and is a no-op.
func (s *BoltStore) SetResult(ctx context.Context, id dag.TaskID, value any) error {
	has, err := s.HasResult(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return s.write(ctx, id, value)
}

// ExportResult publishes value for id cluster-wide with an initial
// refcount, used when the producer and eventual consumer are different
// executors (the result crossed a steal boundary).
func (s *BoltStore) ExportResult(ctx context.Context, id dag.TaskID, value any, initialRefcount int) error {
	has, err := s.HasResult(ctx, id)
	if err != nil {
		return err
	}
	if !has {
		if err := s.write(ctx, id, value); err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(initialRefcount))
		return tx.Bucket(bucketRefcounts).Put(id[:], buf[:])
	})
}

// DecrResultRefcount atomically decrements id's refcount and returns the
// new value. Decrementing an untracked id is a bug upstream; it returns
// MetaMissing rather than panicking.
func (s *BoltStore) DecrResultRefcount(ctx context.Context, id dag.TaskID) (int, error) {
	var newCount int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefcounts)
		raw := b.Get(id[:])
		if raw == nil {
			return fmt.Errorf("decr refcount %x: %w", id, schederr.ErrMetaMissing)
		}
		cur := int64(binary.BigEndian.Uint64(raw))
		cur--
		if cur < 0 {
			cur = 0
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(cur))
		newCount = int(cur)
		return b.Put(id[:], buf[:])
	})
	return newCount, err
}

func (s *BoltStore) write(ctx context.Context, id dag.TaskID, value any) error {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	env := resultEnvelope{Value: value}
	if chunk, ok := value.(*dag.Chunk); ok {
		env = resultEnvelope{Chunk: chunk}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal result %x: %w", id, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResults).Put(id[:], data)
	})
	if err != nil {
		return fmt.Errorf("write result %x: %w", id, err)
	}
	s.hot.put(id, value)
	return nil
}

// Reset clears per-run state. Results and refcounts survive unless
// dropdb is set: reset never drops the metadata store's contents by
// default.
func (s *BoltStore) Reset(ctx context.Context, dropdb bool) error {
	s.hot.clear()
	if !dropdb {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketResults, bucketRefcounts} {
			if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}
